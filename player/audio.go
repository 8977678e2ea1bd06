package player

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// audioPath decodes audio on demand from the sink's pull callback and
// maintains the audio clock. It has no goroutine of its own.
type audioPath struct {
	log       *slog.Logger
	queue     *PacketQueue
	dec       AudioDecoder
	resampler Resampler
	stream    StreamInfo

	// master returns the master clock; nil when audio is the master
	master func() float64

	// fill state, only touched from Fill
	fillMu  sync.Mutex
	buf     []byte
	pending []AudioFrame
	drift   driftCorrector
	silence []byte
	starved bool

	// clock state, also read by other goroutines
	clockMu   sync.Mutex
	clock     float64
	remaining int

	underruns atomic.Int64
}

func newAudioPath(log *slog.Logger, queue *PacketQueue, dec AudioDecoder, stream StreamInfo) *audioPath {
	a := &audioPath{
		log:       log,
		queue:     queue,
		dec:       dec,
		resampler: pcmResampler{},
		stream:    stream,
		drift:     newDriftCorrector(stream.SampleRate),
		silence:   make([]byte, silenceSize),
	}
	if r, ok := dec.(Resampler); ok {
		a.resampler = r
	}
	return a
}

// frameSize returns the bytes of one interleaved s16 sample frame
func (a *audioPath) frameSize() int {
	return 2 * max(a.stream.Channels, 1)
}

func (a *audioPath) bytesPerSec() int {
	return a.stream.SampleRate * a.frameSize()
}

// Clock returns the presentation time of the next byte the sink will read
func (a *audioPath) Clock() float64 {
	a.clockMu.Lock()
	defer a.clockMu.Unlock()
	return a.clockLocked()
}

func (a *audioPath) clockLocked() float64 {
	pts := a.clock
	if bps := a.bytesPerSec(); bps > 0 {
		pts -= float64(a.remaining) / float64(bps)
	}
	return pts
}

// Fill implements PCMSource. It never waits for packets: sinks call it
// from their device callback, often under a mixer lock.
func (a *audioPath) Fill(p []byte) {
	a.fillMu.Lock()
	defer a.fillMu.Unlock()

	for len(p) > 0 {
		if len(a.buf) == 0 {
			chunk, err := a.decodeFrame()
			if err != nil {
				// underrun: play silence and try again for the rest
				a.underrun(err)
				p = p[copy(p, a.silence):]
				continue
			}
			a.starved = false
			a.buf = a.synchronize(chunk)
			a.setRemaining(len(a.buf))
		}

		n := copy(p, a.buf)
		p = p[n:]
		a.buf = a.buf[n:]
		a.setRemaining(len(a.buf))
	}
}

// underrun counts a chunk of silence, logging only the first of a run
func (a *audioPath) underrun(err error) {
	n := a.underruns.Add(1)
	if a.starved || isStopped(err) {
		return
	}
	a.starved = true
	a.log.Debug("audio underrun", "clock", a.Clock(), "underruns", n)
}

func (a *audioPath) setRemaining(n int) {
	a.clockMu.Lock()
	a.remaining = n
	a.clockMu.Unlock()
}

// decodeFrame returns the next chunk of s16 PCM, advancing the audio clock
// past it
func (a *audioPath) decodeFrame() ([]byte, error) {
	for {
		for len(a.pending) > 0 {
			frame := a.pending[0]
			a.pending = a.pending[1:]

			data, err := a.convert(&frame)
			if err != nil {
				a.log.Debug("dropping audio frame", "error", err)
				continue
			}
			if len(data) == 0 {
				continue
			}

			a.clockMu.Lock()
			if bps := a.bytesPerSec(); bps > 0 {
				a.clock += float64(len(data)) / float64(bps)
			}
			a.clockMu.Unlock()
			return data, nil
		}

		pkt, err := a.next()
		if err != nil {
			return nil, err
		}

		if pkt.IsFlush() {
			a.dec.Flush()
			a.pending = nil
			continue
		}

		// packet timestamps override the running estimate
		if ts := pktTime(pkt); ts != NoPTS {
			a.clockMu.Lock()
			a.clock = float64(ts) * a.stream.TimeBase.Float64()
			a.clockMu.Unlock()
		}

		frames, err := a.dec.Decode(pkt)
		if err != nil {
			a.log.Debug("skipping malformed audio packet", "index", pkt.Index, "error", err)
			continue
		}
		a.pending = frames
	}
}

// next takes the next queued audio packet without waiting
func (a *audioPath) next() (*Packet, error) {
	pkt, err := a.queue.Get(false)
	if err != nil {
		return nil, err
	}
	if pkt == nil {
		return nil, errUnderrun
	}
	return pkt, nil
}

func (a *audioPath) convert(frame *AudioFrame) ([]byte, error) {
	if frame.Format != SampleFormatS16 {
		return a.resampler.Resample(frame)
	}
	size := frame.NbSamples * max(frame.Channels, 1) * 2
	if size > len(frame.Data) || size == 0 {
		size = len(frame.Data)
	}
	out := make([]byte, size)
	copy(out, frame.Data)
	return out, nil
}

// synchronize stretches or shrinks a chunk towards the master clock.
// Nothing happens when audio is the master.
func (a *audioPath) synchronize(chunk []byte) []byte {
	if a.master == nil {
		return chunk
	}

	a.clockMu.Lock()
	// the previous chunk is fully consumed at this point
	audioClock := a.clock
	a.clockMu.Unlock()

	diff := audioClock - a.master()
	wanted := a.drift.wantedSize(diff, len(chunk), a.frameSize(), a.stream.SampleRate)
	return applySize(chunk, wanted, a.frameSize())
}

// seekClock moves the clock to pts after a seek and drops the audio that
// was decoded before it
func (a *audioPath) seekClock(pts float64) {
	a.fillMu.Lock()
	defer a.fillMu.Unlock()

	a.buf = nil
	a.pending = nil

	a.clockMu.Lock()
	a.clock = pts
	a.remaining = 0
	a.clockMu.Unlock()
}

// Close releases the decoder
func (a *audioPath) Close() {
	a.dec.Close()
}

func pktTime(pkt *Packet) int64 {
	if pkt.PTS != NoPTS {
		return pkt.PTS
	}
	return pkt.DTS
}

var _ PCMSource = (*audioPath)(nil)

func isStopped(err error) bool {
	return errors.Is(err, ErrStopped)
}
