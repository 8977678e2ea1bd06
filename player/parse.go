package player

import (
	"errors"
	"fmt"
	"math"
)

// parse is the demux goroutine: it opens the source, feeds the packet
// queues and drives seeks, preparation and end of stream.
func (p *pipeline) parse() error {
	if err := p.open(); err != nil {
		extra := MediaErrorIO
		if errors.Is(err, ErrNoStreams) {
			extra = MediaErrorUnsupported
		}
		p.fail(err, extra)
		return nil
	}

	for !p.quit.Load() {
		p.applySourcePause()

		if target, ok := p.s.pendingSeek(); ok {
			p.seek(target)
		}

		if !p.isPrepared.Load() && p.ready() {
			if !p.prepare() {
				return nil
			}
		}

		p.reportBuffering()

		// only video depth throttles reading; audio-only sources use their own mark
		if p.full() {
			if !p.sleep(backoffInterval) {
				return nil
			}
			continue
		}

		if p.eof.Load() {
			if !p.hasVideo || (p.drained.Load() && p.inflight.Load() == 0 && p.videoPending.Load() == 0) {
				if p.finish() {
					return nil
				}
				continue
			}
			// keep the decoder draining until it has nothing left
			if p.videoPending.Load() == 0 {
				p.putVideo(drainPacket(p.nextIndex()))
			}
			if !p.sleep(backoffInterval) {
				return nil
			}
			continue
		}

		pkt, err := p.src.ReadPacket()
		switch {
		case errors.Is(err, ErrNoData):
			if !p.sleep(transientRetry) {
				return nil
			}
			continue
		case err != nil:
			if !errors.Is(err, ErrEndOfStream) {
				p.log.Debug("read failed, treating as end of stream", "error", err)
			}
			p.eof.Store(true)
			continue
		}
		p.route(pkt)
	}
	return nil
}

// open opens the source and as many of its streams as possible
func (p *pipeline) open() error {
	src, err := p.opts.Demuxer.Open(p.ctx, p.s.dataSource())
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	p.closer.Add(func() {
		if err := src.Close(); err != nil {
			p.log.Debug("failed to close source", "error", err)
		}
	})

	p.mu.Lock()
	p.src = src
	p.duration = max(src.Duration(), 0)
	p.mu.Unlock()

	var audioSt, videoSt *StreamInfo
	for _, st := range src.Streams() {
		switch {
		case st.Type == MediaTypeVideo && videoSt == nil:
			videoSt = &st
		case st.Type == MediaTypeAudio && audioSt == nil:
			audioSt = &st
		}
	}

	// each stream opens independently
	if videoSt != nil && p.opts.VideoSink != nil {
		if err := p.openVideo(*videoSt); err != nil {
			p.log.Warn("video stream unavailable", "stream", videoSt.Index, "error", err)
		}
	}
	p.clocks.master = resolveMaster(p.opts.SyncMaster, audioSt != nil && p.opts.AudioSink != nil, p.hasVideo)
	if audioSt != nil && p.opts.AudioSink != nil {
		if err := p.openAudio(*audioSt); err != nil {
			p.log.Warn("audio stream unavailable", "stream", audioSt.Index, "error", err)
		}
	}

	if p.audio == nil && !p.hasVideo {
		return ErrNoStreams
	}
	p.clocks.master = resolveMaster(p.opts.SyncMaster, p.audio != nil, p.hasVideo)

	p.log.Info("source opened",
		"url", p.s.dataSource().URL,
		"video", p.hasVideo,
		"audio", p.audio != nil,
		"master", p.clocks.master,
		"duration", p.duration,
	)

	if p.hasVideo {
		p.goFunc("video decode", p.decodeVideo)
		p.goFunc("display", p.display)
	}
	p.applyPause()
	return nil
}

func (p *pipeline) openVideo(st StreamInfo) error {
	dec, err := p.src.OpenVideoDecoder(st.Index)
	if err != nil {
		return err
	}
	p.closer.Add(dec.Close)
	p.closer.Add(p.pq.Release)

	p.mu.Lock()
	p.vdec = dec
	p.videoSt = st
	p.hasVideo = true
	p.mu.Unlock()
	return nil
}

func (p *pipeline) openAudio(st StreamInfo) error {
	if st.SampleRate <= 0 || st.Channels <= 0 {
		return fmt.Errorf("invalid audio format %d Hz, %d channels", st.SampleRate, st.Channels)
	}

	dec, err := p.src.OpenAudioDecoder(st.Index)
	if err != nil {
		return err
	}

	a := newAudioPath(p.log.With("stream", "audio"), p.audioQ, dec, st)
	if p.clocks.master != SyncAudio {
		a.master = p.clocks.Master
	}
	p.clocks.audio = a.Clock

	out, err := p.opts.AudioSink.Open(AudioFormat{Channels: st.Channels, SampleRate: st.SampleRate}, a)
	if err != nil {
		dec.Close()
		p.clocks.audio = nil
		return fmt.Errorf("failed to open audio output: %w", err)
	}
	out.SetVolume(p.s.volumeLevel())

	// the output stops pulling before the decoder goes away
	p.closer.Add(a.Close)
	p.closer.Add(out.Close)

	p.mu.Lock()
	p.audio = a
	p.output = out
	p.audioSt = st
	p.mu.Unlock()
	return nil
}

// applySourcePause forwards pause changes to network sources
func (p *pipeline) applySourcePause() {
	paused := p.s.paused.Load()
	if paused == p.lastPaused {
		return
	}
	p.lastPaused = paused
	if err := p.src.SetPaused(paused); err != nil {
		p.log.Debug("failed to pause source", "paused", paused, "error", err)
	}
}

// seek performs a pending seek to target microseconds. The search window
// only extends away from the direction of travel.
func (p *pipeline) seek(target int64) {
	defer p.s.clearSeek()

	rel := target - int64(p.position()*timeBase)
	seekMin, seekMax := int64(math.MinInt64), int64(math.MaxInt64)
	if rel > 0 {
		seekMin = target - rel + 2
	}
	if rel < 0 {
		seekMax = target - rel - 2
	}

	if err := p.src.SeekFile(target, seekMin, seekMax, 0); err != nil {
		p.log.Warn("seek failed", "target", target, "error", err)
		p.s.notify(MediaInfo, MediaInfoNotSeekable, 0, true)
		return
	}

	if p.audio != nil {
		p.audioQ.Flush()
		p.audioQ.Put(flushPacket())
		p.audio.seekClock(float64(target) / timeBase)
	}
	if p.hasVideo {
		p.videoPending.Add(-int64(p.videoQ.Flush()))
		p.putVideo(flushPacket())
	}
	p.clocks.external.Set(float64(target) / timeBase)
	p.clocks.video.Set(float64(target) / timeBase)
	p.log.Debug("seeked", "target", target, "min", seekMin, "max", seekMax)

	p.eof.Store(false)
	p.drained.Store(false)
	p.s.notify(MediaSeekComplete, 0, 0, true)
}

// ready reports whether enough data is buffered to call the session prepared
func (p *pipeline) ready() bool {
	switch {
	case p.eof.Load():
		return true
	case p.hasVideo:
		return p.videoQ.Size() >= p.opts.VideoQueueBytes
	default:
		return p.audioQ.Size() >= p.opts.AudioQueueBytes
	}
}

// prepare reports the session as prepared and, for a chained session, holds
// video back until the previous session has finished
func (p *pipeline) prepare() bool {
	p.markPrepared()

	if prev := p.s.previousPipeline(); prev != nil {
		p.log.Debug("waiting for previous session")
		select {
		case <-prev.done:
		case <-p.ctx.Done():
			return false
		}
	}

	p.s.vpaused.Store(false)
	p.applyPause()
	return true
}

func (p *pipeline) full() bool {
	if p.hasVideo {
		return p.videoQ.Size() > p.opts.VideoQueueBytes
	}
	return p.audioQ.Size() > p.opts.AudioQueueBytes
}

// reportBuffering notifies the queue fill level when it moves by a step
func (p *pipeline) reportBuffering() {
	var pct int
	if p.hasVideo {
		pct = p.videoQ.Size() * 100 / p.opts.VideoQueueBytes
	} else {
		pct = p.audioQ.Size() * 100 / p.opts.AudioQueueBytes
	}
	pct = min(pct, 100)

	if pct-p.buffering >= bufferingStep || p.buffering-pct >= bufferingStep {
		p.buffering = pct
		p.s.notify(MediaBufferingUpdate, pct, 0, true)
	}
}

func (p *pipeline) nextIndex() int {
	i := p.pktIndex
	p.pktIndex++
	return i
}

// route hands a packet to the queue of its stream, dropping the rest
func (p *pipeline) route(pkt *Packet) {
	pkt.Index = p.nextIndex()

	switch {
	case p.hasVideo && pkt.StreamIndex == p.videoSt.Index:
		p.putVideo(pkt)
	case p.audio != nil && pkt.StreamIndex == p.audioSt.Index:
		p.audioQ.Put(pkt)
	}
}

func (p *pipeline) putVideo(pkt *Packet) {
	p.videoPending.Add(1)
	p.videoQ.Put(pkt)
}

// finish ends the session once everything has been decoded. A chained next
// session is started before this one has played out so there is no gap.
// It returns false when a seek arrives while the tail is still playing, in
// which case reading resumes at the new position.
func (p *pipeline) finish() bool {
	next := p.s.nextSession()
	if next != nil && !p.chained {
		p.chained = true
		p.log.Info("end of stream, starting next session", "next", next.id)
		next.startChained(p.s)
	}

	for p.pq.Len() > 0 || (p.audio != nil && p.audioQ.Len() > 0) {
		if _, ok := p.s.pendingSeek(); ok {
			p.log.Debug("seek during end of stream, resuming")
			return false
		}
		if !p.sleep(backoffInterval) {
			return true
		}
	}

	p.log.Info("end of stream", "chained", next != nil)
	p.s.onCompleted(p, next == nil)
	p.shutdown()
	if next == nil {
		p.s.notify(MediaPlaybackComplete, 0, 0, true)
	}
	return true
}
