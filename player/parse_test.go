package player

import (
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seekSource records seek requests
type seekSource struct {
	target, lo, hi int64
	err            error
}

func (s *seekSource) Streams() []StreamInfo        { return nil }
func (s *seekSource) ReadPacket() (*Packet, error) { return nil, ErrEndOfStream }
func (s *seekSource) SetPaused(bool) error         { return nil }
func (s *seekSource) Duration() time.Duration      { return 10 * time.Second }
func (s *seekSource) Close() error                 { return nil }
func (s *seekSource) OpenAudioDecoder(int) (AudioDecoder, error) {
	return nil, errors.New("unused")
}
func (s *seekSource) OpenVideoDecoder(int) (VideoDecoder, error) {
	return nil, errors.New("unused")
}

func (s *seekSource) SeekFile(target, lo, hi int64, flags SeekFlags) error {
	s.target, s.lo, s.hi = target, lo, hi
	return s.err
}

func newSeekPipeline(t *testing.T, src Source) (*pipeline, *int, *int) {
	t.Helper()

	s := NewSession(Options{Logger: slog.New(slog.DiscardHandler)})
	completed, refused := 0, 0
	require.NoError(t, s.SetListener(ListenerFunc(func(msg Message, ext1, ext2 int, fromThread bool) {
		switch {
		case msg == MediaSeekComplete:
			completed++
		case msg == MediaInfo && ext1 == MediaInfoNotSeekable:
			refused++
		}
	})))

	p := newPipeline(s, s.opts)
	p.src = src
	p.audio = newTestAudioPath(p.audioQ, &passDecoder{})
	p.hasVideo = true
	p.videoSt = StreamInfo{Type: MediaTypeVideo, TimeBase: Rational{Num: 1, Den: 1000}}

	for i := range 3 {
		p.audioQ.Put(audioPkt(int64(i*100), 1, 10))
		p.putVideo(&Packet{Data: []byte{1}, PTS: int64(i * 40)})
	}
	p.eof.Store(true)
	p.drained.Store(true)
	return p, &completed, &refused
}

func TestSeekLeavesOnlyFlushSentinels(t *testing.T) {
	src := &seekSource{}
	p, completed, _ := newSeekPipeline(t, src)
	serial := p.videoQ.Serial()

	p.seek(5000000)

	for _, q := range []*PacketQueue{p.audioQ, p.videoQ} {
		require.Equal(t, 1, q.Len())
		pkt, err := q.Get(false)
		require.NoError(t, err)
		assert.True(t, pkt.IsFlush())
		assert.False(t, pkt.HasPTS())
	}
	assert.Greater(t, p.videoQ.Serial(), serial)
	assert.Equal(t, int64(1), p.videoPending.Load())

	assert.False(t, p.eof.Load())
	assert.False(t, p.drained.Load())
	assert.InDelta(t, 5.0, p.clocks.video.Get(), 1e-9)
	assert.InDelta(t, 5.0, p.audio.Clock(), 1e-9)
	assert.Equal(t, 1, *completed)
}

func TestSeekWindowFollowsDirection(t *testing.T) {
	src := &seekSource{}
	p, _, _ := newSeekPipeline(t, src)

	// forward from 0: nothing before the current position
	p.seek(5000000)
	assert.Equal(t, int64(5000000), src.target)
	assert.Equal(t, int64(2), src.lo)
	assert.Equal(t, int64(math.MaxInt64), src.hi)

	// backward from 5s: nothing after the current position
	p.seek(1000000)
	assert.Equal(t, int64(math.MinInt64), src.lo)
	assert.Equal(t, int64(5000000-2), src.hi)
}

func TestFailedSeekKeepsQueues(t *testing.T) {
	src := &seekSource{err: errors.New("not seekable")}
	p, completed, refused := newSeekPipeline(t, src)

	p.seek(5000000)

	assert.Equal(t, 3, p.audioQ.Len())
	assert.Equal(t, 3, p.videoQ.Len())
	assert.Zero(t, p.clocks.video.Get())
	assert.True(t, p.eof.Load())
	assert.True(t, p.drained.Load())
	assert.Zero(t, *completed)
	assert.Equal(t, 1, *refused)

	_, pending := p.s.pendingSeek()
	assert.False(t, pending)
}

func TestFinishYieldsToPendingSeek(t *testing.T) {
	p, _, _ := newSeekPipeline(t, &seekSource{})
	p.s.seekTarget, p.s.seekPending = 1000000, true

	// audio is still queued, so playback has not ended yet
	assert.False(t, p.finish())
	assert.False(t, p.quit.Load())
	assert.Equal(t, 3, p.audioQ.Len())
}

func TestFrameDuration(t *testing.T) {
	p := &pipeline{videoSt: StreamInfo{FrameRate: Rational{Num: 25, Den: 1}}}
	assert.InDelta(t, 0.04, p.frameDuration(), 1e-9)

	p.videoSt.FrameRate = Rational{}
	assert.InDelta(t, initialLastDelay, p.frameDuration(), 1e-9)
}

func TestSynchronizeVideo(t *testing.T) {
	p := &pipeline{videoSt: StreamInfo{
		TimeBase:  Rational{Num: 1, Den: 1000},
		FrameRate: Rational{Num: 25, Den: 1},
	}}

	assert.InDelta(t, 1.0, p.synchronizeVideo(&VideoFrame{PTS: 1.0}, &Packet{PTS: NoPTS}), 1e-9)

	// no timestamp anywhere: the clock advanced by one frame is used
	assert.InDelta(t, 1.04, p.synchronizeVideo(&VideoFrame{PTS: -1}, &Packet{PTS: NoPTS}), 1e-9)

	// a repeated field extends the frame by half a period
	p.synchronizeVideo(&VideoFrame{PTS: 2.0, RepeatPict: 1}, &Packet{PTS: NoPTS})
	assert.InDelta(t, 2.06, p.synchronizeVideo(&VideoFrame{PTS: -1}, &Packet{PTS: NoPTS}), 1e-9)

	// the packet timestamp stands in for a missing frame timestamp
	assert.InDelta(t, 3.0, p.synchronizeVideo(&VideoFrame{PTS: -1}, &Packet{PTS: 3000}), 1e-9)
}
