package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astikit"
	"golang.org/x/sync/errgroup"
)

// pipeline is one prepared run of a session: the parse, video decode and
// display goroutines plus everything they share. It is created by
// PrepareAsync and released once all of its goroutines have exited.
type pipeline struct {
	s    *Session
	log  *slog.Logger
	opts Options

	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group
	closer *astikit.Closer
	done   chan struct{}

	prepared     chan struct{}
	failed       chan error
	preparedOnce sync.Once
	failOnce     sync.Once

	audioQ *PacketQueue
	videoQ *PacketQueue
	pq     *PictureQueue
	clocks clocks

	// set by the parse goroutine once the source is open
	mu       sync.Mutex
	src      Source
	audio    *audioPath
	output   AudioOutput
	vdec     VideoDecoder
	audioSt  StreamInfo
	videoSt  StreamInfo
	hasVideo bool
	duration time.Duration

	quit       atomic.Bool
	eof        atomic.Bool
	isPrepared atomic.Bool
	drained    atomic.Bool

	// inflight counts frames buffered inside the video decoder
	inflight atomic.Int32
	// videoPending counts video packets queued but not fully handled
	videoPending atomic.Int64

	// parse goroutine only
	pktIndex   int
	lastPaused bool
	buffering  int
	chained    bool

	// video decode goroutine only
	videoClock float64

	// display goroutine only
	pacer framePacer
}

func newPipeline(s *Session, opts Options) *pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	p := &pipeline{
		s:        s,
		log:      s.log,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		g:        g,
		closer:   astikit.NewCloser(),
		done:     make(chan struct{}),
		prepared: make(chan struct{}),
		failed:   make(chan error, 1),
		audioQ:   NewPacketQueue(),
		videoQ:   NewPacketQueue(),
		pq:       NewPictureQueue(opts.VideoSink, opts.PictureQueueSize),
	}
	p.clocks = clocks{
		master:   opts.SyncMaster,
		video:    newClock(nil),
		external: newClock(nil),
	}
	p.clocks.video.SetPaused(true)
	p.clocks.external.SetPaused(true)
	return p
}

// start launches the parse goroutine. Resources are released only after
// every goroutine of the group has returned.
func (p *pipeline) start() {
	p.goFunc("parse", p.parse)

	go func() {
		if err := p.g.Wait(); err != nil {
			p.log.Debug("pipeline ended with error", "error", err)
		}
		if err := p.closer.Close(); err != nil {
			p.log.Warn("failed to release pipeline", "error", err)
		}
		p.cancel()
		close(p.done)
	}()
}

// goFunc runs fn in the group; an error fails the whole session
func (p *pipeline) goFunc(name string, fn func() error) {
	p.g.Go(func() error {
		err := fn()
		if err != nil {
			p.fail(fmt.Errorf("%s: %w", name, err), 0)
		}
		return err
	})
}

// shutdown makes every goroutine of the pipeline return. It never blocks.
func (p *pipeline) shutdown() {
	p.quit.Store(true)
	p.audioQ.Abort()
	p.videoQ.Abort()
	p.pq.Abort()
	p.cancel()
}

// stop shuts the pipeline down and waits until its resources are released
func (p *pipeline) stop() {
	p.shutdown()
	<-p.done
}

// fail reports a fatal error once and shuts the pipeline down
func (p *pipeline) fail(err error, extra int) {
	p.failOnce.Do(func() {
		if p.quit.Load() {
			return
		}
		p.log.Error("playback failed", "error", err)
		p.s.onError(p)
		p.failed <- err
		p.s.notify(MediaError, MediaErrorUnknown, extra, true)
	})
	p.shutdown()
}

// markPrepared reports the session as prepared exactly once
func (p *pipeline) markPrepared() {
	p.preparedOnce.Do(func() {
		p.isPrepared.Store(true)
		close(p.prepared)
		p.s.onPrepared(p)
		p.s.notify(MediaPrepared, 0, 0, true)
	})
}

// sleep waits for d and reports false if the pipeline was cancelled meanwhile
func (p *pipeline) sleep(d time.Duration) bool {
	return astikit.Sleep(p.ctx, d) == nil && !p.quit.Load()
}

// applyPause propagates the session's pause state to the clocks and the
// audio output. Video stays paused while the session waits for its turn.
func (p *pipeline) applyPause() {
	paused := p.s.paused.Load() || p.s.vpaused.Load()

	p.clocks.video.SetPaused(paused)
	p.clocks.external.SetPaused(paused)

	p.mu.Lock()
	out := p.output
	p.mu.Unlock()
	if out != nil {
		out.SetPaused(paused)
	}
}

// position returns the playback position in seconds
func (p *pipeline) position() float64 {
	p.mu.Lock()
	hasVideo, audio := p.hasVideo, p.audio
	p.mu.Unlock()

	switch {
	case hasVideo:
		return max(p.clocks.video.Get(), 0)
	case audio != nil:
		return max(audio.Clock(), 0)
	default:
		return 0
	}
}

func (p *pipeline) getDuration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

func (p *pipeline) videoSize() (int, int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.videoSt.Width, p.videoSt.Height, p.hasVideo
}

func (p *pipeline) audioOutput() AudioOutput {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.output
}
