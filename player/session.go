package player

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type state int

const (
	stateIdle state = iota
	stateInitialized
	statePreparing
	statePrepared
	stateStarted
	statePaused
	stateCompleted
	stateStopped
	stateError
	stateReleased
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateInitialized:
		return "initialized"
	case statePreparing:
		return "preparing"
	case statePrepared:
		return "prepared"
	case stateStarted:
		return "started"
	case statePaused:
		return "paused"
	case stateCompleted:
		return "completed"
	case stateStopped:
		return "stopped"
	case stateError:
		return "error"
	default:
		return "released"
	}
}

var sessionCount atomic.Uint64

// Session plays one media item. Sessions can be chained with SetNext so
// the next item starts without a gap when this one ends.
//
// Lifecycle methods on a nil or released session return ErrInvalidOperation.
type Session struct {
	id   uint64
	opts Options
	log  *slog.Logger

	mu            sync.Mutex
	state         state
	src           DataSource
	listener      Listener
	surface       Surface
	volume        float64
	next          *Session
	prev          *Session
	pipe          *pipeline
	preparingSync bool

	paused  atomic.Bool
	vpaused atomic.Bool
	started atomic.Bool

	seekMu      sync.Mutex
	seekPending bool
	seekTarget  int64
}

// NewSession creates an idle session
func NewSession(opts Options) *Session {
	opts = opts.withDefaults()
	id := sessionCount.Add(1)

	s := &Session{
		id:     id,
		opts:   opts,
		log:    opts.Logger.With("component", "session", "session", id),
		volume: opts.Volume,
	}
	s.paused.Store(true)
	return s
}

// ID returns the session's process-unique identifier
func (s *Session) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

// SetDataSource sets the URL to play. headers is passed to network
// protocols verbatim, one "Key: value" per line.
func (s *Session) SetDataSource(url, headers string) error {
	if s == nil {
		return ErrInvalidOperation
	}
	if url == "" {
		return fmt.Errorf("empty url: %w", ErrInvalidOperation)
	}

	// plain mms is served over http nowadays
	if rest, ok := strings.CutPrefix(url, "mms://"); ok {
		url = "mmsh://" + rest
	}

	return s.setDataSource(DataSource{URL: url, Headers: headers})
}

// SetDataSourceFD plays from an open file descriptor, skipping offset bytes.
// The descriptor is duplicated; the caller keeps ownership of fd.
func (s *Session) SetDataSourceFD(fd uintptr, offset, length int64) error {
	if s == nil {
		return ErrInvalidOperation
	}
	if offset < 0 {
		return fmt.Errorf("negative offset %d: %w", offset, ErrInvalidOperation)
	}

	dup, err := dupFD(fd)
	if err != nil {
		return fmt.Errorf("failed to duplicate descriptor: %w", err)
	}
	return s.setDataSource(DataSource{
		URL:    fmt.Sprintf("pipe:%d", dup),
		Offset: offset,
		Length: length,
	})
}

func (s *Session) setDataSource(src DataSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateIdle {
		return ErrInvalidOperation
	}
	s.src = src
	s.state = stateInitialized
	return nil
}

func (s *Session) dataSource() DataSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src
}

// SetListener registers the notification listener, replacing any previous one
func (s *Session) SetListener(l Listener) error {
	if s == nil {
		return ErrInvalidOperation
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateReleased {
		return ErrInvalidOperation
	}
	s.listener = l
	return nil
}

// SetSurface hands a display surface to the video sink
func (s *Session) SetSurface(surface Surface) error {
	if s == nil {
		return ErrInvalidOperation
	}
	s.mu.Lock()
	if s.state == stateReleased {
		s.mu.Unlock()
		return ErrInvalidOperation
	}
	s.surface = surface
	s.mu.Unlock()

	if s.opts.VideoSink == nil {
		return nil
	}
	return s.opts.VideoSink.SetSurface(surface)
}

// Prepare prepares the session and blocks until it is prepared or failed
func (s *Session) Prepare() error {
	if s == nil {
		return ErrInvalidOperation
	}

	s.mu.Lock()
	if s.preparingSync {
		s.mu.Unlock()
		return ErrAlreadyPreparing
	}
	s.preparingSync = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.preparingSync = false
		s.mu.Unlock()
	}()

	p, err := s.prepareAsync()
	if err != nil {
		return err
	}

	select {
	case <-p.prepared:
		return nil
	case err := <-p.failed:
		return err
	case <-p.done:
		select {
		case <-p.prepared:
			return nil
		case err := <-p.failed:
			return err
		default:
			return ErrStopped
		}
	}
}

// PrepareAsync starts preparing the session and returns immediately. The
// listener receives MediaPrepared or MediaError.
func (s *Session) PrepareAsync() error {
	if s == nil {
		return ErrInvalidOperation
	}
	_, err := s.prepareAsync()
	return err
}

func (s *Session) prepareAsync() (*pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateInitialized, stateStopped:
	default:
		return nil, ErrInvalidOperation
	}
	if s.opts.Demuxer == nil {
		return nil, fmt.Errorf("no demuxer: %w", ErrInvalidOperation)
	}

	// video is held back until the session is prepared
	s.vpaused.Store(true)
	s.clearSeek()

	p := newPipeline(s, s.opts)
	s.pipe = p
	s.state = statePreparing
	s.log.Debug("preparing", "url", s.src.URL)
	p.start()
	return p, nil
}

// Start starts or resumes playback
func (s *Session) Start() error {
	if s == nil {
		return ErrInvalidOperation
	}
	s.mu.Lock()
	switch s.state {
	case statePreparing:
	case statePrepared, stateStarted, statePaused:
		s.state = stateStarted
	default:
		s.mu.Unlock()
		return ErrInvalidOperation
	}
	p := s.pipe
	s.mu.Unlock()

	s.started.Store(true)
	s.paused.Store(false)
	if p != nil {
		p.applyPause()
	}
	return nil
}

// Pause pauses playback
func (s *Session) Pause() error {
	if s == nil {
		return ErrInvalidOperation
	}
	s.mu.Lock()
	switch s.state {
	case statePreparing:
	case statePrepared, stateStarted, statePaused:
		s.state = statePaused
	default:
		s.mu.Unlock()
		return ErrInvalidOperation
	}
	p := s.pipe
	s.mu.Unlock()

	s.paused.Store(true)
	if p != nil {
		p.applyPause()
	}
	return nil
}

// IsPlaying reports whether the session was started and is not paused
func (s *Session) IsPlaying() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case statePreparing, statePrepared, stateStarted, statePaused:
		return s.started.Load() && !s.paused.Load()
	}
	return false
}

// Stop stops playback, joins every goroutine of the session and releases
// what they used. The session can be prepared again afterwards.
func (s *Session) Stop() error {
	if s == nil {
		return ErrInvalidOperation
	}
	s.mu.Lock()
	switch s.state {
	case stateIdle, stateInitialized, stateReleased:
		s.mu.Unlock()
		return ErrInvalidOperation
	}
	p := s.pipe
	s.state = stateStopped
	s.mu.Unlock()

	s.started.Store(false)
	s.paused.Store(true)
	if p != nil {
		p.stop()
	}
	s.clearSeek()
	s.log.Debug("stopped")
	return nil
}

// Reset stops the session and returns it to the idle state
func (s *Session) Reset() error {
	if s == nil {
		return ErrInvalidOperation
	}
	if err := s.Stop(); err != nil && !errors.Is(err, ErrInvalidOperation) {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateReleased {
		return ErrInvalidOperation
	}
	s.state = stateIdle
	s.src = DataSource{}
	s.pipe = nil
	s.clearSeek()
	return nil
}

// Release resets the session, unlinks it from its chain and makes it unusable
func (s *Session) Release() error {
	if s == nil {
		return ErrInvalidOperation
	}
	if err := s.Reset(); err != nil {
		return err
	}

	s.mu.Lock()
	next, prev := s.next, s.prev
	s.next, s.prev = nil, nil
	s.listener = nil
	s.state = stateReleased
	s.mu.Unlock()

	if next != nil {
		next.mu.Lock()
		if next.prev == s {
			next.prev = nil
		}
		next.mu.Unlock()
	}
	if prev != nil {
		prev.mu.Lock()
		if prev.next == s {
			prev.next = nil
		}
		prev.mu.Unlock()
	}
	return nil
}

// SeekTo requests a seek to msec milliseconds. A request made while another
// is still pending is ignored.
func (s *Session) SeekTo(msec int) error {
	if s == nil {
		return ErrInvalidOperation
	}
	s.mu.Lock()
	switch s.state {
	case statePreparing, statePrepared, stateStarted, statePaused:
	default:
		s.mu.Unlock()
		return ErrInvalidOperation
	}
	s.mu.Unlock()

	s.seekMu.Lock()
	defer s.seekMu.Unlock()

	if s.seekPending {
		s.log.Debug("seek ignored, another one is pending", "msec", msec)
		return nil
	}
	s.seekTarget = int64(max(msec, 0)) * 1000
	s.seekPending = true
	return nil
}

// pendingSeek returns the requested target in microseconds
func (s *Session) pendingSeek() (int64, bool) {
	s.seekMu.Lock()
	defer s.seekMu.Unlock()
	return s.seekTarget, s.seekPending
}

func (s *Session) clearSeek() {
	s.seekMu.Lock()
	defer s.seekMu.Unlock()
	s.seekPending = false
}

// GetCurrentPosition returns the playback position in milliseconds
func (s *Session) GetCurrentPosition() (int, error) {
	if s == nil {
		return 0, ErrInvalidOperation
	}
	if target, ok := s.pendingSeek(); ok {
		return int(target / 1000), nil
	}

	p := s.pipeline()
	if p == nil {
		return 0, nil
	}
	return int(p.position() * 1000), nil
}

// GetDuration returns the media duration in milliseconds, 0 when unknown
func (s *Session) GetDuration() (int, error) {
	if s == nil {
		return 0, ErrInvalidOperation
	}
	p := s.pipeline()
	if p == nil {
		return 0, nil
	}
	return int(p.getDuration() / time.Millisecond), nil
}

// GetVideoWidth returns the width of the video stream
func (s *Session) GetVideoWidth() (int, error) {
	w, _, err := s.videoSize()
	return w, err
}

// GetVideoHeight returns the height of the video stream
func (s *Session) GetVideoHeight() (int, error) {
	_, h, err := s.videoSize()
	return h, err
}

func (s *Session) videoSize() (int, int, error) {
	if s == nil {
		return 0, 0, ErrInvalidOperation
	}
	p := s.pipeline()
	if p == nil {
		return 0, 0, ErrInvalidOperation
	}
	w, h, ok := p.videoSize()
	if !ok {
		return 0, 0, ErrInvalidOperation
	}
	return w, h, nil
}

// SetVolume sets the output volume. The sink has a single gain, driven by
// the left channel.
func (s *Session) SetVolume(left, right float64) error {
	if s == nil {
		return ErrInvalidOperation
	}
	left = min(max(left, 0), 1)

	s.mu.Lock()
	s.volume = left
	p := s.pipe
	s.mu.Unlock()

	if p == nil {
		return ErrInvalidOperation
	}
	out := p.audioOutput()
	if out == nil {
		return ErrInvalidOperation
	}
	out.SetVolume(left)
	return nil
}

func (s *Session) volumeLevel() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// SetNext chains next to play right after this session ends
func (s *Session) SetNext(next *Session) error {
	if s == nil || next == nil || next == s {
		return ErrInvalidOperation
	}

	s.mu.Lock()
	if s.state == stateReleased {
		s.mu.Unlock()
		return ErrInvalidOperation
	}
	old := s.next
	s.next = next
	s.mu.Unlock()

	if old != nil && old != next {
		old.mu.Lock()
		if old.prev == s {
			old.prev = nil
		}
		old.mu.Unlock()
	}

	next.mu.Lock()
	defer next.mu.Unlock()

	if next.state == stateReleased {
		return ErrInvalidOperation
	}
	next.prev = s
	return nil
}

func (s *Session) nextSession() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *Session) pipeline() *pipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipe
}

// previousPipeline returns the running pipeline of the previous session
func (s *Session) previousPipeline() *pipeline {
	s.mu.Lock()
	prev := s.prev
	s.mu.Unlock()

	if prev == nil {
		return nil
	}
	return prev.pipeline()
}

// startChained is called by the previous session at its end of stream. The
// session inherits the previous play state and takes over its surface.
func (s *Session) startChained(prev *Session) {
	prev.mu.Lock()
	surface := prev.surface
	prev.mu.Unlock()

	s.started.Store(prev.started.Load())
	s.paused.Store(prev.paused.Load())

	if surface != nil {
		if err := s.SetSurface(surface); err != nil {
			s.log.Warn("failed to take over surface", "error", err)
		}
	}

	if err := s.PrepareAsync(); err != nil {
		// already preparing on its own
		s.log.Debug("chained prepare skipped", "error", err)
	}
	s.mu.Lock()
	if s.state == statePrepared && s.started.Load() {
		s.state = stateStarted
		if s.paused.Load() {
			s.state = statePaused
		}
	}
	p := s.pipe
	s.mu.Unlock()

	if p != nil {
		p.applyPause()
	}
	s.notify(MediaInfo, MediaInfoStartedAsNext, 0, true)
}

func (s *Session) onPrepared(p *pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipe != p || s.state != statePreparing {
		return
	}
	switch {
	case s.started.Load() && !s.paused.Load():
		s.state = stateStarted
	case s.started.Load():
		s.state = statePaused
	default:
		s.state = statePrepared
	}
	s.log.Info("prepared", "state", s.state)
}

func (s *Session) onCompleted(p *pipeline, last bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipe != p {
		return
	}
	s.state = stateCompleted
	s.started.Store(false)
	s.clearSeek()
	if !last {
		s.log.Debug("handed over to next session")
	}
}

func (s *Session) onError(p *pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipe != p {
		return
	}
	s.state = stateError
	s.started.Store(false)
	s.clearSeek()
}
