// Package playlist plays a list of media entries through chained sessions
package playlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/njyeung/avplayer/player"
	"github.com/njyeung/avplayer/source"
)

// Resolver turns a playlist entry into a data source
type Resolver interface {
	Resolve(ctx context.Context, raw string) (source.Entry, error)
}

// EventType is the kind of a playlist event
type EventType int

const (
	EventLoading EventType = iota
	EventPrepared
	EventAdvanced
	EventBuffering
	EventSeekComplete
	EventError
	EventFinished
)

func (t EventType) String() string {
	switch t {
	case EventLoading:
		return "loading"
	case EventPrepared:
		return "prepared"
	case EventAdvanced:
		return "advanced"
	case EventBuffering:
		return "buffering"
	case EventSeekComplete:
		return "seek complete"
	case EventError:
		return "error"
	default:
		return "finished"
	}
}

// Event reports playlist progress
type Event struct {
	Type    EventType
	Index   int
	Name    string
	Percent int
	Err     error
}

// Status is a snapshot of the playing entry
type Status struct {
	Index    int
	Name     string
	Position time.Duration
	Duration time.Duration
	Playing  bool
	Paused   bool
	Volume   float64
	Loading  bool
}

// note is a session notification queued for the run loop
type note struct {
	sess  *player.Session
	msg   player.Message
	ext1  int
	ext2  int
	index int
}

// resolved is the result of resolving an entry in the background
type resolved struct {
	gen   uint64
	index int
	entry source.Entry
	err   error
	start bool
}

type slot struct {
	index int
	sess  *player.Session
}

// Player plays entries in order. The entry after the playing one is
// resolved and prepared ahead of time and chained so it starts gaplessly.
type Player struct {
	log      *slog.Logger
	opts     player.Options
	resolver Resolver
	surface  player.Surface
	entries  []string

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	notes    chan note
	resolved chan resolved
	jumps    chan int
	events   chan Event

	mu      sync.Mutex
	gen     uint64
	current *slot
	next    *slot
	retired []*player.Session
	paused  bool
	volume  float64
}

// New creates a playlist player. opts carries the collaborators every
// session is created with.
func New(opts player.Options, resolver Resolver, surface player.Surface, entries []string) *Player {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	volume := opts.Volume
	if volume <= 0 {
		volume = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		log:      log.With("component", "playlist"),
		opts:     opts,
		resolver: resolver,
		surface:  surface,
		entries:  entries,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		notes:    make(chan note, 256),
		resolved: make(chan resolved, 4),
		jumps:    make(chan int, 8),
		events:   make(chan Event, 100),
		volume:   volume,
	}
	go p.run()
	return p
}

// Events returns the event channel. It is closed by Close.
func (p *Player) Events() <-chan Event {
	return p.events
}

// Len returns the number of entries
func (p *Player) Len() int {
	return len(p.entries)
}

// Play starts playing the entry at index, stopping whatever plays
func (p *Player) Play(index int) {
	select {
	case p.jumps <- index:
	case <-p.ctx.Done():
	}
}

// Next skips to the next entry
func (p *Player) Next() {
	if s := p.Status(); s.Index+1 < len(p.entries) {
		p.Play(s.Index + 1)
	}
}

// Prev goes back to the previous entry
func (p *Player) Prev() {
	p.Play(max(p.Status().Index-1, 0))
}

// TogglePause toggles pause state
func (p *Player) TogglePause() {
	p.mu.Lock()
	p.paused = !p.paused
	paused := p.paused
	s := p.currentSession()
	p.mu.Unlock()

	if s == nil {
		return
	}
	var err error
	if paused {
		err = s.Pause()
	} else {
		err = s.Start()
	}
	if err != nil {
		p.log.Debug("toggle pause", "error", err)
	}
}

// Seek moves the playing entry by delta
func (p *Player) Seek(delta time.Duration) {
	p.mu.Lock()
	s := p.currentSession()
	p.mu.Unlock()
	if s == nil {
		return
	}

	pos, err := s.GetCurrentPosition()
	if err != nil {
		return
	}
	target := pos + int(delta/time.Millisecond)
	if dur, err := s.GetDuration(); err == nil && dur > 0 {
		target = min(target, dur)
	}
	if err := s.SeekTo(max(target, 0)); err != nil {
		p.log.Debug("seek", "error", err)
	}
}

// SetVolume sets the volume of the playing and following entries
func (p *Player) SetVolume(v float64) {
	v = min(max(v, 0), 1)

	p.mu.Lock()
	p.volume = v
	s := p.currentSession()
	p.mu.Unlock()

	if s != nil {
		s.SetVolume(v, v)
	}
}

// Status returns a snapshot of the playing entry
func (p *Player) Status() Status {
	p.mu.Lock()
	st := Status{Paused: p.paused, Volume: p.volume}
	cur := p.current
	p.mu.Unlock()

	if cur == nil {
		return st
	}
	st.Index = cur.index
	st.Name = p.entries[cur.index]
	if cur.sess == nil {
		st.Loading = true
		return st
	}

	if pos, err := cur.sess.GetCurrentPosition(); err == nil {
		st.Position = time.Duration(pos) * time.Millisecond
	}
	if dur, err := cur.sess.GetDuration(); err == nil {
		st.Duration = time.Duration(dur) * time.Millisecond
	}
	st.Playing = cur.sess.IsPlaying()
	return st
}

// Close stops playback and releases every session. It is safe to call
// more than once.
func (p *Player) Close() {
	p.closeOnce.Do(func() {
		p.cancel()
		<-p.done

		p.mu.Lock()
		sessions := p.takeAll()
		p.mu.Unlock()

		for _, s := range sessions {
			s.Release()
		}
		close(p.events)
	})
}

// currentSession returns the playing session. Callers hold p.mu.
func (p *Player) currentSession() *player.Session {
	if p.current == nil {
		return nil
	}
	return p.current.sess
}

// takeAll detaches every session. Callers hold p.mu.
func (p *Player) takeAll() []*player.Session {
	sessions := p.retired
	p.retired = nil
	for _, sl := range []*slot{p.current, p.next} {
		if sl != nil && sl.sess != nil {
			sessions = append(sessions, sl.sess)
		}
	}
	p.current, p.next = nil, nil
	return sessions
}

// run serializes every change to the session chain. Session lifecycle
// methods are never called from inside a notification.
func (p *Player) run() {
	defer close(p.done)

	for {
		select {
		case <-p.ctx.Done():
			return
		case i := <-p.jumps:
			p.startAt(i)
		case r := <-p.resolved:
			p.onResolved(r)
		case n := <-p.notes:
			p.onNote(n)
		}
	}
}

func (p *Player) startAt(index int) {
	if index < 0 || index >= len(p.entries) {
		return
	}

	p.mu.Lock()
	p.gen++
	gen := p.gen
	old := p.takeAll()
	p.current = &slot{index: index}
	p.mu.Unlock()

	for _, s := range old {
		s.Release()
	}

	p.emit(Event{Type: EventLoading, Index: index, Name: p.entries[index]})
	p.resolve(gen, index, true)
}

// resolve resolves an entry in the background; downloads can be slow
func (p *Player) resolve(gen uint64, index int, start bool) {
	if index >= len(p.entries) {
		return
	}
	go func() {
		entry, err := p.resolver.Resolve(p.ctx, p.entries[index])
		select {
		case p.resolved <- resolved{gen: gen, index: index, entry: entry, err: err, start: start}:
		case <-p.ctx.Done():
		}
	}()
}

func (p *Player) onResolved(r resolved) {
	p.mu.Lock()
	stale := r.gen != p.gen
	p.mu.Unlock()
	if stale {
		return
	}

	if r.err != nil {
		p.emit(Event{Type: EventError, Index: r.index, Name: p.entries[r.index], Err: r.err})
		if r.start {
			p.advance(r.index)
		}
		return
	}

	s, err := p.newSession(r.index, r.entry)
	if err != nil {
		p.emit(Event{Type: EventError, Index: r.index, Name: p.entries[r.index], Err: err})
		if r.start {
			p.advance(r.index)
		}
		return
	}

	if r.start {
		p.startSession(s, r.index)
		return
	}
	p.linkSession(s, r.index)
}

func (p *Player) newSession(index int, entry source.Entry) (*player.Session, error) {
	s := player.NewSession(p.opts)
	s.SetListener(player.ListenerFunc(func(msg player.Message, ext1, ext2 int, fromThread bool) {
		select {
		case p.notes <- note{sess: s, msg: msg, ext1: ext1, ext2: ext2, index: index}:
		default:
			p.log.Warn("notification dropped", "msg", msg, "index", index)
		}
	}))

	if err := entry.Apply(s); err != nil {
		s.Release()
		return nil, fmt.Errorf("failed to set data source: %w", err)
	}
	return s, nil
}

func (p *Player) startSession(s *player.Session, index int) {
	p.mu.Lock()
	paused := p.paused
	gen := p.gen
	p.current = &slot{index: index, sess: s}
	p.mu.Unlock()

	if err := s.SetSurface(p.surface); err != nil {
		p.log.Warn("failed to set surface", "error", err)
	}
	if err := s.PrepareAsync(); err != nil {
		p.emit(Event{Type: EventError, Index: index, Name: p.entries[index], Err: err})
		p.advance(index)
		return
	}
	if !paused {
		s.Start()
	}

	p.resolve(gen, index+1, false)
}

// linkSession chains s after the playing session and prepares it ahead
func (p *Player) linkSession(s *player.Session, index int) {
	p.mu.Lock()
	cur := p.current
	ok := cur != nil && cur.sess != nil && cur.index == index-1 && p.next == nil
	if ok {
		p.next = &slot{index: index, sess: s}
	}
	p.mu.Unlock()

	if !ok {
		s.Release()
		return
	}

	if err := cur.sess.SetNext(s); err != nil {
		p.log.Warn("failed to chain next entry", "index", index, "error", err)
		p.dropNext(s)
		return
	}
	if err := s.PrepareAsync(); err != nil {
		p.log.Warn("failed to prepare next entry", "index", index, "error", err)
		p.dropNext(s)
	}
}

func (p *Player) dropNext(s *player.Session) {
	p.mu.Lock()
	if p.next != nil && p.next.sess == s {
		p.next = nil
	}
	p.mu.Unlock()
	s.Release()
}

// advance moves on after the entry at index ended or failed
func (p *Player) advance(index int) {
	if index+1 < len(p.entries) {
		p.startAt(index + 1)
		return
	}
	p.emit(Event{Type: EventFinished, Index: index})
}

func (p *Player) onNote(n note) {
	p.mu.Lock()
	isCurrent := p.current != nil && p.current.sess == n.sess
	isNext := p.next != nil && p.next.sess == n.sess
	volume := p.volume
	p.mu.Unlock()

	if !isCurrent && !isNext {
		return
	}
	name := p.entries[n.index]

	switch n.msg {
	case player.MediaPrepared:
		n.sess.SetVolume(volume, volume)
		if isCurrent {
			p.emit(Event{Type: EventPrepared, Index: n.index, Name: name})
		}

	case player.MediaInfo:
		if n.ext1 == player.MediaInfoStartedAsNext && isNext {
			p.promoteNext()
			p.emit(Event{Type: EventAdvanced, Index: n.index, Name: name})
		}

	case player.MediaBufferingUpdate:
		if isCurrent {
			p.emit(Event{Type: EventBuffering, Index: n.index, Name: name, Percent: n.ext1})
		}

	case player.MediaSeekComplete:
		p.emit(Event{Type: EventSeekComplete, Index: n.index, Name: name})

	case player.MediaPlaybackComplete:
		if isCurrent {
			p.advance(n.index)
		}

	case player.MediaError:
		err := fmt.Errorf("playback failed (%d, %d)", n.ext1, n.ext2)
		if n.ext2 == player.MediaErrorIO {
			err = errors.New("could not open media")
		}
		p.emit(Event{Type: EventError, Index: n.index, Name: name, Err: err})
		if isCurrent {
			p.advance(n.index)
		} else {
			p.dropNext(n.sess)
		}
	}
}

// promoteNext makes the chained session current. The one it replaces is
// still draining, so it is released on the following hand over.
func (p *Player) promoteNext() {
	p.mu.Lock()
	old := p.retired
	p.retired = nil
	if p.current != nil && p.current.sess != nil {
		p.retired = append(p.retired, p.current.sess)
	}
	p.current, p.next = p.next, nil
	gen, index := p.gen, p.current.index
	p.mu.Unlock()

	for _, s := range old {
		s.Release()
	}
	p.resolve(gen, index+1, false)
}

func (p *Player) emit(e Event) {
	if e.Type == EventError {
		p.log.Warn("entry failed", "index", e.Index, "name", e.Name, "error", e.Err)
	} else {
		p.log.Debug("event", "type", e.Type, "index", e.Index)
	}

	select {
	case p.events <- e:
	default:
	}
}
