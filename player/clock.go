package player

import (
	"sync"
	"time"
)

// Clock is a presentation time that runs with the wall clock from the last
// time it was set
type Clock struct {
	mu      sync.Mutex
	pts     float64
	updated time.Time
	paused  bool
	now     func() time.Time
}

func newClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now, updated: now()}
}

// Set sets the clock to pts seconds as of now
func (c *Clock) Set(pts float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pts = pts
	c.updated = c.now()
}

// Get returns the current time in seconds
func (c *Clock) Get() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused {
		return c.pts
	}
	return c.pts + c.now().Sub(c.updated).Seconds()
}

// SetPaused freezes or resumes the clock
func (c *Clock) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused == paused {
		return
	}
	if paused {
		c.pts += c.now().Sub(c.updated).Seconds()
	}
	c.updated = c.now()
	c.paused = paused
}

// clocks holds the per-session clock state
type clocks struct {
	master SyncMaster

	audio    func() float64 // nil without an audio stream
	video    *Clock         // pts of the picture on screen
	external *Clock
}

// Master returns the time of the session's master clock
func (c *clocks) Master() float64 {
	switch c.master {
	case SyncVideo:
		return c.video.Get()
	case SyncAudio:
		if c.audio != nil {
			return c.audio()
		}
		return c.external.Get()
	default:
		return c.external.Get()
	}
}

// resolveMaster picks the master for a session given the streams that opened.
// The choice is fixed for the lifetime of the session.
func resolveMaster(want SyncMaster, hasAudio, hasVideo bool) SyncMaster {
	switch {
	case want == SyncAudio && !hasAudio && hasVideo:
		return SyncVideo
	case want == SyncVideo && !hasVideo && hasAudio:
		return SyncAudio
	}
	return want
}
