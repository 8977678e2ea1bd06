package player

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeTime struct {
	t time.Time
}

func (f *fakeTime) now() time.Time { return f.t }

func (f *fakeTime) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestClockRunsFromLastSet(t *testing.T) {
	ft := &fakeTime{t: time.Unix(100, 0)}
	c := newClock(ft.now)

	c.Set(5)
	ft.advance(1500 * time.Millisecond)
	assert.InDelta(t, 6.5, c.Get(), 1e-9)
}

func TestClockPause(t *testing.T) {
	ft := &fakeTime{t: time.Unix(100, 0)}
	c := newClock(ft.now)
	c.Set(1)

	ft.advance(time.Second)
	c.SetPaused(true)
	ft.advance(10 * time.Second)
	assert.InDelta(t, 2, c.Get(), 1e-9)

	c.SetPaused(false)
	ft.advance(time.Second)
	assert.InDelta(t, 3, c.Get(), 1e-9)
}

func TestClocksMaster(t *testing.T) {
	c := clocks{
		master:   SyncAudio,
		video:    newClock(nil),
		external: newClock(nil),
	}
	c.video.SetPaused(true)
	c.external.SetPaused(true)
	c.video.Set(2)
	c.external.Set(3)

	// audio master without audio falls back to the external clock
	assert.Equal(t, 3.0, c.Master())

	c.audio = func() float64 { return 1 }
	assert.Equal(t, 1.0, c.Master())

	c.master = SyncVideo
	assert.Equal(t, 2.0, c.Master())

	c.master = SyncExternal
	assert.Equal(t, 3.0, c.Master())
}

func TestResolveMaster(t *testing.T) {
	assert.Equal(t, SyncVideo, resolveMaster(SyncAudio, false, true))
	assert.Equal(t, SyncAudio, resolveMaster(SyncAudio, true, true))
	assert.Equal(t, SyncAudio, resolveMaster(SyncVideo, true, false))
	assert.Equal(t, SyncExternal, resolveMaster(SyncExternal, true, true))
}
