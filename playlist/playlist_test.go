package playlist_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/njyeung/avplayer/player"
	"github.com/njyeung/avplayer/player/playertest"
	"github.com/njyeung/avplayer/playlist"
	"github.com/njyeung/avplayer/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver plays every entry as a test URL; entries starting with
// "missing" fail to resolve
type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, raw string) (source.Entry, error) {
	if strings.HasPrefix(raw, "missing") {
		return source.Entry{}, errors.New("no such entry")
	}
	return source.Entry{Name: raw, URL: "test://" + raw, FD: -1}, nil
}

func newPlaylist(t *testing.T, entries ...string) (*playlist.Player, *playertest.Demuxer) {
	t.Helper()

	clip := playertest.NewMedia(playertest.MediaSpec{
		Duration: 300 * time.Millisecond,
		Video:    true,
		Audio:    true,
	})
	demux := playertest.NewDemuxer(clip)
	demux.Media = func(src player.DataSource) (*playertest.Media, error) {
		if strings.HasPrefix(src.URL, "test://broken") {
			return nil, errors.New("unreadable")
		}
		return clip, nil
	}

	opts := player.Options{
		Demuxer:   demux,
		AudioSink: &playertest.AudioSink{},
		VideoSink: &playertest.VideoSink{},
		Logger:    slog.New(slog.DiscardHandler),
	}
	p := playlist.New(opts, fakeResolver{}, nil, entries)
	t.Cleanup(p.Close)
	return p, demux
}

// collect reads events until the playlist finishes
func collect(t *testing.T, p *playlist.Player) []playlist.Event {
	t.Helper()

	var events []playlist.Event
	timeout := time.After(15 * time.Second)
	for {
		select {
		case e := <-p.Events():
			events = append(events, e)
			if e.Type == playlist.EventFinished {
				return events
			}
		case <-timeout:
			t.Fatalf("playlist did not finish, got %v", events)
		}
	}
}

func ofType(events []playlist.Event, typ playlist.EventType) []int {
	var indexes []int
	for _, e := range events {
		if e.Type == typ {
			indexes = append(indexes, e.Index)
		}
	}
	return indexes
}

func TestPlaylistAdvancesThroughEntries(t *testing.T) {
	p, demux := newPlaylist(t, "a", "b", "c")
	assert.Equal(t, 3, p.Len())

	p.Play(0)
	events := collect(t, p)

	assert.Equal(t, []int{0}, ofType(events, playlist.EventLoading))
	assert.Equal(t, []int{0}, ofType(events, playlist.EventPrepared))
	assert.Equal(t, []int{1, 2}, ofType(events, playlist.EventAdvanced))
	assert.Equal(t, []int{2}, ofType(events, playlist.EventFinished))
	assert.Empty(t, ofType(events, playlist.EventError))
	assert.Equal(t, 3, demux.Opened())
}

func TestPlaylistSkipsFailedEntries(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{"unresolvable", "missing"},
		{"unopenable", "broken"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newPlaylist(t, "a", tt.entry, "c")

			p.Play(0)
			events := collect(t, p)

			errs := ofType(events, playlist.EventError)
			require.NotEmpty(t, errs)
			for _, i := range errs {
				assert.Equal(t, 1, i)
			}
			assert.Equal(t, []int{2}, ofType(events, playlist.EventFinished))
			assert.Contains(t, ofType(events, playlist.EventLoading), 2)
		})
	}
}

func TestPlaylistStatusAndPause(t *testing.T) {
	p, _ := newPlaylist(t, "a")
	p.Play(0)

	require.Eventually(t, func() bool {
		st := p.Status()
		return st.Name == "a" && st.Playing
	}, 10*time.Second, 5*time.Millisecond)

	p.TogglePause()
	st := p.Status()
	assert.True(t, st.Paused)
	assert.False(t, st.Playing)

	p.SetVolume(2)
	assert.Equal(t, 1.0, p.Status().Volume)

	p.TogglePause()
	events := collect(t, p)
	assert.Equal(t, []int{0}, ofType(events, playlist.EventFinished))
}
