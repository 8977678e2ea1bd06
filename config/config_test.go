package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njyeung/avplayer/player"
)

func TestLoadWritesDefaults(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, FileName))

	want := Default()
	assert.Equal(t, want.PictureQueueSize, s.PictureQueueSize)
	assert.Equal(t, want.VideoQueueBytes, s.VideoQueueBytes)
	assert.Equal(t, player.SyncAudio, s.SyncMaster)
	assert.Equal(t, player.PacingPTS, s.Pacing)
	assert.Equal(t, 40*time.Millisecond, s.FrameInterval)
	assert.Equal(t, 1.0, s.Volume)

	// the written file parses back to the same settings
	again, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, s, again)
}

func TestLoadReadsConf(t *testing.T) {
	dir := t.TempDir()
	conf := `# comment
picture_queue_size = 5
sync_master = external
display_pacing = fixed
frame_interval_ms = 33
volume = 0.5
video_width=320
video_height = 240
debug = true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(conf), 0644))

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 5, s.PictureQueueSize)
	assert.Equal(t, player.SyncExternal, s.SyncMaster)
	assert.Equal(t, player.PacingFixed, s.Pacing)
	assert.Equal(t, 33*time.Millisecond, s.FrameInterval)
	assert.Equal(t, 0.5, s.Volume)
	assert.Equal(t, 320, s.VideoWidth)
	assert.Equal(t, 240, s.VideoHeight)
	assert.Equal(t, slog.LevelDebug, s.LogLevel())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	conf := "sync_master = wall\nvolume = 3\npicture_queue_size = many\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(conf), 0644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync_master")
	assert.Contains(t, err.Error(), "volume")
	assert.Contains(t, err.Error(), "picture_queue_size")
}

func TestEnvironmentOverridesConf(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("volume = 0.5\n"), 0644))
	t.Setenv("AVPLAYER_VOLUME", "0.25")
	t.Setenv("AVPLAYER_SYNC_MASTER", "video")

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0.25, s.Volume)
	assert.Equal(t, player.SyncVideo, s.SyncMaster)
}

func TestDotEnvIsLoaded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AVPLAYER_CACHE_SIZE=3\n"), 0644))
	t.Setenv("AVPLAYER_CACHE_SIZE", "")
	os.Unsetenv("AVPLAYER_CACHE_SIZE")

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, s.CacheSize)
}

func TestOptions(t *testing.T) {
	s := Default()
	s.Pacing = player.PacingFixed
	s.Volume = 0.3

	opts := s.Options(nil)
	assert.Equal(t, player.PacingFixed, opts.Pacing)
	assert.Equal(t, 0.3, opts.Volume)
	assert.Equal(t, s.PictureQueueSize, opts.PictureQueueSize)
	assert.Nil(t, opts.Demuxer)
}
