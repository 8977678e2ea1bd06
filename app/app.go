// Package app wires the playback engine to its FFmpeg demuxer, terminal
// outputs and entry resolvers
package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/njyeung/avplayer/config"
	"github.com/njyeung/avplayer/ffmpeg"
	"github.com/njyeung/avplayer/playlist"
	"github.com/njyeung/avplayer/sink"
	"github.com/njyeung/avplayer/source"
)

// App is a playlist together with everything it plays through
type App struct {
	Playlist *playlist.Player
	Video    *sink.KittyRenderer

	browser *source.Browser
}

// New builds the playback stack for entries. Video is drawn to video
// unless it is nil, in which case video streams are ignored.
func New(s config.Settings, configDir string, video io.Writer, entries []string, log *slog.Logger) (*App, error) {
	ffmpeg.SetLogLevel(s.Debug)

	// Initialize speaker early to trigger permission prompts
	if err := sink.InitSpeaker(); err != nil {
		return nil, fmt.Errorf("could not open speaker: %w", err)
	}

	cache, err := source.NewCache(s.CacheDir, s.CacheSize)
	if err != nil {
		return nil, err
	}

	var s3 *source.S3
	if s.AWSRegion != "" {
		if s3, err = source.NewS3(s.AWSRegion); err != nil {
			return nil, err
		}
	}

	a := &App{
		browser: source.NewBrowser(filepath.Join(configDir, "chrome-data"), true, log),
	}

	opts := s.Options(log)
	opts.Demuxer = &ffmpeg.Demuxer{
		UserAgent: ffmpeg.DefaultUserAgent,
		Width:     s.VideoWidth,
		Height:    s.VideoHeight,
		Logger:    log,
	}
	opts.AudioSink = sink.NewSpeaker()

	var surface any
	if video != nil {
		a.Video = sink.NewKittyRenderer(video)
		a.Video.SetUseShm(s.UseShm && sink.ShmSupported())
		if err := a.Video.FitTerminal(); err != nil {
			log.Debug("terminal size unavailable", "error", err)
		}
		opts.VideoSink = a.Video
		surface = video
	}

	resolver := source.NewResolver(cache, s3, a.browser, log)
	a.Playlist = playlist.New(opts, resolver, surface, entries)
	return a, nil
}

// Close stops playback and shuts the browser down
func (a *App) Close() {
	a.Playlist.Close()
	if a.Video != nil {
		a.Video.Clear()
	}
	a.browser.Close()
}

// ConfigDir returns the directory settings and browser data live in
func ConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".avplayer")
	}
	return filepath.Join(dir, "avplayer")
}

// OpenLog opens the log file in configDir. Logging to the terminal would
// corrupt the interface.
func OpenLog(configDir string, level slog.Level) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(configDir, "avplayer.log"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})), f, nil
}
