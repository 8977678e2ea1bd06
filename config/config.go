// Package config loads player settings from avplayer.conf, .env files and
// the environment
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/njyeung/avplayer/player"
)

// FileName is the settings file inside the config directory
const FileName = "avplayer.conf"

// EnvPrefix prefixes environment overrides, e.g. AVPLAYER_VOLUME
const EnvPrefix = "AVPLAYER_"

// Settings are the user configurable player settings
type Settings struct {
	PictureQueueSize int
	VideoQueueBytes  int
	AudioQueueBytes  int
	SyncMaster       player.SyncMaster
	Pacing           player.Pacing
	FrameInterval    time.Duration
	Volume           float64

	// video is scaled within this bounding box
	VideoWidth  int
	VideoHeight int

	CacheDir  string
	CacheSize int
	AWSRegion string
	UseShm    bool
	Debug     bool
}

// Default returns the default settings
func Default() Settings {
	cacheDir := filepath.Join(os.TempDir(), "avplayer-cache")
	if dir, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(dir, "avplayer")
	}

	return Settings{
		PictureQueueSize: player.DefaultPictureQueueSize,
		VideoQueueBytes:  player.DefaultVideoQueueBytes,
		AudioQueueBytes:  player.DefaultAudioQueueBytes,
		SyncMaster:       player.SyncAudio,
		Pacing:           player.PacingPTS,
		FrameInterval:    player.DefaultFrameInterval,
		Volume:           1,
		VideoWidth:       640,
		VideoHeight:      360,
		CacheDir:         cacheDir,
		CacheSize:        8,
		UseShm:           true,
	}
}

// Load reads avplayer.conf from configDir, writing it with defaults if it
// doesn't exist, then applies .env files and AVPLAYER_* variables on top
func Load(configDir string) (Settings, error) {
	s := Default()

	// ensure config directory exists
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return s, fmt.Errorf("could not create config directory: %w", err)
	}

	// write default settings if settings file doesn't exist
	path := filepath.Join(configDir, FileName)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := Write(path, s); err != nil {
			return s, fmt.Errorf("could not write default settings: %w", err)
		}
	}

	if err := s.apply(parseConf(path)); err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}

	// .env never overrides variables that are already set
	for _, env := range []string{filepath.Join(configDir, ".env"), ".env"} {
		if err := godotenv.Load(env); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return s, fmt.Errorf("could not load %s: %w", env, err)
		}
	}

	if err := s.apply(environ()); err != nil {
		return s, fmt.Errorf("environment: %w", err)
	}
	if _, ok := os.LookupEnv("DEBUG"); ok {
		s.Debug = true
	}
	return s, nil
}

// environ returns AVPLAYER_* variables keyed like the conf file
func environ() map[string]string {
	result := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, EnvPrefix) {
			continue
		}
		result[strings.ToLower(strings.TrimPrefix(k, EnvPrefix))] = v
	}
	return result
}

// apply sets every known key present in conf
func (s *Settings) apply(conf map[string]string) error {
	var errs []error
	atoi := func(key string, dst *int) {
		if v, ok := conf[key]; ok {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				errs = append(errs, fmt.Errorf("invalid %s: %q", key, v))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := conf[key]; ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %q", key, v))
				return
			}
			*dst = b
		}
	}

	atoi("picture_queue_size", &s.PictureQueueSize)
	atoi("video_queue_bytes", &s.VideoQueueBytes)
	atoi("audio_queue_bytes", &s.AudioQueueBytes)
	atoi("video_width", &s.VideoWidth)
	atoi("video_height", &s.VideoHeight)
	atoi("cache_size", &s.CacheSize)
	boolean("use_shm", &s.UseShm)
	boolean("debug", &s.Debug)

	if v, ok := conf["frame_interval_ms"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.FrameInterval = time.Duration(n) * time.Millisecond
		} else {
			errs = append(errs, fmt.Errorf("invalid frame_interval_ms: %q", v))
		}
	}
	if v, ok := conf["volume"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			s.Volume = f
		} else {
			errs = append(errs, fmt.Errorf("invalid volume: %q", v))
		}
	}
	if v, ok := conf["sync_master"]; ok {
		switch v {
		case "audio":
			s.SyncMaster = player.SyncAudio
		case "video":
			s.SyncMaster = player.SyncVideo
		case "external":
			s.SyncMaster = player.SyncExternal
		default:
			errs = append(errs, fmt.Errorf("invalid sync_master: %q", v))
		}
	}
	if v, ok := conf["display_pacing"]; ok {
		switch v {
		case "pts":
			s.Pacing = player.PacingPTS
		case "fixed":
			s.Pacing = player.PacingFixed
		default:
			errs = append(errs, fmt.Errorf("invalid display_pacing: %q", v))
		}
	}
	if v, ok := conf["cache_dir"]; ok && v != "" {
		s.CacheDir = v
	}
	if v, ok := conf["aws_region"]; ok {
		s.AWSRegion = v
	}

	return errors.Join(errs...)
}

// Options returns session options for these settings. Collaborators are
// left for the caller to fill in.
func (s Settings) Options(log *slog.Logger) player.Options {
	return player.Options{
		Logger:           log,
		PictureQueueSize: s.PictureQueueSize,
		VideoQueueBytes:  s.VideoQueueBytes,
		AudioQueueBytes:  s.AudioQueueBytes,
		SyncMaster:       s.SyncMaster,
		Pacing:           s.Pacing,
		FrameInterval:    s.FrameInterval,
		Volume:           s.Volume,
	}
}

// LogLevel returns the slog level for these settings
func (s Settings) LogLevel() slog.Level {
	if s.Debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// Write writes settings in conf format
func Write(path string, s Settings) error {
	pacing := "pts"
	if s.Pacing == player.PacingFixed {
		pacing = "fixed"
	}

	var b strings.Builder
	b.WriteString("# avplayer config\n\n")
	b.WriteString(fmt.Sprintf("picture_queue_size = %d\n", s.PictureQueueSize))
	b.WriteString(fmt.Sprintf("video_queue_bytes = %d\n", s.VideoQueueBytes))
	b.WriteString(fmt.Sprintf("audio_queue_bytes = %d\n", s.AudioQueueBytes))
	b.WriteString("# audio, video or external\n")
	b.WriteString(fmt.Sprintf("sync_master = %s\n", s.SyncMaster))
	b.WriteString("# pts or fixed\n")
	b.WriteString(fmt.Sprintf("display_pacing = %s\n", pacing))
	b.WriteString(fmt.Sprintf("frame_interval_ms = %d\n", s.FrameInterval.Milliseconds()))
	b.WriteString(fmt.Sprintf("volume = %g\n", s.Volume))
	b.WriteString("# video will be scaled within this bounding box\n")
	b.WriteString(fmt.Sprintf("video_width = %d\n", s.VideoWidth))
	b.WriteString(fmt.Sprintf("video_height = %d\n", s.VideoHeight))
	b.WriteString(fmt.Sprintf("cache_dir = %s\n", s.CacheDir))
	b.WriteString(fmt.Sprintf("cache_size = %d\n", s.CacheSize))
	b.WriteString(fmt.Sprintf("aws_region = %s\n", s.AWSRegion))
	b.WriteString(fmt.Sprintf("use_shm = %t\n", s.UseShm))
	b.WriteString(fmt.Sprintf("debug = %t\n", s.Debug))
	return os.WriteFile(path, []byte(b.String()), 0644)
}

func parseConf(path string) map[string]string {
	result := make(map[string]string)
	file, err := os.Open(path)
	if err != nil {
		return result
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			result[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return result
}
