package player

import (
	"log/slog"
	"time"
)

const (
	// DefaultVideoQueueBytes is the video packet queue high-water mark
	DefaultVideoQueueBytes = 5 * 256 * 1024

	// DefaultAudioQueueBytes is the audio packet queue high-water mark
	DefaultAudioQueueBytes = 5 * 16 * 1024

	// DefaultFrameInterval is the display period used by fixed pacing
	DefaultFrameInterval = 40 * time.Millisecond

	pollInterval     = time.Millisecond
	backoffInterval  = 10 * time.Millisecond
	transientRetry   = 100 * time.Millisecond
	initialLastDelay = 40e-3
	minFrameDelay    = 0.010
	bufferingStep    = 10
)

// Options configures the sessions created with NewSession
type Options struct {
	// Demuxer opens data sources. Required.
	Demuxer Demuxer

	// AudioSink plays decoded audio. Without one, audio streams are ignored.
	AudioSink AudioSink

	// VideoSink presents decoded pictures. Without one, video streams are ignored.
	VideoSink VideoSink

	Logger *slog.Logger

	PictureQueueSize int
	VideoQueueBytes  int
	AudioQueueBytes  int

	SyncMaster    SyncMaster
	Pacing        Pacing
	FrameInterval time.Duration

	// Volume is the initial output volume; zero selects full volume
	Volume float64
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.PictureQueueSize < 1 {
		o.PictureQueueSize = DefaultPictureQueueSize
	}
	if o.VideoQueueBytes <= 0 {
		o.VideoQueueBytes = DefaultVideoQueueBytes
	}
	if o.AudioQueueBytes <= 0 {
		o.AudioQueueBytes = DefaultAudioQueueBytes
	}
	if o.FrameInterval <= 0 {
		o.FrameInterval = DefaultFrameInterval
	}
	if o.Volume <= 0 {
		o.Volume = 1
	}
	return o
}
