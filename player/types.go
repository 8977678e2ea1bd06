package player

import (
	"context"
	"time"
)

// MediaType identifies the kind of an elementary stream
type MediaType int

const (
	MediaTypeUnknown MediaType = iota
	MediaTypeAudio
	MediaTypeVideo
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeAudio:
		return "audio"
	case MediaTypeVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Rational is a time base expressed as Num/Den seconds per tick
type Rational struct {
	Num int
	Den int
}

// Float64 returns the rational as seconds per tick
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// StreamInfo describes one elementary stream reported by the demuxer
type StreamInfo struct {
	Index      int
	Type       MediaType
	Width      int
	Height     int
	Channels   int
	SampleRate int
	TimeBase   Rational
	FrameRate  Rational
	Duration   time.Duration
}

// DataSource is what a session was asked to play
type DataSource struct {
	URL     string
	Headers string

	// Offset is the number of initial bytes the demuxer skips (descriptor sources)
	Offset int64
	Length int64
}

// SeekFlags are passed through to the demuxer
type SeekFlags int

const (
	SeekFlagBackward SeekFlags = 1 << iota
	SeekFlagByte
	SeekFlagAny
)

// Demuxer opens media sources
type Demuxer interface {
	// Open opens and probes the source. The context aborts a blocking open.
	Open(ctx context.Context, src DataSource) (Source, error)
}

// Source is an opened media source
type Source interface {
	// Streams returns the probed stream descriptors
	Streams() []StreamInfo

	// ReadPacket returns the next packet, ErrEndOfStream when the source is
	// exhausted or ErrNoData when nothing is available yet
	ReadPacket() (*Packet, error)

	// SeekFile seeks to target (microseconds) within [min, max]
	SeekFile(target, min, max int64, flags SeekFlags) error

	// SetPaused pauses or resumes network sources
	SetPaused(paused bool) error

	// Duration returns the container duration, zero if unknown
	Duration() time.Duration

	// OpenAudioDecoder opens a decoder for the given stream index
	OpenAudioDecoder(index int) (AudioDecoder, error)

	// OpenVideoDecoder opens a decoder for the given stream index
	OpenVideoDecoder(index int) (VideoDecoder, error)

	Close() error
}

// AudioDecoder decodes compressed audio packets
type AudioDecoder interface {
	// Decode returns zero or more frames produced by the packet
	Decode(pkt *Packet) ([]AudioFrame, error)

	// Flush drops any internal decoder state
	Flush()

	Close()
}

// VideoDecoder decodes compressed video packets
type VideoDecoder interface {
	// Decode returns the decoded frame and whether it is complete. An empty
	// packet drains buffered frames; ErrDrained reports nothing is left.
	Decode(pkt *Packet) (*VideoFrame, bool, error)

	// Flush drops any internal decoder state
	Flush()

	Close()
}

// AudioFormat is the PCM format an audio sink is created with
type AudioFormat struct {
	Channels   int
	SampleRate int
}

// PCMSource is the pull callback handed to an audio sink
type PCMSource interface {
	// Fill fills p completely with interleaved signed 16-bit PCM
	Fill(p []byte)
}

// AudioSink creates audio outputs that pull PCM on their own schedule.
// Outputs start paused.
type AudioSink interface {
	Open(format AudioFormat, src PCMSource) (AudioOutput, error)
}

// AudioOutput is an open audio device stream
type AudioOutput interface {
	SetPaused(paused bool)
	SetVolume(volume float64)
	Close()
}

// Surface is a native display handle understood by the video sink
type Surface any

// Picture is a sink-owned renderable buffer
type Picture any

// VideoSink allocates, fills and presents pictures
type VideoSink interface {
	SetSurface(s Surface) error
	CreatePicture(width, height int) (Picture, error)
	UpdatePicture(p Picture, frame *VideoFrame) error
	Present(p Picture) error
	DestroyPicture(p Picture)
}

// AudioFrame is decoded audio
type AudioFrame struct {
	Format     SampleFormat
	Channels   int
	SampleRate int
	NbSamples  int

	// Data holds the samples; planar formats store each channel plane
	// back to back
	Data []byte
}

// VideoFrame is a decoded, color converted picture
type VideoFrame struct {
	Width      int
	Height     int
	RGB        []byte  // RGB24 pixel data
	PTS        float64 // Presentation timestamp in seconds, negative if unknown
	RepeatPict int     // Extra fields to display the frame for
}

// SyncMaster selects which clock drives synchronization
type SyncMaster int

const (
	SyncAudio SyncMaster = iota
	SyncVideo
	SyncExternal
)

func (m SyncMaster) String() string {
	switch m {
	case SyncAudio:
		return "audio"
	case SyncVideo:
		return "video"
	default:
		return "external"
	}
}

// Pacing selects the display scheduling policy
type Pacing int

const (
	// PacingPTS schedules frames from their timestamps against the master clock
	PacingPTS Pacing = iota

	// PacingFixed presents frames on a fixed interval
	PacingFixed
)

const (
	// AudioBufferSize is the nominal audio sink buffer in samples
	AudioBufferSize = 1024

	// AudioDiffAvgNB is the number of drift observations before correcting
	AudioDiffAvgNB = 20

	// SampleCorrectionPercentMax bounds how much a chunk may shrink or grow
	SampleCorrectionPercentMax = 10

	// SyncThreshold is the minimum frame delay used for skip/repeat decisions
	SyncThreshold = 0.01

	// NoSyncThreshold is the drift beyond which no correction is attempted
	NoSyncThreshold = 10.0

	// silenceSize is the fallback buffer emitted on underrun
	silenceSize = 1024

	// microsecond time base for seek targets and durations
	timeBase = 1000000
)
