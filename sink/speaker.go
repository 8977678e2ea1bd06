package sink

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/njyeung/avplayer/player"
)

// SpeakerSampleRate is the rate the speaker device is opened at
const SpeakerSampleRate = 44100

var (
	speakerOnce sync.Once
	speakerErr  error
)

// InitSpeaker opens the speaker device. Calling it early triggers audio
// permission prompts before playback is expected.
func InitSpeaker() error {
	speakerOnce.Do(func() {
		sr := beep.SampleRate(SpeakerSampleRate)
		speakerErr = speaker.Init(sr, sr.N(50*time.Millisecond)) // 50ms buffer
	})
	return speakerErr
}

// Speaker is an audio sink playing through the system speaker
type Speaker struct{}

// NewSpeaker returns the system speaker sink
func NewSpeaker() *Speaker {
	return &Speaker{}
}

// Open creates a paused output pulling PCM from src
func (Speaker) Open(format player.AudioFormat, src player.PCMSource) (player.AudioOutput, error) {
	if format.Channels != 1 && format.Channels != 2 {
		return nil, fmt.Errorf("unsupported channel count: %d", format.Channels)
	}
	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", format.SampleRate)
	}
	if err := InitSpeaker(); err != nil {
		return nil, fmt.Errorf("failed to init speaker: %w", err)
	}

	s := &pcmStreamer{
		src:      src,
		channels: format.Channels,
	}

	var stream beep.Streamer = s
	if format.SampleRate != SpeakerSampleRate {
		stream = beep.Resample(4, beep.SampleRate(format.SampleRate), SpeakerSampleRate, stream)
	}

	o := &speakerOutput{stream: s}
	o.volume = &effects.Volume{Streamer: stream, Base: 2}
	o.ctrl = &beep.Ctrl{Streamer: o.volume, Paused: true}

	speaker.Play(o.ctrl)
	return o, nil
}

// pcmStreamer implements beep.Streamer over a PCM pull source
type pcmStreamer struct {
	src      player.PCMSource
	channels int
	buf      []byte
	done     bool
}

func (s *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.done {
		return 0, false
	}

	// buf holds interleaved s16le, 2 bytes per channel per sample
	frameSize := 2 * s.channels
	need := len(samples) * frameSize
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	s.buf = s.buf[:need]
	s.src.Fill(s.buf)

	for i := range samples {
		b := s.buf[i*frameSize:]
		left := float64(int16(uint16(b[0])|uint16(b[1])<<8)) / math.MaxInt16
		right := left
		if s.channels == 2 {
			right = float64(int16(uint16(b[2])|uint16(b[3])<<8)) / math.MaxInt16
		}
		samples[i][0] = left
		samples[i][1] = right
	}
	return len(samples), true
}

func (s *pcmStreamer) Err() error {
	return nil
}

// speakerOutput is one playing stream on the speaker mixer
type speakerOutput struct {
	stream *pcmStreamer
	volume *effects.Volume
	ctrl   *beep.Ctrl
}

func (o *speakerOutput) SetPaused(paused bool) {
	speaker.Lock()
	o.ctrl.Paused = paused
	speaker.Unlock()
}

// SetVolume sets a linear gain in [0, 1]
func (o *speakerOutput) SetVolume(volume float64) {
	speaker.Lock()
	defer speaker.Unlock()

	if volume <= 0 {
		o.volume.Silent = true
		return
	}
	o.volume.Silent = false
	o.volume.Volume = math.Log2(min(volume, 1))
}

// Close removes the stream from the mixer. The source is not pulled
// after Close returns.
func (o *speakerOutput) Close() {
	speaker.Lock()
	o.stream.done = true
	o.ctrl.Streamer = nil
	o.ctrl.Paused = false
	speaker.Unlock()
}
