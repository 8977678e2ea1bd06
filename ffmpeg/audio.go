package ffmpeg

import (
	"errors"
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/njyeung/avplayer/player"
)

// outputChannels returns the channel count audio is converted to: mono
// stays mono, everything else is mixed to stereo
func outputChannels(channels int) int {
	if channels == 1 {
		return 1
	}
	return 2
}

// audioDecoder decodes audio and converts it to interleaved s16 at the
// stream's own sample rate
type audioDecoder struct {
	params   *astiav.CodecParameters
	codecCtx *astiav.CodecContext
	swrCtx   *astiav.SoftwareResampleContext
	frame    *astiav.Frame
	pkt      *astiav.Packet

	channels int
	layout   astiav.ChannelLayout

	mu     sync.Mutex
	closed bool
}

func newAudioDecoder(params *astiav.CodecParameters) (*audioDecoder, error) {
	a := &audioDecoder{
		params:   params,
		channels: outputChannels(params.ChannelLayout().Channels()),
		layout:   astiav.ChannelLayoutStereo,
	}
	if a.channels == 1 {
		a.layout = astiav.ChannelLayoutMono
	}

	if err := a.openCodec(); err != nil {
		return nil, err
	}

	// Allocate decode frame and packet
	a.frame = astiav.AllocFrame()
	a.pkt = astiav.AllocPacket()

	// Setup resampler - configured on first frame
	a.swrCtx = astiav.AllocSoftwareResampleContext()
	if a.swrCtx == nil {
		a.Close()
		return nil, fmt.Errorf("failed to allocate swr context")
	}
	return a, nil
}

func (a *audioDecoder) openCodec() error {
	// Find decoder
	codec := astiav.FindDecoder(a.params.CodecID())
	if codec == nil {
		return fmt.Errorf("audio codec not found: %s", a.params.CodecID())
	}

	// Allocate codec context
	codecCtx := astiav.AllocCodecContext(codec)
	if codecCtx == nil {
		return fmt.Errorf("failed to allocate audio codec context")
	}

	// Copy parameters
	if err := a.params.ToCodecContext(codecCtx); err != nil {
		codecCtx.Free()
		return fmt.Errorf("failed to copy audio codec params: %w", err)
	}

	// Open codec
	if err := codecCtx.Open(codec, nil); err != nil {
		codecCtx.Free()
		return fmt.Errorf("failed to open audio codec: %w", err)
	}

	a.codecCtx = codecCtx
	return nil
}

// Decode decodes one packet into zero or more s16 frames
func (a *audioDecoder) Decode(pkt *player.Packet) ([]player.AudioFrame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, player.ErrStopped
	}

	if err := fillPacket(a.pkt, pkt); err != nil {
		return nil, err
	}
	defer a.pkt.Unref()

	// Send packet to decoder
	if err := a.codecCtx.SendPacket(a.pkt); err != nil {
		return nil, fmt.Errorf("failed to send audio packet: %w", err)
	}

	// Receive decoded frames
	var frames []player.AudioFrame
	for {
		if err := a.codecCtx.ReceiveFrame(a.frame); err != nil {
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
				break
			}
			return frames, fmt.Errorf("failed to receive audio frame: %w", err)
		}

		f, err := a.convert()
		a.frame.Unref()
		if err != nil {
			// Skip frames that fail to resample instead of erroring
			continue
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// convert resamples the decoded frame to interleaved s16
func (a *audioDecoder) convert() (player.AudioFrame, error) {
	rate := a.frame.SampleRate()

	// Create output frame for resampled audio
	outFrame := astiav.AllocFrame()
	defer outFrame.Free()

	outFrame.SetSampleFormat(astiav.SampleFormatS16)
	outFrame.SetSampleRate(rate)
	outFrame.SetChannelLayout(a.layout)
	outFrame.SetNbSamples(a.frame.NbSamples())

	if err := outFrame.AllocBuffer(0); err != nil {
		return player.AudioFrame{}, fmt.Errorf("failed to allocate audio buffer: %w", err)
	}
	if err := a.swrCtx.ConvertFrame(a.frame, outFrame); err != nil {
		return player.AudioFrame{}, fmt.Errorf("failed to resample audio: %w", err)
	}

	// plane 0 holds every channel for interleaved s16
	numSamples := outFrame.NbSamples()
	byteSize := numSamples * a.channels * 2
	plane, err := outFrame.Data().Bytes(0)
	if err != nil || len(plane) < byteSize {
		return player.AudioFrame{}, fmt.Errorf("short resampled audio plane")
	}

	data := make([]byte, byteSize)
	copy(data, plane[:byteSize])

	return player.AudioFrame{
		Format:     player.SampleFormatS16,
		Channels:   a.channels,
		SampleRate: rate,
		NbSamples:  numSamples,
		Data:       data,
	}, nil
}

// Flush drops decoder state by reopening the codec
func (a *audioDecoder) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	old := a.codecCtx
	if err := a.openCodec(); err != nil {
		return
	}
	old.Free()
}

// Close releases all resources
func (a *audioDecoder) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.closed = true

	if a.pkt != nil {
		a.pkt.Free()
		a.pkt = nil
	}
	if a.frame != nil {
		a.frame.Free()
		a.frame = nil
	}
	if a.swrCtx != nil {
		a.swrCtx.Free()
		a.swrCtx = nil
	}
	if a.codecCtx != nil {
		a.codecCtx.Free()
		a.codecCtx = nil
	}
}

// fillPacket loads a player packet into an astiav packet. An empty payload
// leaves the packet empty, which drains the decoder.
func fillPacket(dst *astiav.Packet, src *player.Packet) error {
	if !src.IsEmpty() {
		if err := dst.FromData(src.Data); err != nil {
			return fmt.Errorf("failed to load packet: %w", err)
		}
	}
	dst.SetPts(src.PTS)
	dst.SetDts(src.DTS)
	dst.SetStreamIndex(max(src.StreamIndex, 0))
	return nil
}
