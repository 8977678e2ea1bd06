package ffmpeg

import (
	"errors"
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/njyeung/avplayer/player"
)

// videoDecoder decodes video frames and scales them to RGB24
type videoDecoder struct {
	params   *astiav.CodecParameters
	codecCtx *astiav.CodecContext
	swsCtx   *astiav.SoftwareScaleContext
	frame    *astiav.Frame
	rgbFrame *astiav.Frame
	pkt      *astiav.Packet

	srcWidth  int
	srcHeight int
	dstWidth  int
	dstHeight int

	timeBase astiav.Rational
	draining bool

	mu     sync.Mutex
	closed bool
}

func newVideoDecoder(params *astiav.CodecParameters, timeBase astiav.Rational, width, height int) (*videoDecoder, error) {
	v := &videoDecoder{
		params:    params,
		timeBase:  timeBase,
		srcWidth:  params.Width(),
		srcHeight: params.Height(),
		dstWidth:  width,
		dstHeight: height,
	}

	if err := v.openCodec(); err != nil {
		return nil, err
	}

	// Allocate frames
	v.frame = astiav.AllocFrame()
	v.rgbFrame = astiav.AllocFrame()
	v.pkt = astiav.AllocPacket()

	return v, nil
}

func (v *videoDecoder) openCodec() error {
	// Find decoder
	codec := astiav.FindDecoder(v.params.CodecID())
	if codec == nil {
		return fmt.Errorf("video codec not found: %s", v.params.CodecID())
	}

	// Allocate codec context
	codecCtx := astiav.AllocCodecContext(codec)
	if codecCtx == nil {
		return fmt.Errorf("failed to allocate video codec context")
	}

	// Copy parameters
	if err := v.params.ToCodecContext(codecCtx); err != nil {
		codecCtx.Free()
		return fmt.Errorf("failed to copy video codec params: %w", err)
	}

	// Open codec
	if err := codecCtx.Open(codec, nil); err != nil {
		codecCtx.Free()
		return fmt.Errorf("failed to open video codec: %w", err)
	}

	v.codecCtx = codecCtx
	return nil
}

func (v *videoDecoder) initSwsContext() error {
	if v.dstWidth == 0 || v.dstHeight == 0 {
		v.dstWidth, v.dstHeight = v.srcWidth, v.srcHeight
	}

	// Create scaling context: source format -> RGB24 at target size
	var err error
	v.swsCtx, err = astiav.CreateSoftwareScaleContext(
		v.srcWidth, v.srcHeight, v.codecCtx.PixelFormat(),
		v.dstWidth, v.dstHeight, astiav.PixelFormatRgb24,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		return fmt.Errorf("failed to create sws context: %w", err)
	}

	// Setup RGB frame
	v.rgbFrame.Unref()
	v.rgbFrame.SetWidth(v.dstWidth)
	v.rgbFrame.SetHeight(v.dstHeight)
	v.rgbFrame.SetPixelFormat(astiav.PixelFormatRgb24)

	if err := v.rgbFrame.AllocBuffer(1); err != nil {
		return fmt.Errorf("failed to allocate RGB frame buffer: %w", err)
	}
	return nil
}

// Decode sends a packet and returns the next frame if one is ready. An
// empty packet puts the decoder in draining mode; ErrDrained follows the
// last buffered frame.
func (v *videoDecoder) Decode(pkt *player.Packet) (*player.VideoFrame, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, false, player.ErrStopped
	}

	if !pkt.IsEmpty() || !v.draining {
		if err := fillPacket(v.pkt, pkt); err != nil {
			return nil, false, err
		}
		err := v.codecCtx.SendPacket(v.pkt)
		v.pkt.Unref()
		if err != nil && !errors.Is(err, astiav.ErrEof) {
			return nil, false, fmt.Errorf("failed to send video packet: %w", err)
		}
		v.draining = pkt.IsEmpty()
	}

	// Receive decoded frame
	if err := v.codecCtx.ReceiveFrame(v.frame); err != nil {
		switch {
		case errors.Is(err, astiav.ErrEof):
			return nil, false, player.ErrDrained
		case errors.Is(err, astiav.ErrEagain):
			return nil, false, nil // No frame available yet
		}
		return nil, false, fmt.Errorf("failed to receive video frame: %w", err)
	}
	defer v.frame.Unref()

	// source size changes mid stream
	if w, h := v.frame.Width(), v.frame.Height(); w != v.srcWidth || h != v.srcHeight {
		v.srcWidth, v.srcHeight = w, h
		if v.swsCtx != nil {
			v.swsCtx.Free()
			v.swsCtx = nil
		}
	}

	// Initialize sws context if needed
	if v.swsCtx == nil {
		if err := v.initSwsContext(); err != nil {
			return nil, false, err
		}
	}

	if err := v.swsCtx.ScaleFrame(v.frame, v.rgbFrame); err != nil {
		return nil, false, fmt.Errorf("failed to scale frame: %w", err)
	}

	rgbBytes, err := v.rgbFrame.Data().Bytes(1)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get RGB bytes: %w", err)
	}

	// Copy the data since the frame buffer will be reused
	rgb := make([]byte, len(rgbBytes))
	copy(rgb, rgbBytes)

	// Calculate PTS in seconds
	pts := -1.0
	if p := v.frame.Pts(); p != player.NoPTS {
		pts = float64(p) * float64(v.timeBase.Num()) / float64(v.timeBase.Den())
	}

	return &player.VideoFrame{
		Width:  v.dstWidth,
		Height: v.dstHeight,
		RGB:    rgb,
		PTS:    pts,
	}, true, nil
}

// Flush drops decoder state by reopening the codec
func (v *videoDecoder) Flush() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	old := v.codecCtx
	if err := v.openCodec(); err != nil {
		return
	}
	old.Free()
	v.draining = false
}

// Close releases all resources
func (v *videoDecoder) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	v.closed = true

	if v.pkt != nil {
		v.pkt.Free()
		v.pkt = nil
	}
	if v.frame != nil {
		v.frame.Free()
		v.frame = nil
	}
	if v.rgbFrame != nil {
		v.rgbFrame.Free()
		v.rgbFrame = nil
	}
	if v.swsCtx != nil {
		v.swsCtx.Free()
		v.swsCtx = nil
	}
	if v.codecCtx != nil {
		v.codecCtx.Free()
		v.codecCtx = nil
	}
}
