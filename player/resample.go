package player

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SampleFormat is the layout of decoded audio samples
type SampleFormat int

const (
	SampleFormatNone SampleFormat = iota
	SampleFormatU8
	SampleFormatS16
	SampleFormatS32
	SampleFormatFlt
	SampleFormatDbl
	SampleFormatU8P
	SampleFormatS16P
	SampleFormatS32P
	SampleFormatFltP
	SampleFormatDblP
)

// BytesPerSample returns the size of one sample of one channel
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatU8, SampleFormatU8P:
		return 1
	case SampleFormatS16, SampleFormatS16P:
		return 2
	case SampleFormatS32, SampleFormatS32P, SampleFormatFlt, SampleFormatFltP:
		return 4
	case SampleFormatDbl, SampleFormatDblP:
		return 8
	default:
		return 0
	}
}

// Planar reports whether each channel is stored in its own plane
func (f SampleFormat) Planar() bool {
	return f >= SampleFormatU8P
}

// Resampler converts decoded frames into the sink format:
// interleaved signed 16-bit PCM at the frame's own rate and channel count
type Resampler interface {
	Resample(frame *AudioFrame) ([]byte, error)
}

// pcmResampler converts between sample formats in Go
type pcmResampler struct{}

func (pcmResampler) Resample(frame *AudioFrame) ([]byte, error) {
	bps := frame.Format.BytesPerSample()
	if bps == 0 {
		return nil, fmt.Errorf("unsupported sample format %d", frame.Format)
	}
	channels := frame.Channels
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}

	samples := frame.NbSamples
	if need := samples * channels * bps; len(frame.Data) < need {
		return nil, fmt.Errorf("short audio frame: %d bytes, want %d", len(frame.Data), need)
	}

	out := make([]byte, samples*channels*2)
	planeSize := samples * bps

	for i := 0; i < samples; i++ {
		for ch := 0; ch < channels; ch++ {
			var off int
			if frame.Format.Planar() {
				off = ch*planeSize + i*bps
			} else {
				off = (i*channels + ch) * bps
			}
			v := sampleToS16(frame.Format, frame.Data[off:off+bps])
			binary.LittleEndian.PutUint16(out[(i*channels+ch)*2:], uint16(v))
		}
	}
	return out, nil
}

func sampleToS16(f SampleFormat, b []byte) int16 {
	switch f {
	case SampleFormatU8, SampleFormatU8P:
		return int16(int(b[0])-128) << 8
	case SampleFormatS16, SampleFormatS16P:
		return int16(binary.LittleEndian.Uint16(b))
	case SampleFormatS32, SampleFormatS32P:
		return int16(int32(binary.LittleEndian.Uint32(b)) >> 16)
	case SampleFormatFlt, SampleFormatFltP:
		return floatToS16(float64(math.Float32frombits(binary.LittleEndian.Uint32(b))))
	case SampleFormatDbl, SampleFormatDblP:
		return floatToS16(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	}
	return 0
}

func floatToS16(v float64) int16 {
	v *= 32767
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(math.Round(v))
}
