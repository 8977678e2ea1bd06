package player

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

func TestResampleFloatPlanar(t *testing.T) {
	// two channels, two samples, one plane each
	data := make([]byte, 16)
	for i, v := range []float32{0.5, -0.5, 1, -1} {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}

	out, err := pcmResampler{}.Resample(&AudioFrame{
		Format:    SampleFormatFltP,
		Channels:  2,
		NbSamples: 2,
		Data:      data,
	})
	require.NoError(t, err)
	assert.Equal(t, []int16{16384, 32767, -16384, -32767}, s16(out))
}

func TestResampleU8(t *testing.T) {
	out, err := pcmResampler{}.Resample(&AudioFrame{
		Format:    SampleFormatU8,
		Channels:  1,
		NbSamples: 3,
		Data:      []byte{128, 255, 0},
	})
	require.NoError(t, err)
	assert.Equal(t, []int16{0, 127 << 8, -128 << 8}, s16(out))
}

func TestResampleS32(t *testing.T) {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, uint32(int32(1<<30)))

	out, err := pcmResampler{}.Resample(&AudioFrame{Format: SampleFormatS32, Channels: 1, NbSamples: 1, Data: data})
	require.NoError(t, err)
	assert.Equal(t, []int16{1 << 14}, s16(out))
}

func TestResampleClipsFloat(t *testing.T) {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint64(data, math.Float64bits(3))
	binary.LittleEndian.PutUint64(data[8:], math.Float64bits(-3))

	out, err := pcmResampler{}.Resample(&AudioFrame{Format: SampleFormatDbl, Channels: 1, NbSamples: 2, Data: data})
	require.NoError(t, err)
	assert.Equal(t, []int16{32767, -32768}, s16(out))
}

func TestResampleRejectsBadFrames(t *testing.T) {
	r := pcmResampler{}

	_, err := r.Resample(&AudioFrame{Format: SampleFormatNone, Channels: 1, NbSamples: 1, Data: []byte{0, 0}})
	assert.Error(t, err)

	_, err = r.Resample(&AudioFrame{Format: SampleFormatS16, Channels: 0, NbSamples: 1, Data: []byte{0, 0}})
	assert.Error(t, err)

	_, err = r.Resample(&AudioFrame{Format: SampleFormatFlt, Channels: 2, NbSamples: 4, Data: make([]byte, 8)})
	assert.Error(t, err)
}
