package player

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// passDecoder returns each payload as one s16 mono frame
type passDecoder struct {
	flushes int
	closed  bool
}

func (d *passDecoder) Decode(pkt *Packet) ([]AudioFrame, error) {
	if bytes.Equal(pkt.Data, []byte("bad")) {
		return nil, errors.New("malformed")
	}
	return []AudioFrame{{
		Format:     SampleFormatS16,
		Channels:   1,
		SampleRate: 1000,
		NbSamples:  len(pkt.Data) / 2,
		Data:       pkt.Data,
	}}, nil
}

func (d *passDecoder) Flush() { d.flushes++ }
func (d *passDecoder) Close() { d.closed = true }

func newTestAudioPath(q *PacketQueue, dec AudioDecoder) *audioPath {
	return newAudioPath(slog.New(slog.DiscardHandler), q, dec, StreamInfo{
		Type:       MediaTypeAudio,
		Channels:   1,
		SampleRate: 1000,
		TimeBase:   Rational{Num: 1, Den: 1000},
	})
}

func audioPkt(pts int64, fill byte, samples int) *Packet {
	return &Packet{Data: bytes.Repeat([]byte{fill}, samples*2), PTS: pts, DTS: pts}
}

func TestAudioPathFillsFromPackets(t *testing.T) {
	q := NewPacketQueue()
	q.Put(audioPkt(0, 1, 50))
	q.Put(audioPkt(100, 2, 50))

	a := newTestAudioPath(q, &passDecoder{})

	buf := make([]byte, 200)
	a.Fill(buf)
	assert.Equal(t, bytes.Repeat([]byte{1}, 100), buf[:100])
	assert.Equal(t, bytes.Repeat([]byte{2}, 100), buf[100:])
	assert.Zero(t, a.underruns.Load())

	// 100 samples at 1000 Hz starting from pts 0.1
	assert.InDelta(t, 0.15, a.Clock(), 1e-9)
}

func TestAudioPathClockAccountsForUnplayedBytes(t *testing.T) {
	q := NewPacketQueue()
	q.Put(audioPkt(1000, 1, 100))

	a := newTestAudioPath(q, &passDecoder{})
	a.Fill(make([]byte, 50))

	// chunk spans [1.0, 1.1); 25 of its samples were handed out
	assert.InDelta(t, 1.025, a.Clock(), 1e-9)
}

func TestAudioPathUnderrunPlaysSilence(t *testing.T) {
	q := NewPacketQueue()
	a := newTestAudioPath(q, &passDecoder{})

	buf := bytes.Repeat([]byte{9}, 64)
	a.Fill(buf)
	assert.Equal(t, make([]byte, 64), buf)
	assert.Equal(t, int64(1), a.underruns.Load())
	assert.True(t, a.starved)

	// data arriving later is picked up on the next pull
	q.Put(audioPkt(0, 4, 32))
	a.Fill(buf)
	assert.Equal(t, bytes.Repeat([]byte{4}, 64), buf)
	assert.False(t, a.starved)
}

func TestAudioPathFillDoesNotWaitForPackets(t *testing.T) {
	q := NewPacketQueue()
	a := newTestAudioPath(q, &passDecoder{})

	done := make(chan struct{})
	go func() {
		a.Fill(make([]byte, 4096))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		q.Abort()
		t.Fatal("Fill blocked on an empty queue")
	}
}

func TestAudioPathAbortedQueuePlaysSilence(t *testing.T) {
	q := NewPacketQueue()
	q.Abort()
	a := newTestAudioPath(q, &passDecoder{})

	buf := bytes.Repeat([]byte{9}, 64)
	a.Fill(buf)
	assert.Equal(t, make([]byte, 64), buf)
}

func TestAudioPathSkipsMalformedPackets(t *testing.T) {
	q := NewPacketQueue()
	q.Put(&Packet{Data: []byte("bad"), PTS: 0, DTS: 0})
	q.Put(audioPkt(200, 3, 10))

	a := newTestAudioPath(q, &passDecoder{})
	buf := make([]byte, 20)
	a.Fill(buf)
	assert.Equal(t, bytes.Repeat([]byte{3}, 20), buf)
}

func TestAudioPathFlushResetsDecoder(t *testing.T) {
	q := NewPacketQueue()
	dec := &passDecoder{}
	a := newTestAudioPath(q, dec)

	q.Put(audioPkt(0, 1, 10))
	a.Fill(make([]byte, 10))

	// seek to 5s while half a chunk is still waiting to be played
	q.Flush()
	q.Put(flushPacket())
	q.Put(audioPkt(5000, 7, 10))

	buf := make([]byte, 30)
	a.Fill(buf)
	assert.Equal(t, 1, dec.flushes)
	assert.Equal(t, bytes.Repeat([]byte{1}, 10), buf[:10])
	assert.Equal(t, bytes.Repeat([]byte{7}, 20), buf[10:])
	assert.InDelta(t, 5.01, a.Clock(), 1e-9)
}

func TestAudioPathCorrectsTowardsMaster(t *testing.T) {
	q := NewPacketQueue()
	a := newTestAudioPath(q, &passDecoder{})

	// audio is well ahead of the master
	a.master = func() float64 { return a.clock - 5 }

	var last int
	for i := range AudioDiffAvgNB + 2 {
		q.Put(audioPkt(int64(i*100), 1, 100))
		chunk, err := a.decodeFrame()
		require.NoError(t, err)
		last = len(a.synchronize(chunk))
	}
	assert.Equal(t, 220, last)
}

func TestAudioPathUsesDecoderResampler(t *testing.T) {
	a := newTestAudioPath(NewPacketQueue(), resamplingDecoder{&passDecoder{}})
	_, ok := a.resampler.(resamplingDecoder)
	assert.True(t, ok)
}

type resamplingDecoder struct{ *passDecoder }

func (resamplingDecoder) Resample(*AudioFrame) ([]byte, error) { return nil, nil }
