package player

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pkt(pts int64, size int) *Packet {
	return &Packet{Data: make([]byte, size), PTS: pts, DTS: pts}
}

func TestPacketQueueFIFO(t *testing.T) {
	q := NewPacketQueue()
	for i := range 5 {
		require.NoError(t, q.Put(pkt(int64(i), 10)))
	}
	assert.Equal(t, 5, q.Len())
	assert.Equal(t, 50, q.Size())

	for i := range 5 {
		p, err := q.Get(false)
		require.NoError(t, err)
		assert.Equal(t, int64(i), p.PTS)
	}
	assert.Equal(t, 0, q.Size())
}

func TestPacketQueueNonBlockingEmpty(t *testing.T) {
	q := NewPacketQueue()
	p, err := q.Get(false)
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestPacketQueueRejectsNil(t *testing.T) {
	assert.ErrorIs(t, NewPacketQueue().Put(nil), ErrInvalidOperation)
}

func TestPacketQueueFlushStartsNewSerial(t *testing.T) {
	q := NewPacketQueue()
	for _, pts := range []int64{10, 20, 30, 40, 50} {
		q.Put(pkt(pts, 4))
	}

	first, err := q.Get(false)
	require.NoError(t, err)
	assert.Equal(t, int64(10), first.PTS)
	assert.Equal(t, 0, first.Serial())

	// a seek: drop the rest, then mark the discontinuity
	assert.Equal(t, 4, q.Flush())
	q.Put(flushPacket())
	q.Put(pkt(500, 4))

	assert.Equal(t, 1, q.Serial())
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 4, q.Size())

	p, _ := q.Get(false)
	assert.True(t, p.IsFlush())
	assert.Equal(t, 1, p.Serial())

	p, _ = q.Get(false)
	assert.Equal(t, int64(500), p.PTS)
	assert.Equal(t, 1, p.Serial())
}

func TestPacketQueueBlockingGetWakesOnPut(t *testing.T) {
	q := NewPacketQueue()

	got := make(chan *Packet)
	go func() {
		p, _ := q.Get(true)
		got <- p
	}()

	time.Sleep(10 * time.Millisecond)
	q.Put(pkt(7, 1))

	select {
	case p := <-got:
		assert.Equal(t, int64(7), p.PTS)
	case <-time.After(time.Second):
		t.Fatal("Get did not wake up")
	}
}

func TestPacketQueueAbortReleasesEveryConsumer(t *testing.T) {
	q := NewPacketQueue()

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Get(true)
			errs <- err
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Abort()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumers still blocked after abort")
	}

	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, ErrStopped)
	}

	// queued data is not handed out after an abort
	q.Put(pkt(1, 1))
	_, err := q.Get(false)
	assert.ErrorIs(t, err, ErrStopped)
}
