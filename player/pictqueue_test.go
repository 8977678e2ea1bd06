package player

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSink is a minimal VideoSink for queue tests
type memSink struct {
	mu        sync.Mutex
	created   int
	destroyed int
	presented []float64
}

type memPicture struct {
	w, h int
	pts  float64
}

func (s *memSink) SetSurface(Surface) error { return nil }

func (s *memSink) CreatePicture(w, h int) (Picture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
	return &memPicture{w: w, h: h}, nil
}

func (s *memSink) UpdatePicture(p Picture, f *VideoFrame) error {
	p.(*memPicture).pts = f.PTS
	return nil
}

func (s *memSink) Present(p Picture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presented = append(s.presented, p.(*memPicture).pts)
	return nil
}

func (s *memSink) DestroyPicture(Picture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed++
}

func frame(w, h int, pts float64) *VideoFrame {
	return &VideoFrame{Width: w, Height: h, RGB: make([]byte, w*h*3), PTS: pts}
}

func TestPictureQueueOrder(t *testing.T) {
	q := NewPictureQueue(&memSink{}, 3)

	for i := range 3 {
		require.NoError(t, q.Queue(frame(4, 4, float64(i)), i, 0, float64(i)))
	}
	assert.Equal(t, 3, q.Len())

	for i := range 3 {
		qp, ok := q.Peek()
		require.True(t, ok)
		assert.Equal(t, i, qp.Index)
		assert.Equal(t, float64(i), qp.PTS)
		assert.Equal(t, float64(i), qp.Pic.(*memPicture).pts)
		q.Pop()
	}
	_, ok := q.Peek()
	assert.False(t, ok)
}

func TestPictureQueueBlocksWhenFull(t *testing.T) {
	q := NewPictureQueue(&memSink{}, 2)
	require.NoError(t, q.Queue(frame(4, 4, 0), 0, 0, 0))
	require.NoError(t, q.Queue(frame(4, 4, 1), 1, 0, 1))

	queued := make(chan error)
	go func() {
		queued <- q.Queue(frame(4, 4, 2), 2, 0, 2)
	}()

	select {
	case <-queued:
		t.Fatal("Queue returned while the ring was full")
	case <-time.After(20 * time.Millisecond):
	}

	q.Pop()
	select {
	case err := <-queued:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Queue did not resume after Pop")
	}
	assert.Equal(t, 2, q.Len())
}

func TestPictureQueueReusesSlots(t *testing.T) {
	sink := &memSink{}
	q := NewPictureQueue(sink, 2)

	for i := range 6 {
		require.NoError(t, q.Queue(frame(4, 4, 0), i, 0, 0))
		q.Pop()
	}
	assert.Equal(t, 2, sink.created)

	// a new size reallocates the slot it lands in
	require.NoError(t, q.Queue(frame(8, 8, 0), 6, 0, 0))
	assert.Equal(t, 3, sink.created)
	assert.Equal(t, 1, sink.destroyed)

	q.Release()
	assert.Equal(t, sink.created, sink.destroyed)
}

func TestPictureQueueAbort(t *testing.T) {
	q := NewPictureQueue(&memSink{}, 1)
	require.NoError(t, q.Queue(frame(4, 4, 0), 0, 0, 0))

	errs := make(chan error, 1)
	go func() { errs <- q.Queue(frame(4, 4, 1), 1, 0, 1) }()

	time.Sleep(10 * time.Millisecond)
	q.Abort()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by abort")
	}
}
