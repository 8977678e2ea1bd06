package player

import (
	"fmt"
	"sync"
)

// DefaultPictureQueueSize is the picture queue capacity used when none is configured
const DefaultPictureQueueSize = 3

// QueuedPicture is a decoded picture waiting at the read index
type QueuedPicture struct {
	Pic Picture

	// Index is the sequence index of the packet the picture was decoded from
	Index int

	// Serial is the video packet queue serial at decode time
	Serial int

	PTS float64
}

// pictureSlot is one reusable entry of the picture ring
type pictureSlot struct {
	QueuedPicture
	width     int
	height    int
	allocated bool
}

// PictureQueue is a bounded ring of decoded pictures handed from the video
// decode goroutine to the display goroutine. Slots keep their sink buffer
// between frames and are reallocated only when the dimensions change.
//
// One lock guards the ring; two conditions are waited on separately:
// space (a slot was freed) and allocated (a slot buffer is ready).
type PictureQueue struct {
	sink  VideoSink
	slots []pictureSlot

	mu        sync.Mutex
	space     *sync.Cond
	allocated *sync.Cond

	rindex  int
	windex  int
	count   int
	aborted bool
}

// NewPictureQueue creates a ring of the given capacity backed by sink
func NewPictureQueue(sink VideoSink, capacity int) *PictureQueue {
	if capacity < 1 {
		capacity = DefaultPictureQueueSize
	}
	q := &PictureQueue{
		sink:  sink,
		slots: make([]pictureSlot, capacity),
	}
	q.space = sync.NewCond(&q.mu)
	q.allocated = sync.NewCond(&q.mu)
	return q
}

// Cap returns the ring capacity
func (q *PictureQueue) Cap() int {
	return len(q.slots)
}

// Len returns the number of unread pictures
func (q *PictureQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Queue publishes a decoded frame tagged with its packet index and serial.
// It blocks while the ring is full and returns ErrStopped once the queue is
// aborted.
func (q *PictureQueue) Queue(frame *VideoFrame, index, serial int, pts float64) error {
	q.mu.Lock()
	for q.count >= len(q.slots) && !q.aborted {
		q.space.Wait()
	}
	if q.aborted {
		q.mu.Unlock()
		return ErrStopped
	}
	slot := &q.slots[q.windex]
	q.mu.Unlock()

	if slot.Pic == nil || slot.width != frame.Width || slot.height != frame.Height {
		if err := q.alloc(slot, frame.Width, frame.Height); err != nil {
			return err
		}

		q.mu.Lock()
		for !slot.allocated && !q.aborted {
			q.allocated.Wait()
		}
		aborted := q.aborted
		q.mu.Unlock()
		if aborted {
			return ErrStopped
		}
	}

	if err := q.sink.UpdatePicture(slot.Pic, frame); err != nil {
		return fmt.Errorf("failed to update picture: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	slot.Index = index
	slot.Serial = serial
	slot.PTS = pts
	q.windex = (q.windex + 1) % len(q.slots)
	q.count++
	return nil
}

// alloc (re)creates the sink buffer of a slot, blocking the caller
func (q *PictureQueue) alloc(slot *pictureSlot, width, height int) error {
	q.mu.Lock()
	slot.allocated = false
	old := slot.Pic
	slot.Pic = nil
	q.mu.Unlock()

	if old != nil {
		q.sink.DestroyPicture(old)
	}

	pic, err := q.sink.CreatePicture(width, height)
	if err != nil {
		return fmt.Errorf("failed to allocate picture: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	slot.Pic = pic
	slot.width = width
	slot.height = height
	slot.allocated = true
	q.allocated.Broadcast()
	return nil
}

// Peek returns the picture at the read index without consuming it
func (q *PictureQueue) Peek() (QueuedPicture, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return QueuedPicture{}, false
	}
	return q.slots[q.rindex].QueuedPicture, true
}

// Pop releases the slot at the read index and wakes a blocked producer
func (q *PictureQueue) Pop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return
	}
	q.rindex = (q.rindex + 1) % len(q.slots)
	q.count--
	q.space.Signal()
}

// Abort wakes every waiter; subsequent Queue calls return ErrStopped
func (q *PictureQueue) Abort() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.aborted = true
	q.space.Broadcast()
	q.allocated.Broadcast()
}

// Release destroys every slot buffer. Only call once producer and consumer
// have exited.
func (q *PictureQueue) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.slots {
		if q.slots[i].Pic != nil {
			q.sink.DestroyPicture(q.slots[i].Pic)
		}
		q.slots[i] = pictureSlot{}
	}
	q.rindex, q.windex, q.count = 0, 0, 0
}
