package player

import (
	"container/list"
	"sync"
)

// PacketQueue is a thread-safe FIFO of compressed packets.
// Consumers may block on Get until data arrives or the queue is aborted.
type PacketQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pkts    list.List
	size    int
	serial  int
	aborted bool
}

// NewPacketQueue creates an empty queue
func NewPacketQueue() *PacketQueue {
	q := &PacketQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends a packet and wakes one waiting consumer
func (q *PacketQueue) Put(pkt *Packet) error {
	if pkt == nil {
		return ErrInvalidOperation
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	pkt.serial = q.serial
	q.pkts.PushBack(pkt)
	q.size += pkt.Size()
	q.cond.Signal()
	return nil
}

// Get pops the head packet. With block false an empty queue returns
// (nil, nil) immediately. With block true it waits for data; once the queue
// is aborted it returns ErrStopped without consuming anything.
func (q *PacketQueue) Get(block bool) (*Packet, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		// checked on every wake-up, not only before the first wait
		if q.aborted {
			return nil, ErrStopped
		}

		if e := q.pkts.Front(); e != nil {
			q.pkts.Remove(e)
			pkt := e.Value.(*Packet)
			q.size -= pkt.Size()
			return pkt, nil
		}

		if !block {
			return nil, nil
		}
		q.cond.Wait()
	}
}

// Flush discards every queued packet, starts a new serial and returns the
// number of packets dropped
func (q *PacketQueue) Flush() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.pkts.Len()
	q.pkts.Init()
	q.size = 0
	q.serial++
	return n
}

// Serial returns the number of flushes so far. Packets are stamped with the
// serial current when they were queued.
func (q *PacketQueue) Serial() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.serial
}

// Abort wakes every blocked consumer; subsequent Gets return ErrStopped
func (q *PacketQueue) Abort() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.aborted = true
	q.cond.Broadcast()
}

// Size returns the total payload bytes queued
func (q *PacketQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Len returns the number of queued packets
func (q *PacketQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pkts.Len()
}
