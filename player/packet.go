package player

import "math"

// NoPTS marks a packet without a timestamp
const NoPTS = math.MinInt64

// Packet is a compressed, timestamped unit belonging to one elementary stream
type Packet struct {
	Data        []byte
	StreamIndex int
	PTS         int64
	DTS         int64
	Duration    int64

	// Index is the read sequence number, used to trace pictures back to packets
	Index int

	flush  bool
	serial int
}

// flushPacket returns a sentinel that makes decoders reset their state.
// It carries no payload and no timestamp.
func flushPacket() *Packet {
	return &Packet{PTS: NoPTS, DTS: NoPTS, StreamIndex: -1, flush: true}
}

// drainPacket returns an empty packet that asks the video decoder to emit
// frames it is still holding at end of stream
func drainPacket(index int) *Packet {
	return &Packet{PTS: NoPTS, DTS: NoPTS, StreamIndex: -1, Index: index}
}

// IsFlush reports whether the packet is a flush sentinel
func (p *Packet) IsFlush() bool {
	return p != nil && p.flush
}

// IsEmpty reports whether the packet carries no payload
func (p *Packet) IsEmpty() bool {
	return len(p.Data) == 0
}

// Size returns the payload size in bytes
func (p *Packet) Size() int {
	return len(p.Data)
}

// Serial returns the queue serial the packet was queued under
func (p *Packet) Serial() int {
	return p.serial
}

// HasPTS reports whether the packet carries a presentation timestamp
func (p *Packet) HasPTS() bool {
	return p.PTS != NoPTS
}
