// Package output implements the handoff from the pipeline goroutine to a
// dedicated writer goroutine: a bounded single-producer/single-consumer ring
// buffer of annotated packets, and the sinks (serial, CSV file) the writer
// drains it into.
package output

import (
	"sync/atomic"

	"github.com/banshee-data/opticflow/event"
)

// DefaultCapacity is the reference ring capacity.
const DefaultCapacity = 1024

// Packet is a value object owning the events selected for output (those
// with HasFlow true) plus a small header. It is produced by the pipeline
// goroutine and consumed by the writer goroutine.
type Packet struct {
	EventSource int16
	Events      []event.Event
}

// Ring is a bounded SPSC FIFO of *Packet. Enqueue is called only from the
// pipeline goroutine; Dequeue only from the writer goroutine. Both are
// non-blocking and implemented with atomics only, matching the reference's
// lock-free handoff.
type Ring struct {
	buf  []atomic.Pointer[Packet]
	cap  uint64
	head atomic.Uint64 // next slot to consume (writer-owned)
	tail atomic.Uint64 // next slot to produce (pipeline-owned)
}

// NewRing allocates a ring with room for capacity packets.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		panic("output: ring capacity must be positive")
	}
	return &Ring{buf: make([]atomic.Pointer[Packet], capacity), cap: uint64(capacity)}
}

// Enqueue attempts to add p to the ring. It returns false, without blocking,
// if the ring is full; the caller owns disposing of p in that case.
func (r *Ring) Enqueue(p *Packet) bool {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail-head >= r.cap {
		return false
	}
	r.buf[tail%r.cap].Store(p)
	r.tail.Store(tail + 1)
	return true
}

// Dequeue removes and returns the oldest packet, or (nil, false) if empty.
func (r *Ring) Dequeue() (*Packet, bool) {
	head := r.head.Load()
	tail := r.tail.Load()
	if head >= tail {
		return nil, false
	}
	p := r.buf[head%r.cap].Load()
	r.buf[head%r.cap].Store(nil)
	r.head.Store(head + 1)
	return p, true
}

// Len reports the number of packets currently queued. It is approximate
// under concurrent access but safe to call from either side.
func (r *Ring) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// CoalescedDequeue dequeues the most recently enqueued packet, discarding
// (and reporting the count of) any older packets still queued behind it.
// This is the writer's explicit drop-on-backlog policy (spec §4.6 step 2):
// under overload, only the latest packet is useful.
func (r *Ring) CoalescedDequeue() (p *Packet, dropped int, ok bool) {
	p, ok = r.Dequeue()
	if !ok {
		return nil, 0, false
	}
	for {
		next, ok := r.Dequeue()
		if !ok {
			return p, dropped, true
		}
		p = next
		dropped++
	}
}
