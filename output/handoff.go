package output

import (
	"log"
	"sync/atomic"
	"time"
)

// pollInterval is how long the writer sleeps between empty polls of the
// ring, matching the reference's 0.5ms poll.
const pollInterval = 500 * time.Microsecond

// Handoff owns the producer side (Enqueue) used by the pipeline goroutine
// and starts/stops the writer goroutine that owns the consumer side and the
// sinks. The only state shared across the two goroutines is the ring itself
// (lock-free) and the running flag (release/acquire via atomic.Bool).
type Handoff struct {
	ring    *Ring
	sinks   []Sink
	running atomic.Bool
	done    chan struct{}

	dropped atomic.Uint64 // packets refused by the ring (producer side)
}

// NewHandoff allocates a ring of the given capacity and wires in sinks. The
// writer goroutine is not started until Start is called.
func NewHandoff(capacity int, sinks ...Sink) *Handoff {
	return &Handoff{ring: NewRing(capacity), sinks: sinks, done: make(chan struct{})}
}

// Start publishes running=true and launches the writer goroutine.
func (h *Handoff) Start() {
	h.running.Store(true)
	go h.writerLoop()
}

// Enqueue attempts to hand p to the writer. On failure (ring full) the
// packet is dropped and the drop is counted; the caller need not retain it
// either way.
func (h *Handoff) Enqueue(p *Packet) {
	if !h.ring.Enqueue(p) {
		h.dropped.Add(1)
		log.Printf("alert: output ring full, dropping flow packet (%d events)", len(p.Events))
	}
}

// Dropped reports the number of packets refused by the ring since start.
func (h *Handoff) Dropped() uint64 { return h.dropped.Load() }

// Stop publishes running=false and joins the writer goroutine, which drains
// the ring before returning.
func (h *Handoff) Stop() {
	h.running.Store(false)
	<-h.done
	for _, s := range h.sinks {
		if err := s.Close(); err != nil {
			log.Printf("critical: failed to close output sink: %v", err)
		}
	}
}

func (h *Handoff) writerLoop() {
	defer close(h.done)
	for h.running.Load() {
		h.drainOnce()
		if h.ring.Len() == 0 {
			time.Sleep(pollInterval)
		}
	}
	// Shutdown: drain whatever remains before returning.
	for h.ring.Len() > 0 {
		h.drainOnce()
	}
}

// drainOnce performs the writer's coalesced-dequeue step: at most one packet
// is written per wakeup; if a backlog built up, only the newest survives.
func (h *Handoff) drainOnce() {
	p, dropped, ok := h.ring.CoalescedDequeue()
	if !ok {
		return
	}
	if dropped > 0 {
		log.Printf("notice: writer coalesced %d backlogged packets", dropped)
	}
	for _, sink := range h.sinks {
		if err := sink.Write(p); err != nil {
			log.Printf("alert: sink write failed: %v", err)
		}
	}
}
