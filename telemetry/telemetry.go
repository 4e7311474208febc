// Package telemetry holds the pipeline's user-visible status glue: a
// packet-to-wall-clock delay estimate and the one-line status telemetry
// described in spec §7.
package telemetry

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DelayEstimate tracks the offset between wall-clock time and the event
// clock, rebasing its anchor whenever the computed delay goes negative or the
// event clock moves back past the anchor (an event-clock reset) rather than
// propagating it.
type DelayEstimate struct {
	wallAnchor  time.Time
	eventAnchor int64 // microseconds
	haveAnchor  bool
	lastMs      float64
}

// Update records a new (wall-clock-now, event-timestamp) pair and returns
// the current delay estimate in milliseconds.
func (d *DelayEstimate) Update(now time.Time, eventTimestampUs int64) float64 {
	if !d.haveAnchor {
		d.wallAnchor = now
		d.eventAnchor = eventTimestampUs
		d.haveAnchor = true
		d.lastMs = 0
		return 0
	}

	wallElapsedMs := float64(now.Sub(d.wallAnchor)) / float64(time.Millisecond)
	eventElapsedMs := float64(eventTimestampUs-d.eventAnchor) / 1000
	delay := wallElapsedMs - eventElapsedMs
	if delay < 0 || eventTimestampUs < d.eventAnchor {
		// Event clock ran ahead of the wall clock, or moved backward relative
		// to our anchor (session restart or a timestamp reset): rebase rather
		// than report a negative delay or count the jump as delay.
		d.wallAnchor = now
		d.eventAnchor = eventTimestampUs
		d.lastMs = 0
		return 0
	}
	d.lastMs = delay
	return delay
}

// RateTracker keeps a bounded window of recent rate samples to report their
// median.
type RateTracker struct {
	samples []float64
	cap     int
	next    int
	filled  bool
}

// NewRateTracker allocates a tracker holding up to capacity recent samples.
func NewRateTracker(capacity int) *RateTracker {
	if capacity <= 0 {
		capacity = 1
	}
	return &RateTracker{samples: make([]float64, capacity), cap: capacity}
}

// Observe records a rate sample (events/second).
func (r *RateTracker) Observe(rate float64) {
	r.samples[r.next] = rate
	r.next = (r.next + 1) % r.cap
	if r.next == 0 {
		r.filled = true
	}
}

// Median returns the p50 of recorded samples via gonum's empirical
// quantile, or 0 if nothing has been observed yet.
func (r *RateTracker) Median() float64 {
	n := r.cap
	if !r.filled {
		n = r.next
	}
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), r.samples[:n]...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// Status formats the one-line status telemetry from spec §7: smoothed mean
// flow, packet-to-wall delay (ms), smoothed event rate, and current tau.
func Status(meanU, meanV, delayMs, rate, tau float64) string {
	return fmt.Sprintf(
		"flow=(%.4f,%.4f) px/us delay=%.2fms rate=%.1f/s tau=%.0fus",
		meanU, meanV, delayMs, rate, tau,
	)
}
