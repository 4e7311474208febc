// Package adaptive implements the background-activity (BA) filter: a
// spatio-temporal coincidence test that suppresses events isolated from
// their neighborhood, with a threshold that closes the loop against a
// target flow-event rate.
package adaptive

import (
	"math"

	"github.com/banshee-data/opticflow/event"
)

// Params bounds and tunes the closed loop.
type Params struct {
	DtMin, DtMax     int64   // clamp bounds for tau, microseconds
	RateSetpoint     float64 // target flow-events/second
	Gain             float64 // multiplicative step per adjustment, must be > 1
	TauConstantSecs  float64 // EWMA time constant for the rate estimate, seconds
}

// Filter holds the mutable AdaptiveFilterState: the coincidence threshold
// tau, the smoothed rate estimate, and the last-flow timestamp.
type Filter struct {
	params Params

	tau       float64 // current threshold, microseconds
	rate      float64 // smoothed flow-event rate, events/second
	lastFlow  int64   // timestamp of the last event that produced flow
}

// NewFilter constructs a Filter with tau initialized to DtMax, the most
// permissive starting point (reference behavior: start wide open and let
// the loop tighten).
func NewFilter(p Params) *Filter {
	return &Filter{params: clampParams(p), tau: float64(p.DtMax)}
}

func clampParams(p Params) Params {
	if p.Gain <= 1 {
		// A gain of 1 makes no progress and a gain below 1 flips the sign of
		// every adjustment; the reference never intends either, so clamp to
		// the smallest workable step.
		p.Gain = 1 + 1e-6
	}
	return p
}

// Check runs the per-event BA procedure for an event at (x, y, t): it
// reports whether the event is admitted (not suppressed), and unconditionally
// records t into (x, y)'s Moore neighbors in ltm — including when the event
// itself is suppressed, per the reference's neighborhood-freshness behavior.
func (f *Filter) Check(x, y int, t int64, ltm *event.LastTimestampMap) bool {
	prev := ltm.Get(x, y)
	valid := prev != 0 && (t-prev) < int64(f.tau)
	ltm.UpdateNeighbors(x, y, t)
	return valid
}

// OnFlow runs the rate-control loop for an event at timestamp t that
// produced (and kept) a flow estimate: it updates the smoothed rate and
// adjusts tau toward the setpoint, then clamps tau to [DtMin, DtMax].
func (f *Filter) OnFlow(t int64) {
	delta := float64(t-f.lastFlow) / 1e6 // seconds
	rInst := 1 / (delta + 1e-5)

	phi := delta / f.params.TauConstantSecs
	phi = math.Max(0, math.Min(1, phi))
	f.rate += (rInst - f.rate) * phi

	switch {
	case f.rate < f.params.RateSetpoint:
		f.tau = math.Min(f.tau*f.params.Gain, float64(f.params.DtMax))
	case f.rate > f.params.RateSetpoint:
		f.tau = math.Max(f.tau/f.params.Gain, float64(f.params.DtMin))
	}
	f.tau = math.Max(float64(f.params.DtMin), math.Min(float64(f.params.DtMax), f.tau))
	f.lastFlow = t
}

// Tau returns the current coincidence threshold, microseconds.
func (f *Filter) Tau() float64 { return f.tau }

// Rate returns the current smoothed flow-event rate estimate, events/second.
func (f *Filter) Rate() float64 { return f.rate }
