// Package flow implements the Benosman 2014 plane-fit optic-flow estimator:
// a local least-squares fit of a time surface over a pixel's spatio-temporal
// neighborhood, whose spatial gradient gives the inverse flow direction.
//
// The reference C implementation this is grounded on
// (original_source/modules/opticflow/flowBenosman2014.h) ships only the
// struct and signature, not the body; thr1/thr2 here follow the published
// Benosman 2014 method as outer/inner rejection thresholds, per the open
// question recorded in DESIGN.md.
package flow

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/opticflow/event"
)

// Params configures a single plane-fit estimate.
type Params struct {
	DtMin, DtMax int64   // admissible neighbor age window, microseconds
	Dx           int     // half-window side; window is (2*Dx+1)^2
	Thr1         float64 // outer residual-sum gate
	Thr2         float64 // inner per-sample variance multiple for refinement
}

// minGradientSquared is the numerical floor on a^2+b^2 below which inverting
// the spatial gradient into a flow vector would blow up.
const minGradientSquared = 1e-12

type sample struct {
	x, y, t float64
}

// Estimate computes optic flow for e using buf's recorded neighborhood. It
// returns (u, v, true) on success, or (0, 0, false) if the estimate is
// rejected by any of the gates in spec §4.2. buf must not yet contain e.
func Estimate(e event.Event, buf *event.Buffer, p Params) (u, v float64, ok bool) {
	samples := collect(e, buf, p)
	if len(samples) < 3 {
		return 0, 0, false
	}

	a, b, residualSum, ok := fit(samples)
	if !ok {
		return 0, 0, false
	}
	if residualSum > p.Thr1*float64(len(samples)) {
		return 0, 0, false
	}

	a, b, ok = refine(samples, a, b, p.Thr2)
	if !ok {
		return 0, 0, false
	}

	denom := a*a + b*b
	if denom < minGradientSquared {
		return 0, 0, false
	}
	u, v = a/denom, b/denom
	if !finite(u) || !finite(v) {
		return 0, 0, false
	}
	return u, v, true
}

// collect gathers the sample set S: the event itself (dt=0, always admitted)
// plus the most-recent event at every other pixel in the (2*Dx+1)^2 window
// centered on e whose age falls within [DtMin, DtMax]. Windows are clipped
// at sensor borders, never wrapped.
func collect(e event.Event, buf *event.Buffer, p Params) []sample {
	x, y := int(e.X), int(e.Y)
	samples := make([]sample, 0, (2*p.Dx+1)*(2*p.Dx+1))
	for dy := -p.Dx; dy <= p.Dx; dy++ {
		for dx := -p.Dx; dx <= p.Dx; dx++ {
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= buf.Width() || ny < 0 || ny >= buf.Height() {
				continue
			}
			if dx == 0 && dy == 0 {
				samples = append(samples, sample{x: 0, y: 0, t: 0})
				continue
			}
			nb := buf.Read(nx, ny, 0)
			dt := e.Timestamp - nb.Timestamp
			if dt >= p.DtMin && dt <= p.DtMax {
				samples = append(samples, sample{x: float64(dx), y: float64(dy), t: float64(-dt)})
			}
		}
	}
	return samples
}

// fit solves the ordinary-least-squares plane t(x,y) = a*x + b*y + c over
// samples, returning the spatial gradient (a, b) and the residual sum of
// squares.
func fit(samples []sample) (a, b, residualSum float64, ok bool) {
	n := len(samples)
	design := mat.NewDense(n, 3, nil)
	response := mat.NewDense(n, 1, nil)
	for i, s := range samples {
		design.SetRow(i, []float64{s.x, s.y, 1})
		response.Set(i, 0, s.t)
	}

	var coef mat.Dense
	if err := coef.Solve(design, response); err != nil {
		return 0, 0, 0, false
	}
	a, b = coef.At(0, 0), coef.At(1, 0)
	c := coef.At(2, 0)
	if !finite(a) || !finite(b) || !finite(c) {
		return 0, 0, 0, false
	}

	for _, s := range samples {
		r := (a*s.x + b*s.y + c) - s.t
		residualSum += r * r
	}
	return a, b, residualSum, true
}

// refine implements the iterative-refinement gate: samples whose squared
// residual exceeds thr2 times the fit's per-sample variance are dropped and
// the plane is refit, until a pass removes nothing or fewer than three
// samples remain.
func refine(samples []sample, a, b, thr2 float64) (float64, float64, bool) {
	for {
		if len(samples) < 3 {
			return 0, 0, false
		}
		c := interceptFor(samples, a, b)
		var sumSq float64
		residuals := make([]float64, len(samples))
		for i, s := range samples {
			r := (a*s.x + b*s.y + c) - s.t
			residuals[i] = r
			sumSq += r * r
		}
		variance := sumSq / float64(len(samples))

		kept := samples[:0:0]
		for i, s := range samples {
			if residuals[i]*residuals[i] > variance*thr2 {
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == len(samples) {
			return a, b, true
		}
		if len(kept) < 3 {
			return 0, 0, false
		}
		var ok bool
		a, b, _, ok = fit(kept)
		if !ok {
			return 0, 0, false
		}
		samples = kept
	}
}

// interceptFor returns the mean-residual intercept for a plane with
// gradient (a, b) over samples: the c that minimizes sum of squared
// residuals given a fixed a, b is the mean of (t - a*x - b*y).
func interceptFor(samples []sample, a, b float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s.t - a*s.x - b*s.y
	}
	return sum / float64(len(samples))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
