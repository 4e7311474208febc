// Package regularize implements the post-estimation outlier filter: a flow
// estimate is rejected when it disagrees in speed or direction with the
// robust mean of its already-flow-bearing spatial neighbors.
package regularize

import (
	"math"

	"github.com/banshee-data/opticflow/event"
)

// Params configures the regularization window and rejection tolerances.
type Params struct {
	DtMax          int64   // neighbor recency window, microseconds
	Dx             int     // half-window side; window is (2*Dx+1)^2
	MaxSpeedFactor float64 // relative speed deviation tolerance
	MaxAngleDeg    float64 // angular deviation tolerance, degrees
}

// Apply examines e's spatial neighborhood in buf and clears e.HasFlow if the
// estimate is an outlier relative to the neighborhood's robust mean speed
// and direction. If fewer than three neighbors carry recent flow, e is left
// unchanged — there isn't enough evidence to reject it.
func Apply(e *event.Event, buf *event.Buffer, p Params) {
	if !e.HasFlow {
		return
	}
	x, y := int(e.X), int(e.Y)

	var sinSum, cosSum, speedSum float64
	n := 0
	for dy := -p.Dx; dy <= p.Dx; dy++ {
		for dx := -p.Dx; dx <= p.Dx; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= buf.Width() || ny < 0 || ny >= buf.Height() {
				continue
			}
			nb := buf.Read(nx, ny, 0)
			if !nb.HasFlow {
				continue
			}
			if e.Timestamp-nb.Timestamp > p.DtMax {
				continue
			}
			speed := math.Hypot(nb.U, nb.V)
			angle := math.Atan2(nb.V, nb.U)
			speedSum += speed
			sinSum += math.Sin(angle)
			cosSum += math.Cos(angle)
			n++
		}
	}
	if n < 3 {
		return
	}

	meanSpeed := speedSum / float64(n)
	meanAngle := math.Atan2(sinSum, cosSum)

	if meanSpeed == 0 {
		return
	}

	speed := math.Hypot(e.U, e.V)
	if math.Abs(speed-meanSpeed)/meanSpeed > p.MaxSpeedFactor {
		e.HasFlow = false
		return
	}

	angle := math.Atan2(e.V, e.U)
	if angularDistanceDeg(angle, meanAngle) > p.MaxAngleDeg {
		e.HasFlow = false
	}
}

// angularDistanceDeg returns the principal-value angular difference between
// two angles (radians) in degrees, in [0, 180].
func angularDistanceDeg(a, b float64) float64 {
	diff := math.Mod((a-b)*180/math.Pi, 360)
	if diff < 0 {
		diff += 360
	}
	if diff > 180 {
		diff = 360 - diff
	}
	return diff
}
