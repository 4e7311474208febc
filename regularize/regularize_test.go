package regularize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/opticflow/event"
)

func defaultParams() Params {
	return Params{DtMax: 300000, Dx: 3, MaxSpeedFactor: 1.0, MaxAngleDeg: 20.0}
}

func seedNeighbors(buf *event.Buffer, cx, cy int, u, v float64, n int, ts int64) {
	placed := 0
	for dy := -1; dy <= 1 && placed < n; dy++ {
		for dx := -1; dx <= 1 && placed < n; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			buf.Add(event.Event{X: uint16(cx + dx), Y: uint16(cy + dy), Timestamp: ts, U: u, V: v, HasFlow: true})
			placed++
		}
	}
}

func TestApplyNoOpWithoutFlow(t *testing.T) {
	buf := event.NewBuffer(32, 32, 3)
	e := event.Event{X: 16, Y: 16, HasFlow: false}
	Apply(&e, buf, defaultParams())
	assert.False(t, e.HasFlow)
}

func TestApplyLeavesUnchangedWithInsufficientNeighbors(t *testing.T) {
	buf := event.NewBuffer(32, 32, 3)
	seedNeighbors(buf, 16, 16, 1, 1, 2, 1000) // only two flow-bearing neighbors
	e := event.Event{X: 16, Y: 16, Timestamp: 1100, U: 5, V: 5, HasFlow: true}
	Apply(&e, buf, defaultParams())
	assert.True(t, e.HasFlow, "fewer than three neighbors is not enough evidence to reject")
}

func TestApplyAcceptsAgreeingNeighborhood(t *testing.T) {
	buf := event.NewBuffer(32, 32, 3)
	seedNeighbors(buf, 16, 16, 1, 1, 8, 1000)
	e := event.Event{X: 16, Y: 16, Timestamp: 1100, U: 1.05, V: 0.95, HasFlow: true}
	Apply(&e, buf, defaultParams())
	assert.True(t, e.HasFlow)
}

func TestApplyRejectsSpeedOutlier(t *testing.T) {
	buf := event.NewBuffer(32, 32, 3)
	seedNeighbors(buf, 16, 16, 1, 0, 8, 1000) // mean speed 1.0
	e := event.Event{X: 16, Y: 16, Timestamp: 1100, U: 10, V: 0, HasFlow: true} // speed 10, way past the 1.0x tolerance
	Apply(&e, buf, defaultParams())
	assert.False(t, e.HasFlow)
}

func TestApplyRejectsAngleOutlier(t *testing.T) {
	buf := event.NewBuffer(32, 32, 3)
	seedNeighbors(buf, 16, 16, 1, 0, 8, 1000) // neighbors all point along +x
	e := event.Event{X: 16, Y: 16, Timestamp: 1100, U: 0, V: 1, HasFlow: true} // 90 degrees off
	Apply(&e, buf, defaultParams())
	assert.False(t, e.HasFlow)
}

func TestApplyIgnoresStaleNeighbors(t *testing.T) {
	buf := event.NewBuffer(32, 32, 3)
	seedNeighbors(buf, 16, 16, 1, 0, 8, 0) // far outside DtMax once e arrives
	e := event.Event{X: 16, Y: 16, Timestamp: 1_000_000, U: 0, V: 1, HasFlow: true}
	Apply(&e, buf, defaultParams())
	assert.True(t, e.HasFlow, "neighbors older than DtMax carry no evidence, so nothing is rejected")
}

func TestAngularDistanceDegWrapsAround(t *testing.T) {
	assert.InDelta(t, 0.0, angularDistanceDeg(0, 0), 1e-9)
	assert.InDelta(t, 180.0, angularDistanceDeg(0, math.Pi), 1e-9)
	assert.InDelta(t, 10.0, angularDistanceDeg(5*math.Pi/180, -5*math.Pi/180), 1e-9)
	assert.InDelta(t, 20.0, angularDistanceDeg(170*math.Pi/180, -170*math.Pi/180), 1e-9)
}
