// Package event holds the polarity event type and the per-pixel buffers the
// rest of the pipeline reads and mutates: a bounded recent-event ring per
// pixel and the last-seen-timestamp map used by the background-activity
// filter.
package event

// Event is a single polarity event, optionally annotated with an optic-flow
// vector. Coordinates are pixel indices within the sensor's (width, height)
// extents; Timestamp is a microsecond count, monotonically non-decreasing
// within a session (resets are tolerated by callers, not by Event itself).
type Event struct {
	X, Y      uint16
	Timestamp int64
	Polarity  bool
	U, V      float64
	HasFlow   bool
}

// Buffer is a W×H grid of pixels, each holding the K most recent events seen
// at that pixel. Slot 0 is always the newest. Unwritten slots hold the zero
// Event, which acts as a sentinel (Timestamp 0, HasFlow false) until
// overwritten.
//
// Buffer is not safe for concurrent use: the pipeline goroutine is its only
// caller, by design (see the package doc of the pipeline package).
type Buffer struct {
	width, height, k int
	cells            []cell
}

type cell struct {
	events []Event
	head   int // index of the newest event in events
}

// NewBuffer allocates a width×height grid, each cell holding up to k recent
// events. k is fixed for the buffer's lifetime.
func NewBuffer(width, height, k int) *Buffer {
	if width <= 0 || height <= 0 || k <= 0 {
		panic("event: invalid buffer dimensions")
	}
	cells := make([]cell, width*height)
	for i := range cells {
		cells[i].events = make([]Event, k)
		cells[i].head = k - 1 // so the first Add lands on slot 0
	}
	return &Buffer{width: width, height: height, k: k, cells: cells}
}

func (b *Buffer) index(x, y int) int {
	if x < 0 || x >= b.width || y < 0 || y >= b.height {
		panic("event: coordinate out of bounds")
	}
	return y*b.width + x
}

// Read returns the k-th most recent event at (x, y), 0 <= k < K. It never
// fails: until the cell has been written k+1 times, the sentinel zero Event
// is returned for slot k.
func (b *Buffer) Read(x, y, k int) Event {
	c := &b.cells[b.index(x, y)]
	if k < 0 || k >= len(c.events) {
		panic("event: slot index out of range")
	}
	idx := (c.head - k + len(c.events)) % len(c.events)
	return c.events[idx]
}

// Add prepends e at its own pixel, discarding the oldest entry. O(1): the
// cell is a circular buffer addressed by a head index, not a shift-on-insert
// array.
func (b *Buffer) Add(e Event) {
	c := &b.cells[b.index(int(e.X), int(e.Y))]
	c.head = (c.head + 1) % len(c.events)
	c.events[c.head] = e
}

// Width and Height report the buffer's fixed sensor extents.
func (b *Buffer) Width() int  { return b.width }
func (b *Buffer) Height() int { return b.height }

// LastTimestampMap holds, for every pixel, the latest timestamp written to
// any of that pixel's eight Moore neighbors — never the timestamp of an
// event at the pixel itself. It backs the adaptive background-activity
// filter's coincidence test.
type LastTimestampMap struct {
	width, height int
	ts            []int64
}

// NewLastTimestampMap allocates a width×height grid initialized to 0.
func NewLastTimestampMap(width, height int) *LastTimestampMap {
	if width <= 0 || height <= 0 {
		panic("event: invalid map dimensions")
	}
	return &LastTimestampMap{width: width, height: height, ts: make([]int64, width*height)}
}

// Get returns the latest neighbor timestamp recorded for (x, y).
func (m *LastTimestampMap) Get(x, y int) int64 {
	return m.ts[m.idx(x, y)]
}

func (m *LastTimestampMap) idx(x, y int) int {
	if x < 0 || x >= m.width || y < 0 || y >= m.height {
		panic("event: coordinate out of bounds")
	}
	return y*m.width + x
}

// UpdateNeighbors writes t into all eight Moore-neighbor cells of (x, y),
// skipping (x, y) itself and any neighbor outside the grid.
func (m *LastTimestampMap) UpdateNeighbors(x, y int, t int64) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= m.width || ny < 0 || ny >= m.height {
				continue
			}
			m.ts[m.idx(nx, ny)] = t
		}
	}
}
