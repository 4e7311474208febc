package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingEnqueueDequeueOrder(t *testing.T) {
	r := NewRing(4)
	p1 := &Packet{EventSource: 1}
	p2 := &Packet{EventSource: 2}
	require.True(t, r.Enqueue(p1))
	require.True(t, r.Enqueue(p2))
	assert.Equal(t, 2, r.Len())

	got, ok := r.Dequeue()
	require.True(t, ok)
	assert.Same(t, p1, got)

	got, ok = r.Dequeue()
	require.True(t, ok)
	assert.Same(t, p2, got)

	_, ok = r.Dequeue()
	assert.False(t, ok)
}

func TestRingRejectsWhenFull(t *testing.T) {
	r := NewRing(2)
	require.True(t, r.Enqueue(&Packet{}))
	require.True(t, r.Enqueue(&Packet{}))
	assert.False(t, r.Enqueue(&Packet{}), "ring at capacity must reject without blocking")
	assert.Equal(t, 2, r.Len())
}

func TestRingWrapsAroundCapacity(t *testing.T) {
	r := NewRing(2)
	for i := 0; i < 10; i++ {
		p := &Packet{EventSource: int16(i)}
		require.True(t, r.Enqueue(p))
		got, ok := r.Dequeue()
		require.True(t, ok)
		assert.Same(t, p, got)
	}
}

func TestRingCoalescedDequeueKeepsNewest(t *testing.T) {
	r := NewRing(8)
	for i := 0; i < 5; i++ {
		require.True(t, r.Enqueue(&Packet{EventSource: int16(i)}))
	}
	p, dropped, ok := r.CoalescedDequeue()
	require.True(t, ok)
	assert.Equal(t, int16(4), p.EventSource)
	assert.Equal(t, 4, dropped)
	assert.Equal(t, 0, r.Len())
}

func TestRingCoalescedDequeueEmpty(t *testing.T) {
	r := NewRing(4)
	p, dropped, ok := r.CoalescedDequeue()
	assert.Nil(t, p)
	assert.Equal(t, 0, dropped)
	assert.False(t, ok)
}
