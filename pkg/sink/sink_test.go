package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDropOldest_OfferUnderCapacityNeverDrops(t *testing.T) {
	q := newDropOldest[int](2)
	assert.False(t, q.offer(1))
	assert.False(t, q.offer(2))
	assert.EqualValues(t, 0, q.droppedCount())
}

func TestDropOldest_OfferAtCapacityDropsOldest(t *testing.T) {
	q := newDropOldest[int](2)
	require.False(t, q.offer(1))
	require.False(t, q.offer(2))

	dropped := q.offer(3)
	assert.True(t, dropped)
	assert.EqualValues(t, 1, q.droppedCount())

	// the oldest (1) must be the one gone; 2 and 3 remain in order.
	got := q.drain()
	assert.Equal(t, []int{2, 3}, got)
}

func TestDropOldest_DrainEmptiesTheQueue(t *testing.T) {
	q := newDropOldest[string](4)
	q.offer("a")
	q.offer("b")
	assert.Equal(t, []string{"a", "b"}, q.drain())
	assert.Empty(t, q.drain())
}
