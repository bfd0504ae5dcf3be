package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// assertRing checks the ring holds `expected` and that both directions wrap around.
func assertRing[V comparable](t *testing.T, expected []V, ring *clockRing[V]) {
	t.Helper()

	assert.Equal(t, len(expected), ring.Len())
	if len(expected) == 0 {
		assert.Nil(t, ring.Front())
		return
	}
	assert.Equal(t, expected, ring.Values())
	assert.Equal(t, expected[0], ring.Front().next.prev.Value)
	assert.Equal(t, expected[len(expected)-1], ring.Front().prev.Value, "The newest node precedes the head")

	n := ring.Front()
	for range len(expected) {
		n = n.next
	}
	assert.Same(t, ring.Front(), n, "Walking Len() steps returns to the head")
}

func TestClockRing(t *testing.T) {
	t.Run("insert", func(t *testing.T) {
		ring := new(clockRing[int])
		assertRing(t, nil, ring)
		ring.Insert(1)
		assertRing(t, []int{1}, ring)
		ring.Insert(2)
		ring.Insert(3)
		assertRing(t, []int{1, 2, 3}, ring)
	})
	t.Run("remove_middle", func(t *testing.T) {
		ring := new(clockRing[int])
		ring.Insert(1)
		two := ring.Insert(2)
		ring.Insert(3)
		assert.Equal(t, 3, ring.Remove(two).Value)
		assertRing(t, []int{1, 3}, ring)
	})
	t.Run("remove_head", func(t *testing.T) {
		ring := new(clockRing[int])
		one := ring.Insert(1)
		ring.Insert(2)
		assert.Equal(t, 2, ring.Remove(one).Value)
		assertRing(t, []int{2}, ring)
	})
	t.Run("remove_tail_wraps", func(t *testing.T) {
		ring := new(clockRing[int])
		ring.Insert(1)
		two := ring.Insert(2)
		assert.Equal(t, 1, ring.Remove(two).Value, "The node after the newest is the head")
		assertRing(t, []int{1}, ring)
	})
	t.Run("remove_last", func(t *testing.T) {
		ring := new(clockRing[int])
		one := ring.Insert(1)
		assert.Nil(t, ring.Remove(one))
		assertRing(t, nil, ring)
		assert.Nil(t, ring.Remove(one), "Removing twice is a no-op")
		assertRing(t, nil, ring)
	})
}
