package cache

import (
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// removalRecorder collects removal callback invocations.
type removalRecorder[K comparable, V any] struct {
	mux      sync.Mutex
	removals []removal[K, V]
}

func (r *removalRecorder[K, V]) callback(key K, value V, reason EvictionReason) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.removals = append(r.removals, removal[K, V]{key: key, value: value, reason: reason})
}

func (r *removalRecorder[K, V]) get() []removal[K, V] {
	r.mux.Lock()
	defer r.mux.Unlock()
	return slices.Clone(r.removals)
}

func TestHyperClock_AddAndGet(t *testing.T) {
	clockCache := NewHyperClock[string, string](t.Context(), 5, time.Second /*tickInterval*/, nil /*onRemoved*/)

	wasEvicted := clockCache.Add("key1", "value1", time.Minute)
	assert.False(t, wasEvicted, "Should not evict when cache is not full")

	val, found := clockCache.Get("key1")
	assert.True(t, found)
	assert.Equal(t, "value1", val)
	val, found = clockCache.Peek("key1")
	assert.True(t, found)
	assert.Equal(t, "value1", val)

	_, found = clockCache.Get("nonexistent")
	assert.False(t, found, "Should not find a non-existent key")
}

func TestHyperClock_UpdateKey(t *testing.T) {
	clockCache := NewHyperClock[string, int](t.Context(), 2, time.Second /*tickInterval*/, nil /*onRemoved*/)

	clockCache.Add("key1", 100, time.Minute)
	clockCache.Add("key2", 200, 0 /*ttl*/)

	wasEvicted := clockCache.Add("key1", 999, 0 /*ttl*/)
	assert.False(t, wasEvicted, "Should not evict on update")
	val, found := clockCache.Get("key1")
	assert.True(t, found)
	assert.Equal(t, 999, val)
	assert.Empty(t, clockCache.expiryBuckets, "Entries without TTL don't live in expiry buckets")
	assert.ElementsMatch(t, []string{"key1", "key2"}, clockCache.Keys())
}

func TestHyperClock_EvictionPolicy(t *testing.T) {
	rec := new(removalRecorder[int, string])
	clockCache := NewHyperClock[int, string](t.Context(), 2, time.Second /*tickInterval*/, rec.callback)

	clockCache.Add(1, "one", time.Minute)
	clockCache.Add(2, "two", time.Minute)

	// Neither entry is referenced, so the hand evicts the oldest one.
	assert.True(t, clockCache.Add(3, "three", time.Minute))
	_, found := clockCache.Get(1)
	assert.False(t, found, "Item 1 should have been evicted")
	_, found = clockCache.Get(2)
	assert.True(t, found)
	_, found = clockCache.Get(3)
	assert.True(t, found)

	// Both entries are referenced; the hand clears both bits and comes back to item 2.
	assert.True(t, clockCache.Add(4, "four", time.Minute))
	_, found = clockCache.Peek(2)
	assert.False(t, found, "Item 2 should have been evicted")
	_, found = clockCache.Peek(3)
	assert.True(t, found)

	assert.Equal(t, []removal[int, string]{
		{key: 1, value: "one", reason: ReasonEvicted},
		{key: 2, value: "two", reason: ReasonEvicted},
	}, rec.get())
}

func TestHyperClock_PeekDoesNotReference(t *testing.T) {
	clockCache := NewHyperClock[int, string](t.Context(), 2, time.Second /*tickInterval*/, nil /*onRemoved*/)
	clockCache.Add(1, "one", 0 /*ttl*/)
	clockCache.Add(2, "two", 0 /*ttl*/)
	_, _ = clockCache.Peek(1)
	clockCache.Add(3, "three", 0 /*ttl*/)
	_, found := clockCache.Peek(1)
	assert.False(t, found, "Peeked entries get no second chance")
}

func TestHyperClock_Touch(t *testing.T) {
	t.Run("keeps_the_second_chance", func(t *testing.T) {
		clockCache := NewHyperClock[string, int](t.Context(), 3, time.Second /*tickInterval*/, nil /*onRemoved*/)
		clockCache.Add("a", 1, time.Hour)
		clockCache.Add("b", 2, 0 /*ttl*/)
		clockCache.Add("c", 3, 0 /*ttl*/)

		value, found := clockCache.Touch("a", time.Hour)
		assert.True(t, found)
		assert.Equal(t, 1, value)
		assert.True(t, clockCache.Add("d", 4, 0 /*ttl*/))
		_, found = clockCache.Peek("a")
		assert.True(t, found, "A touched entry is referenced and survives the sweep")
		_, found = clockCache.Peek("b")
		assert.False(t, found, "The oldest untouched entry is evicted instead")
	})
	t.Run("moves_the_expiry_bucket", func(t *testing.T) {
		clockCache := NewHyperClock[string, int](t.Context(), 3, time.Second /*tickInterval*/, nil /*onRemoved*/)
		clockCache.Add("a", 1, time.Second)
		before := time.Now()
		_, found := clockCache.Touch("a", time.Hour)
		require.True(t, found)
		require.Len(t, clockCache.expiryBuckets, 1)
		for bucket, nodes := range clockCache.expiryBuckets {
			assert.True(t, bucket.After(before.Add(time.Hour-2*time.Second)))
			assert.Contains(t, nodes, "a")
		}

		_, found = clockCache.Touch("a", 0 /*ttl*/)
		require.True(t, found)
		assert.Empty(t, clockCache.expiryBuckets, "Entries without TTL leave the expiry buckets")
	})
	t.Run("never_inserts", func(t *testing.T) {
		clockCache := NewHyperClock[string, int](t.Context(), 3, time.Second /*tickInterval*/, nil /*onRemoved*/)
		_, found := clockCache.Touch("missing", time.Minute)
		assert.False(t, found)
		clockCache.Add("gone", 1, time.Minute)
		clockCache.Remove("gone")
		_, found = clockCache.Touch("gone", time.Minute)
		assert.False(t, found)
		assert.Empty(t, clockCache.Keys())

		clockCache.Add("expired", 1, time.Nanosecond)
		time.Sleep(time.Millisecond)
		_, found = clockCache.Touch("expired", time.Hour)
		assert.False(t, found, "Expired entries are not revived")
	})
}

func TestHyperClock_CallbackMayReenter(t *testing.T) {
	var clockCache *HyperClock[int, string]
	reentered := make(chan []int, 1)
	clockCache = NewHyperClock[int, string](t.Context(), 1, time.Second /*tickInterval*/,
		func(int, string, EvictionReason) { reentered <- clockCache.Keys() })

	clockCache.Add(10, "ten", time.Minute)
	clockCache.Add(20, "twenty", time.Minute)
	select {
	case keys := <-reentered:
		assert.Equal(t, []int{20}, keys)
	case <-time.After(time.Second):
		require.Fail(t, "Removal callback should run after the cache lock is released")
	}
}

func TestHyperClock_Remove(t *testing.T) {
	rec := new(removalRecorder[string, int])
	clockCache := NewHyperClock[string, int](t.Context(), 3, time.Second /*tickInterval*/, rec.callback)
	clockCache.Add("a", 1, time.Minute)
	clockCache.Add("b", 2, time.Minute)
	clockCache.Add("c", 3, 0 /*ttl*/)

	// Removing the node under the hand must move the hand.
	value, found := clockCache.Remove("a")
	assert.True(t, found)
	assert.Equal(t, 1, value)
	_, found = clockCache.Remove("a")
	assert.False(t, found)

	clockCache.Add("d", 4, time.Minute)
	assert.True(t, clockCache.Add("e", 5, time.Minute))
	assert.ElementsMatch(t, []string{"c", "d", "e"}, clockCache.Keys())
	assert.Equal(t, []removal[string, int]{{key: "b", value: 2, reason: ReasonEvicted}}, rec.get(),
		"Remove doesn't invoke the callback")

	for _, key := range []string{"c", "d", "e"} {
		_, found = clockCache.Remove(key)
		assert.True(t, found)
	}
	assert.Nil(t, clockCache.hand)
	assert.Empty(t, clockCache.expiryBuckets)
	clockCache.Add("f", 6, time.Minute)
	assert.Equal(t, []string{"f"}, clockCache.Keys())
}

func TestHyperClock_GetExpired(t *testing.T) {
	clockCache := NewHyperClock[string, int](t.Context(), 5, time.Minute /*tickInterval*/, nil /*onRemoved*/)
	clockCache.Add("key1", 1, 20*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	_, found := clockCache.Get("key1")
	assert.False(t, found, "Should not find an expired item")
	value, found := clockCache.Remove("key1")
	assert.True(t, found, "Remove returns entries the reaper didn't clear yet")
	assert.Equal(t, 1, value)
}

func TestHyperClock_ExpiredEntriesAreEvictedFirst(t *testing.T) {
	rec := new(removalRecorder[string, int])
	clockCache := NewHyperClock[string, int](t.Context(), 1, time.Minute /*tickInterval*/, rec.callback)
	clockCache.Add("old", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	clockCache.Add("new", 2, 0 /*ttl*/)
	assert.Equal(t, []removal[string, int]{{key: "old", value: 1, reason: ReasonExpired}}, rec.get())
}

func TestHyperClock_Reaper(t *testing.T) {
	rec := new(removalRecorder[string, int])
	clockCache := NewHyperClock[string, int](t.Context(), 10, time.Millisecond /*tickInterval*/, rec.callback)

	clockCache.Add("key1", 1, 30*time.Millisecond)
	clockCache.Add("key2", 2, 40*time.Millisecond)
	clockCache.Add("forever", 3, 0 /*ttl*/)

	assert.Eventually(t, func() bool { return len(rec.get()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []removal[string, int]{
		{key: "key1", value: 1, reason: ReasonExpired},
		{key: "key2", value: 2, reason: ReasonExpired},
	}, rec.get())
	assert.Equal(t, []string{"forever"}, clockCache.Keys())
}

func TestHyperClock_Purge(t *testing.T) {
	rec := new(removalRecorder[int, int])
	clockCache := NewHyperClock[int, int](t.Context(), 4, time.Second /*tickInterval*/, rec.callback)
	for i := range 3 {
		clockCache.Add(i, i*10, time.Minute)
	}
	clockCache.Purge()
	assert.Empty(t, clockCache.Keys())
	assert.Equal(t, []removal[int, int]{
		{key: 0, value: 0, reason: ReasonPurged},
		{key: 1, value: 10, reason: ReasonPurged},
		{key: 2, value: 20, reason: ReasonPurged},
	}, rec.get())

	clockCache.Add(7, 70, time.Minute)
	value, found := clockCache.Get(7)
	assert.True(t, found)
	assert.Equal(t, 70, value)
}

func TestHyperClock_Concurrency(t *testing.T) {
	numGoroutines := 50
	itemsPerGoroutine := 50
	clockCache := NewHyperClock[string, int](t.Context(), 1000, time.Millisecond /*tickInterval*/, nil /*onRemoved*/)
	var wg sync.WaitGroup

	for i := range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range itemsPerGoroutine {
				key := fmt.Sprintf("key-%d-%d", i, j)
				clockCache.Add(key, i*100+j, time.Duration(j%3)*time.Millisecond)
				// Keys may be evicted or expired by now, but found values must be correct.
				if val, found := clockCache.Get(key); found {
					assert.Equal(t, i*100+j, val)
				}
				if j%7 == 0 {
					clockCache.Remove(key)
				}
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, len(clockCache.Keys()), 1000)
}

func TestHyperClock_InvalidArguments(t *testing.T) {
	clockCache := NewHyperClock[int, int](t.Context(), 0 /*capacity*/, 0 /*tickInterval*/, nil)
	assert.Equal(t, 1, clockCache.capacity)
	assert.Equal(t, time.Second, clockCache.tickInterval)
}
