package cache

import (
	"fmt"
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeLayer is a simple map-based Layer for testing purposes. It is not thread-safe and never evicts.
type fakeLayer[K comparable, V any] struct {
	items map[K]V
}

func newFakeLayer[K comparable, V any](int) Layer[K, V] {
	return &fakeLayer[K, V]{items: make(map[K]V)}
}

func (m *fakeLayer[K, V]) Get(key K) (V, bool /*found*/) {
	val, found := m.items[key]
	return val, found
}

func (m *fakeLayer[K, V]) Peek(key K) (V, bool /*found*/) {
	return m.Get(key)
}

func (m *fakeLayer[K, V]) Touch(key K, _ time.Duration) (V, bool /*found*/) {
	return m.Get(key)
}

func (m *fakeLayer[K, V]) Add(key K, value V, _ time.Duration) bool {
	m.items[key] = value
	return false
}

func (m *fakeLayer[K, V]) Remove(key K) (V, bool /*found*/) {
	val, found := m.items[key]
	delete(m.items, key)
	return val, found
}

func (m *fakeLayer[K, V]) Keys() []K {
	return slices.Collect(maps.Keys(m.items))
}

func (m *fakeLayer[K, V]) Purge() {
	m.items = make(map[K]V)
}

func TestSharded_AddGetRemove(t *testing.T) {
	sc := NewSharded(newFakeLayer[string, int], 10, StringHash)
	t.Run("add_and_get", func(t *testing.T) {
		sc.Add("hello", 123, time.Second)
		got, found := sc.Get("hello")
		assert.True(t, found)
		assert.Equal(t, 123, got)
		got, found = sc.Peek("hello")
		assert.True(t, found)
		assert.Equal(t, 123, got)
	})
	t.Run("get_non_existent_key", func(t *testing.T) {
		_, found := sc.Get("non-existent")
		assert.False(t, found)
	})
	t.Run("remove", func(t *testing.T) {
		got, found := sc.Remove("hello")
		assert.True(t, found)
		assert.Equal(t, 123, got)
		_, found = sc.Get("hello")
		assert.False(t, found)
		_, found = sc.Remove("hello")
		assert.False(t, found)
	})
}

// TestSharded_DefaultHash checks that keys without a dedicated hash still land on a stable shard.
func TestSharded_DefaultHash(t *testing.T) {
	type compositeKey struct {
		Region string
		ID     int
	}
	sc := NewSharded(newFakeLayer[compositeKey, string], 8, nil /*hash*/)
	for i := range 20 {
		sc.Add(compositeKey{Region: "r", ID: i}, fmt.Sprint(i), time.Second)
	}
	for i := range 20 {
		got, found := sc.Get(compositeKey{Region: "r", ID: i})
		assert.True(t, found)
		assert.Equal(t, fmt.Sprint(i), got)
	}
	assert.Len(t, sc.Keys(), 20)
}

func TestSharded_KeysAndPurge(t *testing.T) {
	sc := NewSharded(newFakeLayer[string, int], 4 /*shardCount*/, StringHash)
	expectedKeys := []string{"a", "b", "c", "d", "e", "f", "g"}
	for i, key := range expectedKeys {
		sc.Add(key, i, time.Second)
	}
	assert.ElementsMatch(t, expectedKeys, sc.Keys())

	sc.Purge()
	assert.Empty(t, sc.Keys())
	_, found := sc.Get("a")
	assert.False(t, found)
}

// TestSharded_Distribution verifies that keys are distributed across multiple shards.
func TestSharded_Distribution(t *testing.T) {
	shardCount := 10
	sc := NewSharded(newFakeLayer[string, int], shardCount, StringHash)
	// keyCount should be large enough compared to shardCount so it becomes virtually impossible to have a shard with
	// less than 50% of `keyCount/shardCount` keys.
	keyCount := 100_000
	for i := range keyCount {
		sc.Add(fmt.Sprintf("key-%d", i), i, time.Second)
	}
	for i, shard := range sc.shards {
		assert.Greater(t, len(shard.Keys()), keyCount/(2*shardCount), "Shard %d is underpopulated", i)
		for _, key := range shard.Keys() {
			assert.Equal(t, uint64(i), StringHash(key)%uint64(shardCount))
		}
	}
}

func TestSharded_OverHyperClock(t *testing.T) {
	rec := new(removalRecorder[string, int])
	sc := NewSharded(func(int) Layer[string, int] {
		return NewHyperClock[string, int](t.Context(), 1 /*capacity*/, time.Second /*tickInterval*/, rec.callback)
	}, 2, StringHash)

	// With one slot per shard, three keys evict at least one.
	sc.Add("x", 1, time.Minute)
	sc.Add("y", 2, time.Minute)
	sc.Add("z", 3, time.Minute)
	assert.NotEmpty(t, rec.get())
	assert.Equal(t, 3, len(sc.Keys())+len(rec.get()))
}
