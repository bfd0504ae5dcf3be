// This module implements an expirable CLOCK cache.
// Eviction Policy (CLOCK Algorithm):
// The cache keeps its entries on a ring and a "hand" sweeps over them. When the cache is full and a new item
// needs to be added, the hand checks the entry it's pointing to:
//   - If the entry's reference bit is 'true', it sets it to 'false' and moves to the next entry.
//     This gives the entry a "second chance".
//   - If the entry's reference bit is 'false' (or the entry expired), it evicts that entry and reuses its node.
//
// Expiration Policy (TTL with Reaper):
// Entries with a TTL are distributed to time-based 'buckets'. A background goroutine, the "reaper", periodically
// wakes up and clears every bucket that is in the past. This avoids scanning the entire cache for expired items.
// Entries without a TTL are never put in a bucket.

package cache

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nobletooth/objcache/pkg/utils"
)

// clockEntry represents a single entry in the cache.
type clockEntry[K comparable, V any] struct {
	key   K
	value V
	// ref is the reference bit for the CLOCK algorithm; it's atomic since Get sets it under the read lock.
	ref       atomic.Bool
	expiresAt time.Time // Zero means the entry never expires.
}

type clockNode[K comparable, V any] = ringNode[*clockEntry[K, V]]

// getTimeBucket rounds down the timestamp to the last timestamp that the reaper cleared given the tickInterval.
func getTimeBucket(timestamp time.Time, tickInterval time.Duration) time.Time {
	return time.Unix(0, (timestamp.UnixNano()/int64(tickInterval))*int64(tickInterval))
}

// HyperClock is a thread-safe, fixed-capacity, in-memory cache that combines the CLOCK (Second-Chance)
// eviction algorithm with a time-based expiration mechanism.
type HyperClock[K comparable, V any] struct { // Implements Layer.
	capacity int
	hand     *clockNode[K, V] // Next candidate for eviction; nil when the ring is empty.
	index    map[K]*clockNode[K, V]
	ring     clockRing[*clockEntry[K, V]]
	// expiryBuckets indexes expirable entries to allow expiring a batch of keys together.
	expiryBuckets map[time.Time]map[K]*clockNode[K, V]
	tickInterval  time.Duration
	reaperHand    time.Time // Next bucket to be cleared by the reaper goroutine.
	// onRemoved runs after the lock is released, so it may call back into the cache.
	onRemoved RemovalCallback[K, V]
	mux       sync.RWMutex
}

var _ Layer[string, int] = (*HyperClock[string, int])(nil)

// NewHyperClock is the constructor for HyperClock. It starts the background reaper goroutine, which runs until the
// given context is done.
func NewHyperClock[K comparable, V any](ctx context.Context, capacity int, tickInterval time.Duration,
	onRemoved RemovalCallback[K, V]) *HyperClock[K, V] {
	if capacity <= 0 {
		utils.RaiseInvariant("hcc", "negative_cache_capacity",
			"Invalid capacity has been given to clock cache.", "capacity", capacity)
		capacity = 1
	}
	if tickInterval <= 0 {
		utils.RaiseInvariant("hcc", "negative_tick_interval",
			"Invalid tick interval has been given to clock cache.", "tickInterval", tickInterval)
		tickInterval = time.Second
	}
	clockCache := &HyperClock[K, V]{
		capacity:      capacity,
		index:         make(map[K]*clockNode[K, V], capacity),
		expiryBuckets: make(map[time.Time]map[K]*clockNode[K, V]),
		tickInterval:  tickInterval,
		reaperHand:    getTimeBucket(time.Now(), tickInterval),
		onRemoved:     onRemoved,
	}
	go clockCache.reaper(ctx)
	return clockCache
}

// Get retrieves a value from the cache for a given key. Accessing an item with Get marks it as recently used by
// setting its reference bit to true.
func (c *HyperClock[K, V]) Get(key K) (V, bool /*found*/) {
	c.mux.RLock()
	defer c.mux.RUnlock()

	node, keyExists := c.index[key]
	if !keyExists || isExpired(node.Value.expiresAt, time.Now()) {
		return *new(V), false
	}
	node.Value.ref.Store(true)
	return node.Value.value, true
}

// Peek retrieves a live value without touching its reference bit.
func (c *HyperClock[K, V]) Peek(key K) (V, bool /*found*/) {
	c.mux.RLock()
	defer c.mux.RUnlock()

	node, keyExists := c.index[key]
	if !keyExists || isExpired(node.Value.expiresAt, time.Now()) {
		return *new(V), false
	}
	return node.Value.value, true
}

// Touch retrieves a live value, sets its reference bit and moves it to the expiry bucket of the new TTL.
func (c *HyperClock[K, V]) Touch(key K, ttl time.Duration) (V, bool /*found*/) {
	c.mux.Lock()
	defer c.mux.Unlock()

	now := time.Now()
	node, keyExists := c.index[key]
	if !keyExists || isExpired(node.Value.expiresAt, now) {
		return *new(V), false
	}
	c.removeFromExpiryBucket(node.Value)
	node.Value.expiresAt = expiryOf(now, ttl)
	c.addToExpiryBucket(node)
	node.Value.ref.Store(true)
	return node.Value.value, true
}

func (c *HyperClock[K, V]) addToExpiryBucket(node *clockNode[K, V]) {
	if node.Value.expiresAt.IsZero() {
		return
	}
	bucket := getTimeBucket(node.Value.expiresAt, c.tickInterval)
	if _, bucketExists := c.expiryBuckets[bucket]; !bucketExists {
		c.expiryBuckets[bucket] = make(map[K]*clockNode[K, V])
	}
	c.expiryBuckets[bucket][node.Value.key] = node
}

func (c *HyperClock[K, V]) removeFromExpiryBucket(entry *clockEntry[K, V]) {
	if entry.expiresAt.IsZero() {
		return
	}
	bucket := getTimeBucket(entry.expiresAt, c.tickInterval)
	delete(c.expiryBuckets[bucket], entry.key)
	if len(c.expiryBuckets[bucket]) == 0 {
		delete(c.expiryBuckets, bucket)
	}
}

// unlink drops the node from every index, keeping the clock hand on a live node.
func (c *HyperClock[K, V]) unlink(node *clockNode[K, V]) {
	delete(c.index, node.Value.key)
	c.removeFromExpiryBucket(node.Value)
	next := c.ring.Remove(node)
	if c.hand == node {
		c.hand = next
	}
}

// Add inserts or updates a key-value pair in the cache. If the key already exists, its value and expiration are
// updated. If the cache is full, it evicts an old entry using the CLOCK algorithm and returns true.
func (c *HyperClock[K, V]) Add(key K, value V, ttl time.Duration) /*evictionOccurred*/ bool {
	var evicted []removal[K, V]
	defer func() { notify(c.onRemoved, evicted) }()

	c.mux.Lock()
	defer c.mux.Unlock()
	now := time.Now()

	// Update existing entry.
	if node, keyExists := c.index[key]; keyExists {
		c.removeFromExpiryBucket(node.Value)
		node.Value.value = value
		node.Value.ref.Store(false)
		node.Value.expiresAt = expiryOf(now, ttl)
		c.addToExpiryBucket(node)
		return false
	}

	// Add new entry (if cache is not full).
	if c.ring.Len() < c.capacity {
		node := c.ring.Insert(&clockEntry[K, V]{key: key, value: value, expiresAt: expiryOf(now, ttl)})
		c.addToExpiryBucket(node)
		c.index[key] = node
		if c.hand == nil {
			c.hand = node
		}
		return false
	}

	// Eviction loop (if cache is full). Every full sweep clears all reference bits, so it ends within two laps.
	for {
		node := c.hand
		entry := node.Value
		if !entry.ref.Load() || isExpired(entry.expiresAt, now) {
			reason := ReasonEvicted
			if isExpired(entry.expiresAt, now) {
				reason = ReasonExpired
			}
			evicted = append(evicted, removal[K, V]{key: entry.key, value: entry.value, reason: reason})
			delete(c.index, entry.key)
			c.removeFromExpiryBucket(entry)
			// Reuse the node for the new entry.
			node.Value = &clockEntry[K, V]{key: key, value: value, expiresAt: expiryOf(now, ttl)}
			c.addToExpiryBucket(node)
			c.index[key] = node
			c.hand = node.next
			return true
		}
		entry.ref.Store(false)
		c.hand = node.next
	}
}

// Remove drops the key and returns its value, even if the entry already expired.
func (c *HyperClock[K, V]) Remove(key K) (V, bool /*found*/) {
	c.mux.Lock()
	defer c.mux.Unlock()

	node, keyExists := c.index[key]
	if !keyExists {
		return *new(V), false
	}
	c.unlink(node)
	return node.Value.value, true
}

func (c *HyperClock[K, V]) Keys() []K {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return slices.Collect(maps.Keys(c.index))
}

// Purge removes every entry and reports them with ReasonPurged.
func (c *HyperClock[K, V]) Purge() {
	c.mux.Lock()
	purged := make([]removal[K, V], 0, c.ring.Len())
	for _, entry := range c.ring.Values() {
		purged = append(purged, removal[K, V]{key: entry.key, value: entry.value, reason: ReasonPurged})
	}
	c.index = make(map[K]*clockNode[K, V], c.capacity)
	c.expiryBuckets = make(map[time.Time]map[K]*clockNode[K, V])
	c.ring = clockRing[*clockEntry[K, V]]{}
	c.hand = nil
	c.mux.Unlock()

	notify(c.onRemoved, purged)
}

// reap clears every bucket that ended before `now`. There can be more than one such bucket in case of high CPU usage.
// A bucket only rounds expirations down, so the current bucket is left alone until it ends.
func (c *HyperClock[K, V]) reap(now time.Time) {
	var expired []removal[K, V]
	c.mux.Lock()
	for !c.reaperHand.Add(c.tickInterval).After(now) {
		for _, node := range c.expiryBuckets[c.reaperHand] {
			expired = append(expired, removal[K, V]{key: node.Value.key, value: node.Value.value, reason: ReasonExpired})
			c.unlink(node)
		}
		c.reaperHand = c.reaperHand.Add(c.tickInterval)
	}
	c.mux.Unlock()

	notify(c.onRemoved, expired)
}

// reaper is a background goroutine that handles entry expiration.
func (c *HyperClock[K, V]) reaper(ctx context.Context) {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.reap(now)
		}
	}
}
