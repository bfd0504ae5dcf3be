// LRU is the alternative eviction algorithm for the memory cache. golang-lru's simplelru keeps the recency order and
// this layer adds per-entry TTLs on top of it, with a reaper sweeping the expired entries every tick.

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/nobletooth/objcache/pkg/utils"
)

type lruEntry[V any] struct {
	value     V
	expiresAt time.Time // Zero means the entry never expires.
}

// LRU is a thread-safe, fixed-capacity, least recently used cache with per-entry TTLs.
type LRU[K comparable, V any] struct { // Implements Layer.
	mux      sync.Mutex
	lru      *simplelru.LRU[K, *lruEntry[V]]
	pending  []removal[K, V] // Removals collected by onEvict while the lock is held.
	purging  bool            // Set while Purge runs so onEvict reports ReasonPurged.
	dropping bool            // Set while entries are dropped explicitly; onEvict ignores them.
	// onRemoved runs after the lock is released, so it may call back into the cache.
	onRemoved RemovalCallback[K, V]
}

var _ Layer[string, int] = (*LRU[string, int])(nil)

// NewLRU is the constructor for LRU. It starts the background reaper goroutine, which runs until the given context
// is done.
func NewLRU[K comparable, V any](ctx context.Context, capacity int, tickInterval time.Duration,
	onRemoved RemovalCallback[K, V]) *LRU[K, V] {
	if capacity <= 0 {
		utils.RaiseInvariant("lru", "negative_cache_capacity",
			"Invalid capacity has been given to LRU cache.", "capacity", capacity)
		capacity = 1
	}
	if tickInterval <= 0 {
		utils.RaiseInvariant("lru", "negative_tick_interval",
			"Invalid tick interval has been given to LRU cache.", "tickInterval", tickInterval)
		tickInterval = time.Second
	}
	c := &LRU[K, V]{onRemoved: onRemoved}
	// simplelru only fails on non-positive sizes.
	c.lru, _ = simplelru.NewLRU[K, *lruEntry[V]](capacity, c.onEvict)
	go c.reaper(ctx, tickInterval)
	return c
}

// onEvict is called by simplelru for every entry it drops, with the lock held.
func (c *LRU[K, V]) onEvict(key K, entry *lruEntry[V]) {
	if c.dropping {
		return
	}
	reason := ReasonEvicted
	if c.purging {
		reason = ReasonPurged
	} else if isExpired(entry.expiresAt, time.Now()) {
		reason = ReasonExpired
	}
	c.pending = append(c.pending, removal[K, V]{key: key, value: entry.value, reason: reason})
}

// flush hands the collected removals to the caller; it must be called with the lock held.
func (c *LRU[K, V]) flush() []removal[K, V] {
	removals := c.pending
	c.pending = nil
	return removals
}

func (c *LRU[K, V]) Get(key K) (V, bool /*found*/) {
	c.mux.Lock()
	defer c.mux.Unlock()

	entry, found := c.lru.Get(key)
	if !found || isExpired(entry.expiresAt, time.Now()) {
		return *new(V), false
	}
	return entry.value, true
}

func (c *LRU[K, V]) Peek(key K) (V, bool /*found*/) {
	c.mux.Lock()
	defer c.mux.Unlock()

	entry, found := c.lru.Peek(key)
	if !found || isExpired(entry.expiresAt, time.Now()) {
		return *new(V), false
	}
	return entry.value, true
}

// Touch retrieves a live value, marks it as the most recently used and restarts its TTL.
func (c *LRU[K, V]) Touch(key K, ttl time.Duration) (V, bool /*found*/) {
	c.mux.Lock()
	defer c.mux.Unlock()

	now := time.Now()
	entry, found := c.lru.Get(key)
	if !found || isExpired(entry.expiresAt, now) {
		return *new(V), false
	}
	entry.expiresAt = expiryOf(now, ttl)
	return entry.value, true
}

func (c *LRU[K, V]) Add(key K, value V, ttl time.Duration) /*evictionOccurred*/ bool {
	c.mux.Lock()
	evicted := c.lru.Add(key, &lruEntry[V]{value: value, expiresAt: expiryOf(time.Now(), ttl)})
	removals := c.flush()
	c.mux.Unlock()

	notify(c.onRemoved, removals)
	return evicted
}

// Remove drops the key and returns its value, even if the entry already expired.
func (c *LRU[K, V]) Remove(key K) (V, bool /*found*/) {
	c.mux.Lock()
	defer c.mux.Unlock()

	entry, found := c.lru.Peek(key)
	if !found {
		return *new(V), false
	}
	c.dropping = true
	c.lru.Remove(key)
	c.dropping = false
	return entry.value, true
}

// Keys returns the keys from the oldest to the newest.
func (c *LRU[K, V]) Keys() []K {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.lru.Keys()
}

// Purge removes every entry and reports them with ReasonPurged.
func (c *LRU[K, V]) Purge() {
	c.mux.Lock()
	c.purging = true
	c.lru.Purge()
	c.purging = false
	removals := c.flush()
	c.mux.Unlock()

	notify(c.onRemoved, removals)
}

// reap drops every expired entry. Unlike HyperClock there are no buckets, so each tick scans the whole layer.
func (c *LRU[K, V]) reap(now time.Time) {
	var expired []removal[K, V]
	c.mux.Lock()
	c.dropping = true
	for _, key := range c.lru.Keys() {
		if entry, found := c.lru.Peek(key); found && isExpired(entry.expiresAt, now) {
			expired = append(expired, removal[K, V]{key: key, value: entry.value, reason: ReasonExpired})
			c.lru.Remove(key)
		}
	}
	c.dropping = false
	c.mux.Unlock()

	notify(c.onRemoved, expired)
}

func (c *LRU[K, V]) reaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
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
