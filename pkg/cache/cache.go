// The memory cache keeps its entries in bounded cache layers. This module provides the interface every layer
// implements, so single shard and multi shard caches (and different eviction algorithms) have the same API.

package cache

import (
	"fmt"
	"time"
)

// EvictionReason tells the removal callback why an entry left a layer on its own.
type EvictionReason int

const (
	ReasonEvicted EvictionReason = iota // Evicted to make room for another entry.
	ReasonExpired                       // Its TTL elapsed.
	ReasonPurged                        // The whole layer was purged.
)

func (r EvictionReason) String() string {
	switch r {
	case ReasonEvicted:
		return "evicted"
	case ReasonExpired:
		return "expired"
	case ReasonPurged:
		return "purged"
	default:
		return fmt.Sprintf("eviction_reason(%d)", int(r))
	}
}

// RemovalCallback is invoked for every entry a layer drops on its own (not for Remove calls). It runs after the layer
// lock is released, on the goroutine that caused the removal (the reaper for expirations).
type RemovalCallback[K comparable, V any] func(key K, value V, reason EvictionReason)

// Layer defines the interface for a generic key-value cache. This allows different cache implementations
// (e.g., CLOCK, LRU) to be used as shards within the Sharded cache.
type Layer[K comparable, V any] interface {
	// Get returns value from cache for given key and a boolean indicating whether key was found. It counts as a use
	// of the key for the eviction algorithm.
	Get(key K) (V, bool)
	// Peek is like Get but doesn't count as a use.
	Peek(key K) (V, bool)
	// Touch is like Get but also restarts the TTL of a live entry. It never inserts, so a key that left the layer
	// (even concurrently) stays gone.
	Touch(key K, ttl time.Duration) (V, bool)
	// Add inserts a key-value pair into the cache with the given TTL; a non-positive TTL never expires. It returns
	// true if an item was evicted.
	Add(key K, value V, ttl time.Duration) bool
	// Remove drops the key, even if it expired already, and returns its value without invoking the removal callback.
	Remove(key K) (V, bool)
	Keys() []K // Returns a slice of all keys currently in the cache.
	Purge()    // Removes all items from the cache.
}

// removal is a pending removal callback invocation, collected under the layer lock.
type removal[K comparable, V any] struct {
	key    K
	value  V
	reason EvictionReason
}

// notify runs the callback for the collected removals. Callers must not hold the layer lock.
func notify[K comparable, V any](callback RemovalCallback[K, V], removals []removal[K, V]) {
	if callback == nil {
		return
	}
	for _, r := range removals {
		callback(r.key, r.value, r.reason)
	}
}

// expiryOf returns the expiry timestamp for the given TTL; the zero time means no expiry.
func expiryOf(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// isExpired treats the zero expiry as never expiring.
func isExpired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && now.After(expiresAt)
}
