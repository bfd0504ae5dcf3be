// This module implements cache sharding which distributes keys uniformly across cache shards. Since each thread-safe
// cache implementation has a mutex to avoid races between reads and writes, sharding helps by distributing the locks.
// In cases where there are multiple goroutines trying to read or write to the sharded cache, each goroutine can only
// lock the shard that their key belongs to and doesn't prevent other goroutines from accessing their intended keys.

package cache

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/nobletooth/objcache/pkg/utils"
)

// StringHash is the shard hash for string keys.
func StringHash(key string) uint64 {
	return xxhash.Sum64String(key)
}

// Sharded distributes keys across multiple underlying layers (shards). Capacity is per shard, so a full shard
// evicts even when the others have room.
type Sharded[K comparable, V any] struct { // Implements Layer.
	shards []Layer[K, V]
	hash   func(key K) uint64 // Helps choose the shards index.
}

var _ Layer[string, int] = (*Sharded[string, int])(nil)

// NewSharded is the constructor for Sharded. `newShard` creates the shard with the given index. A nil `hash` falls
// back to hashing the Go-syntax representation of the key, which works for any key but is slow.
func NewSharded[K comparable, V any](newShard func(shard int) Layer[K, V], shardCount int,
	hash func(key K) uint64) *Sharded[K, V] {
	if shardCount <= 0 {
		utils.RaiseInvariant("shard", "negative_shard_count",
			"Invalid shard count has been given to sharded cache.", "shardCount", shardCount)
		shardCount = 1
	}
	if hash == nil {
		hash = func(key K) uint64 { return xxhash.Sum64String(fmt.Sprintf("%#v", key)) }
	}
	sharded := &Sharded[K, V]{shards: make([]Layer[K, V], shardCount), hash: hash}
	for i := range shardCount {
		sharded.shards[i] = newShard(i)
	}
	return sharded
}

// getShard maps the key hash to a shard.
func (c *Sharded[K, V]) getShard(key K) Layer[K, V] {
	return c.shards[c.hash(key)%uint64(len(c.shards))]
}

func (c *Sharded[K, V]) Get(key K) (V, bool /*found*/) {
	return c.getShard(key).Get(key)
}

func (c *Sharded[K, V]) Peek(key K) (V, bool /*found*/) {
	return c.getShard(key).Peek(key)
}

func (c *Sharded[K, V]) Touch(key K, ttl time.Duration) (V, bool /*found*/) {
	return c.getShard(key).Touch(key, ttl)
}

func (c *Sharded[K, V]) Add(key K, value V, ttl time.Duration) /*evictionOccurred*/ bool {
	return c.getShard(key).Add(key, value, ttl)
}

func (c *Sharded[K, V]) Remove(key K) (V, bool /*found*/) {
	return c.getShard(key).Remove(key)
}

// Keys aggregates the keys from all shards into a single slice. This can be a resource-intensive operation, as it
// requires iterating over every shard and collecting its keys.
func (c *Sharded[K, V]) Keys() []K {
	keys := make([]K, 0)
	for _, shard := range c.shards {
		keys = append(keys, shard.Keys()...)
	}
	return keys
}

func (c *Sharded[K, V]) Purge() {
	for _, shard := range c.shards {
		shard.Purge()
	}
}
