package memcache

import (
	"flag"
	"time"
)

var (
	cacheLayer = flag.String("cache_layer", "clock",
		"Eviction algorithm of the memory cache layers; one of 'clock' or 'lru'.")
	cacheCapacity = flag.Int("cache_capacity", 100_000,
		"Maximum number of evictable entries kept by a memory cache, split evenly across the shards.")
	cacheShardCount   = flag.Int("cache_shard_count", 16, "Number of shards of a memory cache.")
	cacheTickInterval = flag.Duration("cache_tick_interval", time.Second,
		"How often expired entries are swept from a memory cache.")
)
