// MemoryCache is the in-process ObjectCache. Evictable entries live in sharded CLOCK or LRU layers bounded by
// --cache_capacity; entries with PriorityNotRemovable live in a separate pinned partition that only expiration and
// explicit removal can shrink. Removals, whatever their cause, are delivered in order on a dispatcher goroutine:
// first the cache entry monitors depending on the entry are signaled, then the entry's own change monitors are
// disposed, and finally its update or removed callback runs.

package memcache

import (
	"cmp"
	"context"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/nobletooth/objcache/pkg/cache"
	"github.com/nobletooth/objcache/pkg/monitor"
	"github.com/nobletooth/objcache/pkg/objcache"
	"github.com/nobletooth/objcache/pkg/scan"
	"github.com/nobletooth/objcache/pkg/utils"
)

// ErrClosed is returned by writes to a closed cache.
var ErrClosed = errors.New(errors.CodeConflict, "memory cache is closed")

// capabilities of every MemoryCache; regions are not supported.
const capabilities = objcache.InMemoryProvider | objcache.CacheEntryChangeMonitors | objcache.AbsoluteExpirations |
	objcache.SlidingExpirations | objcache.CacheEntryUpdateCallback | objcache.CacheEntryRemovedCallback

// MemoryCache implements objcache.ObjectCache in memory.
type MemoryCache struct {
	name string
	// mux serializes the operations that read and then write the partitions. Layer removal callbacks and the
	// dispatcher never take it while holding a layer lock.
	mux        sync.Mutex
	layer      cache.Layer[string, *entry]
	pinned     map[string]*entry
	dispatcher *dispatcher
	closed     atomic.Bool
	cancel     context.CancelFunc // Stops the layer reapers and the pinned sweeper.
	sweeperWg  sync.WaitGroup
}

var _ objcache.ObjectCache = (*MemoryCache)(nil)

// NewMemoryCache is the constructor for MemoryCache; it's configured with the --cache_* flags. The returned cache
// must be closed to stop its goroutines.
func NewMemoryCache(name string) (*MemoryCache, error) {
	if name == "" {
		return nil, errors.Wrap(objcache.ErrInvalidArgument, errors.CodeInvalidInput, "expected a non-empty cache name")
	}
	if *cacheCapacity <= 0 || *cacheShardCount <= 0 || *cacheTickInterval <= 0 {
		return nil, errors.WithContextMap(
			errors.New(errors.CodeInvalidConfig, "cache capacity, shard count and tick interval must be positive"),
			map[string]any{
				"cache_capacity": *cacheCapacity, "cache_shard_count": *cacheShardCount,
				"cache_tick_interval": cacheTickInterval.String(),
			})
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &MemoryCache{
		name:       name,
		pinned:     make(map[string]*entry),
		dispatcher: newDispatcher(),
		cancel:     cancel,
	}

	perShard := max(1, *cacheCapacity / *cacheShardCount)
	var newShard func(int) cache.Layer[string, *entry]
	switch *cacheLayer {
	case "clock":
		newShard = func(int) cache.Layer[string, *entry] {
			return cache.NewHyperClock[string, *entry](ctx, perShard, *cacheTickInterval, c.onLayerRemoval)
		}
	case "lru":
		newShard = func(int) cache.Layer[string, *entry] {
			return cache.NewLRU[string, *entry](ctx, perShard, *cacheTickInterval, c.onLayerRemoval)
		}
	default:
		cancel()
		c.dispatcher.close()
		return nil, errors.WithContext(
			errors.New(errors.CodeInvalidConfig, "unknown cache layer"), "cache_layer", *cacheLayer)
	}
	c.layer = cache.NewSharded(newShard, *cacheShardCount, cache.StringHash)

	c.sweeperWg.Add(1)
	go c.sweepPinned(ctx, *cacheTickInterval)
	slog.Debug("Memory cache created.", "name", name, "layer", *cacheLayer, "capacity", *cacheCapacity,
		"shards", *cacheShardCount)
	return c, nil
}

func (c *MemoryCache) Name() string {
	return c.name
}

func (c *MemoryCache) DefaultCapabilities() objcache.Capabilities {
	return capabilities
}

// checkRegion rejects regions, since the cache doesn't have the CacheRegions capability.
func checkRegion(region string) error {
	if region != "" {
		return errors.WithContext(
			errors.Wrap(objcache.ErrRegionsNotSupported, errors.CodeNotImplemented, "memory caches have no regions"),
			"region", region)
	}
	return nil
}

func checkKey(key, region string) error {
	if key == "" {
		return errors.Wrap(objcache.ErrInvalidArgument, errors.CodeInvalidInput, "expected a non-empty key")
	}
	return checkRegion(region)
}

// checkWrite validates the arguments of AddOrGetExisting and Set. A nil policy means objcache.NewPolicy().
func (c *MemoryCache) checkWrite(item *objcache.Item, policy *objcache.Policy) (*objcache.Policy, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if item == nil {
		return nil, errors.Wrap(objcache.ErrInvalidArgument, errors.CodeInvalidInput, "expected a non-nil item")
	}
	if err := checkKey(item.Key, item.Region); err != nil {
		return nil, err
	}
	if item.Value == nil {
		return nil, errors.WithContext(
			errors.Wrap(objcache.ErrInvalidArgument, errors.CodeInvalidInput, "expected a non-nil value"),
			"key", item.Key)
	}
	if policy == nil {
		policy = objcache.NewPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, errors.WithContext(err, "key", item.Key)
	}
	return policy, nil
}

// peek returns the live entry of the key without refreshing it. The caller must hold the lock.
func (c *MemoryCache) peek(key string, now time.Time) (*entry, bool) {
	if e, found := c.pinned[key]; found {
		return e, !e.expired(now)
	}
	return c.layer.Peek(key)
}

// lookup returns the live entry of the key and counts it as used. The caller must hold the lock.
func (c *MemoryCache) lookup(key string, now time.Time) (*entry, bool) {
	e, found := c.pinned[key]
	if found {
		found = !e.expired(now)
	} else {
		e, found = c.layer.Get(key)
		if found && e.sliding > 0 {
			// The reaper doesn't take c.mux; Touch misses an entry it dropped since Get instead of reviving it.
			touched, live := c.layer.Touch(key, e.sliding)
			found = live && touched == e
		}
	}
	if !found {
		countLookup(false)
		return nil, false
	}
	if e.sliding > 0 {
		e.touch(now)
	}
	countLookup(true)
	return e, true
}

// detach removes the key from its partition, even if it already expired. The caller must hold the lock.
func (c *MemoryCache) detach(key string) (*entry, bool) {
	if e, found := c.pinned[key]; found {
		delete(c.pinned, key)
		return e, true
	}
	return c.layer.Remove(key)
}

// store puts the entry in its partition and returns false if it already expired. The caller must hold the lock.
func (c *MemoryCache) store(e *entry, now time.Time) bool {
	if e.expired(now) {
		return false
	}
	if e.pinned {
		c.pinned[e.item.Key] = e
	} else {
		c.layer.Add(e.item.Key, e, e.ttl(now))
	}
	return true
}

// watch registers the cache with the change monitors of a stored entry. The caller must not hold the lock, since
// monitors that already changed invoke the callback right away.
func (c *MemoryCache) watch(e *entry) error {
	for _, m := range e.policy.ChangeMonitors {
		err := m.NotifyOnChanged(func(any) { c.removeIfCurrent(e, objcache.ChangeMonitorChanged) })
		if err != nil {
			c.removeIfCurrent(e, objcache.Removed)
			return errors.WithContext(
				errors.Wrap(err, errors.GetCode(err), "failed to watch the change monitors of the entry"),
				"key", e.item.Key)
		}
	}
	return nil
}

// removeIfCurrent removes the entry if it's still the live entry of its key.
func (c *MemoryCache) removeIfCurrent(e *entry, reason objcache.RemovedReason) {
	c.mux.Lock()
	current, found := c.peek(e.item.Key, time.Now())
	if found && current == e {
		c.detach(e.item.Key)
	}
	c.mux.Unlock()
	if found && current == e {
		c.enqueueRemoval(e, reason)
	}
}

func (c *MemoryCache) Contains(key, region string) (bool, error) {
	if err := checkKey(key, region); err != nil {
		return false, err
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	_, found := c.peek(key, time.Now())
	return found, nil
}

// AddOrGetExisting returns a copy of the existing item when the key is taken.
func (c *MemoryCache) AddOrGetExisting(item *objcache.Item, policy *objcache.Policy) (*objcache.Item, error) {
	policy, err := c.checkWrite(item, policy)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	e := newEntry(objcache.NewItem(item.Key, item.Value, ""), policy, now)

	c.mux.Lock()
	if existing, found := c.lookup(item.Key, now); found {
		c.mux.Unlock()
		return objcache.NewItem(existing.item.Key, existing.item.Value, ""), nil
	}
	// An expired entry may still be waiting for the reaper; it leaves now.
	stale, hasStale := c.detach(item.Key)
	stored := c.store(e, now)
	c.mux.Unlock()

	if hasStale {
		c.enqueueRemoval(stale, objcache.Expired)
	}
	return nil, c.afterStore(e, stored)
}

// Set stores the item, replacing the current entry of its key.
func (c *MemoryCache) Set(item *objcache.Item, policy *objcache.Policy) error {
	policy, err := c.checkWrite(item, policy)
	if err != nil {
		return err
	}
	now := time.Now()
	e := newEntry(objcache.NewItem(item.Key, item.Value, ""), policy, now)

	c.mux.Lock()
	old, hasOld := c.detach(item.Key)
	stored := c.store(e, now)
	c.mux.Unlock()

	if hasOld {
		reason := objcache.Removed
		if old.expired(now) {
			reason = objcache.Expired
		}
		c.enqueueRemoval(old, reason)
	}
	return c.afterStore(e, stored)
}

// afterStore watches a stored entry, or reports an entry that expired before it could be stored.
func (c *MemoryCache) afterStore(e *entry, stored bool) error {
	if !stored {
		c.enqueueRemoval(e, objcache.Expired)
		return nil
	}
	return c.watch(e)
}

// Get returns objcache.ErrNotFound when the key is absent or expired.
func (c *MemoryCache) Get(key, region string) (any, error) {
	if err := checkKey(key, region); err != nil {
		return nil, err
	}
	c.mux.Lock()
	e, found := c.lookup(key, time.Now())
	c.mux.Unlock()
	if !found {
		return nil, objcache.ErrNotFound
	}
	return e.item.Value, nil
}

func (c *MemoryCache) GetCacheItem(key, region string) (*objcache.Item, error) {
	value, err := c.Get(key, region)
	if err != nil {
		return nil, err
	}
	return objcache.NewItem(key, value, ""), nil
}

// GetValues returns the values of the keys that are present; missing keys are left out.
func (c *MemoryCache) GetValues(keys []string, region string) (map[string]any, error) {
	if err := checkRegion(region); err != nil {
		return nil, err
	}
	for _, key := range keys {
		if err := checkKey(key, region); err != nil {
			return nil, err
		}
	}
	values := make(map[string]any, len(keys))
	c.mux.Lock()
	defer c.mux.Unlock()
	now := time.Now()
	for _, key := range keys {
		if e, found := c.lookup(key, now); found {
			values[key] = e.item.Value
		}
	}
	return values, nil
}

// Remove returns objcache.ErrNotFound when the key is absent or expired. An expired entry is still removed, and
// reported as expired.
func (c *MemoryCache) Remove(key, region string) (any, error) {
	if err := checkKey(key, region); err != nil {
		return nil, err
	}
	now := time.Now()
	c.mux.Lock()
	e, found := c.detach(key)
	c.mux.Unlock()
	if !found {
		return nil, objcache.ErrNotFound
	}
	if e.expired(now) {
		c.enqueueRemoval(e, objcache.Expired)
		return nil, objcache.ErrNotFound
	}
	c.enqueueRemoval(e, objcache.Removed)
	return e.item.Value, nil
}

// Count returns the number of live entries.
func (c *MemoryCache) Count(region string) (int, error) {
	if err := checkRegion(region); err != nil {
		return 0, err
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	now := time.Now()
	count := 0
	for _, e := range c.pinned {
		if !e.expired(now) {
			count++
		}
	}
	for _, key := range c.layer.Keys() {
		if _, found := c.layer.Peek(key); found {
			count++
		}
	}
	return count, nil
}

// All yields the live entries in key order. It works on a snapshot taken when the iteration starts, so the cache
// may be modified while iterating.
func (c *MemoryCache) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		c.mux.Lock()
		now := time.Now()
		var pinned, evictable []utils.Pair[string, any]
		for key, e := range c.pinned {
			if !e.expired(now) {
				pinned = append(pinned, utils.Pair[string, any]{Key: key, Value: e.item.Value})
			}
		}
		for _, key := range c.layer.Keys() {
			if e, found := c.layer.Peek(key); found {
				evictable = append(evictable, utils.Pair[string, any]{Key: key, Value: e.item.Value})
			}
		}
		c.mux.Unlock()

		byKey := func(a, b utils.Pair[string, any]) int { return cmp.Compare(a.Key, b.Key) }
		slices.SortFunc(pinned, byKey)
		slices.SortFunc(evictable, byKey)
		merged, err := scan.MultiHead(cmp.Compare[string],
			[]iter.Seq[utils.Pair[string, any]]{slices.Values(pinned), slices.Values(evictable)})
		if err != nil {
			utils.RaiseInvariant("memcache", "multi_head_failed", "Failed to merge cache partitions.", "error", err)
			return
		}
		for pair := range merged {
			if !yield(pair.Key, pair.Value) {
				return
			}
		}
	}
}

// CreateCacheEntryChangeMonitor returns a monitor over the current entries of the keys.
func (c *MemoryCache) CreateCacheEntryChangeMonitor(
	keys []string, region string) (monitor.CacheEntryChangeMonitor, error) {
	if err := checkRegion(region); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, errors.Wrap(objcache.ErrInvalidArgument, errors.CodeInvalidInput, "expected at least one key")
	}
	for _, key := range keys {
		if err := checkKey(key, region); err != nil {
			return nil, err
		}
	}
	return c.newEntryMonitor(keys), nil
}

// Close removes every entry with objcache.CacheSpecificEviction, delivers the pending removals and stops the
// background goroutines. It must not be called from a removal callback.
func (c *MemoryCache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	c.sweeperWg.Wait()

	c.mux.Lock()
	pinned := c.pinned
	c.pinned = make(map[string]*entry)
	c.mux.Unlock()
	c.layer.Purge()
	for _, key := range slices.Sorted(maps.Keys(pinned)) {
		c.enqueueRemoval(pinned[key], objcache.CacheSpecificEviction)
	}

	c.dispatcher.close()
	slog.Debug("Memory cache closed.", "name", c.name)
	return nil
}

// onLayerRemoval receives the evictions, expirations and purges of the layers.
func (c *MemoryCache) onLayerRemoval(_ string, e *entry, reason cache.EvictionReason) {
	switch reason {
	case cache.ReasonEvicted:
		c.enqueueRemoval(e, objcache.Evicted)
	case cache.ReasonExpired:
		c.enqueueRemoval(e, objcache.Expired)
	case cache.ReasonPurged:
		c.enqueueRemoval(e, objcache.CacheSpecificEviction)
	default:
		utils.RaiseInvariant("memcache", "unknown_eviction_reason",
			"Cache layer reported an unknown eviction reason.", "reason", reason)
	}
}

// sweepPinned expires the pinned entries every tick.
func (c *MemoryCache) sweepPinned(ctx context.Context, interval time.Duration) {
	defer c.sweeperWg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			var expired []*entry
			c.mux.Lock()
			for key, e := range c.pinned {
				if e.expired(now) {
					delete(c.pinned, key)
					expired = append(expired, e)
				}
			}
			c.mux.Unlock()
			for _, e := range expired {
				c.enqueueRemoval(e, objcache.Expired)
			}
		}
	}
}

func (c *MemoryCache) enqueueRemoval(e *entry, reason objcache.RemovedReason) {
	if !c.dispatcher.enqueue(func() { c.deliverRemoval(e, reason) }) {
		slog.Debug("Dropped a removal of a closed memory cache.", "key", e.item.Key, "reason", reason.String())
	}
}

// deliverRemoval runs on the dispatcher goroutine, at most once per entry.
func (c *MemoryCache) deliverRemoval(e *entry, reason objcache.RemovedReason) {
	dependents, first := e.markRemoved()
	if !first {
		return
	}
	removals.WithLabelValues(reason.String()).Inc()

	for m := range dependents {
		m.SignalChanged(e.item.Key)
	}
	for _, m := range e.policy.ChangeMonitors {
		if err := m.Dispose(); err != nil {
			slog.Warn("Failed to dispose the change monitor of a removed entry.", "key", e.item.Key, "error", err)
		}
	}

	switch {
	case e.policy.UpdateCallback != nil:
		if reason == objcache.Expired || reason == objcache.ChangeMonitorChanged {
			c.deliverUpdate(e, reason)
		}
	case e.policy.RemovedCallback != nil:
		args, err := objcache.NewRemovedArguments(c, reason, e.item)
		if err != nil {
			utils.RaiseInvariant("memcache", "invalid_removed_arguments",
				"Failed to build removed callback arguments.", "error", err)
			return
		}
		e.policy.RemovedCallback(args)
	}
}

// deliverUpdate lets the update callback provide a replacement. The replacement is only stored if nothing else took
// the key in the meantime.
func (c *MemoryCache) deliverUpdate(e *entry, reason objcache.RemovedReason) {
	args, err := objcache.NewUpdateArguments(c, reason, e.item.Key, "")
	if err != nil {
		utils.RaiseInvariant("memcache", "invalid_update_arguments",
			"Failed to build update callback arguments.", "error", err)
		return
	}
	e.policy.UpdateCallback(args)
	if args.UpdatedItem == nil || c.closed.Load() {
		return
	}
	if args.UpdatedItem.Key != e.item.Key {
		slog.Warn("Update callback returned an item with a different key; ignoring it.",
			"key", e.item.Key, "updated_key", args.UpdatedItem.Key)
		return
	}
	if _, err := c.AddOrGetExisting(args.UpdatedItem, args.UpdatedPolicy); err != nil {
		slog.Warn("Failed to store the updated cache item.", "key", e.item.Key, "error", err)
	}
}
