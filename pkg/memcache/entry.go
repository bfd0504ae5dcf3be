package memcache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nobletooth/objcache/pkg/objcache"
)

// entry is a stored item with its policy. The same entry is never stored twice; replacing a key stores a new entry.
type entry struct {
	item       *objcache.Item
	policy     *objcache.Policy
	created    time.Time
	absolute   time.Time     // Zero means no absolute expiration.
	sliding    time.Duration // Zero means no sliding expiration.
	lastAccess atomic.Int64  // Unix nanoseconds of the last read; only used with sliding expiration.
	pinned     bool          // Lives outside the evictable layers.

	removed    atomic.Bool // Set once by the goroutine delivering the removal.
	mux        sync.Mutex  // Guards dependents.
	dependents map[*entryMonitor]struct{}
}

func newEntry(item *objcache.Item, policy *objcache.Policy, now time.Time) *entry {
	e := &entry{
		item:    item,
		policy:  policy,
		created: now,
		sliding: policy.SlidingExpiration,
		pinned:  policy.Priority == objcache.PriorityNotRemovable,
	}
	if policy.HasAbsoluteExpiration() {
		e.absolute = policy.AbsoluteExpiration
	}
	e.lastAccess.Store(now.UnixNano())
	return e
}

// expiresAt returns the zero time for entries that never expire.
func (e *entry) expiresAt() time.Time {
	if e.sliding > 0 {
		return time.Unix(0, e.lastAccess.Load()).Add(e.sliding)
	}
	return e.absolute
}

func (e *entry) expired(now time.Time) bool {
	expiresAt := e.expiresAt()
	return !expiresAt.IsZero() && now.After(expiresAt)
}

// ttl is the layer TTL of the entry; zero means it never expires.
func (e *entry) ttl(now time.Time) time.Duration {
	expiresAt := e.expiresAt()
	if expiresAt.IsZero() {
		return 0
	}
	return max(expiresAt.Sub(now), time.Nanosecond)
}

// touch refreshes the sliding expiration.
func (e *entry) touch(now time.Time) {
	if e.sliding > 0 {
		e.lastAccess.Store(now.UnixNano())
	}
}

// addDependent attaches a cache entry monitor; it fails once the entry has been removed.
func (e *entry) addDependent(m *entryMonitor) bool {
	e.mux.Lock()
	defer e.mux.Unlock()
	if e.removed.Load() {
		return false
	}
	if e.dependents == nil {
		e.dependents = make(map[*entryMonitor]struct{})
	}
	e.dependents[m] = struct{}{}
	return true
}

func (e *entry) removeDependent(m *entryMonitor) {
	e.mux.Lock()
	defer e.mux.Unlock()
	delete(e.dependents, m)
}

// markRemoved claims the removal delivery and detaches the dependents. Only the first call returns true.
func (e *entry) markRemoved() (map[*entryMonitor]struct{}, bool) {
	if !e.removed.CompareAndSwap(false, true) {
		return nil, false
	}
	e.mux.Lock()
	defer e.mux.Unlock()
	dependents := e.dependents
	e.dependents = nil
	return dependents, true
}
