package objcache

import (
	"iter"

	"github.com/nobletooth/objcache/pkg/monitor"
)

// ObjectCache is the contract every cache provider implements. Region arguments may be empty; providers without
// the CacheRegions capability reject non-empty regions with ErrRegionsNotSupported.
type ObjectCache interface {
	Name() string
	DefaultCapabilities() Capabilities
	// CreateCacheEntryChangeMonitor returns a monitor that changes as soon as any of the given entries changes or
	// leaves the cache. Entries missing at creation time count as already changed.
	CreateCacheEntryChangeMonitor(keys []string, region string) (monitor.CacheEntryChangeMonitor, error)
	Contains(key, region string) (bool, error)
	// AddOrGetExisting stores the item unless its key is already present, in which case the existing entry is
	// returned and nothing is stored. It returns a nil item when the given one was stored.
	AddOrGetExisting(item *Item, policy *Policy) (*Item, error)
	// Get returns ErrNotFound when the key is absent.
	Get(key, region string) (any, error)
	GetCacheItem(key, region string) (*Item, error)
	// Set stores the item, replacing an existing entry with the same key.
	Set(item *Item, policy *Policy) error
	// GetValues returns the values of the keys that are present.
	GetValues(keys []string, region string) (map[string]any, error)
	// Remove returns the removed value, or ErrNotFound when the key is absent.
	Remove(key, region string) (any, error)
	Count(region string) (int, error)
	All() iter.Seq2[string, any]
}

// Add stores the item only if its key is absent, and returns true if it did.
func Add(c ObjectCache, item *Item, policy *Policy) (bool, error) {
	existing, err := c.AddOrGetExisting(item, policy)
	if err != nil {
		return false, err
	}
	return existing == nil, nil
}
