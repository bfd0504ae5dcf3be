// Objcache describes caches by a provider-neutral contract: entries are items addressed by a key (and an optional
// region), their lifetime is described by a policy, and removal is reported through callbacks.

package objcache

// Item is a single cache entry.
type Item struct {
	Key    string // Required, non-empty.
	Region string // Optional; empty means the default region.
	Value  any
}

// NewItem is the constructor for Item.
func NewItem(key string, value any, region string) *Item {
	return &Item{Key: key, Value: value, Region: region}
}
