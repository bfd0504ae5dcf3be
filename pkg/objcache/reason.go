package objcache

import "fmt"

// RemovedReason tells removal callbacks why an entry left the cache.
type RemovedReason int

const (
	Removed               RemovedReason = iota // Explicitly removed or replaced.
	Expired                                    // Absolute or sliding expiration elapsed.
	Evicted                                    // Evicted to free room.
	ChangeMonitorChanged                       // A change monitor attached to the entry changed.
	CacheSpecificEviction                      // Removed for a reason specific to the cache implementation.
)

func (r RemovedReason) String() string {
	switch r {
	case Removed:
		return "removed"
	case Expired:
		return "expired"
	case Evicted:
		return "evicted"
	case ChangeMonitorChanged:
		return "change_monitor_changed"
	case CacheSpecificEviction:
		return "cache_specific_eviction"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}
