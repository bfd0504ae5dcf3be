package objcache

import "strings"

// Capabilities declares what a cache implementation supports.
type Capabilities uint32

const (
	NoCapabilities   Capabilities = 0
	InMemoryProvider Capabilities = 1 << (iota - 1)
	OutOfProcessProvider
	CacheEntryChangeMonitors
	AbsoluteExpirations
	SlidingExpirations
	CacheEntryUpdateCallback
	CacheEntryRemovedCallback
	CacheRegions
)

var capabilityNames = []struct {
	capability Capabilities
	name       string
}{
	{InMemoryProvider, "in_memory_provider"},
	{OutOfProcessProvider, "out_of_process_provider"},
	{CacheEntryChangeMonitors, "cache_entry_change_monitors"},
	{AbsoluteExpirations, "absolute_expirations"},
	{SlidingExpirations, "sliding_expirations"},
	{CacheEntryUpdateCallback, "cache_entry_update_callback"},
	{CacheEntryRemovedCallback, "cache_entry_removed_callback"},
	{CacheRegions, "cache_regions"},
}

// Has returns true if all the given capabilities are present.
func (c Capabilities) Has(capabilities Capabilities) bool {
	return c&capabilities == capabilities
}

func (c Capabilities) String() string {
	if c == NoCapabilities {
		return "none"
	}
	names := make([]string, 0, len(capabilityNames))
	for _, entry := range capabilityNames {
		if c.Has(entry.capability) {
			names = append(names, entry.name)
		}
	}
	return strings.Join(names, "|")
}
