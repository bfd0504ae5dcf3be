package memcache

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nobletooth/objcache/pkg/monitor"
)

// entryMonitor changes when any of the monitored entries leaves the cache or gets replaced.
type entryMonitor struct {
	*monitor.Base
	keys         []string
	uniqueID     string
	lastModified time.Time
	entries      []*entry // Entries this monitor is attached to as a dependent.
}

var _ monitor.CacheEntryChangeMonitor = (*entryMonitor)(nil)

// newEntryMonitor attaches to the current entries of the keys. A key with no entry, or whose entry is being removed,
// signals the change right away, which completes as soon as the monitor is initialized.
func (c *MemoryCache) newEntryMonitor(keys []string) *entryMonitor {
	m := &entryMonitor{keys: slices.Clone(keys)}
	m.Base = monitor.NewBase("cache_entry", m.release)

	var id strings.Builder
	c.mux.Lock()
	now := time.Now()
	for _, key := range m.keys {
		id.WriteString(key)
		e, found := c.peek(key, now)
		if !found {
			id.WriteString("0")
			m.SignalChanged(nil)
			continue
		}
		id.WriteString(strconv.FormatInt(e.created.UnixNano(), 16))
		if e.created.After(m.lastModified) {
			m.lastModified = e.created
		}
		if !e.addDependent(m) {
			m.SignalChanged(nil)
			continue
		}
		m.entries = append(m.entries, e)
	}
	c.mux.Unlock()
	m.uniqueID = id.String()

	m.CompleteInitialization()
	return m
}

// UniqueID is made of the keys and the creation time of their entries.
func (m *entryMonitor) UniqueID() string {
	return m.uniqueID
}

func (m *entryMonitor) CacheKeys() []string {
	return slices.Clone(m.keys)
}

// LastModified is the latest creation time among the monitored entries.
func (m *entryMonitor) LastModified() time.Time {
	return m.lastModified
}

// RegionName is always empty since memory caches have no regions.
func (m *entryMonitor) RegionName() string {
	return ""
}

// release detaches the monitor from the entries still holding it.
func (m *entryMonitor) release() {
	for _, e := range m.entries {
		e.removeDependent(m)
	}
}
