package memcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memory_cache_lookups_total",
		Help: "The total number of memory cache lookups",
	}, []string{
		"status", // Either "hit" or "miss".
	})
	removals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memory_cache_removals_total",
		Help: "The total number of entries that left a memory cache",
	}, []string{
		"reason", // The objcache.RemovedReason of the removal.
	})
)

func countLookup(found bool) {
	if found {
		lookups.WithLabelValues("hit").Inc()
	} else {
		lookups.WithLabelValues("miss").Inc()
	}
}
