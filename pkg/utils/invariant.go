// Invariants are conditions that must hold unless the code itself is broken, e.g. a change monitor disposed before
// its constructor finished or a cache layer built with a non-positive capacity. Raising one logs an error and bumps
// a counter for alerting; it never crashes a production process. Binaries built with TestMode=true panic instead so
// the bug fails the build.
//
// The caller still handles the broken case itself, usually by returning early. Failures caused by the outside world
// (a missing file, a bad config value) are errors, not invariants.

package utils

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	promclient "github.com/prometheus/client_model/go"
)

var invariantsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "invariants_total",
	Help: "The total number of invariant violations",
}, []string{
	"module", // Package or component that detected the violation.
	"type",   // Short snake_case name of the violated condition.
})

// RaiseInvariant records a violation of `invariantType` inside `module`. `args` are slog key-value pairs.
func RaiseInvariant(module, invariantType, msg string, args ...any) {
	invariantsMetric.WithLabelValues(module, invariantType).Inc()
	slog.Error(msg, append([]any{"module", module, "invariant", invariantType}, args...)...)
	if IsTestMode {
		panic("invariant violated: " + module + "/" + invariantType)
	}
}

// GetMetricValue returns how many times the given invariant has been raised in this process.
func GetMetricValue(module, invariantType string) int {
	metric := new(promclient.Metric)
	if err := invariantsMetric.WithLabelValues(module, invariantType).Write(metric); err != nil {
		slog.Error("Failed to read invariant counter.", "module", module, "invariant", invariantType, "error", err)
		return 0
	}
	return int(metric.GetCounter().GetValue())
}
