package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callbacksInvoked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "change_monitor_callbacks_total",
		Help: "Total number of change callbacks invoked by change monitors.",
	}, []string{"kind"})
	disposals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "change_monitor_disposals_total",
		Help: "Total number of change monitors that released their resources.",
	}, []string{"kind"})
	deferredDisposals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "change_monitor_deferred_disposals_total",
		Help: "Total number of changes observed before the monitor finished its initialization.",
	}, []string{"kind"})
)
