package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	pendingDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sync_engine",
		Subsystem: "queue",
		Name:      "pending_operations",
		Help:      "Operations enqueued but not yet acknowledged, by entity kind.",
	}, []string{"entity"})

	staleResponses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sync_engine",
		Subsystem: "reconcile",
		Name:      "stale_responses_total",
		Help:      "Authoritative responses skipped because a newer version was already applied.",
	})

	operationsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sync_engine",
		Subsystem: "queue",
		Name:      "operations_enqueued_total",
		Help:      "Operations accepted into the pending queue, by kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(pendingDepth, staleResponses, operationsEnqueued)
}
