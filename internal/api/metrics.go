package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	submitAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sync_engine",
		Subsystem: "dispatcher",
		Name:      "submit_attempts_total",
		Help:      "Submission attempts by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	retriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sync_engine",
		Subsystem: "dispatcher",
		Name:      "retries_total",
		Help:      "Backoff retries by endpoint.",
	}, []string{"endpoint"})

	conflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sync_engine",
		Subsystem: "dispatcher",
		Name:      "version_conflicts_total",
		Help:      "Actions rejected by the authority's version check.",
	})
)

func init() {
	prometheus.MustRegister(submitAttempts, retriesTotal, conflictsTotal)
}
