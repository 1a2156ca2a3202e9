// Package metrics declares the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_mutations_total",
		Help: "Successful store mutations.",
	}, []string{"store", "op"})

	PersistErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_persist_errors_total",
		Help: "Mutations abandoned because the backend write failed.",
	}, []string{"store"})

	LoadFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_load_fallbacks_total",
		Help: "Startup loads that fell back to an empty structure.",
	}, []string{"key", "reason"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rollcall_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)
