// Package metrics exposes the Prometheus counters and histograms recorded
// across C1-C6 and G, grounded on the teacher's internal/metrics package
// and generalized from per-language executions to the gateway's stages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execgateway_requests_total",
			Help: "Total number of /api/execute requests by outcome",
		},
		[]string{"outcome"}, // ok, validation_error, rate_limited, blacklisted_import, execution_error, internal_error
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execgateway_rate_limit_hits_total",
			Help: "Total number of requests rejected by the admission controller",
		},
		[]string{"tier"}, // global, per_client
	)

	SafetyFilterHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "execgateway_safety_filter_hits_total",
			Help: "Total number of requests rejected by the static safety filter",
		},
	)

	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execgateway_executions_total",
			Help: "Total number of code executions by status",
		},
		[]string{"status"}, // success, runtime_error, timeout, cancelled
	)

	ExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "execgateway_execution_duration_ms",
			Help:    "Execution duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)

	OutputTruncatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "execgateway_output_truncated_total",
			Help: "Total number of executions whose output was truncated",
		},
	)

	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "execgateway_cache_hits_total",
			Help: "Total number of result-cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "execgateway_cache_misses_total",
			Help: "Total number of result-cache misses",
		},
	)

	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "execgateway_cache_size",
			Help: "Current number of entries in the result cache",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "execgateway_queue_depth",
			Help: "Current number of jobs waiting in the worker queue",
		},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "execgateway_active_workers",
			Help: "Number of workers currently processing a job",
		},
	)

	// ContainerCreationTime is only observed by the opt-in Docker sandbox
	// backend; zero samples under the default "process" backend.
	ContainerCreationTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "execgateway_container_creation_ms",
			Help:    "Time to create a sandbox container (docker backend only)",
			Buckets: []float64{50, 100, 200, 500, 1000, 2000},
		},
	)
)
