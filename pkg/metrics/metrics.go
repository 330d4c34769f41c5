// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncPassesTotal tracks finished sync passes by provider and outcome
	SyncPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "passes_total",
			Help:      "Total number of sync passes by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// SyncPassDuration tracks sync pass duration in seconds
	SyncPassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "pass_duration_seconds",
			Help:      "Duration of sync passes in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900, 3600},
		},
		[]string{"provider"},
	)

	// SyncPagesFetched tracks provider list pages read
	SyncPagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "pages_fetched_total",
			Help:      "Total number of provider list pages fetched",
		},
		[]string{"provider"},
	)

	// SyncRecordsTotal tracks per-record results (upserted, failed, reconciled)
	SyncRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Total number of records processed by result",
		},
		[]string{"provider", "result"},
	)

	// TokenRefreshesTotal tracks refresh-token exchanges
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "auth",
			Name:      "token_refreshes_total",
			Help:      "Total number of refresh-token exchanges by reason and outcome",
		},
		[]string{"provider", "reason", "outcome"},
	)

	// AuthRetriesTotal tracks passes restarted after a 401
	AuthRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "auth",
			Name:      "retries_total",
			Help:      "Total number of sync passes restarted after an authentication failure",
		},
		[]string{"provider"},
	)

	// ProviderRequestsTotal tracks outbound provider HTTP requests
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound provider requests",
		},
		[]string{"provider", "status_code"},
	)

	// ProviderThrottleWaitSeconds tracks time spent waiting on provider rate limits
	ProviderThrottleWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "http_client",
			Name:      "throttle_wait_seconds",
			Help:      "Time outbound provider requests waited for the provider rate limit",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
		},
		[]string{"provider"},
	)

	// ProviderRequestDuration tracks outbound provider request duration
	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound provider requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// QueueJobsProcessed tracks sync jobs processed from the stream
	QueueJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Total number of sync jobs processed from the queue",
		},
		[]string{"status"},
	)

	// QueueJobsInFlight tracks jobs currently being processed
	QueueJobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "queue",
			Name:      "jobs_in_flight",
			Help:      "Number of sync jobs currently being processed",
		},
	)

	// QueueStreamLength tracks the number of entries kept in the job stream
	QueueStreamLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "queue",
			Name:      "stream_length",
			Help:      "Number of entries in the sync job stream",
		},
	)

	// SchedulerEnqueuedTotal tracks integrations enqueued by the scheduler
	SchedulerEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "scheduler",
			Name:      "enqueued_total",
			Help:      "Total number of sync jobs enqueued by the scheduler",
		},
	)

	// LockContentionTotal tracks passes skipped because another pass held the lock
	LockContentionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "lock_contention_total",
			Help:      "Total number of sync passes skipped because the integration was locked",
		},
		[]string{"provider"},
	)

	// APIRequestsTotal tracks management API requests by route and status
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	// APIRequestDuration tracks management API latency in seconds
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
