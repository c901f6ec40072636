// Package metrics provides Prometheus metrics for diskfs operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskfs_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diskfs_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Driver operation metrics
	DriverOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskfs_driver_ops_total",
			Help: "Total number of driver operations",
		},
		[]string{"disk", "operation", "status"}, // status: "success", "failure"
	)

	DriverOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diskfs_driver_op_duration_seconds",
			Help:    "Driver operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"disk", "operation"},
	)

	// Failures converted to a false/empty result because the disk does not throw
	SwallowedErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskfs_swallowed_errors_total",
			Help: "Total number of adapter failures swallowed by the error policy",
		},
		[]string{"disk", "operation"},
	)

	// Metadata cache metrics
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskfs_cache_lookups_total",
			Help: "Total number of metadata cache lookups",
		},
		[]string{"kind", "result"}, // result: "hit", "miss"
	)

	// Lock manager metrics
	LockOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskfs_lock_operations_total",
			Help: "Total number of lock operations",
		},
		[]string{"operation", "status"}, // operation: "acquire", "release"; status: "success", "failure"
	)

	LockWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "diskfs_lock_wait_duration_seconds",
			Help:    "Time spent waiting for a path lock",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Signed download link metrics
	SignedLinksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskfs_signed_links_total",
			Help: "Total number of signed download links generated and verified",
		},
		[]string{"operation", "result"}, // operation: "generate", "verify"
	)

	// Drivers currently cached by managers
	ActiveDisks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "diskfs_active_disks",
			Help: "Number of resolved disks held by managers",
		},
	)
)
