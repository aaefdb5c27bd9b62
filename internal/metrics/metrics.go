// Package metrics defines custom Prometheus metrics for nxcache.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// sizeBuckets are exponential buckets for request/response size histograms (bytes).
var sizeBuckets = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864}

// HTTP metrics (RED: Rate, Errors, Duration).
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nxcache_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nxcache_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPRequestSize observes request body size in bytes.
	HTTPRequestSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nxcache_http_request_size_bytes",
			Help:    "Request body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize observes response body size in bytes.
	HTTPResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nxcache_http_response_size_bytes",
			Help:    "Response body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)
)

// Cache and backend operation metrics.
var (
	// CacheOperationsTotal counts cache operations by operation name and status.
	// Operations: "put", "get", "exists". Status: "hit", "miss", "conflict",
	// "success", "error".
	CacheOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nxcache_cache_operations_total",
			Help: "Cache operations by type and outcome",
		},
		[]string{"operation", "status"},
	)

	// BackendOperationsTotal counts storage backend calls by backend name,
	// operation, and status ("success" or "error").
	BackendOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nxcache_backend_operations_total",
			Help: "Storage backend operations by backend and outcome",
		},
		[]string{"backend", "operation", "status"},
	)

	// BytesReceivedTotal counts total bytes received in request bodies.
	BytesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nxcache_bytes_received_total",
			Help: "Total bytes received (request bodies)",
		},
	)

	// BytesSentTotal counts total bytes sent in response bodies.
	BytesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nxcache_bytes_sent_total",
			Help: "Total bytes sent (response bodies)",
		},
	)
)

// Register registers all Prometheus collectors with the default registry.
// Called explicitly from main so registration can be made conditional on
// configuration. Safe to call multiple times.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			HTTPRequestSize,
			HTTPResponseSize,
			CacheOperationsTotal,
			BackendOperationsTotal,
			BytesReceivedTotal,
			BytesSentTotal,
		)
		// Initialize CacheOperationsTotal so it appears in /metrics output
		// before any traffic arrives.
		CacheOperationsTotal.WithLabelValues("get", "hit")
	})
}

// NormalizePath maps request paths to templates suitable for Prometheus
// labels, avoiding high-cardinality labels from individual hashes.
func NormalizePath(path string) string {
	switch path {
	case "/health", "/metrics", "/", "":
		if path == "" {
			return "/"
		}
		return path
	}

	if strings.HasPrefix(path, "/v1/cache/") || path == "/v1/cache" {
		return "/v1/cache/{hash}"
	}

	return "/other"
}
