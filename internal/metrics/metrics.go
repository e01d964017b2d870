package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// StorageErrors counts failed storage calls by collection and operation.
	StorageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "storage_errors_total", Help: "Failed storage operations."},
		[]string{"collection", "op"},
	)
	// ScopeDecisions counts resolved access scopes by role class.
	ScopeDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "access_scope_decisions_total", Help: "Access scopes resolved by role class."},
		[]string{"class"},
	)
	// PerformanceActuals counts computed actuals by target type and outcome (ok, degraded).
	PerformanceActuals = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "performance_actuals_total", Help: "Performance actual computations."},
		[]string{"target_type", "outcome"},
	)
	// CacheLookups counts reference-data cache hits and misses.
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reference_cache_lookups_total", Help: "Reference data cache lookups."},
		[]string{"collection", "result"},
	)
	// WebhookDeliveries counts delivery attempts by resulting status.
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook delivery attempts by resulting status."},
		[]string{"status"},
	)
)

// RegisterDefault registers collectors on Registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(StorageErrors)
		Registry.MustRegister(ScopeDecisions)
		Registry.MustRegister(PerformanceActuals)
		Registry.MustRegister(CacheLookups)
		Registry.MustRegister(WebhookDeliveries)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
