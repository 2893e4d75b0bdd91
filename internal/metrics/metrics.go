// Package metrics exposes Prometheus collectors for the analyzer service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	analyzerJobsTotal             *prometheus.CounterVec
	analyzerModuleTasksTotal      *prometheus.CounterVec
	analyzerProviderRequestsTotal *prometheus.CounterVec
	analyzerProviderLatency       *prometheus.HistogramVec
	analyzerActiveWorkers         prometheus.Gauge
	analyzerCacheRequestsTotal    *prometheus.CounterVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		analyzerJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_jobs_total",
				Help: "Total number of analysis jobs processed, labeled by final status.",
			},
			[]string{"status"},
		)

		analyzerModuleTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_module_tasks_total",
				Help: "Total number of module tasks executed, labeled by module and status.",
			},
			[]string{"module", "status"},
		)

		analyzerProviderRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_provider_requests_total",
				Help: "Total provider invocations, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		analyzerProviderLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analyzer_provider_latency_seconds",
				Help:    "Histogram of provider call latencies, labeled by provider.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		)

		analyzerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "analyzer_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		analyzerCacheRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_cache_requests_total",
				Help: "Synchronous analysis cache lookups, labeled by result.",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter for the given final status.
func ObserveJob(status string) {
	analyzerJobsTotal.WithLabelValues(status).Inc()
}

// ObserveModuleTask increments the module task counter.
func ObserveModuleTask(module, status string) {
	analyzerModuleTasksTotal.WithLabelValues(module, status).Inc()
}

// ObserveProviderRequest records one provider invocation.
func ObserveProviderRequest(provider, outcome string, latency time.Duration) {
	analyzerProviderRequestsTotal.WithLabelValues(provider, outcome).Inc()
	analyzerProviderLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveCacheLookup records a cache hit or miss on the sync path.
func ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	analyzerCacheRequestsTotal.WithLabelValues(result).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	analyzerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	analyzerActiveWorkers.Dec()
}
