// Package metrics exposes the Prometheus metrics of the Business Central
// client. Metrics are defined with promauto in the packages that own them
// (client, cache, ratelimit, pagination, resources, webhook); this package
// serves them and documents the full set.
//
// Request metrics (pkg/client):
//   - bc_requests_total{method, status} (Counter)
//   - bc_request_duration_seconds{method} (Histogram)
//   - bc_errors_total{class} (Counter): client, server, throttled, network
//
// Throttle metrics (pkg/ratelimit):
//   - bc_throttle_windows_total (Counter): 429 responses that opened a window
//   - bc_throttle_blocks_total (Counter): requests refused inside a window
//
// Cache metrics (pkg/cache):
//   - bc_cache_hits_total{layer} (Counter)
//   - bc_cache_misses_total (Counter)
//   - bc_cache_size_bytes{layer} (Gauge)
//   - bc_304_responses_total (Counter)
//   - bc_conditional_requests_total (Counter)
//   - bc_cache_errors_total{operation} (Counter)
//
// Pagination metrics (pkg/pagination):
//   - bc_pagination_pages_total (Counter)
//   - bc_pagination_records_total (Counter)
//   - bc_pagination_pages_per_call (Histogram)
//
// Dispatcher and webhook metrics:
//   - bc_operations_total{resource, operation, outcome} (Counter)
//   - bc_webhook_notifications_total{outcome} (Counter)
//   - bc_build_info{version} (Gauge)
//
// Example queries:
//
//	# Cache hit rate
//	sum(rate(bc_cache_hits_total[5m])) /
//	(sum(rate(bc_cache_hits_total[5m])) + sum(rate(bc_cache_misses_total[5m])))
//
//	# Share of requests refused by the throttle window
//	rate(bc_throttle_blocks_total[5m]) / rate(bc_requests_total[5m])
//
//	# P95 latency
//	histogram_quantile(0.95, rate(bc_request_duration_seconds_bucket[5m]))
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is where every bc_ metric is registered.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads the metrics in Registry.
var Gatherer = prometheus.DefaultGatherer

var buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "bc_build_info",
	Help: "Build information; the value is always 1",
}, []string{"version"})

// SetBuildInfo records the running version.
func SetBuildInfo(version string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(version).Set(1)
}

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}
