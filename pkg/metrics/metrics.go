// Package metrics exposes the Prometheus metrics of pagefeed.
// All metrics are defined in their respective packages (client, cache,
// pagination, search) with promauto, so importing those packages registers
// them; this package serves them and documents them.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registry all pagefeed metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// NewServeMux returns a mux serving /metrics and /health.
func NewServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - pagefeed_requests_total{endpoint, status} (Counter): HTTP attempts by endpoint and status
//   - pagefeed_request_duration_seconds{endpoint} (Histogram): Logical request duration, retries included
//   - pagefeed_failures_total{kind} (Counter): Failed attempts by kind (timeout, http, network, aborted, protocol)
//
// Retry Metrics (pkg/client):
//   - pagefeed_retries_total{kind} (Counter): Retries by failure kind
//   - pagefeed_retry_exhausted_total{kind} (Counter): Requests that used their whole retry budget
//
// Cache Metrics (pkg/cache):
//   - pagefeed_cache_hits_total{layer="memory"|"redis"} (Counter): Cache hits by layer
//   - pagefeed_cache_misses_total (Counter): Cache misses
//   - pagefeed_cache_size_bytes{layer} (Gauge): Bytes written per layer
//   - pagefeed_conditional_requests_total (Counter): Requests sent with If-None-Match / If-Modified-Since
//   - pagefeed_304_responses_total (Counter): 304 Not Modified answers served from cache
//   - pagefeed_cache_errors_total{operation} (Counter): Cache operation errors
//
// Loader Metrics (pkg/pagination):
//   - pagefeed_pages_loaded_total{endpoint} (Counter): Pages appended
//   - pagefeed_records_loaded_total{endpoint} (Counter): Records appended
//   - pagefeed_loader_errors_total{endpoint} (Counter): Page loads ending in the error state
//   - pagefeed_page_load_duration_seconds{endpoint} (Histogram): Dispatch to settlement
//   - pagefeed_trigger_dropped_total (Counter): Visibility signals ignored while not idle
//
// Search Metrics (pkg/search):
//   - pagefeed_searches_total{outcome} (Counter): Live searches by outcome (ok, empty, error, superseded)
//
// Example Prometheus Queries:
//
//   # Retry pressure per failure kind
//   sum by (kind) (rate(pagefeed_retries_total[5m]))
//
//   # Share of page loads that failed
//   sum(rate(pagefeed_loader_errors_total[5m])) /
//   (sum(rate(pagefeed_pages_loaded_total[5m])) + sum(rate(pagefeed_loader_errors_total[5m])))
//
//   # Cache Hit Rate
//   sum(rate(pagefeed_cache_hits_total[5m])) /
//   (sum(rate(pagefeed_cache_hits_total[5m])) + sum(rate(pagefeed_cache_misses_total[5m])))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(pagefeed_request_duration_seconds_bucket[5m]))
