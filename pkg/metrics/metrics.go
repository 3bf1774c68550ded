// Package metrics exposes the Prometheus registry shared by wallet-sw.
// Collectors are defined in their own packages (cache, router, lifecycle)
// with promauto and register on the default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer used by every wallet-sw collector.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		Registry,
		promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}),
	)
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - walletsw_cache_hits_total{backend} (Counter): Store lookups that found an entry
//   - walletsw_cache_misses_total{backend} (Counter): Store lookups without an entry
//   - walletsw_cache_written_bytes_total{backend} (Counter): Encoded bytes written
//   - walletsw_cache_errors_total{backend, operation} (Counter): Store operation errors
//
// Router Metrics (pkg/router):
//   - walletsw_fetch_total{strategy, outcome} (Counter): Fetches by strategy
//     (passthrough, cache_first, network_first) and what served them
//     (cache, network, fallback, error)
//   - walletsw_fetch_duration_seconds{strategy} (Histogram): Fetch duration
//   - walletsw_cache_write_errors_total (Counter): Failed write-through puts
//   - walletsw_precache_entries (Gauge): Entries committed by the last install
//   - walletsw_purged_stores_total (Counter): Stale stores deleted on activation
//
// Lifecycle Metrics (pkg/lifecycle):
//   - walletsw_install_attempts_total (Counter): Install attempts
//   - walletsw_install_failures_total (Counter): Installs that failed after retries
//   - walletsw_activations_total{result} (Counter): Activations by result (ok, error)
//   - walletsw_install_retries_total (Counter): Install retries
//   - walletsw_install_retry_backoff_seconds (Histogram): Backoff before each retry
//   - walletsw_dispatch_total{target} (Counter): Requests dispatched to the
//     active worker or straight to the network
//
// Example Prometheus Queries:
//
//   # Offline fallback rate
//   sum(rate(walletsw_fetch_total{outcome="fallback"}[5m])) /
//   sum(rate(walletsw_fetch_total[5m]))
//
//   # Cache hit rate
//   sum(rate(walletsw_cache_hits_total[5m])) /
//   (sum(rate(walletsw_cache_hits_total[5m])) + sum(rate(walletsw_cache_misses_total[5m])))
//
//   # P95 cache-first latency
//   histogram_quantile(0.95, rate(walletsw_fetch_duration_seconds_bucket{strategy="cache_first"}[5m]))
