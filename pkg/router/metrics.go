package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for routing decisions.
var (
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletsw_fetch_total",
		Help: "Fetches handled by the router by strategy and outcome",
	}, []string{"strategy", "outcome"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "walletsw_fetch_duration_seconds",
		Help:    "Fetch handling duration by strategy",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"strategy"})

	cacheWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletsw_cache_write_errors_total",
		Help: "Write-through cache puts that failed",
	})

	precacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "walletsw_precache_entries",
		Help: "Entries committed by the last successful install",
	})

	purgedStores = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletsw_purged_stores_total",
		Help: "Cache stores deleted on activation",
	})
)

// Strategy labels.
const (
	strategyPassthrough  = "passthrough"
	strategyCacheFirst   = "cache_first"
	strategyNetworkFirst = "network_first"
)

// Outcome labels.
const (
	outcomeCache    = "cache"
	outcomeNetwork  = "network"
	outcomeFallback = "fallback"
	outcomeError    = "error"
)
