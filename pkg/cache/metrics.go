package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletsw_cache_hits_total",
			Help: "Total number of cache store hits",
		},
		[]string{"backend"}, // "bolt", "redis"
	)

	// CacheMisses tracks cache misses by backend
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletsw_cache_misses_total",
			Help: "Total number of cache store misses",
		},
		[]string{"backend"},
	)

	// CacheWrittenBytes tracks encoded bytes written by backend
	CacheWrittenBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletsw_cache_written_bytes_total",
			Help: "Total encoded bytes written to cache stores",
		},
		[]string{"backend"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletsw_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"backend", "operation"}, // "match", "put", "delete", "open", "keys"
	)
)
