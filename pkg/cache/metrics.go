package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bc_cache_hits_total",
			Help: "Total number of Business Central cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bc_cache_misses_total",
			Help: "Total number of Business Central cache misses",
		},
	)

	// CacheSize tracks bytes written to the cache by layer
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bc_cache_size_bytes",
			Help: "Bytes written to the Business Central cache",
		},
		[]string{"layer"},
	)

	// NotModifiedResponses tracks 304 Not Modified responses
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bc_304_responses_total",
			Help: "Total number of 304 Not Modified responses",
		},
	)

	// ConditionalRequestsSent tracks requests sent with If-None-Match
	ConditionalRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bc_conditional_requests_total",
			Help: "Total number of conditional requests sent",
		},
	)

	// CacheInvalidations counts entries removed after writes
	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bc_cache_invalidations_total",
			Help: "Cached responses removed because a write made them stale",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bc_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // get, set, delete, invalidate
	)
)
