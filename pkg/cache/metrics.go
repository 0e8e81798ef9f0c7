package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks page cache hits by tier (remote, local)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storecache_page_hits_total",
			Help: "Total number of page cache hits",
		},
		[]string{"tier"}, // "remote", "local"
	)

	// CacheMisses tracks page cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storecache_page_misses_total",
			Help: "Total number of page cache misses",
		},
	)

	// CacheEvictions tracks local tier capacity evictions
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storecache_page_evictions_total",
			Help: "Total number of local page cache capacity evictions",
		},
	)

	// CacheInvalidations tracks entries removed by tag invalidation
	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storecache_page_invalidations_total",
			Help: "Total number of page cache entries removed by tag invalidation",
		},
	)

	// CacheErrors tracks degraded remote cache operations
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storecache_page_errors_total",
			Help: "Total number of remote cache operations degraded to a miss/no-op",
		},
		[]string{"operation"}, // "get", "set", "delete", "scan", "tags"
	)
)
