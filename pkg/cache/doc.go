// Package cache provides the generic tiered request/response cache for the
// storefront.
//
// The manager stores HTTP-shaped entries (body, ETag, headers, tags) in a
// shared Redis tier when one is configured and falls back to a bounded
// in-process map otherwise. The remote tier is strictly best-effort: every
// connection failure or timeout degrades to a cache miss, never to an error
// visible to the caller.
//
// # Basic Usage
//
//	manager, err := cache.NewManager(cache.Options{
//		Redis:         redisClient, // nil disables the remote tier
//		LocalCapacity: 1000,
//	})
//	if err != nil {
//		return err
//	}
//
//	key := cache.GenerateKey(http.MethodGet, "https://shop.example/products?page=1")
//
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from upstream, then:
//		manager.Set(ctx, key, body, 5*time.Minute, headers, []string{"products"})
//	}
//
// # Tag Invalidation
//
// Entries may carry tags ("products", "order:123", ...). Tags are indexed
// locally and mirrored into Redis sets so that a webhook-driven
// InvalidateByTags removes every matching entry from both tiers. Invalidating
// a tag with no members is a no-op, not an error.
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - storecache_page_hits_total{tier} - cache hits by tier
//   - storecache_page_misses_total - cache misses
//   - storecache_page_evictions_total - local capacity evictions
//   - storecache_page_invalidations_total - entries removed by tag invalidation
//   - storecache_page_errors_total{operation} - degraded remote operations
package cache
