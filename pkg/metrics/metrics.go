// Package metrics provides the centralized Prometheus metrics registry for
// the cache engine. All metrics are defined in their respective packages
// (cache, domaincache, ratelimit, orderlimit, webhook) to maintain
// modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the engine.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Page Cache Metrics (pkg/cache):
//   - storecache_page_hits_total{tier} (Counter): Cache hits by tier (remote, local)
//   - storecache_page_misses_total (Counter): Cache misses
//   - storecache_page_evictions_total (Counter): Local tier capacity evictions
//   - storecache_page_invalidations_total (Counter): Entries removed by tag invalidation
//   - storecache_page_errors_total{operation} (Counter): Remote operations degraded to miss/no-op
//
// Domain Cache Metrics (pkg/domaincache):
//   - storecache_domain_hits_total{category} (Counter): Typed cache hits by category
//   - storecache_domain_misses_total{category} (Counter): Typed cache misses by category
//   - storecache_domain_evictions_total{reason} (Counter): Evictions by reason (expired, capacity, corrupt, invalidated)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - storecache_rate_limit_allowed_total (Counter): Requests allowed by the sliding window
//   - storecache_rate_limit_denied_total (Counter): Requests denied by the sliding window
//
// Order Limiter Metrics (pkg/orderlimit):
//   - storecache_order_checks_total{result} (Counter): Checks by result (allowed, blocked, hourly, daily)
//   - storecache_order_blocks_total (Counter): Temporary blocks placed
//
// Webhook Metrics (pkg/webhook):
//   - storecache_webhooks_processed_total{resource_type} (Counter): Routed payloads
//   - storecache_webhooks_rejected_total{reason} (Counter): Rejections (signature, malformed)
//
// Example Prometheus Queries:
//
//   # Page Cache Hit Rate
//   sum(rate(storecache_page_hits_total[5m])) /
//   (sum(rate(storecache_page_hits_total[5m])) + sum(rate(storecache_page_misses_total[5m])))
//
//   # Remote Tier Degradation
//   rate(storecache_page_errors_total[5m])
//
//   # Checkout Block Rate
//   rate(storecache_order_blocks_total[5m])
//
//   # Webhook Rejection Rate
//   sum(rate(storecache_webhooks_rejected_total[5m])) by (reason)
