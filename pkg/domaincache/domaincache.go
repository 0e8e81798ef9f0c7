// Package domaincache provides the typed, optionally compressed cache for
// commerce data.
//
// Entries are partitioned into a fixed set of categories (orders, products,
// customers, sessions), each with its own TTL, entry bound and compression
// policy. The cache is purely in-process; cross-instance freshness comes from
// the webhook invalidation pipeline, not from shared storage.
//
// A background sweep owned by the cache instance removes expired entries on
// a fixed interval, independent of access patterns, so write-heavy but
// read-rarely categories cannot grow without bound.
package domaincache

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/velora/storefront-cache/pkg/logging"
)

var (
	domainHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storecache_domain_hits_total",
			Help: "Total number of domain cache hits by category",
		},
		[]string{"category"},
	)

	domainMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storecache_domain_misses_total",
			Help: "Total number of domain cache misses by category",
		},
		[]string{"category"},
	)

	domainEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storecache_domain_evictions_total",
			Help: "Total number of domain cache evictions by reason",
		},
		[]string{"reason"}, // "expired", "capacity", "corrupt", "invalidated"
	)
)

// Category partitions the domain cache. Each category carries its own policy.
type Category string

const (
	CategoryOrders    Category = "orders"
	CategoryProducts  Category = "products"
	CategoryCustomers Category = "customers"
	CategorySessions  Category = "sessions"
)

// Categories lists every known category.
func Categories() []Category {
	return []Category{CategoryOrders, CategoryProducts, CategoryCustomers, CategorySessions}
}

// Policy is the per-category cache tuning.
type Policy struct {
	// TTL is how long entries in this category stay fresh.
	TTL time.Duration

	// MaxEntries bounds the category. At capacity the oldest entry in the
	// store is evicted before an insert.
	MaxEntries int

	// Compress enables transparent gzip compression of stored data.
	Compress bool
}

// DefaultPolicies returns the per-category tuning used by the storefront.
func DefaultPolicies() map[Category]Policy {
	return map[Category]Policy{
		CategoryOrders:    {TTL: 5 * time.Minute, MaxEntries: 500, Compress: true},
		CategoryProducts:  {TTL: 10 * time.Minute, MaxEntries: 1000, Compress: true},
		CategoryCustomers: {TTL: 15 * time.Minute, MaxEntries: 500, Compress: false},
		CategorySessions:  {TTL: 30 * time.Minute, MaxEntries: 2000, Compress: false},
	}
}

type entry struct {
	category   Category
	data       []byte
	compressed bool
	timestamp  time.Time
	ttl        time.Duration
	tags       []string
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.timestamp.Add(e.ttl))
}

// Stats is a snapshot of the domain cache state.
type Stats struct {
	Entries    map[Category]int `json:"entries"`
	Hits       uint64           `json:"hits"`
	Misses     uint64           `json:"misses"`
	Evictions  uint64           `json:"evictions"`
	Compressed int              `json:"compressed"`
}

// Cache is the typed domain cache. Safe for concurrent use; the entry map is
// only mutated inside Cache methods.
type Cache struct {
	mu       sync.Mutex
	policies map[Category]Policy
	entries  map[string]*entry
	counts   map[Category]int
	logger   zerolog.Logger

	hits      uint64
	misses    uint64
	evictions uint64

	// now is overridable for deterministic tests.
	now func() time.Time

	sweepOnce sync.Once
	stop      chan struct{}
	stopped   sync.WaitGroup
}

// New creates a domain cache with the given policies. Nil policies fall back
// to DefaultPolicies.
func New(policies map[Category]Policy) *Cache {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Cache{
		policies: policies,
		entries:  make(map[string]*entry),
		counts:   make(map[Category]int),
		logger:   logging.NewLogger("domaincache"),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// Key derives the deterministic storage key for a cached value.
// Format: category:identifier:param1=val1:param2=val2 with params sorted.
func Key(category Category, id string, params map[string]string) string {
	parts := []string{string(category), id}

	if len(params) > 0 {
		names := make([]string, 0, len(params))
		for name := range params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, params[name]))
		}
	}

	return strings.Join(parts, ":")
}

// Get returns the cached value for (category, id, params). Expired entries
// are evicted and reported as a miss. Compressed entries that fail to
// decompress are discarded, never returned corrupt.
func (c *Cache) Get(category Category, id string, params map[string]string) ([]byte, bool) {
	key := Key(category, id, params)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		domainMisses.WithLabelValues(string(category)).Inc()
		return nil, false
	}

	if e.expired(c.now()) {
		c.removeLocked(key, e, "expired")
		c.misses++
		domainMisses.WithLabelValues(string(category)).Inc()
		return nil, false
	}

	data := e.data
	if e.compressed {
		decompressed, err := decompress(e.data)
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("corrupt compressed entry discarded")
			c.removeLocked(key, e, "corrupt")
			c.misses++
			domainMisses.WithLabelValues(string(category)).Inc()
			return nil, false
		}
		data = decompressed
	}

	c.hits++
	domainHits.WithLabelValues(string(category)).Inc()
	return data, true
}

// Set stores a value under (category, id, params) with the category's policy.
// At the category's entry bound, the oldest entry in the store is evicted
// first. Compression failure degrades to an uncompressed write, never a
// failed one.
func (c *Cache) Set(category Category, id string, data []byte, params map[string]string, tags []string) {
	policy, ok := c.policies[category]
	if !ok {
		c.logger.Warn().Str("category", string(category)).Msg("set for unknown category dropped")
		return
	}

	key := Key(category, id, params)

	stored := data
	compressed := false
	if policy.Compress {
		if packed, err := compress(data); err == nil {
			stored = packed
			compressed = true
		} else {
			c.logger.Warn().Err(err).Str("key", key).Msg("compression failed, storing uncompressed")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		// Overwrite, not an eviction.
		delete(c.entries, key)
		c.counts[old.category]--
	} else if c.counts[category] >= policy.MaxEntries {
		c.evictOldestLocked()
	}

	c.entries[key] = &entry{
		category:   category,
		data:       stored,
		compressed: compressed,
		timestamp:  c.now(),
		ttl:        policy.TTL,
		tags:       tags,
	}
	c.counts[category]++
}

// InvalidateByTag removes every entry carrying tag and returns the count.
func (c *Cache) InvalidateByTag(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		for _, t := range e.tags {
			if t == tag {
				c.removeLocked(key, e, "invalidated")
				removed++
				break
			}
		}
	}

	c.logger.Debug().Str("tag", tag).Int("removed", removed).Msg("domain tag invalidation")
	return removed
}

// InvalidateByType removes every entry in category and returns the count.
func (c *Cache) InvalidateByType(category Category) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if e.category == category {
			c.removeLocked(key, e, "invalidated")
			removed++
		}
	}

	c.logger.Debug().Str("category", string(category)).Int("removed", removed).Msg("domain type invalidation")
	return removed
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.counts = make(map[Category]int)
}

// Sweep removes every expired entry regardless of access pattern and returns
// the count. Exposed so tests and operators can trigger it deterministically.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			c.removeLocked(key, e, "expired")
			removed++
		}
	}

	if removed > 0 {
		c.logger.Debug().Int("removed", removed).Msg("domain cache sweep")
	}
	return removed
}

// Start launches the periodic sweep. The job is owned by this instance and
// stops on Close. Subsequent calls are no-ops.
func (c *Cache) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}
	c.sweepOnce.Do(func() {
		c.stopped.Add(1)
		go func() {
			defer c.stopped.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					c.Sweep()
				case <-c.stop:
					return
				}
			}
		}()
	})
}

// Close stops the background sweep. The cache remains usable afterwards.
func (c *Cache) Close() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	c.stopped.Wait()
}

// Stats returns per-category entry counts and operation counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make(map[Category]int, len(c.counts))
	for category, count := range c.counts {
		entries[category] = count
	}

	compressedCount := 0
	for _, e := range c.entries {
		if e.compressed {
			compressedCount++
		}
	}

	return Stats{
		Entries:    entries,
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
		Compressed: compressedCount,
	}
}

// removeLocked deletes key and maintains counts. Caller must hold c.mu.
func (c *Cache) removeLocked(key string, e *entry, reason string) {
	delete(c.entries, key)
	c.counts[e.category]--
	if c.counts[e.category] <= 0 {
		delete(c.counts, e.category)
	}
	c.evictions++
	domainEvictions.WithLabelValues(reason).Inc()
}

// evictOldestLocked removes the single oldest entry in the store by
// timestamp. Caller must hold c.mu.
func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldest *entry
	for key, e := range c.entries {
		if oldest == nil || e.timestamp.Before(oldest.timestamp) {
			oldestKey = key
			oldest = e
		}
	}
	if oldest != nil {
		c.removeLocked(oldestKey, oldest, "capacity")
	}
}
