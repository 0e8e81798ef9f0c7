package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/velora/storefront-cache/pkg/logging"
	"github.com/velora/storefront-cache/pkg/ratelimit"
)

var (
	// ErrCacheMiss indicates the requested key was not found in either tier.
	ErrCacheMiss = errors.New("cache miss")
)

// DefaultTTL is the fallback TTL when a caller passes a non-positive one.
const DefaultTTL = 5 * time.Minute

// Options configures a Manager.
type Options struct {
	// Redis enables the remote tier. Nil runs the cache local-only.
	Redis *redis.Client

	// RemoteTimeout bounds each remote command (default 250ms).
	RemoteTimeout time.Duration

	// LocalCapacity bounds the in-process fallback tier (default 1000).
	LocalCapacity int

	// DefaultTTL applies to Set calls with a non-positive TTL (default 5m).
	DefaultTTL time.Duration

	// Limiter serves CheckRateLimit. Nil disables rate limiting.
	Limiter *ratelimit.Limiter

	// Logger defaults to the package component logger.
	Logger *zerolog.Logger
}

// Stats is a snapshot of the manager's operation counters.
type Stats struct {
	Hits         uint64  `json:"hits"`
	Misses       uint64  `json:"misses"`
	Sets         uint64  `json:"sets"`
	Deletes      uint64  `json:"deletes"`
	HitRate      float64 `json:"hit_rate"`
	LocalEntries int     `json:"local_entries"`
	LocalTags    int     `json:"local_tags"`
	RemoteTier   bool    `json:"remote_tier"`
}

// Manager is the tiered page cache: remote Redis first, bounded local map as
// fallback. All remote failures degrade to misses; the local tier and its tag
// index are the only in-process shared mutable state and are only touched
// through Manager methods.
type Manager struct {
	remote     *remoteStore
	local      *localStore
	limiter    *ratelimit.Limiter
	logger     zerolog.Logger
	defaultTTL time.Duration

	hits    atomic.Uint64
	misses  atomic.Uint64
	sets    atomic.Uint64
	deletes atomic.Uint64
}

// NewManager creates a tiered cache manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.LocalCapacity <= 0 {
		opts.LocalCapacity = 1000
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}

	logger := logging.NewLogger("cache")
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	local, err := newLocalStore(opts.LocalCapacity)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		remote:     newRemoteStore(opts.Redis, opts.RemoteTimeout, logger),
		local:      local,
		limiter:    opts.Limiter,
		logger:     logger,
		defaultTTL: opts.DefaultTTL,
	}

	if !m.remote.enabled() {
		logger.Info().Msg("remote cache tier not configured, running local-only")
	}

	return m, nil
}

// Get retrieves a cache entry by key. The remote tier is tried first; a miss
// or failure there falls through to the local tier.
// Returns ErrCacheMiss if neither tier holds a live entry.
func (m *Manager) Get(ctx context.Context, key string) (*Entry, error) {
	if entry, ok := m.remote.get(ctx, key); ok {
		m.hits.Add(1)
		CacheHits.WithLabelValues("remote").Inc()
		return entry, nil
	}

	if entry, ok := m.local.get(key); ok {
		m.hits.Add(1)
		CacheHits.WithLabelValues("local").Inc()
		return entry, nil
	}

	m.misses.Add(1)
	CacheMisses.Inc()
	return nil, ErrCacheMiss
}

// Set stores a response body under key. The entry's ETag is computed from
// the body. Tags are indexed for later bulk invalidation; when the remote
// tier is available the tag sets are mirrored there and re-expired to the
// entry's TTL.
func (m *Manager) Set(ctx context.Context, key string, body []byte, ttl time.Duration, headers map[string]string, tags []string) *Entry {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	now := time.Now()
	entry := &Entry{
		Body:      body,
		ETag:      GenerateETag(body),
		Headers:   headers,
		Tags:      tags,
		ExpiresAt: now.Add(ttl),
		CachedAt:  now,
	}

	if m.remote.set(ctx, key, entry) {
		for _, tag := range tags {
			m.remote.addToTagSet(ctx, tag, ttl, key)
		}
	} else {
		m.local.set(key, entry)
	}

	m.sets.Add(1)
	m.logger.Debug().Str("key", key).Dur("ttl", ttl).Strs("tags", tags).Msg("cache set")
	return entry
}

// SetMulti stores several response bodies at once under a shared TTL and tag
// set. When the remote tier is available the writes go out in one pipeline;
// otherwise every entry lands in the local tier.
func (m *Manager) SetMulti(ctx context.Context, bodies map[string][]byte, ttl time.Duration, tags []string) map[string]*Entry {
	if len(bodies) == 0 {
		return nil
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	now := time.Now()
	entries := make(map[string]*Entry, len(bodies))
	keys := make([]string, 0, len(bodies))
	for key, body := range bodies {
		entries[key] = &Entry{
			Body:      body,
			ETag:      GenerateETag(body),
			Tags:      tags,
			ExpiresAt: now.Add(ttl),
			CachedAt:  now,
		}
		keys = append(keys, key)
	}

	if m.remote.mset(ctx, entries) {
		for _, tag := range tags {
			m.remote.addToTagSet(ctx, tag, ttl, keys...)
		}
	} else {
		for key, entry := range entries {
			m.local.set(key, entry)
		}
	}

	m.sets.Add(uint64(len(entries)))
	m.logger.Debug().Int("keys", len(entries)).Dur("ttl", ttl).Strs("tags", tags).Msg("cache set multi")
	return entries
}

// Expire resets the TTL on key in whichever tier holds it. Returns whether
// any tier was updated.
func (m *Manager) Expire(ctx context.Context, key string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	updated := m.remote.expire(ctx, key, ttl)
	if m.local.touch(key, ttl) {
		updated = true
	}
	return updated
}

// Delete removes key from both tiers.
func (m *Manager) Delete(ctx context.Context, key string) {
	m.remote.del(ctx, key)
	m.local.delete(key)
	m.deletes.Add(1)
}

// Clear removes every entry owned by this cache from both tiers.
// Only keys under the page and tag prefixes are touched remotely, so other
// tenants of a shared store are unaffected.
func (m *Manager) Clear(ctx context.Context) {
	m.remote.del(ctx, m.remote.scanKeys(ctx, KeyPrefix+"*")...)
	m.remote.del(ctx, m.remote.scanKeys(ctx, tagKeyPrefix+"*")...)
	m.local.clear()
	m.logger.Info().Msg("cache cleared")
}

// Purge removes all entries whose key contains substr from both tiers and
// returns the number of local entries removed.
func (m *Manager) Purge(ctx context.Context, substr string) int {
	remoteKeys := m.remote.scanKeys(ctx, KeyPrefix+"*"+substr+"*")
	m.remote.del(ctx, remoteKeys...)

	removed := m.local.purge(substr)
	m.deletes.Add(uint64(removed))

	m.logger.Debug().
		Str("pattern", substr).
		Int("local_removed", removed).
		Int("remote_removed", len(remoteKeys)).
		Msg("cache purge")
	return removed
}

// InvalidateByTags removes every entry carrying any of the given tags from
// both tiers and drops the tag indexes. Returns the number of distinct keys
// removed. Invalidating an empty or unknown tag is a no-op.
func (m *Manager) InvalidateByTags(ctx context.Context, tags []string) int {
	removed := make(map[string]struct{})

	for _, tag := range tags {
		for _, key := range m.local.keysForTag(tag) {
			removed[key] = struct{}{}
		}
		for _, key := range m.remote.tagMembers(ctx, tag) {
			removed[key] = struct{}{}
		}
	}

	if len(removed) > 0 {
		keys := make([]string, 0, len(removed))
		for key := range removed {
			keys = append(keys, key)
		}
		m.remote.del(ctx, keys...)
		for _, key := range keys {
			m.local.delete(key)
		}
		m.deletes.Add(uint64(len(keys)))
		CacheInvalidations.Add(float64(len(keys)))
	}

	for _, tag := range tags {
		m.remote.dropTag(ctx, tag)
	}

	m.logger.Debug().Strs("tags", tags).Int("removed", len(removed)).Msg("tag invalidation")
	return len(removed)
}

// Exists reports whether key is present in either tier. Counts as a hit or
// miss like Get.
func (m *Manager) Exists(ctx context.Context, key string) bool {
	if m.remote.exists(ctx, key) {
		m.hits.Add(1)
		CacheHits.WithLabelValues("remote").Inc()
		return true
	}
	if _, ok := m.local.get(key); ok {
		m.hits.Add(1)
		CacheHits.WithLabelValues("local").Inc()
		return true
	}
	m.misses.Add(1)
	CacheMisses.Inc()
	return false
}

// GetMulti fetches several keys at once, remote tier first. Missing keys are
// absent from the result. Every key counts as a hit or miss like Get.
func (m *Manager) GetMulti(ctx context.Context, keys ...string) map[string]*Entry {
	result := m.remote.mget(ctx, keys...)
	if n := len(result); n > 0 {
		m.hits.Add(uint64(n))
		CacheHits.WithLabelValues("remote").Add(float64(n))
	}

	for _, key := range keys {
		if _, ok := result[key]; ok {
			continue
		}
		if entry, ok := m.local.get(key); ok {
			result[key] = entry
			m.hits.Add(1)
			CacheHits.WithLabelValues("local").Inc()
		} else {
			m.misses.Add(1)
			CacheMisses.Inc()
		}
	}
	return result
}

// CheckRateLimit consults the shared sliding-window limiter for clientID.
// With no limiter configured every request is allowed.
func (m *Manager) CheckRateLimit(clientID string) ratelimit.Decision {
	if m.limiter == nil {
		return ratelimit.Decision{Allowed: true}
	}
	return m.limiter.Allow(clientID)
}

// Stats returns a snapshot of operation counters and a derived hit rate.
// Operational visibility only, not a correctness signal.
func (m *Manager) Stats() Stats {
	hits := m.hits.Load()
	misses := m.misses.Load()

	rate := 0.0
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}

	return Stats{
		Hits:         hits,
		Misses:       misses,
		Sets:         m.sets.Load(),
		Deletes:      m.deletes.Load(),
		HitRate:      rate,
		LocalEntries: m.local.len(),
		LocalTags:    m.local.tagCount(),
		RemoteTier:   m.remote.enabled(),
	}
}
