package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// tagKeyPrefix namespaces the remote tag-set mirrors.
	tagKeyPrefix = "tag:"

	// defaultRemoteTimeout bounds every remote command.
	defaultRemoteTimeout = 250 * time.Millisecond
)

// remoteStore adapts a Redis client into a best-effort cache tier.
//
// Every operation is bounded by a command timeout and converts failures into
// a miss/no-op result. A nil client disables the tier entirely: all reads
// miss and all writes are silently dropped, which callers must treat as a
// performance degradation, never a correctness problem.
type remoteStore struct {
	client  *redis.Client
	timeout time.Duration
	logger  zerolog.Logger
}

func newRemoteStore(client *redis.Client, timeout time.Duration, logger zerolog.Logger) *remoteStore {
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &remoteStore{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
}

// enabled reports whether the remote tier is configured.
func (r *remoteStore) enabled() bool {
	return r.client != nil
}

func (r *remoteStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// get returns the entry for key, or (nil, false) on miss, corruption or
// remote failure. Corrupted payloads are deleted so they cannot be served
// again.
func (r *remoteStore) get(ctx context.Context, key string) (*Entry, bool) {
	if !r.enabled() {
		return nil, false
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			CacheErrors.WithLabelValues("get").Inc()
			r.logger.Debug().Err(err).Str("key", key).Msg("remote get degraded to miss")
		}
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		r.logger.Warn().Err(err).Str("key", key).Msg("corrupt remote entry discarded")
		r.del(ctx, key)
		return nil, false
	}

	if entry.IsExpired() {
		r.del(ctx, key)
		return nil, false
	}

	return &entry, true
}

// set stores the entry with its remaining TTL. Returns false when the write
// was dropped (tier disabled, marshal failure or remote failure).
func (r *remoteStore) set(ctx context.Context, key string, entry *Entry) bool {
	if !r.enabled() {
		return false
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return false
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		r.logger.Warn().Err(err).Str("key", key).Msg("marshal cache entry failed")
		return false
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		r.logger.Debug().Err(err).Str("key", key).Msg("remote set dropped")
		return false
	}

	return true
}

// del removes keys, best-effort.
func (r *remoteStore) del(ctx context.Context, keys ...string) {
	if !r.enabled() || len(keys) == 0 {
		return
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		r.logger.Debug().Err(err).Int("keys", len(keys)).Msg("remote delete dropped")
	}
}

// exists reports whether key is present. Failures read as absent.
func (r *remoteStore) exists(ctx context.Context, key string) bool {
	if !r.enabled() {
		return false
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return false
	}
	return n > 0
}

// expire resets the TTL on a live entry. The stored payload embeds its own
// expiry, so a bare EXPIRE would leave a stale deadline inside it; the entry
// is rewritten with the new one instead. Returns whether an entry was
// updated; failures read as false.
func (r *remoteStore) expire(ctx context.Context, key string, ttl time.Duration) bool {
	if !r.enabled() || ttl <= 0 {
		return false
	}

	entry, ok := r.get(ctx, key)
	if !ok {
		return false
	}

	entry.ExpiresAt = time.Now().Add(ttl)
	return r.set(ctx, key, entry)
}

// mset stores several entries in one pipeline, each with its remaining TTL.
// Returns false when the tier is disabled, nothing was writable or the
// pipeline failed, so callers can fall back to the local tier.
func (r *remoteStore) mset(ctx context.Context, entries map[string]*Entry) bool {
	if !r.enabled() || len(entries) == 0 {
		return false
	}

	payloads := make(map[string][]byte, len(entries))
	for key, entry := range entries {
		if entry.TTL() <= 0 {
			continue
		}
		data, err := json.Marshal(entry)
		if err != nil {
			CacheErrors.WithLabelValues("set").Inc()
			r.logger.Warn().Err(err).Str("key", key).Msg("marshal cache entry failed")
			continue
		}
		payloads[key] = data
	}
	if len(payloads) == 0 {
		return false
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	pipe := r.client.Pipeline()
	for key, data := range payloads {
		pipe.Set(ctx, key, data, entries[key].TTL())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		r.logger.Debug().Err(err).Int("keys", len(payloads)).Msg("remote mset dropped")
		return false
	}
	return true
}

// mget fetches several entries at once. Missing, corrupt and failed lookups
// are simply absent from the result.
func (r *remoteStore) mget(ctx context.Context, keys ...string) map[string]*Entry {
	result := make(map[string]*Entry)
	if !r.enabled() || len(keys) == 0 {
		return result
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		r.logger.Debug().Err(err).Int("keys", len(keys)).Msg("remote mget degraded to miss")
		return result
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.IsExpired() {
			continue
		}
		result[keys[i]] = &entry
	}

	return result
}

// addToTagSet mirrors the keys into the remote tag set and re-expires the set
// to at least the entries' TTL.
func (r *remoteStore) addToTagSet(ctx context.Context, tag string, ttl time.Duration, keys ...string) {
	if !r.enabled() || len(keys) == 0 {
		return
	}

	members := make([]interface{}, len(keys))
	for i, key := range keys {
		members[i] = key
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tagKey := tagKeyPrefix + tag
	pipe := r.client.Pipeline()
	pipe.SAdd(ctx, tagKey, members...)
	pipe.Expire(ctx, tagKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		CacheErrors.WithLabelValues("tags").Inc()
		r.logger.Debug().Err(err).Str("tag", tag).Msg("remote tag index update dropped")
	}
}

// tagMembers returns the keys mirrored under tag. Failures read as empty.
func (r *remoteStore) tagMembers(ctx context.Context, tag string) []string {
	if !r.enabled() {
		return nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	members, err := r.client.SMembers(ctx, tagKeyPrefix+tag).Result()
	if err != nil {
		if err != redis.Nil {
			CacheErrors.WithLabelValues("tags").Inc()
		}
		return nil
	}
	return members
}

// dropTag removes the remote tag set itself.
func (r *remoteStore) dropTag(ctx context.Context, tag string) {
	r.del(ctx, tagKeyPrefix+tag)
}

// scanKeys returns all keys matching the glob pattern using SCAN so that a
// purge never blocks the shared store.
func (r *remoteStore) scanKeys(ctx context.Context, pattern string) []string {
	if !r.enabled() {
		return nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("scan").Inc()
		r.logger.Debug().Err(err).Str("pattern", pattern).Msg("remote scan incomplete")
	}
	return keys
}
