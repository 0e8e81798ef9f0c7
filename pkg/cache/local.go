package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// localStore is the bounded in-process fallback tier.
//
// It pairs an LRU map with a tag index (tag -> set of keys). Both structures
// are mutated under a single mutex so no caller can ever observe an entry
// without consistent tag membership. The LRU eviction callback funnels every
// removal path (capacity eviction, explicit remove, expiry) through the same
// index cleanup.
type localStore struct {
	mu   sync.Mutex
	lru  *simplelru.LRU[string, *Entry]
	tags map[string]map[string]struct{}
}

func newLocalStore(capacity int) (*localStore, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("local cache capacity must be positive, got %d", capacity)
	}

	l := &localStore{
		tags: make(map[string]map[string]struct{}),
	}

	// The callback runs inside Add/Remove while l.mu is already held.
	lru, err := simplelru.NewLRU(capacity, func(key string, entry *Entry) {
		l.deindex(key, entry.Tags)
	})
	if err != nil {
		return nil, fmt.Errorf("create local lru: %w", err)
	}
	l.lru = lru

	return l, nil
}

// get returns the entry for key. Expired entries are removed and reported
// as a miss.
func (l *localStore) get(key string) (*Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.lru.Get(key)
	if !ok {
		return nil, false
	}
	if entry.IsExpired() {
		l.lru.Remove(key)
		return nil, false
	}
	return entry, true
}

// set stores the entry and indexes its tags. At capacity the oldest entry is
// evicted first, with its tag memberships cleaned by the eviction callback.
func (l *localStore) set(key string, entry *Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Overwrites do not trigger the eviction callback, so drop the old
	// entry's tag memberships explicitly.
	if old, ok := l.lru.Peek(key); ok {
		l.deindex(key, old.Tags)
	}

	if evicted := l.lru.Add(key, entry); evicted {
		CacheEvictions.Inc()
	}
	l.index(key, entry.Tags)
}

// touch resets the TTL on a live entry and returns whether one was updated.
func (l *localStore) touch(key string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.lru.Peek(key)
	if !ok || entry.IsExpired() {
		return false
	}
	entry.ExpiresAt = time.Now().Add(ttl)
	return true
}

// delete removes key and returns whether it was present.
func (l *localStore) delete(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lru.Remove(key)
}

// clear removes every entry and tag bucket.
func (l *localStore) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lru.Purge()
	l.tags = make(map[string]map[string]struct{})
}

// purge removes all entries whose key contains substr and returns the count.
func (l *localStore) purge(substr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for _, key := range l.lru.Keys() {
		if strings.Contains(key, substr) {
			l.lru.Remove(key)
			removed++
		}
	}
	return removed
}

// invalidateTag removes every entry indexed under tag and returns the count.
// An unknown tag is a no-op.
func (l *localStore) invalidateTag(tag string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.tags[tag]
	if !ok {
		return 0
	}

	keys := make([]string, 0, len(bucket))
	for key := range bucket {
		keys = append(keys, key)
	}

	removed := 0
	for _, key := range keys {
		if l.lru.Remove(key) {
			removed++
		}
	}
	return removed
}

// keysForTag returns a snapshot of the keys indexed under tag.
func (l *localStore) keysForTag(tag string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.tags[tag]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(bucket))
	for key := range bucket {
		keys = append(keys, key)
	}
	return keys
}

// tagCount returns the number of live tag buckets.
func (l *localStore) tagCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tags)
}

// len returns the number of stored entries.
func (l *localStore) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lru.Len()
}

// index adds key to each tag bucket. Caller must hold l.mu.
func (l *localStore) index(key string, tags []string) {
	for _, tag := range tags {
		bucket, ok := l.tags[tag]
		if !ok {
			bucket = make(map[string]struct{})
			l.tags[tag] = bucket
		}
		bucket[key] = struct{}{}
	}
}

// deindex removes key from each tag bucket, dropping buckets that become
// empty. Caller must hold l.mu.
func (l *localStore) deindex(key string, tags []string) {
	for _, tag := range tags {
		bucket, ok := l.tags[tag]
		if !ok {
			continue
		}
		delete(bucket, key)
		if len(bucket) == 0 {
			delete(l.tags, tag)
		}
	}
}
