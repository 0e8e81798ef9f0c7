package cache

import (
	"time"
)

// Entry represents a cached response.
type Entry struct {
	// Body is the response body.
	Body []byte `json:"body"`

	// ETag is the content fingerprint of Body (see GenerateETag).
	ETag string `json:"etag"`

	// Headers are the response headers worth replaying (content type etc.).
	Headers map[string]string `json:"headers,omitempty"`

	// Tags are the invalidation tags this entry belongs to.
	Tags []string `json:"tags,omitempty"`

	// ExpiresAt is when the entry becomes stale.
	ExpiresAt time.Time `json:"expires_at"`

	// CachedAt is when the entry was stored.
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}
