package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// KeyPrefix namespaces every generated page-cache key in the shared store.
const KeyPrefix = "page:"

// GenerateKey derives a deterministic cache key from an HTTP method and URL.
// The URL is normalized (lowercased scheme/host, sorted query parameters,
// trailing slash trimmed) before hashing, so equivalent requests always map
// to the same key.
func GenerateKey(method, rawURL string) string {
	normalized := normalizeURL(rawURL)
	sum := sha256.Sum256([]byte(strings.ToUpper(method) + " " + normalized))
	return KeyPrefix + hex.EncodeToString(sum[:])
}

// GenerateETag computes a content fingerprint for a response body.
// Identical bodies always produce identical ETags.
func GenerateETag(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf("%q", hex.EncodeToString(sum[:16]))
}

// normalizeURL canonicalizes a URL for key generation.
// Unparseable URLs are used verbatim so key generation never fails.
func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	// Encode sorts query parameters, making the key order-independent.
	u.RawQuery = u.Query().Encode()

	return u.String()
}
