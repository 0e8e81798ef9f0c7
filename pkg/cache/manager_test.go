package cache

import (
	"context"
	"testing"
	"time"

	"github.com/velora/storefront-cache/internal/testutil"
	"github.com/velora/storefront-cache/pkg/ratelimit"
)

func newLocalManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(Options{LocalCapacity: 100})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestManager_SetAndGet(t *testing.T) {
	m := newLocalManager(t)
	ctx := context.Background()

	key := GenerateKey("GET", "https://shop.example/products")
	body := []byte(`{"products":[]}`)
	headers := map[string]string{"Content-Type": "application/json"}

	stored := m.Set(ctx, key, body, 5*time.Minute, headers, []string{"products"})
	if stored.ETag != GenerateETag(body) {
		t.Errorf("Stored ETag = %q, want %q", stored.ETag, GenerateETag(body))
	}

	entry, err := m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(entry.Body) != string(body) {
		t.Errorf("Body = %q, want %q", entry.Body, body)
	}
	if entry.ETag != stored.ETag {
		t.Errorf("ETag = %q, want stable %q", entry.ETag, stored.ETag)
	}
	if entry.Headers["Content-Type"] != "application/json" {
		t.Errorf("Headers not round-tripped: %v", entry.Headers)
	}
}

func TestManager_GetMiss(t *testing.T) {
	m := newLocalManager(t)

	_, err := m.Get(context.Background(), "page:unknown")
	if err != ErrCacheMiss {
		t.Errorf("Get = %v, want ErrCacheMiss", err)
	}
}

func TestManager_GetExpired(t *testing.T) {
	m := newLocalManager(t)
	ctx := context.Background()

	key := GenerateKey("GET", "https://shop.example/flash-sale")
	m.Set(ctx, key, []byte("x"), 10*time.Millisecond, nil, nil)

	time.Sleep(20 * time.Millisecond)

	if _, err := m.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("Get after TTL = %v, want ErrCacheMiss", err)
	}
}

func TestManager_SetMulti(t *testing.T) {
	m := newLocalManager(t)
	ctx := context.Background()

	entries := m.SetMulti(ctx, map[string][]byte{
		"page:k1": []byte("one"),
		"page:k2": []byte("two"),
	}, time.Minute, []string{"bulk"})

	if len(entries) != 2 {
		t.Fatalf("SetMulti returned %d entries, want 2", len(entries))
	}
	if entries["page:k1"].ETag != GenerateETag([]byte("one")) {
		t.Errorf("ETag = %q, want computed from body", entries["page:k1"].ETag)
	}

	for _, key := range []string{"page:k1", "page:k2"} {
		if _, err := m.Get(ctx, key); err != nil {
			t.Errorf("Get(%s) after SetMulti: %v", key, err)
		}
	}
	if m.Stats().Sets != 2 {
		t.Errorf("Sets = %d, want 2", m.Stats().Sets)
	}

	// The shared tag covers every entry of the batch.
	if removed := m.InvalidateByTags(ctx, []string{"bulk"}); removed != 2 {
		t.Errorf("InvalidateByTags removed %d, want 2", removed)
	}
}

func TestManager_Expire(t *testing.T) {
	m := newLocalManager(t)
	ctx := context.Background()

	key := GenerateKey("GET", "https://shop.example/flash-sale")
	m.Set(ctx, key, []byte("x"), 30*time.Millisecond, nil, nil)

	if !m.Expire(ctx, key, time.Minute) {
		t.Fatal("Expire on a live entry should report an update")
	}

	time.Sleep(50 * time.Millisecond)
	if _, err := m.Get(ctx, key); err != nil {
		t.Errorf("Get after Expire extension: %v", err)
	}

	if m.Expire(ctx, "page:unknown", time.Minute) {
		t.Error("Expire on an unknown key should report no update")
	}
}

func TestManager_Delete(t *testing.T) {
	m := newLocalManager(t)
	ctx := context.Background()

	key := GenerateKey("GET", "https://shop.example/products")
	m.Set(ctx, key, []byte("x"), time.Minute, nil, nil)
	m.Delete(ctx, key)

	if _, err := m.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("Get after delete = %v, want ErrCacheMiss", err)
	}
}

func TestManager_InvalidateByTags(t *testing.T) {
	m := newLocalManager(t)
	ctx := context.Background()

	k1 := GenerateKey("GET", "https://shop.example/products/1")
	k2 := GenerateKey("GET", "https://shop.example/products/2")
	k3 := GenerateKey("GET", "https://shop.example/orders")

	m.Set(ctx, k1, []byte("p1"), time.Minute, nil, []string{"products", "product:1"})
	m.Set(ctx, k2, []byte("p2"), time.Minute, nil, []string{"products"})
	m.Set(ctx, k3, []byte("o"), time.Minute, nil, []string{"orders"})

	removed := m.InvalidateByTags(ctx, []string{"products"})
	if removed != 2 {
		t.Errorf("InvalidateByTags removed %d, want 2", removed)
	}

	if _, err := m.Get(ctx, k1); err != ErrCacheMiss {
		t.Error("k1 should be invalidated")
	}
	if _, err := m.Get(ctx, k2); err != ErrCacheMiss {
		t.Error("k2 should be invalidated")
	}
	if _, err := m.Get(ctx, k3); err != nil {
		t.Error("k3 should survive")
	}
}

func TestManager_InvalidateByTags_Idempotent(t *testing.T) {
	m := newLocalManager(t)

	if removed := m.InvalidateByTags(context.Background(), []string{"nothing-here"}); removed != 0 {
		t.Errorf("Invalidating empty tag removed %d, want 0", removed)
	}
}

func TestManager_Purge(t *testing.T) {
	m := newLocalManager(t)
	ctx := context.Background()

	m.Set(ctx, "page:aaa-products", []byte("x"), time.Minute, nil, nil)
	m.Set(ctx, "page:bbb-orders", []byte("x"), time.Minute, nil, nil)

	if removed := m.Purge(ctx, "products"); removed != 1 {
		t.Errorf("Purge removed %d, want 1", removed)
	}
	if _, err := m.Get(ctx, "page:bbb-orders"); err != nil {
		t.Error("Non-matching entry should survive purge")
	}
}

func TestManager_Clear(t *testing.T) {
	m := newLocalManager(t)
	ctx := context.Background()

	m.Set(ctx, "page:k1", []byte("x"), time.Minute, nil, []string{"t"})
	m.Clear(ctx)

	if _, err := m.Get(ctx, "page:k1"); err != ErrCacheMiss {
		t.Error("Entries should be gone after Clear")
	}
}

func TestManager_Stats(t *testing.T) {
	m := newLocalManager(t)
	ctx := context.Background()

	key := GenerateKey("GET", "https://shop.example/products")
	m.Set(ctx, key, []byte("x"), time.Minute, nil, nil)

	m.Get(ctx, key)            // hit
	m.Get(ctx, "page:missing") // miss

	stats := m.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Sets != 1 {
		t.Errorf("Stats = %+v, want 1 hit, 1 miss, 1 set", stats)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", stats.HitRate)
	}
	if stats.RemoteTier {
		t.Error("RemoteTier should be false without Redis")
	}
}

func TestManager_ExistsCountsStats(t *testing.T) {
	m := newLocalManager(t)
	ctx := context.Background()

	m.Set(ctx, "page:k1", []byte("x"), time.Minute, nil, nil)

	if !m.Exists(ctx, "page:k1") {
		t.Error("Exists = false for a live entry")
	}
	if m.Exists(ctx, "page:missing") {
		t.Error("Exists = true for an unknown key")
	}

	stats := m.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Stats = %+v, want Exists to count 1 hit and 1 miss", stats)
	}
}

func TestManager_GetMultiCountsStats(t *testing.T) {
	m := newLocalManager(t)
	ctx := context.Background()

	m.Set(ctx, "page:k1", []byte("one"), time.Minute, nil, nil)
	m.Set(ctx, "page:k2", []byte("two"), time.Minute, nil, nil)

	result := m.GetMulti(ctx, "page:k1", "page:k2", "page:missing")
	if len(result) != 2 {
		t.Fatalf("GetMulti returned %d entries, want 2", len(result))
	}

	stats := m.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("Stats = %+v, want GetMulti to count 2 hits and 1 miss", stats)
	}
}

func TestManager_CheckRateLimit(t *testing.T) {
	limiter := ratelimit.New(2, time.Minute)
	m, err := NewManager(Options{LocalCapacity: 10, Limiter: limiter})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	for i := 0; i < 2; i++ {
		if d := m.CheckRateLimit("10.0.0.1"); !d.Allowed {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}
	if d := m.CheckRateLimit("10.0.0.1"); d.Allowed {
		t.Error("Third request should be denied")
	}
	if d := m.CheckRateLimit("10.0.0.2"); !d.Allowed {
		t.Error("Other clients should be unaffected")
	}
}

func TestManager_CheckRateLimit_Disabled(t *testing.T) {
	m := newLocalManager(t)

	if d := m.CheckRateLimit("10.0.0.1"); !d.Allowed {
		t.Error("Without a limiter every request is allowed")
	}
}

// Remote tier tests run only when a local Redis is available.

func TestManager_RemoteTier(t *testing.T) {
	client := testutil.SetupRedis(t)

	m, err := NewManager(Options{Redis: client, LocalCapacity: 10})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := context.Background()

	key := GenerateKey("GET", "https://shop.example/products")
	m.Set(ctx, key, []byte("remote"), time.Minute, nil, []string{"products"})

	entry, err := m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(entry.Body) != "remote" {
		t.Errorf("Body = %q, want %q", entry.Body, "remote")
	}

	stats := m.Stats()
	if stats.LocalEntries != 0 {
		t.Errorf("Entry should live in the remote tier only, local entries = %d", stats.LocalEntries)
	}

	if removed := m.InvalidateByTags(ctx, []string{"products"}); removed != 1 {
		t.Errorf("InvalidateByTags removed %d, want 1", removed)
	}
	if _, err := m.Get(ctx, key); err != ErrCacheMiss {
		t.Error("Entry should be invalidated in the remote tier")
	}
}

func TestManager_RemoteSetMulti(t *testing.T) {
	client := testutil.SetupRedis(t)

	m, err := NewManager(Options{Redis: client, LocalCapacity: 10})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := context.Background()

	m.SetMulti(ctx, map[string][]byte{
		"page:b1": []byte("one"),
		"page:b2": []byte("two"),
	}, time.Minute, []string{"bulk"})

	result := m.GetMulti(ctx, "page:b1", "page:b2")
	if len(result) != 2 {
		t.Fatalf("GetMulti returned %d entries, want 2", len(result))
	}
	if m.Stats().LocalEntries != 0 {
		t.Error("Batch should live in the remote tier only")
	}

	if removed := m.InvalidateByTags(ctx, []string{"bulk"}); removed != 2 {
		t.Errorf("InvalidateByTags removed %d, want 2", removed)
	}
}

func TestManager_RemoteFailureFallsBackToLocal(t *testing.T) {
	client := testutil.SetupRedis(t)

	m, err := NewManager(Options{Redis: client, LocalCapacity: 10})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := context.Background()

	// Kill the remote tier, then write: the set must degrade to local.
	client.Close()

	key := GenerateKey("GET", "https://shop.example/products")
	m.Set(ctx, key, []byte("fallback"), time.Minute, nil, nil)

	entry, err := m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after remote failure: %v", err)
	}
	if string(entry.Body) != "fallback" {
		t.Errorf("Body = %q, want %q", entry.Body, "fallback")
	}
}
