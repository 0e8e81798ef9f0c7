package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/velora/storefront-cache/pkg/cache"
	"github.com/velora/storefront-cache/pkg/domaincache"
	"github.com/velora/storefront-cache/pkg/orderlimit"
	"github.com/velora/storefront-cache/pkg/webhook"
)

func newTestServer(t *testing.T, secret string) (http.Handler, *cache.Manager, *domaincache.Cache) {
	t.Helper()

	manager, err := cache.NewManager(cache.Options{LocalCapacity: 100})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	domain := domaincache.New(nil)
	t.Cleanup(domain.Close)

	limiter := orderlimit.New(orderlimit.DefaultConfig(), domain)
	t.Cleanup(limiter.Close)

	pipeline := webhook.NewPipeline(secret, manager, domain, nil)

	return newRouter(manager, domain, limiter, pipeline), manager, domain
}

func TestHealthEndpoint(t *testing.T) {
	router, _, _ := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", w.Code)
	}
	if w.Body.String() != "OK" {
		t.Errorf("Body = %q, want OK", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _, _ := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "storecache_") {
		t.Error("Expected engine metrics in /metrics output")
	}
}

func TestStatsEndpoint(t *testing.T) {
	router, manager, _ := newTestServer(t, "")

	manager.Set(context.Background(), "page:k1", []byte("x"), time.Minute, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", w.Code)
	}
	for _, section := range []string{"page_cache", "domain_cache", "order_limits"} {
		if !strings.Contains(w.Body.String(), section) {
			t.Errorf("Stats output missing %q section", section)
		}
	}
}

func TestWebhookEndpoint_EndToEnd(t *testing.T) {
	secret := "topsecret"
	router, manager, domain := newTestServer(t, secret)
	ctx := context.Background()

	// Seed both caches with product data.
	pageKey := cache.GenerateKey(http.MethodGet, "https://shop.example/products/42")
	manager.Set(ctx, pageKey, []byte("product page"), time.Minute, nil, []string{"products"})
	domain.Set(domaincache.CategoryProducts, "42", []byte(`{"name":"widget"}`), nil, []string{"products"})

	body := `{"id":"wh-1","resourceType":"product","action":"updated","data":{"id":"42"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/commerce", strings.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, webhook.Sign(secret, []byte(body)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}

	if _, err := manager.Get(ctx, pageKey); err != cache.ErrCacheMiss {
		t.Error("Page cache entry should be invalidated by the webhook")
	}
	if _, ok := domain.Get(domaincache.CategoryProducts, "42", nil); ok {
		t.Error("Domain cache entry should be invalidated by the webhook")
	}
}

func TestWebhookEndpoint_BadSignature(t *testing.T) {
	router, _, _ := newTestServer(t, "topsecret")

	body := `{"id":"wh-1","resourceType":"product","action":"updated"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/commerce", strings.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, webhook.Sign("wrong", []byte(body)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", w.Code)
	}
}
