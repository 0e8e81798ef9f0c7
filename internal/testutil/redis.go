// Package testutil provides shared helpers for engine tests.
package testutil

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

// SetupRedis creates a Redis client for tests against a dedicated DB.
// The test is skipped when no local Redis is available, so the remote-tier
// tests degrade exactly like the tier itself.
func SetupRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}
