//go:build integration

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		redisContainer.Terminate(ctx)
	})

	return client
}

func TestManager_Integration_RedisLayer(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	key := Key{Host: "localhost:5000", Endpoint: "/api/invoices"}

	writer := NewManager(client, time.Minute)
	entry := &Entry{
		Data:       []byte(`{"success": true, "data": []}`),
		ETag:       `"v1"`,
		Expires:    time.Now().Add(5 * time.Minute),
		StatusCode: 200,
	}
	if err := writer.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// a second manager has an empty memory layer and must read through Redis
	reader := NewManager(client, time.Minute)
	got, err := reader.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get via redis failed: %v", err)
	}
	if got.ETag != `"v1"` {
		t.Errorf("ETag = %q, want %q", got.ETag, `"v1"`)
	}

	ttl, err := client.TTL(ctx, key.String()).Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 || ttl > 5*time.Minute {
		t.Errorf("redis TTL = %v, want within (0, 5m]", ttl)
	}

	if err := reader.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := NewManager(client, time.Minute).Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}

func TestManager_Integration_CorruptEntry(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	key := Key{Endpoint: "/api/broken"}

	if err := client.Set(ctx, key.String(), "not json", time.Minute).Err(); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	_, err := NewManager(client, time.Minute).Get(ctx, key)
	if !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Expected ErrInvalidEntry, got %v", err)
	}
}
