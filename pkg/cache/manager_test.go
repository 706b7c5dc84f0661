package cache

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis and skips when none is running.
// The integration suite uses testcontainers instead.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
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

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client, time.Minute)
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
	if manager.TTL() != time.Minute {
		t.Errorf("TTL() = %v, want 1m", manager.TTL())
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil, time.Minute)
}

func live(body string, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{Body: []byte(body), StoredAt: now, ExpiresAt: now.Add(ttl)}
}

func TestManager_SetAndGet(t *testing.T) {
	manager := NewManager(setupTestRedis(t), 5*time.Minute)
	ctx := context.Background()

	key := CacheKey{Tenant: "t", Environment: "sandbox", Endpoint: "/companies(1)/customers"}
	entry := live(`{"value":[{"id":"1"}]}`, 5*time.Minute)
	entry.ETag = `W/"abc"`
	entry.ContentType = "application/json"

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Body) != string(entry.Body) || got.ETag != entry.ETag || got.ContentType != entry.ContentType {
		t.Errorf("Get() = %+v, want %+v", got, entry)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	manager := NewManager(setupTestRedis(t), time.Minute)

	_, err := manager.Get(context.Background(), CacheKey{Endpoint: "/missing"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Get_CorruptEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()
	key := CacheKey{Endpoint: "/corrupt"}

	client.Set(ctx, key.String(), "not json", time.Minute)

	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("Expected ErrInvalidEntry, got %v", err)
	}
	if n, _ := client.Exists(ctx, key.String()).Result(); n != 0 {
		t.Error("corrupt entry should be removed")
	}
}

func TestManager_Get_ClockSkew(t *testing.T) {
	manager := NewManager(setupTestRedis(t), time.Minute)
	ctx := context.Background()
	key := CacheKey{Endpoint: "/skew"}

	if err := manager.Set(ctx, key, live(`{}`, time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	manager.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss past ExpiresAt, got %v", err)
	}
}

func TestManager_Set_ExpiredEntrySkipped(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()
	key := CacheKey{Endpoint: "/expired"}

	if err := manager.Set(ctx, key, live(`{}`, -time.Hour)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if n, _ := client.Exists(ctx, key.String()).Result(); n != 0 {
		t.Error("expired entry was written")
	}
}

func TestManager_Delete(t *testing.T) {
	manager := NewManager(setupTestRedis(t), time.Minute)
	ctx := context.Background()
	key := CacheKey{Endpoint: "/delete-me"}

	if err := manager.Set(ctx, key, live(`{}`, time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}

func TestManager_Refresh(t *testing.T) {
	manager := NewManager(setupTestRedis(t), 10*time.Minute)
	ctx := context.Background()
	key := CacheKey{Endpoint: "/refresh"}

	if err := manager.Set(ctx, key, live(`{}`, time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := manager.Refresh(ctx, key); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after Refresh failed: %v", err)
	}
	if rem := got.Remaining(time.Now()); rem < 9*time.Minute {
		t.Errorf("Remaining after Refresh = %v, want about 10m", rem)
	}
}

func TestManager_Invalidate(t *testing.T) {
	manager := NewManager(setupTestRedis(t), time.Minute)
	ctx := context.Background()

	keys := []CacheKey{
		{Tenant: "t", Environment: "e", Endpoint: "/companies(1)/customers"},
		{Tenant: "t", Environment: "e", Endpoint: "/companies(1)/customers(9)"},
		{Tenant: "t", Environment: "e", Endpoint: "/companies(1)/salesOrders", QueryParams: url.Values{"$top": {"5"}}},
	}
	other := CacheKey{Tenant: "t", Environment: "e", Endpoint: "/companies(2)/customers"}
	for _, k := range append(keys, other) {
		if err := manager.Set(ctx, k, live(`{}`, time.Minute)); err != nil {
			t.Fatalf("Set(%s) failed: %v", k, err)
		}
	}

	write := CacheKey{Tenant: "t", Environment: "e", Endpoint: "/companies(1)/customers(9)"}
	n, err := manager.Invalidate(ctx, write)
	if err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if n != len(keys) {
		t.Errorf("Invalidate removed %d entries, want %d", n, len(keys))
	}
	for _, k := range keys {
		if _, err := manager.Get(ctx, k); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("%s still cached", k)
		}
	}
	if _, err := manager.Get(ctx, other); err != nil {
		t.Errorf("other company entry removed: %v", err)
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	manager := NewManager(setupTestRedis(t), time.Minute)
	if err := manager.Set(context.Background(), CacheKey{Endpoint: "/x"}, nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}
