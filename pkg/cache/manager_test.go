package cache

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis on DB 15 and skips when none is running.
// The integration build tag runs the same checks against a container.
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

	manager := NewManager(client, Options{})
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
	if manager.DefaultTTL() != DefaultTTL {
		t.Errorf("DefaultTTL() = %v, want %v", manager.DefaultTTL(), DefaultTTL)
	}

	custom := NewManager(client, Options{DefaultTTL: time.Hour})
	if custom.DefaultTTL() != time.Hour {
		t.Errorf("DefaultTTL() = %v, want 1h", custom.DefaultTTL())
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil, Options{})
}

func TestManager_SetAndGet(t *testing.T) {
	manager := NewManager(setupTestRedis(t), Options{})
	runSetAndGet(t, manager)
}

func TestManager_Get_CacheMiss(t *testing.T) {
	manager := NewManager(setupTestRedis(t), Options{})

	_, err := manager.Get(context.Background(), CacheKey{Endpoint: "/conversations/missing"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Set_ExpiredEntry(t *testing.T) {
	manager := NewManager(setupTestRedis(t), Options{})
	ctx := context.Background()
	key := CacheKey{Endpoint: "/conversations/1"}

	entry := &CacheEntry{
		Data:    []byte(`{}`),
		Expires: time.Now().Add(-1 * time.Hour),
	}
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}
}

func TestManager_Delete(t *testing.T) {
	manager := NewManager(setupTestRedis(t), Options{})
	ctx := context.Background()
	key := CacheKey{Endpoint: "/conversations/1"}

	entry := &CacheEntry{
		Data:    []byte(`{}`),
		ETag:    `"v1"`,
		Expires: time.Now().Add(5 * time.Minute),
	}
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}

func TestManager_Touch(t *testing.T) {
	manager := NewManager(setupTestRedis(t), Options{DefaultTTL: time.Hour})
	runTouch(t, manager)
}

func TestManager_Touch_Missing(t *testing.T) {
	manager := NewManager(setupTestRedis(t), Options{})

	err := manager.Touch(context.Background(), CacheKey{Endpoint: "/conversations/none"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Touch() error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()
	manager := NewManager(client, Options{})

	if err := manager.Set(context.Background(), CacheKey{}, nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}

// runSetAndGet is shared with the container-backed integration test.
func runSetAndGet(t *testing.T, manager *Manager) {
	t.Helper()
	ctx := context.Background()

	key := CacheKey{
		Endpoint: "/conversations/123",
		Version:  "2.11",
	}
	entry := &CacheEntry{
		Data:         []byte(`{"type":"conversation","id":"123"}`),
		ETag:         `W/"abc123"`,
		Expires:      time.Now().Add(5 * time.Minute),
		LastModified: time.Now().Add(-1 * time.Hour),
		StatusCode:   200,
		Headers:      http.Header{"Content-Type": []string{"application/json"}},
		CachedAt:     time.Now(),
	}

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	retrieved, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(retrieved.Data) != string(entry.Data) {
		t.Errorf("Data mismatch: got %s, want %s", retrieved.Data, entry.Data)
	}
	if retrieved.ETag != entry.ETag {
		t.Errorf("ETag mismatch: got %s, want %s", retrieved.ETag, entry.ETag)
	}
	if retrieved.StatusCode != entry.StatusCode {
		t.Errorf("StatusCode mismatch: got %d, want %d", retrieved.StatusCode, entry.StatusCode)
	}
}

// runTouch is shared with the container-backed integration test.
func runTouch(t *testing.T, manager *Manager) {
	t.Helper()
	ctx := context.Background()
	key := CacheKey{Endpoint: "/conversations/123"}

	entry := &CacheEntry{
		Data:    []byte(`{}`),
		ETag:    `"v1"`,
		Expires: time.Now().Add(1 * time.Minute),
	}
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := manager.Touch(ctx, key); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	retrieved, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after Touch failed: %v", err)
	}

	want := time.Now().Add(manager.DefaultTTL())
	diff := retrieved.Expires.Sub(want)
	if diff < -2*time.Second || diff > 2*time.Second {
		t.Errorf("Expires after Touch = %v, want about %v", retrieved.Expires, want)
	}
}
