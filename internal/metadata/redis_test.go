package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewRedisStoreFromClient(client)
}

func TestRedisStore_PutGet(t *testing.T) {
	mr, store := setupMiniRedis(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()
	if err := store.Put(ctx, "manifest.org1.room1.conn1.720p", []byte("payload-1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	val, ok, err := store.Get(ctx, "manifest.org1.room1.conn1.720p")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || string(val) != "payload-1" {
		t.Fatalf("unexpected get result: %q ok=%v", val, ok)
	}
}

func TestRedisStore_GetMissingKeyIsNotAnError(t *testing.T) {
	mr, store := setupMiniRedis(t)
	defer mr.Close()
	defer store.Close()

	_, ok, err := store.Get(context.Background(), "does.not.exist")
	if err != nil {
		t.Fatalf("unexpected error for missing key: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for missing key")
	}
}

func TestRedisStore_WatchDeliversCurrentValueThenUpdates(t *testing.T) {
	mr, store := setupMiniRedis(t)
	defer mr.Close()
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := "manifest.org1.room1.conn1.720p"
	if err := store.Put(ctx, key, []byte("v1")); err != nil {
		t.Fatalf("put v1: %v", err)
	}

	ch, err := store.Watch(ctx, key)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	select {
	case v := <-ch:
		if string(v) != "v1" {
			t.Fatalf("expected initial value v1, got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for initial watch value")
	}

	if err := store.Put(ctx, key, []byte("v2")); err != nil {
		t.Fatalf("put v2: %v", err)
	}

	select {
	case v := <-ch:
		if string(v) != "v2" {
			t.Fatalf("expected updated value v2, got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for updated watch value")
	}
}
