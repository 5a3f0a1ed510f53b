package blobstore

import (
	"context"
	"io"
	"testing"
)

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Put(ctx, "part.org1.room1.conn1.720p.0", []byte("fmp4-bytes")); err != nil {
		t.Fatalf("put: %v", err)
	}
	rc, err := s.Get(ctx, "part.org1.room1.conn1.720p.0")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "fmp4-bytes" {
		t.Fatalf("unexpected data %q", data)
	}
}

func TestMemoryStore_GetMissingKeyErrors(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "does.not.exist"); err == nil {
		t.Fatalf("expected error for missing key")
	}
}

// limitedStore simulates a storage backend that starts failing writes past
// a byte budget, mirroring alxayo-rtmp-go/internal/rtmp/media/recorder_test.go's
// limitedWriter disk-full simulation.
type limitedStore struct {
	*MemoryStore
	remaining int
}

func (s *limitedStore) Put(ctx context.Context, key string, data []byte) error {
	if len(data) > s.remaining {
		return io.ErrShortWrite
	}
	s.remaining -= len(data)
	return s.MemoryStore.Put(ctx, key, data)
}

func TestLimitedStore_PutFailsPastBudget(t *testing.T) {
	s := &limitedStore{MemoryStore: NewMemoryStore(), remaining: 4}
	ctx := context.Background()
	if err := s.Put(ctx, "init.org1.room1.conn1.720p", []byte("ok")); err != nil {
		t.Fatalf("unexpected error within budget: %v", err)
	}
	if err := s.Put(ctx, "part.org1.room1.conn1.720p.0", []byte("too-large")); err == nil {
		t.Fatalf("expected error once budget is exceeded")
	}
}
