// Package metadata implements the Metadata Store contract (spec.md §4.4):
// key→value with watch, last-writer-wins, tolerant of missing keys.
package metadata

import (
	"context"
	"time"
)

// Store is the Metadata Store contract. Implementations must tolerate
// missing keys as "not yet published" (Get returns ok=false, no error).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Watch(ctx context.Context, key string) (<-chan []byte, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
