// Package blobstore implements the Blob Store contract (spec.md §4.5):
// content-addressed, immutable-once-written key/byte-stream storage for
// init segments, parts, and screenshots.
package blobstore

import (
	"context"
	"io"
)

// Store is the Blob Store contract.
type Store interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, data []byte) error
}
