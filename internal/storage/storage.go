package storage

import (
	"context"
	"io"
)

// ObjectStore is the blob backend for uploaded files. Metadata lives in the
// database; only raw bytes go through here.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
