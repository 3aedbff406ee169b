package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no blob exists for the given key.
var ErrNotFound = errors.New("storage: object not found")

// Storage defines the interface for file blob storage backends.
type Storage interface {
	// Save writes the blob under the given key, returning bytes written.
	Save(ctx context.Context, key string, data io.Reader) (int64, error)

	// Open returns a reader for the blob. The caller must close it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the blob by its key.
	Delete(ctx context.Context, key string) error
}
