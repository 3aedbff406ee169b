package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/veldtlabs/identity/internal/storage"
)

// Storage implements storage.Storage using an in-memory map. Intended for
// tests and ephemeral deployments.
type Storage struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// New creates a new in-memory storage instance.
func New() *Storage {
	return &Storage{
		blobs: make(map[string][]byte),
	}
}

// Save stores the blob bytes in memory.
func (s *Storage) Save(_ context.Context, key string, data io.Reader) (int64, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return 0, fmt.Errorf("read blob: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = buf

	return int64(len(buf)), nil
}

// Open returns a reader over the stored bytes.
func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf, exists := s.blobs[key]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

// Delete removes the blob from memory.
func (s *Storage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.blobs[key]; !exists {
		return storage.ErrNotFound
	}
	delete(s.blobs, key)
	return nil
}
