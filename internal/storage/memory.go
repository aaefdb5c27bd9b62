package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	cacheerr "github.com/nxcache/nxcache/internal/errors"
)

// MemoryBackend implements Backend using an in-memory map. It mirrors
// object-store semantics: Put overwrites silently, so the write-once
// contract still depends on the router's exists check. Used by tests and
// local runs.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		objects: make(map[string][]byte),
	}
}

// Exists reports whether the key is stored.
func (b *MemoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[key]
	return ok, nil
}

// Put drains the reader and stores the bytes under the key.
func (b *MemoryBackend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: reading object data: %w", cacheerr.ErrBackendUnavailable, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

// Get returns a reader over a copy of the stored bytes.
func (b *MemoryBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", cacheerr.ErrNotFound, key)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return io.NopCloser(bytes.NewReader(cp)), nil
}

// Ping always succeeds.
func (b *MemoryBackend) Ping(ctx context.Context) error {
	return nil
}

// Len returns the number of stored objects. Test helper.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

// Ensure MemoryBackend implements Backend at compile time.
var _ Backend = (*MemoryBackend)(nil)
