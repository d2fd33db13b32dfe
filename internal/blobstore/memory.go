// internal/blobstore/memory.go
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

type memoryBlob struct {
	filename    string
	contentType string
	data        []byte
}

// MemoryStore is a map-backed Store for tests and smoke runs.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

// NewMemoryStore returns an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]memoryBlob)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Put(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read blob %s: %w", filename, err)
	}

	blobID := uuid.NewString()
	s.mu.Lock()
	s.blobs[blobID] = memoryBlob{filename: filename, contentType: contentType, data: data}
	s.mu.Unlock()
	return blobID, nil
}

func (s *MemoryStore) Open(ctx context.Context, blobID string) (io.ReadCloser, error) {
	s.mu.RLock()
	blob, ok := s.blobs[blobID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(blob.data)), nil
}

func (s *MemoryStore) Delete(ctx context.Context, blobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[blobID]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, blobID)
	return nil
}

// Len reports the number of stored blobs. For tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}
