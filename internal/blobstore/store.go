// Package blobstore stores downloaded resource payloads addressed by
// opaque blob IDs. GridFS backs production; an in-memory store backs
// tests and smoke runs.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
)

// ErrNotFound is returned when a blob ID does not exist.
var ErrNotFound = errors.New("blobstore: not found")

// Store is the blob-store contract. Put streams the reader to storage
// and returns the new blob's ID.
type Store interface {
	Put(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
	Open(ctx context.Context, blobID string) (io.ReadCloser, error)
	Delete(ctx context.Context, blobID string) error
	Close(ctx context.Context) error
}

// New builds a Store from config. Supported providers: mongo (GridFS),
// memory.
func New(ctx context.Context, cfg config.StoreConfig, logger *logging.Logger) (Store, error) {
	switch cfg.Provider {
	case "mongo":
		return NewGridFSStore(ctx, cfg.Mongo, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown blobstore provider: %q", cfg.Provider)
	}
}
