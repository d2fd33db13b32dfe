// internal/blobstore/gridfs.go
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
)

// GridFSStore stores blobs in a MongoDB GridFS bucket. Blob IDs are
// UUID strings used as the GridFS file _id.
type GridFSStore struct {
	client *mongo.Client
	bucket *gridfs.Bucket
	logger *logging.Logger
}

var _ Store = (*GridFSStore)(nil)

// NewGridFSStore connects to MongoDB and opens the default bucket.
func NewGridFSStore(ctx context.Context, cfg config.MongoConfig, logger *logging.Logger) (*GridFSStore, error) {
	if !cfg.URI.IsSet() {
		return nil, fmt.Errorf("mongo uri is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout.Duration())
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI.Value()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	bucket, err := gridfs.NewBucket(client.Database(cfg.Database))
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to open gridfs bucket: %w", err)
	}

	return &GridFSStore{client: client, bucket: bucket, logger: logger}, nil
}

func (s *GridFSStore) Put(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	blobID := uuid.NewString()

	opts := options.GridFSUpload().SetMetadata(bson.M{"content_type": contentType})
	stream, err := s.bucket.OpenUploadStreamWithID(blobID, filename, opts)
	if err != nil {
		return "", fmt.Errorf("failed to open upload stream: %w", err)
	}

	if _, err := io.Copy(stream, r); err != nil {
		_ = stream.Abort()
		return "", fmt.Errorf("failed to write blob %s: %w", filename, err)
	}
	if err := stream.Close(); err != nil {
		return "", fmt.Errorf("failed to close upload stream: %w", err)
	}

	s.logger.Debug(ctx, "stored blob",
		zap.String("blob_id", blobID),
		zap.String("filename", filename),
		zap.String("content_type", contentType))
	return blobID, nil
}

func (s *GridFSStore) Open(ctx context.Context, blobID string) (io.ReadCloser, error) {
	stream, err := s.bucket.OpenDownloadStream(blobID)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", blobID, err)
	}
	return stream, nil
}

func (s *GridFSStore) Delete(ctx context.Context, blobID string) error {
	err := s.bucket.Delete(blobID)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", blobID, err)
	}
	return nil
}

func (s *GridFSStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
