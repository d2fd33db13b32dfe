// Package docstore persists curation state: requests, resources,
// datasets, assets, cards and chats. Two backends exist behind the
// Store interface, MongoDB for production and an in-memory map store
// for tests and smoke runs.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("docstore: not found")

// ResourceFilter narrows resource queries. Zero fields match everything.
type ResourceFilter struct {
	RequestID string
	Query     string
	Modality  string
	Statuses  []ResourceStatus
	HasBlob   *bool // true: content_blob_id set; false: unset
	Limit     int64
}

// Store is the document-store contract. All writes are single-document;
// callers must not run concurrent pipelines for the same request_id.
type Store interface {
	// Requests. UpsertRequest keys on RequestID and preserves CreatedAt
	// on update.
	UpsertRequest(ctx context.Context, req *Request) error
	GetRequest(ctx context.Context, requestID string) (*Request, error)
	ListRequests(ctx context.Context) ([]Request, error)
	SetRequestStatus(ctx context.Context, requestID string, status RequestStatus) error
	SetRequestPersist(ctx context.Context, requestID string, persist bool) error
	// DeleteRequest removes the request and all of its resources.
	DeleteRequest(ctx context.Context, requestID string) error

	// Resources. UpsertResource keys on (RequestID, URL).
	UpsertResource(ctx context.Context, res *Resource) error
	CountResources(ctx context.Context, f ResourceFilter) (int64, error)
	ListResources(ctx context.Context, f ResourceFilter) ([]Resource, error)
	MarkResourceSampled(ctx context.Context, requestID, url string) error
	MarkResourceError(ctx context.Context, requestID, url, errMsg string) error
	MarkResourceDownloaded(ctx context.Context, requestID, url, blobID, contentType, filename string) error
	// ClearResourceBlob unsets content_blob_id after the underlying blob
	// has been deleted (persist=false exports).
	ClearResourceBlob(ctx context.Context, requestID, url string) error

	// Datasets and assets (image-slice path).
	InsertDataset(ctx context.Context, ds *Dataset) error
	GetDataset(ctx context.Context, datasetID string) (*Dataset, error)
	ListDatasets(ctx context.Context) ([]Dataset, error)
	// DeleteDataset removes the dataset and its assets.
	DeleteDataset(ctx context.Context, datasetID string) error
	InsertAssets(ctx context.Context, assets []Asset) error
	ListAssets(ctx context.Context, datasetID string) ([]Asset, error)

	// Cards are append-only.
	InsertCard(ctx context.Context, card *Card) error
	LatestCard(ctx context.Context, datasetID string) (*Card, error)

	// Chats.
	AppendChatMessage(ctx context.Context, chatID, title string, msg ChatMessage) error
	GetChat(ctx context.Context, chatID string) (*Chat, error)
	ListChats(ctx context.Context) ([]Chat, error)
	DeleteChat(ctx context.Context, chatID string) error

	Close(ctx context.Context) error
}

// New builds a Store from config. Supported providers: mongo, memory.
func New(ctx context.Context, cfg config.StoreConfig, logger *logging.Logger) (Store, error) {
	switch cfg.Provider {
	case "mongo":
		return NewMongoStore(ctx, cfg.Mongo, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown docstore provider: %q", cfg.Provider)
	}
}
