// internal/docstore/models.go
package docstore

import "time"

// RequestStatus tracks a curation request through the pipeline.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestRunning   RequestStatus = "running"
	RequestCompleted RequestStatus = "completed"
	RequestFailed    RequestStatus = "failed"
)

// ResourceStatus is the lifecycle state of a discovered resource.
// discovered -> sampled -> downloaded, with error as a non-terminal
// side state (a later pass may pick the resource up again).
type ResourceStatus string

const (
	ResourceDiscovered ResourceStatus = "discovered"
	ResourceSampled    ResourceStatus = "sampled"
	ResourceDownloaded ResourceStatus = "downloaded"
	ResourceError      ResourceStatus = "error"
)

// Plan is an LLM-produced dataset plan: the modality, the class labels,
// and the search queries generated per class.
type Plan struct {
	Modality string              `bson:"type" json:"type"`
	Classes  []string            `bson:"classes" json:"classes"`
	Queries  map[string][]string `bson:"queries" json:"queries"`
	Total    int                 `bson:"total_items" json:"total_items"`
}

// Request is one dataset-curation request. RequestID is caller-supplied
// and unique; re-submitting the same ID updates the document in place.
type Request struct {
	RequestID string        `bson:"request_id" json:"request_id"`
	Query     string        `bson:"query" json:"query"`
	Plan      *Plan         `bson:"plan,omitempty" json:"plan,omitempty"`
	Persist   bool          `bson:"persist" json:"persist"`
	Status    RequestStatus `bson:"status" json:"status"`
	CreatedAt time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at" json:"updated_at"`
}

// Resource is one candidate item discovered for a request, unique on
// (request_id, url).
type Resource struct {
	RequestID string  `bson:"request_id" json:"request_id"`
	URL       string  `bson:"url" json:"url"`
	Query     string  `bson:"query" json:"query"`
	Modality  string  `bson:"modality" json:"modality"`
	Class     string  `bson:"class,omitempty" json:"class,omitempty"`
	Title     string  `bson:"title,omitempty" json:"title,omitempty"`
	Snippet   string  `bson:"snippet,omitempty" json:"snippet,omitempty"`
	Score     float64 `bson:"score,omitempty" json:"score,omitempty"`

	Status ResourceStatus `bson:"status" json:"status"`
	Error  string         `bson:"error,omitempty" json:"error,omitempty"`

	ContentBlobID string `bson:"content_blob_id,omitempty" json:"content_blob_id,omitempty"`
	ContentType   string `bson:"content_type,omitempty" json:"content_type,omitempty"`
	Filename      string `bson:"filename,omitempty" json:"filename,omitempty"`

	SampledAt    *time.Time `bson:"sampled_at,omitempty" json:"sampled_at,omitempty"`
	DownloadedAt *time.Time `bson:"downloaded_at,omitempty" json:"downloaded_at,omitempty"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updated_at"`
}

// DatasetSpec is the declared shape of an image-slice dataset.
type DatasetSpec struct {
	Classes []string `bson:"classes" json:"classes"`
	Total   int      `bson:"total" json:"total"`
	License string   `bson:"license,omitempty" json:"license,omitempty"`
}

// Dataset is a built image-slice dataset. Immutable after build except
// for deletion.
type Dataset struct {
	DatasetID   string         `bson:"dataset_id" json:"dataset_id"`
	Name        string         `bson:"name" json:"name"`
	Spec        DatasetSpec    `bson:"spec" json:"spec"`
	SliceStats  map[string]int `bson:"slice_stats" json:"slice_stats"`
	Provenance  []string       `bson:"provenance,omitempty" json:"provenance,omitempty"`
	ManifestSHA string         `bson:"manifest_sha,omitempty" json:"manifest_sha,omitempty"`
	CreatedAt   time.Time      `bson:"created_at" json:"created_at"`
}

// Asset is one cached image belonging to a Dataset.
type Asset struct {
	DatasetID string    `bson:"dataset_id" json:"dataset_id"`
	Class     string    `bson:"class" json:"class"`
	URI       string    `bson:"uri" json:"uri"` // local cache path
	URL       string    `bson:"url" json:"url"`
	SourceURL string    `bson:"source_url,omitempty" json:"source_url,omitempty"`
	Width     int       `bson:"width" json:"width"`
	Height    int       `bson:"height" json:"height"`
	PHash     string    `bson:"phash" json:"phash"`
	License   string    `bson:"license,omitempty" json:"license,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Card is an append-only data card describing one Dataset build.
type Card struct {
	CardID    string         `bson:"card_id" json:"card_id"`
	DatasetID string         `bson:"dataset_id" json:"dataset_id"`
	Title     string         `bson:"title" json:"title"`
	Summary   string         `bson:"summary,omitempty" json:"summary,omitempty"`
	Classes   []string       `bson:"classes" json:"classes"`
	Counts    map[string]int `bson:"counts" json:"counts"`
	License   string         `bson:"license,omitempty" json:"license,omitempty"`
	CreatedAt time.Time      `bson:"created_at" json:"created_at"`
}

// ChatMessage is one turn of a chat. Embedding and Plan are optional
// decorations added by the chat service.
type ChatMessage struct {
	Role      string    `bson:"role" json:"role"`
	Content   string    `bson:"content" json:"content"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Embedding []float32 `bson:"embedding,omitempty" json:"-"`
	Plan      *Plan     `bson:"plan,omitempty" json:"plan,omitempty"`
	RequestID string    `bson:"request_id,omitempty" json:"request_id,omitempty"`
}

// Chat is a persisted conversation. Title is set from the first message.
type Chat struct {
	ChatID    string        `bson:"chat_id" json:"chat_id"`
	Title     string        `bson:"title" json:"title"`
	Messages  []ChatMessage `bson:"messages" json:"messages"`
	CreatedAt time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at" json:"updated_at"`
}
