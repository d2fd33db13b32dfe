// internal/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for corpusd.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Store         StoreConfig         `koanf:"store"`
	Search        SearchConfig        `koanf:"search"`
	LLM           LLMConfig           `koanf:"llm"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Download      DownloadConfig      `koanf:"download"`
	Export        ExportConfig        `koanf:"export"`
	Chat          ChatConfig          `koanf:"chat"`
	Slices        SlicesConfig        `koanf:"slices"`
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// StoreConfig selects the document/blob store backend.
type StoreConfig struct {
	Provider string      `koanf:"provider"` // "mongo" or "memory"
	Mongo    MongoConfig `koanf:"mongo"`
}

// MongoConfig holds MongoDB connection settings. GridFS lives in the
// same database as the document collections.
type MongoConfig struct {
	URI            Secret   `koanf:"uri"`
	Database       string   `koanf:"database"`
	ConnectTimeout Duration `koanf:"connect_timeout"`
}

// SearchConfig holds web-search API settings.
type SearchConfig struct {
	APIKey         Secret   `koanf:"api_key"`
	BaseURL        string   `koanf:"base_url"`
	SearchInterval Duration `koanf:"search_interval"` // pacing between search calls
	Timeout        Duration `koanf:"timeout"`
}

// LLMConfig holds completion-model settings.
type LLMConfig struct {
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

// EmbeddingsConfig holds embedding-model settings. The provider
// enforces MinInterval between calls and retries with linear backoff.
type EmbeddingsConfig struct {
	Model       string   `koanf:"model"`
	APIKey      Secret   `koanf:"api_key"`
	BaseURL     string   `koanf:"base_url"`
	MinInterval Duration `koanf:"min_interval"`
	MaxRetries  int      `koanf:"max_retries"`
	BackoffStep Duration `koanf:"backoff_step"`
}

// DownloadConfig holds resource-download settings.
type DownloadConfig struct {
	UserAgent string   `koanf:"user_agent"`
	Timeout   Duration `koanf:"timeout"`
}

// ExportConfig holds archive/corpus output settings.
type ExportConfig struct {
	Dir string `koanf:"dir"` // staging dirs and zips are written here
}

// ChatConfig holds chat-surface settings.
type ChatConfig struct {
	VectorPath   string `koanf:"vector_path"` // chromem persistence dir, empty for in-memory
	Collection   string `koanf:"collection"`
	HistoryLimit int    `koanf:"history_limit"`
}

// SlicesConfig holds image-slice builder settings.
type SlicesConfig struct {
	CacheDir       string   `koanf:"cache_dir"`
	MinDimension   int      `koanf:"min_dimension"`
	SearchInterval Duration `koanf:"search_interval"`
}

// PipelineConfig holds curation-pipeline settings.
type PipelineConfig struct {
	SampleCount int            `koanf:"sample_count"`
	Temporal    TemporalConfig `koanf:"temporal"`
}

// TemporalConfig holds Temporal worker settings. When disabled the
// pipeline runs in-process.
type TemporalConfig struct {
	Enabled   bool   `koanf:"enabled"`
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

// ObservabilityConfig holds metrics settings.
type ObservabilityConfig struct {
	ServiceName    string `koanf:"service_name"`
	MetricsEnabled bool   `koanf:"metrics_enabled"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Store.Provider == "" {
		cfg.Store.Provider = "mongo"
	}
	if cfg.Store.Mongo.Database == "" {
		cfg.Store.Mongo.Database = "corpusd"
	}
	if cfg.Store.Mongo.ConnectTimeout == 0 {
		cfg.Store.Mongo.ConnectTimeout = Duration(10 * time.Second)
	}

	if cfg.Search.BaseURL == "" {
		cfg.Search.BaseURL = "https://api.tavily.com"
	}
	if cfg.Search.SearchInterval == 0 {
		cfg.Search.SearchInterval = Duration(2 * time.Second)
	}
	if cfg.Search.Timeout == 0 {
		cfg.Search.Timeout = Duration(60 * time.Second)
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}

	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "voyage-3"
	}
	if cfg.Embeddings.MinInterval == 0 {
		cfg.Embeddings.MinInterval = Duration(20 * time.Second)
	}
	if cfg.Embeddings.MaxRetries == 0 {
		cfg.Embeddings.MaxRetries = 3
	}
	if cfg.Embeddings.BackoffStep == 0 {
		cfg.Embeddings.BackoffStep = Duration(30 * time.Second)
	}

	if cfg.Download.UserAgent == "" {
		cfg.Download.UserAgent = "DatasetSmith/1.0"
	}
	if cfg.Download.Timeout == 0 {
		cfg.Download.Timeout = Duration(60 * time.Second)
	}

	if cfg.Export.Dir == "" {
		cfg.Export.Dir = "exports"
	}

	if cfg.Chat.Collection == "" {
		cfg.Chat.Collection = "corpusd_chat"
	}
	if cfg.Chat.HistoryLimit == 0 {
		cfg.Chat.HistoryLimit = 20
	}

	if cfg.Slices.CacheDir == "" {
		cfg.Slices.CacheDir = "slice_cache"
	}
	if cfg.Slices.MinDimension == 0 {
		cfg.Slices.MinDimension = 128
	}
	if cfg.Slices.SearchInterval == 0 {
		cfg.Slices.SearchInterval = Duration(2 * time.Second)
	}

	if cfg.Pipeline.SampleCount == 0 {
		cfg.Pipeline.SampleCount = 3
	}
	if cfg.Pipeline.Temporal.HostPort == "" {
		cfg.Pipeline.Temporal.HostPort = "localhost:7233"
	}
	if cfg.Pipeline.Temporal.Namespace == "" {
		cfg.Pipeline.Temporal.Namespace = "default"
	}
	if cfg.Pipeline.Temporal.TaskQueue == "" {
		cfg.Pipeline.Temporal.TaskQueue = "corpusd-curation"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "corpusd"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in [1, 65535], got %d", c.Server.Port)
	}

	switch c.Store.Provider {
	case "mongo":
		if !c.Store.Mongo.URI.IsSet() {
			return fmt.Errorf("store.mongo.uri is required when provider is mongo")
		}
	case "memory":
		// No backend settings needed.
	default:
		return fmt.Errorf("unknown store provider %q (want mongo or memory)", c.Store.Provider)
	}

	if c.Embeddings.MaxRetries < 1 {
		return fmt.Errorf("embeddings max_retries must be >= 1, got %d", c.Embeddings.MaxRetries)
	}
	if c.Pipeline.SampleCount < 1 {
		return fmt.Errorf("pipeline sample_count must be >= 1, got %d", c.Pipeline.SampleCount)
	}
	if c.Chat.HistoryLimit < 1 {
		return fmt.Errorf("chat history_limit must be >= 1, got %d", c.Chat.HistoryLimit)
	}
	if c.Slices.MinDimension < 1 {
		return fmt.Errorf("slices min_dimension must be >= 1, got %d", c.Slices.MinDimension)
	}

	return nil
}
