// Package embeddings wraps a remote embedding model with the pacing the
// provider demands: a minimum interval between calls and bounded
// retries with linear backoff.
package embeddings

import (
	"context"
	"fmt"
	"time"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
)

// Embedder is the subset of langchaingo's embedder this service needs.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Service is a rate-limited, retrying embedder.
type Service struct {
	embedder    Embedder
	limiter     *rate.Limiter
	maxRetries  int
	backoffStep time.Duration
	logger      *logging.Logger
}

// NewService builds the OpenAI-compatible embedder from config.
func NewService(cfg config.EmbeddingsConfig, logger *logging.Logger) (*Service, error) {
	opts := []openai.Option{openai.WithEmbeddingModel(cfg.Model)}
	if cfg.APIKey.IsSet() {
		opts = append(opts, openai.WithToken(cfg.APIKey.Value()))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings client: %w", err)
	}
	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return NewServiceWithEmbedder(embedder, cfg, logger), nil
}

// NewServiceWithEmbedder wires the service around an existing embedder.
// Used by tests.
func NewServiceWithEmbedder(embedder Embedder, cfg config.EmbeddingsConfig, logger *logging.Logger) *Service {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if interval := cfg.MinInterval.Duration(); interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Service{
		embedder:    embedder,
		limiter:     limiter,
		maxRetries:  maxRetries,
		backoffStep: cfg.BackoffStep.Duration(),
		logger:      logger,
	}
}

// Embed returns the vector for one text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := s.withRetry(ctx, func() error {
		var err error
		vec, err = s.embedder.EmbedQuery(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch returns vectors for multiple texts in one provider call.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := s.withRetry(ctx, func() error {
		var err error
		vecs, err = s.embedder.EmbedDocuments(ctx, texts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

// withRetry paces the call and retries with linear backoff: after
// attempt n it sleeps n * backoffStep before trying again.
func (s *Service) withRetry(ctx context.Context, call func() error) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}

		if lastErr = call(); lastErr == nil {
			return nil
		}

		if attempt < s.maxRetries {
			wait := time.Duration(attempt) * s.backoffStep
			s.logger.Warn(ctx, "embedding call failed, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
				zap.Error(lastErr))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("embedding failed after %d attempts: %w", s.maxRetries, lastErr)
}
