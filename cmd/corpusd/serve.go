// cmd/corpusd/serve.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/blobstore"
	"github.com/fyrsmithlabs/corpusd/internal/cards"
	"github.com/fyrsmithlabs/corpusd/internal/chat"
	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/docstore"
	"github.com/fyrsmithlabs/corpusd/internal/download"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/export"
	"github.com/fyrsmithlabs/corpusd/internal/gather"
	"github.com/fyrsmithlabs/corpusd/internal/httpapi"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/pipeline"
	"github.com/fyrsmithlabs/corpusd/internal/planner"
	"github.com/fyrsmithlabs/corpusd/internal/slices"
	"github.com/fyrsmithlabs/corpusd/internal/tavily"
	"github.com/fyrsmithlabs/corpusd/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the corpusd daemon",
	Long: `Start the corpusd HTTP server with the full pipeline wired:
document store, blob store, web search, planner, chat and export.

Examples:
  # Start with the default config locations
  corpusd serve

  # Start with an explicit config file
  corpusd serve --config /etc/corpusd/config.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.MetricsEnabled {
		mp, err := telemetry.SetupMetrics(cfg.Observability.ServiceName)
		if err != nil {
			return fmt.Errorf("failed to set up metrics: %w", err)
		}
		defer func() {
			_ = mp.Shutdown(context.Background())
		}()
	}

	logger.Info(ctx, "starting corpusd",
		zap.String("service", cfg.Observability.ServiceName),
		zap.Int("port", cfg.Server.Port),
		zap.String("store_provider", cfg.Store.Provider))

	store, err := docstore.New(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}
	defer store.Close(context.Background())

	blobs, err := blobstore.New(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}
	defer blobs.Close(context.Background())

	search, err := tavily.NewClient(cfg.Search, logger)
	if err != nil {
		return fmt.Errorf("failed to create search client: %w", err)
	}

	plannerSvc, err := planner.NewFromConfig(cfg.LLM, store, logger)
	if err != nil {
		return fmt.Errorf("failed to create planner: %w", err)
	}
	embeds, err := embeddings.NewService(cfg.Embeddings, logger)
	if err != nil {
		return fmt.Errorf("failed to create embedding service: %w", err)
	}
	chatModel, err := planner.NewModel(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create chat model: %w", err)
	}
	chatSvc, err := chat.NewService(cfg.Chat, chatModel, store, embeds, logger)
	if err != nil {
		return fmt.Errorf("failed to create chat service: %w", err)
	}

	gatherer := gather.New(search, store, logger)
	downloader := download.New(cfg.Download, store, blobs, logger)
	exporter := export.New(cfg.Export, store, blobs, logger)
	publisher := cards.NewPublisher(store, logger)
	slicesBuilder := slices.NewBuilder(cfg.Slices, cfg.Download, search, store, publisher, logger)

	activities := pipeline.NewActivities(cfg.Pipeline, plannerSvc, gatherer, downloader, store, logger)
	runner := pipeline.NewRunner(activities, logger)

	deps := httpapi.Deps{
		Store:      store,
		Exporter:   exporter,
		Chat:       chatSvc,
		Slices:     slicesBuilder,
		Activities: activities,
		Runner:     runner,
	}

	if cfg.Pipeline.Temporal.Enabled {
		temporalClient, err := pipeline.NewClient(cfg.Pipeline.Temporal)
		if err != nil {
			return err
		}
		defer temporalClient.Close()

		w := pipeline.NewWorker(temporalClient, cfg.Pipeline.Temporal, activities)
		if err := w.Start(); err != nil {
			return fmt.Errorf("failed to start temporal worker: %w", err)
		}
		defer w.Stop()

		deps.Temporal = temporalClient
		logger.Info(ctx, "temporal worker started",
			zap.String("host_port", cfg.Pipeline.Temporal.HostPort),
			zap.String("task_queue", cfg.Pipeline.Temporal.TaskQueue))
	}

	srv, err := httpapi.NewServer(cfg.Server, cfg.Pipeline.Temporal, deps, cfg.Observability.MetricsEnabled, logger)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info(context.Background(), "corpusd shut down")
	return nil
}
