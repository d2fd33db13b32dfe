// Package httpapi serves the corpusd HTTP surface: chat, curation
// runs, datasets, downloads and metrics.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/chat"
	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/docstore"
	"github.com/fyrsmithlabs/corpusd/internal/export"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/pipeline"
	"github.com/fyrsmithlabs/corpusd/internal/slices"
)

// Deps are the services the HTTP surface fronts. Temporal is nil when
// workflow orchestration is disabled; runs then execute in-process.
type Deps struct {
	Store      docstore.Store
	Exporter   *export.Exporter
	Chat       *chat.Service
	Slices     *slices.Builder
	Activities *pipeline.Activities
	Runner     *pipeline.Runner
	Temporal   client.Client
}

// Server is the corpusd HTTP API.
type Server struct {
	echo        *echo.Echo
	cfg         config.ServerConfig
	temporalCfg config.TemporalConfig
	deps        Deps
	logger      *logging.Logger
}

// NewServer wires routes and middleware.
func NewServer(cfg config.ServerConfig, temporalCfg config.TemporalConfig, deps Deps, metricsEnabled bool, logger *logging.Logger) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Runner == nil || deps.Activities == nil {
		return nil, fmt.Errorf("pipeline runner and activities are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})
	if metricsEnabled {
		e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	}

	s := &Server{
		echo:        e,
		cfg:         cfg,
		temporalCfg: temporalCfg,
		deps:        deps,
		logger:      logger,
	}
	s.registerRoutes(metricsEnabled)
	return s, nil
}

func (s *Server) registerRoutes(metricsEnabled bool) {
	s.echo.GET("/health", s.handleHealth)
	if metricsEnabled {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	api := s.echo.Group("/api")
	api.POST("/chat", s.handleChat)
	api.GET("/chats", s.handleListChats)
	api.GET("/chats/:id", s.handleGetChat)
	api.DELETE("/chats/:id", s.handleDeleteChat)

	api.POST("/plan-and-sample", s.handlePlanAndSample)
	api.POST("/start-full-run", s.handleStartFullRun)
	api.GET("/run-status", s.handleRunStatus)
	api.GET("/download-progress", s.handleDownloadProgress)

	api.GET("/requests", s.handleListRequests)
	api.GET("/runs", s.handleListRuns)
	api.GET("/runs/:id", s.handleGetRun)

	api.POST("/build-slice", s.handleBuildSlice)
	api.GET("/datasets", s.handleListDatasets)
	api.DELETE("/datasets/:id", s.handleDeleteDataset)
	api.GET("/datasets/:id/preview", s.handleDatasetPreview)

	s.echo.GET("/download/:id", s.handleDownload)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
