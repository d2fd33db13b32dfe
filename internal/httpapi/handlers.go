// internal/httpapi/handlers.go
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/docstore"
	"github.com/fyrsmithlabs/corpusd/internal/pipeline"
	"github.com/fyrsmithlabs/corpusd/internal/slices"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	ChatID  string `json:"chat_id,omitempty"`
	Message string `json:"message"`
}

func (s *Server) handleChat(c echo.Context) error {
	if s.deps.Chat == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "chat is not configured")
	}
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message field is required")
	}

	reply, err := s.deps.Chat.SendMessage(c.Request().Context(), req.ChatID, req.Message)
	if err != nil {
		s.logger.Error(c.Request().Context(), "chat turn failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "chat turn failed: "+err.Error())
	}
	return c.JSON(http.StatusOK, reply)
}

func (s *Server) handleListChats(c echo.Context) error {
	chats, err := s.deps.Store.ListChats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list chats: "+err.Error())
	}
	return c.JSON(http.StatusOK, chats)
}

func (s *Server) handleGetChat(c echo.Context) error {
	chat, err := s.deps.Store.GetChat(c.Request().Context(), c.Param("id"))
	if errors.Is(err, docstore.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "chat not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load chat: "+err.Error())
	}
	return c.JSON(http.StatusOK, chat)
}

func (s *Server) handleDeleteChat(c echo.Context) error {
	err := s.deps.Store.DeleteChat(c.Request().Context(), c.Param("id"))
	if errors.Is(err, docstore.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "chat not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete chat: "+err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// RunRequest is the body of POST /api/plan-and-sample and
// POST /api/start-full-run.
type RunRequest struct {
	RequestID  string `json:"request_id,omitempty"`
	Query      string `json:"query"`
	TotalItems int    `json:"total_items"`
	DataType   string `json:"data_type,omitempty"`
	Persist    bool   `json:"persist"`
}

func (r *RunRequest) toInput() pipeline.RunInput {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	if r.TotalItems <= 0 {
		r.TotalItems = 10
	}
	return pipeline.RunInput{
		RequestID:  r.RequestID,
		Query:      r.Query,
		TotalItems: r.TotalItems,
		DataType:   r.DataType,
		Persist:    r.Persist,
	}
}

// PlanAndSampleResponse is the body of POST /api/plan-and-sample.
type PlanAndSampleResponse struct {
	RequestID  string         `json:"request_id"`
	Plan       *docstore.Plan `json:"plan"`
	Discovered int            `json:"discovered"`
	Sampled    int            `json:"sampled"`
}

// handlePlanAndSample runs plan, discovery and sampling synchronously,
// leaving downloads to a later full run.
func (s *Server) handlePlanAndSample(c echo.Context) error {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}

	ctx := c.Request().Context()
	input := req.toInput()

	plan, err := s.deps.Activities.Plan(ctx, input)
	if err != nil {
		s.logger.Error(ctx, "planning failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "planning failed: "+err.Error())
	}
	discovered, err := s.deps.Activities.SourceLinks(ctx, pipeline.SourceLinksInput{
		RequestID: input.RequestID,
		Plan:      plan,
	})
	if err != nil {
		s.logger.Error(ctx, "discovery failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "discovery failed: "+err.Error())
	}
	sampled, err := s.deps.Activities.Sample(ctx, input.RequestID)
	if err != nil {
		s.logger.Error(ctx, "sampling failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "sampling failed: "+err.Error())
	}

	return c.JSON(http.StatusOK, PlanAndSampleResponse{
		RequestID:  input.RequestID,
		Plan:       plan,
		Discovered: discovered,
		Sampled:    sampled,
	})
}

// StartRunResponse is the body of POST /api/start-full-run.
type StartRunResponse struct {
	RequestID  string `json:"request_id"`
	WorkflowID string `json:"workflow_id,omitempty"`
}

// handleStartFullRun launches the whole pipeline, on Temporal when
// configured, otherwise in-process in the background.
func (s *Server) handleStartFullRun(c echo.Context) error {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}
	input := req.toInput()

	if s.deps.Temporal != nil {
		run, err := pipeline.StartWorkflow(c.Request().Context(), s.deps.Temporal, s.temporalCfg, input)
		if err != nil {
			s.logger.Error(c.Request().Context(), "failed to start workflow", zap.Error(err))
			return echo.NewHTTPError(http.StatusBadGateway, "failed to start workflow: "+err.Error())
		}
		return c.JSON(http.StatusAccepted, StartRunResponse{
			RequestID:  input.RequestID,
			WorkflowID: run.GetID(),
		})
	}

	go func() {
		ctx := context.Background()
		if _, err := s.deps.Runner.Run(ctx, input); err != nil {
			s.logger.Error(ctx, "background run failed",
				zap.String("request_id", input.RequestID), zap.Error(err))
		}
	}()
	return c.JSON(http.StatusAccepted, StartRunResponse{RequestID: input.RequestID})
}

// RunStatusResponse is the body of GET /api/run-status and
// GET /api/runs/{id}.
type RunStatusResponse struct {
	RequestID string                 `json:"request_id"`
	Query     string                 `json:"query"`
	Status    docstore.RequestStatus `json:"status"`
	Plan      *docstore.Plan         `json:"plan,omitempty"`
	Counts    map[string]int64       `json:"counts"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func (s *Server) runStatus(ctx context.Context, requestID string) (*RunStatusResponse, error) {
	req, err := s.deps.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, 4)
	for _, status := range []docstore.ResourceStatus{
		docstore.ResourceDiscovered,
		docstore.ResourceSampled,
		docstore.ResourceDownloaded,
		docstore.ResourceError,
	} {
		n, err := s.deps.Store.CountResources(ctx, docstore.ResourceFilter{
			RequestID: requestID,
			Statuses:  []docstore.ResourceStatus{status},
		})
		if err != nil {
			return nil, err
		}
		counts[string(status)] = n
	}

	return &RunStatusResponse{
		RequestID: req.RequestID,
		Query:     req.Query,
		Status:    req.Status,
		Plan:      req.Plan,
		Counts:    counts,
		CreatedAt: req.CreatedAt,
		UpdatedAt: req.UpdatedAt,
	}, nil
}

func (s *Server) handleRunStatus(c echo.Context) error {
	requestID := c.QueryParam("request_id")
	if requestID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "request_id query parameter is required")
	}
	return s.respondRunStatus(c, requestID)
}

func (s *Server) handleGetRun(c echo.Context) error {
	return s.respondRunStatus(c, c.Param("id"))
}

func (s *Server) respondRunStatus(c echo.Context, requestID string) error {
	status, err := s.runStatus(c.Request().Context(), requestID)
	if errors.Is(err, docstore.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "request not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load run status: "+err.Error())
	}
	return c.JSON(http.StatusOK, status)
}

// DownloadProgressResponse is the body of GET /api/download-progress.
type DownloadProgressResponse struct {
	RequestID  string                 `json:"request_id"`
	Status     docstore.RequestStatus `json:"status"`
	Total      int64                  `json:"total"`
	Downloaded int64                  `json:"downloaded"`
	Percent    float64                `json:"percent"`
}

func (s *Server) handleDownloadProgress(c echo.Context) error {
	requestID := c.QueryParam("request_id")
	if requestID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "request_id query parameter is required")
	}
	ctx := c.Request().Context()

	req, err := s.deps.Store.GetRequest(ctx, requestID)
	if errors.Is(err, docstore.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "request not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load request: "+err.Error())
	}

	total, err := s.deps.Store.CountResources(ctx, docstore.ResourceFilter{RequestID: requestID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to count resources: "+err.Error())
	}
	downloaded, err := s.deps.Store.CountResources(ctx, docstore.ResourceFilter{
		RequestID: requestID,
		Statuses:  []docstore.ResourceStatus{docstore.ResourceDownloaded},
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to count downloads: "+err.Error())
	}

	percent := 0.0
	if total > 0 {
		percent = float64(downloaded) / float64(total) * 100
	}
	return c.JSON(http.StatusOK, DownloadProgressResponse{
		RequestID:  requestID,
		Status:     req.Status,
		Total:      total,
		Downloaded: downloaded,
		Percent:    percent,
	})
}

func (s *Server) handleListRequests(c echo.Context) error {
	requests, err := s.deps.Store.ListRequests(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list requests: "+err.Error())
	}
	return c.JSON(http.StatusOK, requests)
}

// RunSummary is one row of GET /api/runs.
type RunSummary struct {
	RequestID string                 `json:"request_id"`
	Query     string                 `json:"query"`
	Status    docstore.RequestStatus `json:"status"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func (s *Server) handleListRuns(c echo.Context) error {
	requests, err := s.deps.Store.ListRequests(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list runs: "+err.Error())
	}

	runs := make([]RunSummary, 0, len(requests))
	for _, req := range requests {
		runs = append(runs, RunSummary{
			RequestID: req.RequestID,
			Query:     req.Query,
			Status:    req.Status,
			UpdatedAt: req.UpdatedAt,
		})
	}
	return c.JSON(http.StatusOK, runs)
}

// BuildSliceRequest is the body of POST /api/build-slice.
type BuildSliceRequest struct {
	Name    string   `json:"name"`
	Classes []string `json:"classes"`
	Total   int      `json:"total"`
	License string   `json:"license,omitempty"`
}

// handleBuildSlice runs a full image-slice build synchronously and
// returns the persisted dataset.
func (s *Server) handleBuildSlice(c echo.Context) error {
	if s.deps.Slices == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "slice builder is not configured")
	}
	var req BuildSliceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Classes) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "classes field is required")
	}
	if req.Name == "" {
		req.Name = strings.Join(req.Classes, "-")
	}

	ctx := c.Request().Context()
	ds, err := s.deps.Slices.BuildSlice(ctx, slices.BuildOptions{
		Name:    req.Name,
		Classes: req.Classes,
		Total:   req.Total,
		License: req.License,
	})
	if err != nil {
		s.logger.Error(ctx, "slice build failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "slice build failed: "+err.Error())
	}
	return c.JSON(http.StatusCreated, ds)
}

func (s *Server) handleListDatasets(c echo.Context) error {
	datasets, err := s.deps.Store.ListDatasets(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list datasets: "+err.Error())
	}
	return c.JSON(http.StatusOK, datasets)
}

func (s *Server) handleDeleteDataset(c echo.Context) error {
	err := s.deps.Store.DeleteDataset(c.Request().Context(), c.Param("id"))
	if errors.Is(err, docstore.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "dataset not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete dataset: "+err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// DatasetPreviewResponse is the body of GET /api/datasets/{id}/preview.
type DatasetPreviewResponse struct {
	Dataset *docstore.Dataset `json:"dataset"`
	Assets  []docstore.Asset  `json:"assets"`
	Card    *docstore.Card    `json:"card,omitempty"`
}

const previewAssetLimit = 12

func (s *Server) handleDatasetPreview(c echo.Context) error {
	ctx := c.Request().Context()
	datasetID := c.Param("id")

	ds, err := s.deps.Store.GetDataset(ctx, datasetID)
	if errors.Is(err, docstore.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "dataset not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load dataset: "+err.Error())
	}

	assets, err := s.deps.Store.ListAssets(ctx, datasetID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load assets: "+err.Error())
	}
	if len(assets) > previewAssetLimit {
		assets = assets[:previewAssetLimit]
	}

	card, err := s.deps.Store.LatestCard(ctx, datasetID)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load data card: "+err.Error())
	}

	return c.JSON(http.StatusOK, DatasetPreviewResponse{
		Dataset: ds,
		Assets:  assets,
		Card:    card,
	})
}

// handleDownload serves the request's archive, building it on demand.
// IDs that are not requests fall back to the legacy dataset export.
func (s *Server) handleDownload(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if path := s.deps.Exporter.ZipPath(id); fileExists(path) {
		return c.Attachment(path, id+".zip")
	}

	_, err := s.deps.Store.GetRequest(ctx, id)
	switch {
	case err == nil:
		zipPath, err := s.deps.Exporter.CreateRequestZip(ctx, id)
		if err != nil {
			s.logger.Error(ctx, "failed to build archive", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to build archive: "+err.Error())
		}
		if zipPath == "" {
			return echo.NewHTTPError(http.StatusNotFound, "request has nothing to export")
		}
		return c.Attachment(zipPath, id+".zip")
	case errors.Is(err, docstore.ErrNotFound):
		// Legacy dataset download.
		if _, dsErr := s.deps.Store.GetDataset(ctx, id); dsErr != nil {
			return echo.NewHTTPError(http.StatusNotFound, "no request or dataset with that id")
		}
		zipPath, zipErr := s.deps.Exporter.ZipDataset(ctx, id)
		if zipErr != nil {
			s.logger.Error(ctx, "failed to build dataset archive", zap.Error(zipErr))
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to build dataset archive: "+zipErr.Error())
		}
		return c.Attachment(zipPath, "dataset-"+id+".zip")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load request: "+err.Error())
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
