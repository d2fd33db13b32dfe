// Package pipeline chains the curation stages: plan, source links,
// sample, download. The stages run either as Temporal activities under
// CurationWorkflow or in-process through Runner.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/docstore"
	"github.com/fyrsmithlabs/corpusd/internal/download"
	"github.com/fyrsmithlabs/corpusd/internal/gather"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/planner"
)

// RunInput starts one curation run.
type RunInput struct {
	RequestID  string `json:"request_id"`
	Query      string `json:"query"`
	TotalItems int    `json:"total_items"`
	DataType   string `json:"data_type,omitempty"`
	Persist    bool   `json:"persist"`
}

// RunResult summarizes a finished run.
type RunResult struct {
	RequestID  string         `json:"request_id"`
	Plan       *docstore.Plan `json:"plan"`
	Discovered int            `json:"discovered"`
	Sampled    int            `json:"sampled"`
	Downloaded int            `json:"downloaded"`
}

// SourceLinksInput carries the plan into the discovery stage.
type SourceLinksInput struct {
	RequestID string         `json:"request_id"`
	Plan      *docstore.Plan `json:"plan"`
}

// DownloadInput carries the persist flag into the download stage.
type DownloadInput struct {
	RequestID string `json:"request_id"`
	Persist   bool   `json:"persist"`
}

// Activities are the curation stages. Registered with the Temporal
// worker and called directly by Runner.
type Activities struct {
	planner     *planner.Planner
	gatherer    *gather.Gatherer
	downloader  *download.Downloader
	store       docstore.Store
	sampleCount int
	logger      *logging.Logger
}

// NewActivities wires the stages.
func NewActivities(cfg config.PipelineConfig, p *planner.Planner, g *gather.Gatherer, d *download.Downloader, store docstore.Store, logger *logging.Logger) *Activities {
	return &Activities{
		planner:     p,
		gatherer:    g,
		downloader:  d,
		store:       store,
		sampleCount: cfg.SampleCount,
		logger:      logger,
	}
}

// Plan asks the planner for the dataset plan and moves the request to
// running.
func (a *Activities) Plan(ctx context.Context, in RunInput) (*docstore.Plan, error) {
	ctx = logging.WithRequestID(ctx, in.RequestID)
	plan, err := a.planner.PlanDataset(ctx, in.Query, in.TotalItems, in.DataType, in.RequestID, in.Persist)
	if err != nil {
		return nil, err
	}
	if err := a.store.SetRequestStatus(ctx, in.RequestID, docstore.RequestRunning); err != nil {
		return nil, fmt.Errorf("failed to mark request running: %w", err)
	}
	return plan, nil
}

// SourceLinks distributes the plan's item budget over its (class,
// query) pairs and discovers resources for each. Every pair gets an
// even share; the budget is decremented by what each pair actually
// holds, clamped to its share, so exhausted queries release their
// slots to later pairs.
func (a *Activities) SourceLinks(ctx context.Context, in SourceLinksInput) (int, error) {
	ctx = logging.WithRequestID(ctx, in.RequestID)
	if in.Plan == nil {
		return 0, fmt.Errorf("source links needs a plan")
	}

	type pair struct{ class, query string }
	var pairs []pair
	for _, class := range in.Plan.Classes {
		for _, q := range in.Plan.Queries[class] {
			pairs = append(pairs, pair{class: class, query: q})
		}
	}
	if len(pairs) == 0 {
		return 0, fmt.Errorf("plan has no search queries")
	}

	perPair := in.Plan.Total / len(pairs)
	if perPair < 1 {
		perPair = 1
	}

	remaining := in.Plan.Total
	total := 0
	for _, p := range pairs {
		if remaining <= 0 {
			break
		}
		limit := perPair
		if limit > remaining {
			limit = remaining
		}

		count, err := a.gatherer.GatherAndStore(ctx, p.query, in.Plan.Modality, in.RequestID, limit)
		if err != nil {
			return total, fmt.Errorf("discovery for %q failed: %w", p.query, err)
		}

		used := count
		if used > limit {
			used = limit
		}
		remaining -= used
		total += used

		a.logger.Debug(ctx, "pair sourced",
			zap.String("class", p.class),
			zap.String("query", p.query),
			zap.Int("stored", count),
			zap.Int("remaining", remaining))
	}
	return total, nil
}

// Sample promotes discovered resources to sampled.
func (a *Activities) Sample(ctx context.Context, requestID string) (int, error) {
	ctx = logging.WithRequestID(ctx, requestID)
	return a.gatherer.SampleResources(ctx, requestID, a.sampleCount)
}

// Download fetches resource content, records the persist decision and
// completes the request.
func (a *Activities) Download(ctx context.Context, in DownloadInput) (int, error) {
	ctx = logging.WithRequestID(ctx, in.RequestID)
	if err := a.store.SetRequestPersist(ctx, in.RequestID, in.Persist); err != nil {
		return 0, fmt.Errorf("failed to set persist flag: %w", err)
	}

	downloaded, err := a.downloader.DownloadAll(ctx, in.RequestID)
	if err != nil {
		return downloaded, err
	}
	if err := a.store.SetRequestStatus(ctx, in.RequestID, docstore.RequestCompleted); err != nil {
		return downloaded, fmt.Errorf("failed to mark request completed: %w", err)
	}
	return downloaded, nil
}

// MarkFailed parks the request in failed state after an unrecoverable
// stage error.
func (a *Activities) MarkFailed(ctx context.Context, requestID string) error {
	ctx = logging.WithRequestID(ctx, requestID)
	return a.store.SetRequestStatus(ctx, requestID, docstore.RequestFailed)
}
