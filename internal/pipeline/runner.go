// internal/pipeline/runner.go
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/logging"
)

// Runner executes the curation stages in-process. The HTTP surface and
// the smoke command use it when Temporal is disabled.
type Runner struct {
	activities *Activities
	logger     *logging.Logger
}

// NewRunner wires a Runner.
func NewRunner(a *Activities, logger *logging.Logger) *Runner {
	return &Runner{activities: a, logger: logger}
}

// Run executes plan, source links, sample and download sequentially.
// A stage error marks the request failed and aborts the run.
func (r *Runner) Run(ctx context.Context, input RunInput) (*RunResult, error) {
	ctx = logging.WithRequestID(ctx, input.RequestID)
	result := &RunResult{RequestID: input.RequestID}

	fail := func(stage string, err error) (*RunResult, error) {
		if markErr := r.activities.MarkFailed(ctx, input.RequestID); markErr != nil {
			r.logger.Error(ctx, "failed to mark request failed", zap.Error(markErr))
		}
		return nil, fmt.Errorf("%s stage failed: %w", stage, err)
	}

	plan, err := r.activities.Plan(ctx, input)
	if err != nil {
		return fail("plan", err)
	}
	result.Plan = plan

	if result.Discovered, err = r.activities.SourceLinks(ctx, SourceLinksInput{
		RequestID: input.RequestID,
		Plan:      plan,
	}); err != nil {
		return fail("source links", err)
	}

	if result.Sampled, err = r.activities.Sample(ctx, input.RequestID); err != nil {
		return fail("sample", err)
	}

	if result.Downloaded, err = r.activities.Download(ctx, DownloadInput{
		RequestID: input.RequestID,
		Persist:   input.Persist,
	}); err != nil {
		return fail("download", err)
	}

	r.logger.Info(ctx, "curation run finished",
		zap.Int("discovered", result.Discovered),
		zap.Int("sampled", result.Sampled),
		zap.Int("downloaded", result.Downloaded))
	return result, nil
}
