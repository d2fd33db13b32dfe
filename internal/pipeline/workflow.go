// internal/pipeline/workflow.go
package pipeline

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// CurationWorkflow runs the curation stages as Temporal activities.
// Stage errors are retried per the policy; once retries are exhausted
// the request is marked failed and the workflow fails.
func CurationWorkflow(ctx workflow.Context, input RunInput) (*RunResult, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})

	logger := workflow.GetLogger(ctx)
	var a *Activities
	result := &RunResult{RequestID: input.RequestID}

	fail := func(stage string, err error) (*RunResult, error) {
		logger.Error("curation stage failed", "stage", stage, "error", err)
		if markErr := workflow.ExecuteActivity(ctx, a.MarkFailed, input.RequestID).Get(ctx, nil); markErr != nil {
			logger.Error("failed to mark request failed", "error", markErr)
		}
		return nil, fmt.Errorf("%s stage failed: %w", stage, err)
	}

	if err := workflow.ExecuteActivity(ctx, a.Plan, input).Get(ctx, &result.Plan); err != nil {
		return fail("plan", err)
	}

	if err := workflow.ExecuteActivity(ctx, a.SourceLinks, SourceLinksInput{
		RequestID: input.RequestID,
		Plan:      result.Plan,
	}).Get(ctx, &result.Discovered); err != nil {
		return fail("source links", err)
	}

	if err := workflow.ExecuteActivity(ctx, a.Sample, input.RequestID).Get(ctx, &result.Sampled); err != nil {
		return fail("sample", err)
	}

	if err := workflow.ExecuteActivity(ctx, a.Download, DownloadInput{
		RequestID: input.RequestID,
		Persist:   input.Persist,
	}).Get(ctx, &result.Downloaded); err != nil {
		return fail("download", err)
	}

	logger.Info("curation run finished",
		"request_id", input.RequestID,
		"discovered", result.Discovered,
		"sampled", result.Sampled,
		"downloaded", result.Downloaded)
	return result, nil
}
