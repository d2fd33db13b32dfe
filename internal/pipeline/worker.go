// internal/pipeline/worker.go
package pipeline

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/fyrsmithlabs/corpusd/internal/config"
)

// NewClient dials the Temporal frontend.
func NewClient(cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}
	return c, nil
}

// NewWorker registers the curation workflow and its activities on the
// configured task queue.
func NewWorker(c client.Client, cfg config.TemporalConfig, a *Activities) worker.Worker {
	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	w.RegisterWorkflow(CurationWorkflow)
	w.RegisterActivity(a)
	return w
}

// StartWorkflow launches a curation run on Temporal. The workflow ID is
// derived from the request so resubmitting a running request is
// rejected rather than duplicated.
func StartWorkflow(ctx context.Context, c client.Client, cfg config.TemporalConfig, input RunInput) (client.WorkflowRun, error) {
	return c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "curation-" + input.RequestID,
		TaskQueue: cfg.TaskQueue,
	}, CurationWorkflow, input)
}
