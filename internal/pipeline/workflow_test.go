// internal/pipeline/workflow_test.go
package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/fyrsmithlabs/corpusd/internal/docstore"
)

func TestCurationWorkflow(t *testing.T) {
	ts := testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()

	a := &Activities{}
	plan := &docstore.Plan{
		Modality: "text",
		Classes:  []string{"econ"},
		Queries:  map[string][]string{"econ": {"gdp statistics"}},
		Total:    4,
	}
	input := RunInput{RequestID: "req-1", Query: "economic dataset", TotalItems: 4, Persist: true}

	env.OnActivity(a.Plan, mock.Anything, input).Return(plan, nil)
	env.OnActivity(a.SourceLinks, mock.Anything, SourceLinksInput{RequestID: "req-1", Plan: plan}).Return(4, nil)
	env.OnActivity(a.Sample, mock.Anything, "req-1").Return(3, nil)
	env.OnActivity(a.Download, mock.Anything, DownloadInput{RequestID: "req-1", Persist: true}).Return(3, nil)

	env.ExecuteWorkflow(CurationWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result RunResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "req-1", result.RequestID)
	assert.Equal(t, 4, result.Discovered)
	assert.Equal(t, 3, result.Sampled)
	assert.Equal(t, 3, result.Downloaded)
	require.NotNil(t, result.Plan)
	assert.Equal(t, "text", result.Plan.Modality)
}

func TestCurationWorkflowStageFailure(t *testing.T) {
	ts := testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()

	a := &Activities{}
	input := RunInput{RequestID: "req-1", Query: "economic dataset", TotalItems: 4}

	env.OnActivity(a.Plan, mock.Anything, input).Return(nil, errors.New("planner unavailable"))
	env.OnActivity(a.MarkFailed, mock.Anything, "req-1").Return(nil)

	env.ExecuteWorkflow(CurationWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan stage failed")

	env.AssertCalled(t, "MarkFailed", mock.Anything, "req-1")
}
