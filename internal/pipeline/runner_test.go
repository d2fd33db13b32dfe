// internal/pipeline/runner_test.go
package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/corpusd/internal/blobstore"
	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/docstore"
	"github.com/fyrsmithlabs/corpusd/internal/download"
	"github.com/fyrsmithlabs/corpusd/internal/gather"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/planner"
	"github.com/fyrsmithlabs/corpusd/internal/tavily"
)

// fakeModel returns one canned plan.
type fakeModel struct {
	response string
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.response}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return f.response, nil
}

// fakeSearcher serves fixed hits for every query.
type fakeSearcher struct {
	results []tavily.Result
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, query string, opts tavily.SearchOptions) (*tavily.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &tavily.Response{Results: f.results}, nil
}

func (f *fakeSearcher) SearchImages(ctx context.Context, query string, maxResults int) ([]tavily.Image, error) {
	return nil, f.err
}

func (f *fakeSearcher) QnA(ctx context.Context, query string) (string, error) {
	return "", f.err
}

func (f *fakeSearcher) Context(ctx context.Context, query string, maxResults int) (string, error) {
	return "summary", f.err
}

func newRunner(t *testing.T, llm llms.Model, search gather.Searcher) (*Runner, *docstore.MemoryStore, *blobstore.MemoryStore) {
	t.Helper()
	store := docstore.NewMemoryStore()
	blobs := blobstore.NewMemoryStore()
	logger := logging.NewNop()

	activities := NewActivities(
		config.PipelineConfig{SampleCount: 3},
		planner.New(llm, store, logger),
		gather.New(search, store, logger),
		download.New(config.DownloadConfig{
			UserAgent: "DatasetSmith/1.0",
			Timeout:   config.Duration(5 * time.Second),
		}, store, blobs, logger),
		store, logger,
	)
	return NewRunner(activities, logger), store, blobs
}

func TestRunnerFullRun(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("economic indicators"))
	}))
	defer srv.Close()

	llm := &fakeModel{response: `{"type": "text", "classes": ["econ"],
		"queries": {"econ": ["gdp statistics"]}}`}
	search := &fakeSearcher{results: []tavily.Result{
		{URL: srv.URL + "/a", Title: "A", Content: "gdp tables", Score: 0.9},
		{URL: srv.URL + "/b", Title: "B", Content: "more gdp", Score: 0.8},
	}}
	runner, store, blobs := newRunner(t, llm, search)

	result, err := runner.Run(ctx, RunInput{
		RequestID:  "req-1",
		Query:      "economic dataset",
		TotalItems: 4,
		Persist:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Discovered)
	assert.Equal(t, 2, result.Sampled)
	assert.Equal(t, 2, result.Downloaded)
	require.NotNil(t, result.Plan)
	assert.Equal(t, "text", result.Plan.Modality)

	req, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, docstore.RequestCompleted, req.Status)
	assert.True(t, req.Persist)

	hasBlob := true
	downloaded, err := store.ListResources(ctx, docstore.ResourceFilter{
		RequestID: "req-1",
		Statuses:  []docstore.ResourceStatus{docstore.ResourceDownloaded},
		HasBlob:   &hasBlob,
	})
	require.NoError(t, err)
	assert.Len(t, downloaded, 2)
	assert.Equal(t, 2, blobs.Len())
}

func TestRunnerDiscoveryFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	llm := &fakeModel{response: `{"type": "text", "classes": ["econ"],
		"queries": {"econ": ["gdp statistics"]}}`}
	runner, store, _ := newRunner(t, llm, &fakeSearcher{err: assert.AnError})

	_, err := runner.Run(ctx, RunInput{
		RequestID:  "req-1",
		Query:      "economic dataset",
		TotalItems: 4,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source links stage failed")

	req, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, docstore.RequestFailed, req.Status)
}

func TestSourceLinksBudget(t *testing.T) {
	ctx := context.Background()
	llm := &fakeModel{response: "{}"}
	search := &fakeSearcher{results: []tavily.Result{
		{URL: "https://a.example/1", Title: "1"},
		{URL: "https://a.example/2", Title: "2"},
		{URL: "https://a.example/3", Title: "3"},
	}}
	runner, store, _ := newRunner(t, llm, search)

	// Two classes, one query each, budget 4: each pair gets 2 slots.
	plan := &docstore.Plan{
		Modality: "text",
		Classes:  []string{"cats", "dogs"},
		Queries: map[string][]string{
			"cats": {"cat facts"},
			"dogs": {"dog facts"},
		},
		Total: 4,
	}
	require.NoError(t, store.UpsertRequest(ctx, &docstore.Request{RequestID: "req-1", Query: "pets"}))

	total, err := runner.activities.SourceLinks(ctx, SourceLinksInput{RequestID: "req-1", Plan: plan})
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	// Same URLs under different queries stay unique per request.
	n, err := store.CountResources(ctx, docstore.ResourceFilter{RequestID: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSourceLinksRequiresQueries(t *testing.T) {
	runner, _, _ := newRunner(t, &fakeModel{response: "{}"}, &fakeSearcher{})
	_, err := runner.activities.SourceLinks(context.Background(), SourceLinksInput{
		RequestID: "req-1",
		Plan:      &docstore.Plan{Modality: "text", Classes: []string{"x"}, Total: 4},
	})
	require.Error(t, err)
}
