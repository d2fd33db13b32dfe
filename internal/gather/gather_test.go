// internal/gather/gather_test.go
package gather

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/docstore"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/tavily"
)

// fakeSearcher serves canned responses and counts calls.
type fakeSearcher struct {
	response *tavily.Response
	images   []tavily.Image
	answer   string
	summary  string
	err      error

	searchCalls int
}

func (f *fakeSearcher) Search(ctx context.Context, query string, opts tavily.SearchOptions) (*tavily.Response, error) {
	f.searchCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func (f *fakeSearcher) SearchImages(ctx context.Context, query string, maxResults int) ([]tavily.Image, error) {
	f.searchCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.images, nil
}

func (f *fakeSearcher) QnA(ctx context.Context, query string) (string, error) {
	f.searchCalls++
	return f.answer, f.err
}

func (f *fakeSearcher) Context(ctx context.Context, query string, maxResults int) (string, error) {
	return f.summary, nil
}

func TestGatherAndStoreIdempotentReuse(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	search := &fakeSearcher{response: &tavily.Response{Results: []tavily.Result{
		{URL: "https://a.example/1", Title: "one"},
		{URL: "https://a.example/2", Title: "two"},
	}}}
	g := New(search, store, logging.NewNop())

	n, err := g.GatherAndStore(ctx, "go tutorials", "text", "req-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, search.searchCalls)

	// Second call with enough stored resources must not search again.
	n, err = g.GatherAndStore(ctx, "go tutorials", "text", "req-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, search.searchCalls)
}

func TestGatherAndStoreURLUniqueness(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	search := &fakeSearcher{response: &tavily.Response{Results: []tavily.Result{
		{URL: "https://a.example/1"},
		{URL: "https://a.example/1"},
		{URL: "https://a.example/2"},
	}}}
	g := New(search, store, logging.NewNop())

	_, err := g.GatherAndStore(ctx, "dups", "text", "req-1", 10)
	require.NoError(t, err)

	n, err := store.CountResources(ctx, docstore.ResourceFilter{RequestID: "req-1"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestGatherAndStoreSearchErrorPropagates(t *testing.T) {
	store := docstore.NewMemoryStore()
	g := New(&fakeSearcher{err: errors.New("api down")}, store, logging.NewNop())

	_, err := g.GatherAndStore(context.Background(), "q", "text", "req-1", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api down")
}

func TestGatherImages(t *testing.T) {
	g := New(&fakeSearcher{images: []tavily.Image{
		{URL: "https://img.example/cat.jpg", Description: "a cat"},
		{URL: ""},
	}}, docstore.NewMemoryStore(), logging.NewNop())

	result, err := g.Gather(context.Background(), "cats", "image", 5)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "a cat", result.Items[0].Title)
}

func TestGatherTextIncludesSummary(t *testing.T) {
	g := New(&fakeSearcher{
		response: &tavily.Response{Results: []tavily.Result{{URL: "https://a.example"}}},
		summary:  "combined context",
	}, docstore.NewMemoryStore(), logging.NewNop())

	result, err := g.Gather(context.Background(), "topic", "text", 5)
	require.NoError(t, err)
	assert.Equal(t, "combined context", result.Summary)
	assert.Len(t, result.Items, 1)
}

func TestGatherMediaResolvesDirectAssets(t *testing.T) {
	g := New(&fakeSearcher{response: &tavily.Response{Results: []tavily.Result{
		{URL: "https://cdn.example/song.mp3", Title: "direct hit"},
		{URL: "https://blog.example/post", Content: "listen at https://cdn.example/embedded.wav today"},
		{URL: "https://blog.example/other", Content: "no assets here"},
	}}}, docstore.NewMemoryStore(), logging.NewNop())

	result, err := g.Gather(context.Background(), "bird calls", "audio", 5)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "https://cdn.example/song.mp3", result.Items[0].URL)
	assert.Equal(t, "https://cdn.example/embedded.wav", result.Items[1].URL)
}

func TestGatherMediaFallsBackToSamples(t *testing.T) {
	g := New(&fakeSearcher{response: &tavily.Response{Results: []tavily.Result{
		{URL: "https://blog.example/post", Content: "nothing direct"},
	}}}, docstore.NewMemoryStore(), logging.NewNop())

	result, err := g.Gather(context.Background(), "obscure sounds", "audio", 2)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	for _, item := range result.Items {
		assert.Contains(t, item.URL, ".wav")
	}
}

func TestGatherNumerical(t *testing.T) {
	g := New(&fakeSearcher{response: &tavily.Response{Results: []tavily.Result{
		{URL: "https://ourworldindata.org/grapher/life-expectancy"},
		{URL: "https://stats.example/report.csv"},
		{URL: "https://blog.example/why-data-matters"},
	}}}, docstore.NewMemoryStore(), logging.NewNop())

	result, err := g.Gather(context.Background(), "life expectancy", "numerical", 5)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "https://ourworldindata.org/grapher/life-expectancy.csv", result.Items[0].URL)
	assert.Equal(t, "https://stats.example/report.csv", result.Items[1].URL)
}

func TestGatherNumericalRawFallback(t *testing.T) {
	g := New(&fakeSearcher{response: &tavily.Response{Results: []tavily.Result{
		{URL: "https://blog.example/one"},
		{URL: "https://blog.example/two"},
	}}}, docstore.NewMemoryStore(), logging.NewNop())

	result, err := g.Gather(context.Background(), "niche stats", "numerical", 5)
	require.NoError(t, err)
	assert.Len(t, result.Items, 2)
}

func TestGatherQnAStoresNothing(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	g := New(&fakeSearcher{answer: "the answer"}, store, logging.NewNop())

	n, err := g.GatherAndStore(ctx, "what is x", "qna", "req-1", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	count, err := store.CountResources(ctx, docstore.ResourceFilter{RequestID: "req-1"})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSampleResourcesFlatCap(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.UpsertResource(ctx, &docstore.Resource{
			RequestID: "req-1",
			URL:       fmt.Sprintf("https://a.example/%d", i),
			Query:     "q",
			Modality:  "text",
			Status:    docstore.ResourceDiscovered,
		}))
	}
	g := New(&fakeSearcher{}, store, logging.NewNop())

	n, err := g.SampleResources(ctx, "req-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	sampled, err := store.CountResources(ctx, docstore.ResourceFilter{
		RequestID: "req-1",
		Statuses:  []docstore.ResourceStatus{docstore.ResourceSampled},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, sampled)
}

func TestRewriteNumericalURL(t *testing.T) {
	assert.Equal(t,
		"https://ourworldindata.org/grapher/gdp.csv",
		rewriteNumericalURL("https://ourworldindata.org/grapher/gdp?tab=chart"))
	assert.Equal(t,
		"https://ourworldindata.org/grapher/gdp.csv",
		rewriteNumericalURL("https://ourworldindata.org/grapher/gdp.csv"))
	assert.Equal(t,
		"https://example.com/page",
		rewriteNumericalURL("https://example.com/page"))
}
