// internal/planner/planner_test.go
package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/corpusd/internal/docstore"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
)

// fakeModel returns canned responses in order.
type fakeModel struct {
	responses []string
	calls     int
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	resp := f.responses[f.calls%len(f.responses)]
	f.calls++
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: resp}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp := f.responses[f.calls%len(f.responses)]
	f.calls++
	return resp, nil
}

func TestPlanDataset(t *testing.T) {
	store := docstore.NewMemoryStore()
	llm := &fakeModel{responses: []string{
		"```json\n" + `{"type": "image", "classes": ["cat", "dog"],
			"queries": {"cat": ["cat photos"], "dog": ["dog photos"], "bird": ["stray"]}}` + "\n```",
	}}
	p := New(llm, store, logging.NewNop())

	plan, err := p.PlanDataset(context.Background(), "pets dataset", 20, "", "req-1", true)
	require.NoError(t, err)

	assert.Equal(t, "image", plan.Modality)
	assert.Equal(t, []string{"cat", "dog"}, plan.Classes)
	assert.Equal(t, 20, plan.Total)
	// Queries for undeclared classes are dropped.
	assert.NotContains(t, plan.Queries, "bird")

	req, err := store.GetRequest(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, docstore.RequestPending, req.Status)
	assert.True(t, req.Persist)
	require.NotNil(t, req.Plan)
	assert.Equal(t, "image", req.Plan.Modality)
}

func TestPlanDatasetDataTypeOverride(t *testing.T) {
	store := docstore.NewMemoryStore()
	llm := &fakeModel{responses: []string{
		`{"type": "text", "classes": ["gdp"], "queries": {"gdp": ["gdp by country csv"]}}`,
	}}
	p := New(llm, store, logging.NewNop())

	plan, err := p.PlanDataset(context.Background(), "economic tables", 10, "tabular", "req-2", false)
	require.NoError(t, err)
	assert.Equal(t, "numerical", plan.Modality)
}

func TestPlanDatasetBadJSON(t *testing.T) {
	store := docstore.NewMemoryStore()
	p := New(&fakeModel{responses: []string{"sorry, I cannot help with that"}}, store, logging.NewNop())

	_, err := p.PlanDataset(context.Background(), "anything", 10, "", "req-3", true)
	require.Error(t, err)

	_, err = store.GetRequest(context.Background(), "req-3")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestParseIntent(t *testing.T) {
	store := docstore.NewMemoryStore()

	t.Run("dataset request", func(t *testing.T) {
		p := New(&fakeModel{responses: []string{`{"classes": ["rock", "jazz"], "total": 30}`}}, store, logging.NewNop())
		intent, err := p.ParseIntent(context.Background(), "build me a music dataset")
		require.NoError(t, err)
		require.NotNil(t, intent)
		assert.Equal(t, []string{"rock", "jazz"}, intent.Classes)
		assert.Equal(t, 30, intent.Total)
	})

	t.Run("not a request", func(t *testing.T) {
		p := New(&fakeModel{responses: []string{`{}`}}, store, logging.NewNop())
		intent, err := p.ParseIntent(context.Background(), "hello there")
		require.NoError(t, err)
		assert.Nil(t, intent)
	})

	t.Run("garbage output", func(t *testing.T) {
		p := New(&fakeModel{responses: []string{"no json here"}}, store, logging.NewNop())
		intent, err := p.ParseIntent(context.Background(), "hello")
		require.NoError(t, err)
		assert.Nil(t, intent)
	})

	t.Run("missing total defaults", func(t *testing.T) {
		p := New(&fakeModel{responses: []string{`{"classes": ["a"]}`}}, store, logging.NewNop())
		intent, err := p.ParseIntent(context.Background(), "dataset of a")
		require.NoError(t, err)
		require.NotNil(t, intent)
		assert.Equal(t, 10, intent.Total)
	})
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fenced no lang", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose around", `Sure! Here you go: {"a": {"b": 2}} hope that helps`, `{"a": {"b": 2}}`},
		{"braces in strings", `{"q": "use {curly} braces"}`, `{"q": "use {curly} braces"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}
