// internal/tavily/client_test.go
package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(config.SearchConfig{
		APIKey:  config.Secret("test-key"),
		BaseURL: srv.URL,
	}, logging.NewNop())
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(config.SearchConfig{BaseURL: "https://api.tavily.com"}, logging.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")
}

func TestSearch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-key", req["api_key"])
		assert.Equal(t, "weather data", req["query"])
		assert.EqualValues(t, 5, req["max_results"])

		json.NewEncoder(w).Encode(Response{
			Results: []Result{
				{Title: "NOAA", URL: "https://noaa.gov/data", Content: "climate records", Score: 0.92},
			},
		})
	})

	resp, err := client.Search(context.Background(), "weather data", SearchOptions{MaxResults: 5})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "https://noaa.gov/data", resp.Results[0].URL)
}

func TestSearchErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := client.Search(context.Background(), "anything", SearchOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestImageUnmarshalBothShapes(t *testing.T) {
	var imgs []Image
	require.NoError(t, json.Unmarshal([]byte(`[
		"https://example.com/a.jpg",
		{"url": "https://example.com/b.jpg", "description": "a cat"}
	]`), &imgs))

	require.Len(t, imgs, 2)
	assert.Equal(t, "https://example.com/a.jpg", imgs[0].URL)
	assert.Equal(t, "https://example.com/b.jpg", imgs[1].URL)
	assert.Equal(t, "a cat", imgs[1].Description)
}

func TestQnAAndContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Response{
			Answer: "42",
			Results: []Result{
				{Content: "first"},
				{Content: ""},
				{Content: "second"},
			},
		})
	})

	answer, err := client.QnA(context.Background(), "meaning of life")
	require.NoError(t, err)
	assert.Equal(t, "42", answer)

	summary, err := client.Context(context.Background(), "meaning of life", 3)
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond", summary)
}
