// Package tavily is a minimal client for the Tavily web-search API.
// All calls share one rate limiter so searches are paced regardless of
// which component issues them.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
)

// Result is one organic search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Image is one image hit. The API returns either bare URL strings or
// {url, description} objects depending on request options.
type Image struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// UnmarshalJSON accepts both representations.
func (img *Image) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var url string
		if err := json.Unmarshal(data, &url); err != nil {
			return err
		}
		img.URL = url
		return nil
	}
	type plain Image
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*img = Image(p)
	return nil
}

// Response is the API search response.
type Response struct {
	Query   string   `json:"query"`
	Answer  string   `json:"answer,omitempty"`
	Results []Result `json:"results"`
	Images  []Image  `json:"images,omitempty"`
}

// SearchOptions tune a single search call.
type SearchOptions struct {
	Topic         string // "general" (default) or "news"
	MaxResults    int
	IncludeImages bool
	IncludeAnswer bool
	SearchDepth   string // "basic" (default) or "advanced"
}

type searchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	Topic         string `json:"topic,omitempty"`
	MaxResults    int    `json:"max_results,omitempty"`
	IncludeImages bool   `json:"include_images,omitempty"`
	IncludeAnswer bool   `json:"include_answer,omitempty"`
	SearchDepth   string `json:"search_depth,omitempty"`
}

// Client calls the Tavily API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     config.Secret
	limiter    *rate.Limiter
	logger     *logging.Logger
}

// NewClient builds a client from config.
func NewClient(cfg config.SearchConfig, logger *logging.Logger) (*Client, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("search api key is required")
	}

	interval := cfg.SearchInterval.Duration()
	limiter := rate.NewLimiter(rate.Inf, 1)
	if interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout.Duration()},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// Search performs one paced search call.
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body := searchRequest{
		APIKey:        c.apiKey.Value(),
		Query:         query,
		Topic:         opts.Topic,
		MaxResults:    opts.MaxResults,
		IncludeImages: opts.IncludeImages,
		IncludeAnswer: opts.IncludeAnswer,
		SearchDepth:   opts.SearchDepth,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	c.logger.Debug(ctx, "search completed",
		zap.String("query", query),
		zap.Int("results", len(out.Results)),
		zap.Int("images", len(out.Images)),
		zap.Duration("elapsed", time.Since(start)))
	return &out, nil
}

// SearchImages searches with image results enabled and returns the hits.
func (c *Client) SearchImages(ctx context.Context, query string, maxResults int) ([]Image, error) {
	resp, err := c.Search(ctx, query, SearchOptions{
		MaxResults:    maxResults,
		IncludeImages: true,
	})
	if err != nil {
		return nil, err
	}
	return resp.Images, nil
}

// QnA asks for a direct answer and returns it.
func (c *Client) QnA(ctx context.Context, query string) (string, error) {
	resp, err := c.Search(ctx, query, SearchOptions{
		MaxResults:    5,
		IncludeAnswer: true,
		SearchDepth:   "advanced",
	})
	if err != nil {
		return "", err
	}
	return resp.Answer, nil
}

// Context searches and concatenates result content into one summary
// string for LLM context windows.
func (c *Client) Context(ctx context.Context, query string, maxResults int) (string, error) {
	resp, err := c.Search(ctx, query, SearchOptions{MaxResults: maxResults})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, r := range resp.Results {
		if r.Content == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(r.Content)
	}
	return sb.String(), nil
}
