// Package gather discovers candidate resources for a curation request
// by dispatching modality-specific web searches and upserting the hits
// as resource documents.
package gather

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/docstore"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/modality"
	"github.com/fyrsmithlabs/corpusd/internal/tavily"
)

// Searcher is the search surface the gatherer needs; *tavily.Client
// satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, opts tavily.SearchOptions) (*tavily.Response, error)
	SearchImages(ctx context.Context, query string, maxResults int) ([]tavily.Image, error)
	QnA(ctx context.Context, query string) (string, error)
	Context(ctx context.Context, query string, maxResults int) (string, error)
}

// Item is one discovered candidate.
type Item struct {
	URL     string
	Title   string
	Snippet string
	Score   float64
}

// Result is the outcome of one gather call. Answer is set for qna,
// Summary for text context searches.
type Result struct {
	Items   []Item
	Answer  string
	Summary string
}

// Gatherer runs modality-specific discovery.
type Gatherer struct {
	search Searcher
	store  docstore.Store
	logger *logging.Logger
}

// New wires a Gatherer.
func New(search Searcher, store docstore.Store, logger *logging.Logger) *Gatherer {
	return &Gatherer{search: search, store: store, logger: logger}
}

// GatherAndStore discovers up to limit resources for (requestID, query,
// mod) and upserts them with status discovered. When the store already
// holds limit or more resources for that triple, no search happens and
// the existing count is returned. Search errors propagate.
func (g *Gatherer) GatherAndStore(ctx context.Context, query, mod, requestID string, limit int) (int, error) {
	mod = modality.Normalize(mod)

	filter := docstore.ResourceFilter{RequestID: requestID, Query: query, Modality: mod}
	existing, err := g.store.CountResources(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count existing resources: %w", err)
	}
	if existing >= int64(limit) {
		g.logger.Debug(ctx, "reusing gathered resources",
			zap.String("query", query),
			zap.String("modality", mod),
			zap.Int64("existing", existing))
		return int(existing), nil
	}

	result, err := g.Gather(ctx, query, mod, limit)
	if err != nil {
		return 0, err
	}

	if mod == modality.QnA {
		// Direct answers produce no stored resources.
		g.logger.Info(ctx, "qna answered", zap.String("query", query), zap.String("answer", result.Answer))
		return 0, nil
	}

	stored := 0
	for _, item := range result.Items {
		if stored >= limit {
			break
		}
		res := &docstore.Resource{
			RequestID: requestID,
			URL:       item.URL,
			Query:     query,
			Modality:  mod,
			Title:     item.Title,
			Snippet:   item.Snippet,
			Score:     item.Score,
			Status:    docstore.ResourceDiscovered,
		}
		if err := g.store.UpsertResource(ctx, res); err != nil {
			g.logger.Warn(ctx, "failed to store resource",
				zap.String("url", item.URL), zap.Error(err))
			continue
		}
		stored++
	}

	total, err := g.store.CountResources(ctx, filter)
	if err != nil {
		return stored, fmt.Errorf("failed to recount resources: %w", err)
	}
	g.logger.Info(ctx, "gathered resources",
		zap.String("query", query),
		zap.String("modality", mod),
		zap.Int("stored", stored),
		zap.Int64("total", total))
	return int(total), nil
}

// Gather runs the modality-specific search without touching the store.
func (g *Gatherer) Gather(ctx context.Context, query, mod string, limit int) (*Result, error) {
	mod = modality.Normalize(mod)

	switch mod {
	case modality.Image:
		return g.gatherImages(ctx, query, limit)
	case modality.Text:
		return g.gatherText(ctx, query, limit)
	case modality.News:
		return g.gatherNews(ctx, query, limit)
	case modality.Code:
		return g.gatherCode(ctx, query, limit)
	case modality.Audio, modality.Video, modality.ThreeD:
		return g.gatherMedia(ctx, query, mod, limit)
	case modality.Numerical:
		return g.gatherNumerical(ctx, query, limit)
	case modality.QnA:
		answer, err := g.search.QnA(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("qna search failed: %w", err)
		}
		return &Result{Answer: answer}, nil
	default:
		return nil, fmt.Errorf("unsupported modality: %s", mod)
	}
}

func (g *Gatherer) gatherImages(ctx context.Context, query string, limit int) (*Result, error) {
	images, err := g.search.SearchImages(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("image search failed: %w", err)
	}

	result := &Result{}
	for _, img := range images {
		if img.URL == "" {
			continue
		}
		result.Items = append(result.Items, Item{URL: img.URL, Title: img.Description})
	}
	return result, nil
}

func (g *Gatherer) gatherText(ctx context.Context, query string, limit int) (*Result, error) {
	resp, err := g.search.Search(ctx, query, tavily.SearchOptions{MaxResults: limit})
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}

	summary, err := g.search.Context(ctx, query, limit)
	if err != nil {
		// Summary is a bonus; page hits alone are a usable gather.
		g.logger.Warn(ctx, "context summary failed", zap.String("query", query), zap.Error(err))
		summary = ""
	}

	result := &Result{Summary: summary}
	appendResults(result, resp.Results)
	return result, nil
}

func (g *Gatherer) gatherNews(ctx context.Context, query string, limit int) (*Result, error) {
	resp, err := g.search.Search(ctx, query, tavily.SearchOptions{Topic: "news", MaxResults: limit})
	if err != nil {
		return nil, fmt.Errorf("news search failed: %w", err)
	}

	result := &Result{}
	appendResults(result, resp.Results)
	return result, nil
}

func (g *Gatherer) gatherCode(ctx context.Context, query string, limit int) (*Result, error) {
	resp, err := g.search.Search(ctx, modality.SearchQuery(query, modality.Code), tavily.SearchOptions{MaxResults: limit})
	if err != nil {
		return nil, fmt.Errorf("code search failed: %w", err)
	}

	result := &Result{}
	appendResults(result, resp.Results)
	return result, nil
}

// gatherMedia searches with filetype modifiers and keeps only direct
// asset URLs: either the hit itself or asset links embedded in its
// snippet. Pages without resolvable assets are dropped, never stored as
// HTML fallbacks. When nothing resolves, curated samples stand in.
func (g *Gatherer) gatherMedia(ctx context.Context, query, mod string, limit int) (*Result, error) {
	resp, err := g.search.Search(ctx, modality.SearchQuery(query, mod), tavily.SearchOptions{
		MaxResults: modality.SearchLimit(limit, mod),
	})
	if err != nil {
		return nil, fmt.Errorf("%s search failed: %w", mod, err)
	}

	result := &Result{}
	seen := make(map[string]struct{})
	add := func(item Item) bool {
		if _, dup := seen[item.URL]; dup {
			return len(result.Items) < limit
		}
		seen[item.URL] = struct{}{}
		result.Items = append(result.Items, item)
		return len(result.Items) < limit
	}

	for _, r := range resp.Results {
		if len(result.Items) >= limit {
			break
		}
		if modality.HasAssetExtension(r.URL, mod) {
			if !add(Item{URL: r.URL, Title: r.Title, Snippet: r.Content, Score: r.Score}) {
				break
			}
			continue
		}
		for _, embedded := range extractAssetURLs(r.Content, mod) {
			if !add(Item{URL: embedded, Title: r.Title, Score: r.Score}) {
				break
			}
		}
	}

	if len(result.Items) == 0 {
		for _, sample := range sampleAssets(mod) {
			result.Items = append(result.Items, sample)
			if len(result.Items) >= limit {
				break
			}
		}
		g.logger.Info(ctx, "no direct assets resolved, using curated samples",
			zap.String("query", query), zap.String("modality", mod))
	}
	return result, nil
}

// gatherNumerical rewrites known data portals to raw file URLs and
// prefers hits that look like data endpoints, falling back to the raw
// results when the filter empties the list.
func (g *Gatherer) gatherNumerical(ctx context.Context, query string, limit int) (*Result, error) {
	resp, err := g.search.Search(ctx, modality.SearchQuery(query, modality.Numerical), tavily.SearchOptions{
		MaxResults: modality.SearchLimit(limit, modality.Numerical),
	})
	if err != nil {
		return nil, fmt.Errorf("numerical search failed: %w", err)
	}

	all := make([]Item, 0, len(resp.Results))
	var preferred []Item
	for _, r := range resp.Results {
		item := Item{URL: rewriteNumericalURL(r.URL), Title: r.Title, Snippet: r.Content, Score: r.Score}
		all = append(all, item)
		if modality.HasAssetExtension(item.URL, modality.Numerical) || modality.PreferNumericalURL(item.URL) {
			preferred = append(preferred, item)
		}
	}

	result := &Result{Items: preferred}
	if len(preferred) == 0 {
		result.Items = all
	}
	return result, nil
}

// SampleResources promotes up to count discovered resources of the
// request to sampled. Per-item store failures mark the resource error
// and continue; the error never aborts the pass.
func (g *Gatherer) SampleResources(ctx context.Context, requestID string, count int) (int, error) {
	discovered, err := g.store.ListResources(ctx, docstore.ResourceFilter{
		RequestID: requestID,
		Statuses:  []docstore.ResourceStatus{docstore.ResourceDiscovered},
		Limit:     int64(count),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list discovered resources: %w", err)
	}

	sampled := 0
	for _, res := range discovered {
		if err := g.store.MarkResourceSampled(ctx, requestID, res.URL); err != nil {
			g.logger.Warn(ctx, "failed to sample resource",
				zap.String("url", res.URL), zap.Error(err))
			if markErr := g.store.MarkResourceError(ctx, requestID, res.URL, err.Error()); markErr != nil {
				g.logger.Error(ctx, "failed to record sample error",
					zap.String("url", res.URL), zap.Error(markErr))
			}
			continue
		}
		sampled++
	}

	g.logger.Info(ctx, "sampled resources",
		zap.String("request_id", requestID), zap.Int("sampled", sampled))
	return sampled, nil
}

func appendResults(result *Result, hits []tavily.Result) {
	for _, r := range hits {
		if r.URL == "" {
			continue
		}
		result.Items = append(result.Items, Item{URL: r.URL, Title: r.Title, Snippet: r.Content, Score: r.Score})
	}
}

// rewriteNumericalURL maps Our World in Data grapher pages onto their
// CSV download endpoints.
func rewriteNumericalURL(rawURL string) string {
	if strings.Contains(rawURL, "ourworldindata.org/grapher/") && !strings.HasSuffix(rawURL, ".csv") {
		if i := strings.IndexByte(rawURL, '?'); i >= 0 {
			rawURL = rawURL[:i]
		}
		return strings.TrimRight(rawURL, "/") + ".csv"
	}
	return rawURL
}

var assetURLPatterns = map[string]*regexp.Regexp{}

func init() {
	for _, mod := range []string{modality.Audio, modality.Video, modality.ThreeD, modality.Numerical} {
		exts := modality.Lookup(mod).AssetExts
		stripped := make([]string, len(exts))
		for i, ext := range exts {
			stripped[i] = regexp.QuoteMeta(strings.TrimPrefix(ext, "."))
		}
		assetURLPatterns[mod] = regexp.MustCompile(
			`https?://[^\s"'<>\\)]+\.(?:` + strings.Join(stripped, "|") + `)\b`)
	}
}

// extractAssetURLs scans free text for direct asset links of the
// modality.
func extractAssetURLs(text, mod string) []string {
	re, ok := assetURLPatterns[modality.Normalize(mod)]
	if !ok {
		return nil
	}
	return re.FindAllString(text, -1)
}
