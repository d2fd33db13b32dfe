// Package slices builds balanced image datasets from web image search:
// per-class search variations, download and decode, minimum-dimension
// filtering, perceptual-hash dedup, and a JPEG cache on disk. Built
// datasets are persisted with their assets and get a data card.
package slices

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/corpusd/internal/cards"
	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/docstore"
	"github.com/fyrsmithlabs/corpusd/internal/export"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/tavily"
)

// Images too close together perceptually count as duplicates.
const dupDistance = 5

// Each class query is expanded into these variations, in order, until
// the class quota is met.
var queryVariations = []string{
	"%s photo",
	"%s image",
	"photo of a %s",
	"%s close-up photo",
	"%s high resolution",
}

// ImageSearcher is the web image search surface the builder needs.
type ImageSearcher interface {
	SearchImages(ctx context.Context, query string, maxResults int) ([]tavily.Image, error)
}

// BuildOptions describe one slice build.
type BuildOptions struct {
	Name    string
	Classes []string
	Total   int
	License string
}

// Builder turns image search results into cached, deduplicated,
// per-class balanced datasets.
type Builder struct {
	search    ImageSearcher
	store     docstore.Store
	publisher *cards.Publisher
	limiter   *rate.Limiter
	client    *http.Client
	userAgent string
	cacheDir  string
	minDim    int
	logger    *logging.Logger
}

// NewBuilder wires a Builder. Download settings supply the HTTP client
// identity and timeout used to fetch images.
func NewBuilder(cfg config.SlicesConfig, dl config.DownloadConfig, search ImageSearcher, store docstore.Store, publisher *cards.Publisher, logger *logging.Logger) *Builder {
	return &Builder{
		search:    search,
		store:     store,
		publisher: publisher,
		limiter:   rate.NewLimiter(rate.Every(cfg.SearchInterval.Duration()), 1),
		client:    &http.Client{Timeout: dl.Timeout.Duration()},
		userAgent: dl.UserAgent,
		cacheDir:  cfg.CacheDir,
		minDim:    cfg.MinDimension,
		logger:    logger,
	}
}

// candidate is one accepted image before persistence.
type candidate struct {
	url    string
	uri    string
	width  int
	height int
	phash  *goimagehash.ImageHash
}

// BuildSlice runs the full build: search, fetch, filter, dedup, cache,
// persist, card. Classes that cannot be filled to quota keep whatever
// was found; an entirely empty build is an error.
func (b *Builder) BuildSlice(ctx context.Context, opts BuildOptions) (*docstore.Dataset, error) {
	if len(opts.Classes) == 0 {
		return nil, fmt.Errorf("slice build needs at least one class")
	}
	if opts.Total < len(opts.Classes) {
		opts.Total = len(opts.Classes)
	}
	perClass := opts.Total / len(opts.Classes)

	datasetID := uuid.NewString()
	datasetDir := filepath.Join(b.cacheDir, datasetID)

	var assets []docstore.Asset
	var provenance []string
	stats := make(map[string]int, len(opts.Classes))

	for _, class := range opts.Classes {
		accepted, queries, err := b.buildClass(ctx, datasetDir, class, perClass)
		if err != nil {
			return nil, err
		}
		provenance = append(provenance, queries...)
		stats[class] = len(accepted)
		for _, c := range accepted {
			assets = append(assets, docstore.Asset{
				DatasetID: datasetID,
				Class:     class,
				URI:       c.uri,
				URL:       c.url,
				Width:     c.width,
				Height:    c.height,
				PHash:     c.phash.ToString(),
				License:   opts.License,
			})
		}
		b.logger.Info(ctx, "class slice built",
			zap.String("class", class),
			zap.Int("accepted", len(accepted)),
			zap.Int("quota", perClass))
	}

	if len(assets) == 0 {
		return nil, fmt.Errorf("slice build produced no usable images")
	}

	manifestSHA, err := writeSliceManifest(datasetDir, datasetID, opts, stats)
	if err != nil {
		return nil, err
	}

	ds := &docstore.Dataset{
		DatasetID:   datasetID,
		Name:        opts.Name,
		Spec:        docstore.DatasetSpec{Classes: opts.Classes, Total: opts.Total, License: opts.License},
		SliceStats:  stats,
		Provenance:  provenance,
		ManifestSHA: manifestSHA,
	}
	if err := b.store.InsertDataset(ctx, ds); err != nil {
		return nil, fmt.Errorf("failed to persist dataset: %w", err)
	}
	if err := b.store.InsertAssets(ctx, assets); err != nil {
		return nil, fmt.Errorf("failed to persist assets: %w", err)
	}

	summary := fmt.Sprintf("Image slice built from web search: %d images across %d classes.",
		len(assets), len(opts.Classes))
	if _, err := b.publisher.PublishDataCard(ctx, ds, summary); err != nil {
		return nil, err
	}

	b.logger.Info(ctx, "slice dataset built",
		zap.String("dataset_id", datasetID),
		zap.Int("assets", len(assets)))
	return ds, nil
}

// buildClass collects up to quota deduplicated images for one class,
// walking the query variations in order. Search errors abort the build;
// per-image fetch and decode failures are skipped.
func (b *Builder) buildClass(ctx context.Context, datasetDir, class string, quota int) ([]candidate, []string, error) {
	classDir := filepath.Join(datasetDir, class)
	if err := os.MkdirAll(classDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	var accepted []candidate
	var queries []string
	seen := make(map[string]bool)

	for _, variation := range queryVariations {
		if len(accepted) >= quota {
			break
		}
		query := fmt.Sprintf(variation, class)
		queries = append(queries, query)

		if err := b.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("rate limit wait: %w", err)
		}
		images, err := b.search.SearchImages(ctx, query, quota*2)
		if err != nil {
			return nil, nil, fmt.Errorf("image search for %q failed: %w", query, err)
		}

		for _, img := range images {
			if len(accepted) >= quota {
				break
			}
			if img.URL == "" || seen[img.URL] {
				continue
			}
			seen[img.URL] = true

			c, err := b.fetchImage(ctx, classDir, img.URL)
			if err != nil {
				b.logger.Debug(ctx, "image rejected",
					zap.String("url", img.URL), zap.Error(err))
				continue
			}
			if isDuplicate(c.phash, accepted) {
				b.logger.Debug(ctx, "duplicate image dropped", zap.String("url", img.URL))
				_ = os.Remove(c.uri)
				continue
			}
			accepted = append(accepted, *c)
		}
	}
	return accepted, queries, nil
}

// fetchImage downloads and decodes one image, enforces the minimum
// dimension, computes its perceptual hash and caches it as JPEG.
func (b *Builder) fetchImage(ctx context.Context, classDir, url string) (*candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("bad url: %w", err)
	}
	req.Header.Set("User-Agent", b.userAgent)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() < b.minDim || bounds.Dy() < b.minDim {
		return nil, fmt.Errorf("image %dx%d below minimum dimension %d",
			bounds.Dx(), bounds.Dy(), b.minDim)
	}

	phash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, fmt.Errorf("phash failed: %w", err)
	}

	sum := md5.Sum([]byte(url))
	uri := filepath.Join(classDir, hex.EncodeToString(sum[:])+".jpg")
	out, err := os.Create(uri)
	if err != nil {
		return nil, fmt.Errorf("cache write failed: %w", err)
	}
	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: 90}); err != nil {
		out.Close()
		_ = os.Remove(uri)
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("cache write failed: %w", err)
	}

	return &candidate{
		url:    url,
		uri:    uri,
		width:  bounds.Dx(),
		height: bounds.Dy(),
		phash:  phash,
	}, nil
}

func isDuplicate(h *goimagehash.ImageHash, accepted []candidate) bool {
	for _, c := range accepted {
		dist, err := h.Distance(c.phash)
		if err == nil && dist <= dupDistance {
			return true
		}
	}
	return false
}

// writeSliceManifest writes the build manifest with the stratified
// split counts per class and returns its sha256.
func writeSliceManifest(datasetDir, datasetID string, opts BuildOptions, stats map[string]int) (string, error) {
	splits := make(map[string]map[string]int, len(stats))
	for class, n := range stats {
		train, val, test := export.SplitCounts(n)
		splits[class] = map[string]int{"train": train, "val": val, "test": test}
	}

	m := map[string]any{
		"dataset_id": datasetID,
		"name":       opts.Name,
		"classes":    opts.Classes,
		"total":      opts.Total,
		"license":    opts.License,
		"counts":     stats,
		"splits":     splits,
		"created_at": time.Now().UTC(),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode slice manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(datasetDir, "manifest.json"), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write slice manifest: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
