// Package export assembles deliverables from curated resources:
// per-request zip archives with manifests and CSV indexes, labeled
// corpora merged across requests, and directory exports of the legacy
// image datasets.
package export

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/blobstore"
	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/docstore"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/modality"
)

// Exporter builds archives and corpora under the export directory.
type Exporter struct {
	store  docstore.Store
	blobs  blobstore.Store
	dir    string
	logger *logging.Logger
}

// New wires an Exporter.
func New(cfg config.ExportConfig, store docstore.Store, blobs blobstore.Store, logger *logging.Logger) *Exporter {
	return &Exporter{store: store, blobs: blobs, dir: cfg.Dir, logger: logger}
}

// manifestItem describes one file placed in a request archive. Path is
// relative to the archive root, `<modality>/<file>`.
type manifestItem struct {
	Modality string `json:"modality"`
	Path     string `json:"path"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Snippet  string `json:"content_snippet"`
	Status   string `json:"status"`
}

// manifest is the archive-level manifest.json.
type manifest struct {
	RequestID        string         `json:"request_id"`
	TotalFiles       int            `json:"total_files"`
	CountsByModality map[string]int `json:"counts_by_modality"`
	Items            []manifestItem `json:"items"`
	ExportedAt       time.Time      `json:"exported_at"`
}

// indexColumns is the column set shared by index.csv and
// text_corpus.csv, mirroring the manifest items.
var indexColumns = []string{"modality", "path", "url", "title", "content_snippet", "status"}

// ZipPath returns where the request's archive lives once built.
func (e *Exporter) ZipPath(requestID string) string {
	return filepath.Join(e.dir, requestID+".zip")
}

// CreateRequestZip stages the request's stored payloads, writes
// manifest.json, index.csv and the modality CSVs, zips the staging
// directory and removes it. Downloaded resources are preferred; sampled
// ones with content are the fallback. Returns "" (no error) when the
// request has nothing exportable. When the request has persist=false
// the source blobs are deleted after the archive is built.
func (e *Exporter) CreateRequestZip(ctx context.Context, requestID string) (string, error) {
	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return "", fmt.Errorf("failed to load request: %w", err)
	}

	resources, err := e.exportableResources(ctx, requestID)
	if err != nil {
		return "", err
	}
	if len(resources) == 0 {
		e.logger.Info(ctx, "nothing to export", zap.String("request_id", requestID))
		return "", nil
	}

	staging := filepath.Join(e.dir, requestID)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	var items []manifestItem
	var tabular []*Table

	for _, res := range resources {
		item, table, err := e.stageResource(ctx, staging, &res)
		if err != nil {
			e.logger.Warn(ctx, "failed to stage resource",
				zap.String("url", res.URL), zap.Error(err))
			continue
		}
		if item == nil {
			continue // filtered by extension
		}
		items = append(items, *item)

		if table != nil && !table.Empty() {
			table.SetColumn("__source_path", item.Path)
			table.SetColumn("__source_url", res.URL)
			table.SetColumn("__source_title", res.Title)
			tabular = append(tabular, table)
		}
	}

	if len(items) == 0 {
		e.logger.Info(ctx, "all resources filtered out", zap.String("request_id", requestID))
		return "", nil
	}

	if err := writeManifest(staging, req.RequestID, items); err != nil {
		return "", err
	}
	if err := writeItemsCSV(filepath.Join(staging, "index.csv"), items); err != nil {
		return "", err
	}
	var textLike []manifestItem
	for _, item := range items {
		if modality.IsTextLike(item.Modality) {
			textLike = append(textLike, item)
		}
	}
	if len(textLike) > 0 {
		if err := writeItemsCSV(filepath.Join(staging, "text_corpus.csv"), textLike); err != nil {
			return "", err
		}
	}
	if len(tabular) > 0 {
		merged := MergeTables(tabular...)
		if err := writeTableFile(filepath.Join(staging, "numerical_aggregated.csv"), merged); err != nil {
			return "", err
		}
	}

	zipPath := e.ZipPath(requestID)
	if err := zipDirectory(staging, zipPath); err != nil {
		return "", fmt.Errorf("failed to build archive: %w", err)
	}

	if !req.Persist {
		e.purgeBlobs(ctx, requestID)
	}

	e.logger.Info(ctx, "request archive built",
		zap.String("request_id", requestID),
		zap.String("path", zipPath),
		zap.Int("files", len(items)))
	return zipPath, nil
}

// exportableResources prefers downloaded resources with content and
// falls back to sampled ones carrying a blob.
func (e *Exporter) exportableResources(ctx context.Context, requestID string) ([]docstore.Resource, error) {
	hasBlob := true
	downloaded, err := e.store.ListResources(ctx, docstore.ResourceFilter{
		RequestID: requestID,
		Statuses:  []docstore.ResourceStatus{docstore.ResourceDownloaded},
		HasBlob:   &hasBlob,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list downloaded resources: %w", err)
	}
	if len(downloaded) > 0 {
		return downloaded, nil
	}

	sampled, err := e.store.ListResources(ctx, docstore.ResourceFilter{
		RequestID: requestID,
		Statuses:  []docstore.ResourceStatus{docstore.ResourceSampled},
		HasBlob:   &hasBlob,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sampled resources: %w", err)
	}
	return sampled, nil
}

// stageResource writes one resource into the staging dir under its
// modality subdirectory, applying the modality rules: text-like
// modalities convert HTML to .txt and keep everything; other
// modalities keep only allow-listed extensions and skip HTML outright.
// Returns the manifest item (nil when filtered) and a parsed table for
// the numerical aggregate.
func (e *Exporter) stageResource(ctx context.Context, staging string, res *docstore.Resource) (*manifestItem, *Table, error) {
	ext := strings.ToLower(filepath.Ext(res.Filename))
	mod := res.Modality
	if mod == "" {
		mod = "misc"
	}
	textLike := modality.IsTextLike(mod)
	isHTML := ext == ".html" || ext == ".htm"

	if !textLike && (isHTML || !modality.AllowedForExport(ext, mod)) {
		return nil, nil, nil
	}

	rc, err := e.blobs.Open(ctx, res.ContentBlobID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open blob: %w", err)
	}
	defer rc.Close()

	modDir := filepath.Join(staging, mod)
	if err := os.MkdirAll(modDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create modality dir: %w", err)
	}

	item := &manifestItem{
		Modality: mod,
		URL:      res.URL,
		Title:    res.Title,
		Snippet:  res.Snippet,
		Status:   string(res.Status),
	}

	if textLike && isHTML {
		text, err := HTMLToText(rc)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to convert html: %w", err)
		}
		name := strings.TrimSuffix(res.Filename, ext) + ".txt"
		item.Path = mod + "/" + name
		if err := os.WriteFile(filepath.Join(modDir, name), []byte(text), 0o644); err != nil {
			return nil, nil, fmt.Errorf("failed to write converted text: %w", err)
		}
		return item, nil, nil
	}

	item.Path = mod + "/" + res.Filename
	dest := filepath.Join(modDir, res.Filename)
	f, err := os.Create(dest)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create staged file: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to copy blob: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to close staged file: %w", err)
	}

	var table *Table
	if delim, tabularExt := delimiterFor(ext); mod == modality.Numerical && tabularExt {
		f, err := os.Open(dest)
		if err == nil {
			table, err = ReadTable(f, delim)
			f.Close()
			if err != nil {
				e.logger.Warn(ctx, "tabular file not parseable, kept raw only",
					zap.String("filename", res.Filename), zap.Error(err))
				table = nil
			}
		}
	}

	return item, table, nil
}

// delimiterFor reports the CSV delimiter for parseable tabular
// extensions. Spreadsheet formats ship raw in the archive without
// joining the aggregate.
func delimiterFor(ext string) (rune, bool) {
	switch ext {
	case ".csv":
		return ',', true
	case ".tsv":
		return '\t', true
	}
	return 0, false
}

func writeManifest(staging, requestID string, items []manifestItem) error {
	counts := map[string]int{}
	for _, item := range items {
		counts[item.Modality]++
	}
	m := manifest{
		RequestID:        requestID,
		TotalFiles:       len(items),
		CountsByModality: counts,
		Items:            items,
		ExportedAt:       time.Now().UTC(),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(staging, "manifest.json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// writeItemsCSV mirrors manifest items into a CSV with the shared
// index column set.
func writeItemsCSV(path string, items []manifestItem) error {
	t := &Table{Columns: indexColumns}
	for _, item := range items {
		t.Rows = append(t.Rows, map[string]string{
			"modality":        item.Modality,
			"path":            item.Path,
			"url":             item.URL,
			"title":           item.Title,
			"content_snippet": item.Snippet,
			"status":          item.Status,
		})
	}
	return writeTableFile(path, t)
}

func writeTableFile(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if err := t.WriteCSV(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// purgeBlobs deletes all stored payloads of a request and unsets their
// blob references. Failures are logged per item; the archive already
// exists at this point.
func (e *Exporter) purgeBlobs(ctx context.Context, requestID string) {
	hasBlob := true
	withBlob, err := e.store.ListResources(ctx, docstore.ResourceFilter{
		RequestID: requestID,
		HasBlob:   &hasBlob,
	})
	if err != nil {
		e.logger.Error(ctx, "failed to list blobs for purge",
			zap.String("request_id", requestID), zap.Error(err))
		return
	}
	for _, res := range withBlob {
		if err := e.blobs.Delete(ctx, res.ContentBlobID); err != nil && err != blobstore.ErrNotFound {
			e.logger.Warn(ctx, "failed to delete blob",
				zap.String("blob_id", res.ContentBlobID), zap.Error(err))
			continue
		}
		if err := e.store.ClearResourceBlob(ctx, requestID, res.URL); err != nil {
			e.logger.Warn(ctx, "failed to clear blob reference",
				zap.String("url", res.URL), zap.Error(err))
		}
	}
	e.logger.Info(ctx, "purged blobs", zap.String("request_id", requestID), zap.Int("count", len(withBlob)))
}

// zipDirectory archives the directory tree, preserving relative paths.
func zipDirectory(dir, zipPath string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("failed to create zip: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
