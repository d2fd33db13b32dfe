// internal/export/dataset.go
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/cards"
	"github.com/fyrsmithlabs/corpusd/internal/docstore"
)

// DatasetSummary reports what an image-dataset export produced.
type DatasetSummary struct {
	Dir     string         `json:"dir"`
	Train   int            `json:"train"`
	Val     int            `json:"val"`
	Test    int            `json:"test"`
	Missing int            `json:"missing"`
	ByClass map[string]int `json:"by_class"`
}

// SplitCounts applies the 70/15/15 stratified split: floors for train
// and val, remainder to test. Every item lands in exactly one split for
// any n, including classes smaller than three.
func SplitCounts(n int) (train, val, test int) {
	train = n * 70 / 100
	val = n * 15 / 100
	test = n - train - val
	return train, val, test
}

// ExportDataset lays a built image dataset out on disk as
// <split>/<class>/ directories with manifest.json, README.md and, when
// a card exists, DATA_CARD.md. Assets whose cached files are gone are
// warnings, not failures.
func (e *Exporter) ExportDataset(ctx context.Context, datasetID, outputDir string) (*DatasetSummary, error) {
	ds, err := e.store.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	assets, err := e.store.ListAssets(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	byClass := make(map[string][]docstore.Asset)
	for _, a := range assets {
		byClass[a.Class] = append(byClass[a.Class], a)
	}
	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	summary := &DatasetSummary{Dir: outputDir, ByClass: make(map[string]int)}
	splitCounts := map[string]map[string]int{"train": {}, "val": {}, "test": {}}

	for _, class := range classes {
		classAssets := byClass[class]
		// Stable order inside a class keeps re-exports deterministic.
		sort.Slice(classAssets, func(i, j int) bool { return classAssets[i].URL < classAssets[j].URL })

		train, val, _ := SplitCounts(len(classAssets))
		for i, asset := range classAssets {
			split := "test"
			switch {
			case i < train:
				split = "train"
			case i < train+val:
				split = "val"
			}

			if err := copyAssetFile(asset.URI, filepath.Join(outputDir, split, class)); err != nil {
				e.logger.Warn(ctx, "cached asset file missing",
					zap.String("uri", asset.URI), zap.Error(err))
				summary.Missing++
				continue
			}

			splitCounts[split][class]++
			summary.ByClass[class]++
			switch split {
			case "train":
				summary.Train++
			case "val":
				summary.Val++
			default:
				summary.Test++
			}
		}
	}

	if err := writeDatasetManifest(outputDir, ds, splitCounts); err != nil {
		return nil, err
	}
	if err := writeDatasetReadme(outputDir, ds, summary); err != nil {
		return nil, err
	}

	card, err := e.store.LatestCard(ctx, datasetID)
	switch {
	case err == nil:
		md := cards.FormatMarkdown(card)
		if err := os.WriteFile(filepath.Join(outputDir, "DATA_CARD.md"), []byte(md), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write data card: %w", err)
		}
	case errors.Is(err, docstore.ErrNotFound):
		// No card published for this dataset; fine.
	default:
		return nil, fmt.Errorf("failed to load data card: %w", err)
	}

	e.logger.Info(ctx, "dataset exported",
		zap.String("dataset_id", datasetID),
		zap.Int("train", summary.Train),
		zap.Int("val", summary.Val),
		zap.Int("test", summary.Test),
		zap.Int("missing", summary.Missing))
	return summary, nil
}

// ZipDataset lays the dataset out in a staging directory and archives
// it under the export dir. Serves the legacy dataset download path.
func (e *Exporter) ZipDataset(ctx context.Context, datasetID string) (string, error) {
	staging := filepath.Join(e.dir, "dataset-"+datasetID)
	defer os.RemoveAll(staging)

	if _, err := e.ExportDataset(ctx, datasetID, staging); err != nil {
		return "", err
	}

	zipPath := filepath.Join(e.dir, "dataset-"+datasetID+".zip")
	if err := zipDirectory(staging, zipPath); err != nil {
		return "", fmt.Errorf("failed to build dataset archive: %w", err)
	}
	return zipPath, nil
}

func copyAssetFile(src, destDir string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	out, err := os.Create(filepath.Join(destDir, filepath.Base(src)))
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeDatasetManifest(outputDir string, ds *docstore.Dataset, splits map[string]map[string]int) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	m := map[string]any{
		"dataset_id": ds.DatasetID,
		"name":       ds.Name,
		"spec":       ds.Spec,
		"splits":     splits,
		"created_at": time.Now().UTC(),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode dataset manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, "manifest.json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write dataset manifest: %w", err)
	}
	return nil
}

func writeDatasetReadme(outputDir string, ds *docstore.Dataset, summary *DatasetSummary) error {
	readme := fmt.Sprintf(`# %s

Image dataset exported by corpusd.

- Classes: %d
- Train/val/test: %d/%d/%d
- Missing cached files: %d

Layout: train|val|test / <class> / <image files>. See manifest.json for
per-split counts and DATA_CARD.md (when present) for provenance.
`, ds.Name, len(ds.Spec.Classes), summary.Train, summary.Val, summary.Test, summary.Missing)

	if err := os.WriteFile(filepath.Join(outputDir, "README.md"), []byte(readme), 0o644); err != nil {
		return fmt.Errorf("failed to write readme: %w", err)
	}
	return nil
}
