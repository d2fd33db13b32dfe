// internal/export/corpus.go
package export

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/modality"
)

// LabeledSpec binds one request's corpus to a class label.
type LabeledSpec struct {
	RequestID string `json:"request_id"`
	Label     string `json:"label"`
}

// BuildLabeledCorpus merges the per-request corpus CSVs of the given
// specs into one labeled CSV: text-like modalities merge
// text_corpus.csv, numerical merges numerical_aggregated.csv. Each row
// is stamped with its spec's label in a `class` column, placed first;
// differing columns across requests outer-join. Existing request
// archives are reused, missing ones are built. Returns "" (no error)
// when no rows exist.
func (e *Exporter) BuildLabeledCorpus(ctx context.Context, specs []LabeledSpec, mod string) (string, error) {
	mod = modality.Normalize(mod)

	var sourceCSV string
	switch {
	case modality.IsTextLike(mod):
		sourceCSV = "text_corpus.csv"
	case mod == modality.Numerical:
		sourceCSV = "numerical_aggregated.csv"
	default:
		return "", fmt.Errorf("labeled corpus supports text-like and numerical modalities, got %s", mod)
	}

	var tables []*Table
	for _, spec := range specs {
		zipPath := e.ZipPath(spec.RequestID)
		if _, err := os.Stat(zipPath); err != nil {
			zipPath, err = e.CreateRequestZip(ctx, spec.RequestID)
			if err != nil {
				return "", fmt.Errorf("failed to build archive for %s: %w", spec.RequestID, err)
			}
			if zipPath == "" {
				e.logger.Warn(ctx, "request contributes no corpus",
					zap.String("request_id", spec.RequestID))
				continue
			}
		}

		t, err := readCSVFromZip(zipPath, sourceCSV)
		if err != nil {
			return "", fmt.Errorf("failed to read %s from %s: %w", sourceCSV, spec.RequestID, err)
		}
		if t == nil || t.Empty() {
			continue
		}
		t.SetColumn("class", spec.Label)
		tables = append(tables, t)
	}

	merged := MergeTables(tables...)
	if merged.Empty() {
		return "", nil
	}
	merged.MoveColumnFirst("class")

	outPath := filepath.Join(e.dir, fmt.Sprintf("labeled_corpus_%s_%d.csv", mod, time.Now().Unix()))
	if err := writeTableFile(outPath, merged); err != nil {
		return "", err
	}

	e.logger.Info(ctx, "labeled corpus built",
		zap.String("path", outPath),
		zap.Int("rows", len(merged.Rows)),
		zap.Int("requests", len(tables)))
	return outPath, nil
}

// readCSVFromZip extracts one CSV member as a Table. A missing member
// yields nil without error: archives of other shapes simply contribute
// nothing.
func readCSVFromZip(zipPath, member string) (*Table, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != member {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open member: %w", err)
		}
		defer rc.Close()
		return ReadTable(rc, ',')
	}
	return nil, nil
}
