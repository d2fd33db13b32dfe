// Package download fetches gathered resources over HTTP and streams
// their payloads into the blob store.
package download

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/blobstore"
	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/docstore"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/modality"
)

// Downloader fetches resources for a request.
type Downloader struct {
	store     docstore.Store
	blobs     blobstore.Store
	client    *http.Client
	userAgent string
	logger    *logging.Logger
}

// New wires a Downloader.
func New(cfg config.DownloadConfig, store docstore.Store, blobs blobstore.Store, logger *logging.Logger) *Downloader {
	return &Downloader{
		store:     store,
		blobs:     blobs,
		client:    &http.Client{Timeout: cfg.Timeout.Duration()},
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// DownloadAll fetches every discovered or sampled resource of the
// request and marks successes downloaded. A failed URL is logged and
// skipped with its status left untouched, so the next pass retries it;
// resources are never marked error here.
func (d *Downloader) DownloadAll(ctx context.Context, requestID string) (int, error) {
	pending, err := d.store.ListResources(ctx, docstore.ResourceFilter{
		RequestID: requestID,
		Statuses:  []docstore.ResourceStatus{docstore.ResourceDiscovered, docstore.ResourceSampled},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list pending resources: %w", err)
	}

	downloaded := 0
	for _, res := range pending {
		if err := ctx.Err(); err != nil {
			return downloaded, err
		}
		if err := d.downloadOne(ctx, &res); err != nil {
			d.logger.Warn(ctx, "download failed, will retry next pass",
				zap.String("url", res.URL), zap.Error(err))
			continue
		}
		downloaded++
	}

	d.logger.Info(ctx, "download pass complete",
		zap.String("request_id", requestID),
		zap.Int("downloaded", downloaded),
		zap.Int("pending", len(pending)-downloaded))
	return downloaded, nil
}

// downloadOne streams one URL into the blob store; the payload is never
// buffered whole in memory.
func (d *Downloader) downloadOne(ctx context.Context, res *docstore.Resource) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	filename := Filename(res.URL, contentType)

	blobID, err := d.blobs.Put(ctx, filename, contentType, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to store blob: %w", err)
	}

	if err := d.store.MarkResourceDownloaded(ctx, res.RequestID, res.URL, blobID, contentType, filename); err != nil {
		// The blob is orphaned if this fails; delete it so retries
		// don't accumulate copies.
		if delErr := d.blobs.Delete(ctx, blobID); delErr != nil {
			d.logger.Error(ctx, "failed to clean up orphaned blob",
				zap.String("blob_id", blobID), zap.Error(delErr))
		}
		return fmt.Errorf("failed to mark downloaded: %w", err)
	}
	return nil
}

// Filename derives a stable blob filename from the URL: the hex MD5 of
// the URL plus an extension picked from the content type, then the URL
// path, then ".bin".
func Filename(rawURL, contentType string) string {
	sum := md5.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:]) + modality.ExtensionFor(contentType, rawURL)
}
