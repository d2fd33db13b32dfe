// cmd/corpusd/smoke.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/corpusd/internal/blobstore"
	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/docstore"
	"github.com/fyrsmithlabs/corpusd/internal/download"
	"github.com/fyrsmithlabs/corpusd/internal/export"
	"github.com/fyrsmithlabs/corpusd/internal/gather"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/tavily"
)

var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Run an offline end-to-end curation sequence",
	Long: `Run the curation pipeline end to end against in-memory stores and a
local stub search server: gather, sample, download, export. No network
access or API keys needed. Prints the resulting archive path.`,
	RunE: runSmoke,
}

func runSmoke(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	logger := logging.NewNop()

	stubURL, stop, err := startStubServer()
	if err != nil {
		return fmt.Errorf("failed to start stub server: %w", err)
	}
	defer stop()

	store := docstore.NewMemoryStore()
	defer store.Close(ctx)
	blobs := blobstore.NewMemoryStore()

	search, err := tavily.NewClient(config.SearchConfig{
		APIKey:  config.Secret("smoke"),
		BaseURL: stubURL,
		Timeout: config.Duration(10 * time.Second),
	}, logger)
	if err != nil {
		return err
	}

	exportDir, err := os.MkdirTemp("", "corpusd-smoke-")
	if err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}

	gatherer := gather.New(search, store, logger)
	downloader := download.New(config.DownloadConfig{
		UserAgent: "DatasetSmith/1.0",
		Timeout:   config.Duration(10 * time.Second),
	}, store, blobs, logger)
	exporter := export.New(config.ExportConfig{Dir: exportDir}, store, blobs, logger)

	const requestID = "smoke"
	if err := store.UpsertRequest(ctx, &docstore.Request{
		RequestID: requestID,
		Query:     "sample documents",
		Persist:   true,
		Status:    docstore.RequestRunning,
		Plan: &docstore.Plan{
			Modality: "text",
			Classes:  []string{"sample"},
			Queries:  map[string][]string{"sample": {"sample documents"}},
			Total:    3,
		},
	}); err != nil {
		return err
	}

	discovered, err := gatherer.GatherAndStore(ctx, "sample documents", "text", requestID, 3)
	if err != nil {
		return fmt.Errorf("gather failed: %w", err)
	}
	fmt.Printf("discovered: %d\n", discovered)

	sampled, err := gatherer.SampleResources(ctx, requestID, 3)
	if err != nil {
		return fmt.Errorf("sample failed: %w", err)
	}
	fmt.Printf("sampled:    %d\n", sampled)

	downloaded, err := downloader.DownloadAll(ctx, requestID)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	fmt.Printf("downloaded: %d\n", downloaded)

	if err := store.SetRequestStatus(ctx, requestID, docstore.RequestCompleted); err != nil {
		return err
	}

	zipPath, err := exporter.CreateRequestZip(ctx, requestID)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if zipPath == "" {
		return fmt.Errorf("smoke run produced nothing to export")
	}
	fmt.Printf("archive:    %s\n", zipPath)
	return nil
}

// startStubServer serves a minimal search API plus the content pages
// its results point at, on a random local port.
func startStubServer() (string, func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}
	baseURL := "http://" + ln.Addr().String()

	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"query": "sample documents",
			"results": []map[string]any{
				{"title": "Sample One", "url": baseURL + "/content/1", "content": "first sample page", "score": 0.9},
				{"title": "Sample Two", "url": baseURL + "/content/2", "content": "second sample page", "score": 0.8},
				{"title": "Sample Three", "url": baseURL + "/content/3", "content": "third sample page", "score": 0.7},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/content/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/content/")
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "Sample document %s for the corpusd smoke run.\n", id)
	})

	srv := &http.Server{Handler: mux}
	go func() {
		_ = srv.Serve(ln)
	}()

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return baseURL, stop, nil
}
