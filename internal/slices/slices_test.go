// internal/slices/slices_test.go
package slices

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/cards"
	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/docstore"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/tavily"
)

// encodePNG renders a pattern so distinct test images hash apart;
// solid colors would all collide under a perceptual hash.
func encodePNG(t *testing.T, size int, pattern func(x, y int) uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetGray(x, y, color.Gray{Y: pattern(x, y)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func gradientH(size int) func(x, y int) uint8 {
	return func(x, y int) uint8 { return uint8(x * 255 / size) }
}

func gradientV(size int) func(x, y int) uint8 {
	return func(x, y int) uint8 { return uint8(y * 255 / size) }
}

func checker(x, y int) uint8 {
	if (x/8+y/8)%2 == 0 {
		return 255
	}
	return 0
}

// fakeImageSearch serves a fixed image list per class keyword.
type fakeImageSearch struct {
	byClass map[string][]tavily.Image
	errOn   string
	calls   int
}

func (f *fakeImageSearch) SearchImages(ctx context.Context, query string, maxResults int) ([]tavily.Image, error) {
	f.calls++
	if f.errOn != "" && strings.Contains(query, f.errOn) {
		return nil, assert.AnError
	}
	for class, images := range f.byClass {
		if strings.Contains(query, class) {
			return images, nil
		}
	}
	return nil, nil
}

func newTestBuilder(t *testing.T, search ImageSearcher) (*Builder, *docstore.MemoryStore) {
	t.Helper()
	store := docstore.NewMemoryStore()
	b := NewBuilder(
		config.SlicesConfig{
			CacheDir:       t.TempDir(),
			MinDimension:   32,
			SearchInterval: config.Duration(time.Millisecond),
		},
		config.DownloadConfig{UserAgent: "DatasetSmith/1.0", Timeout: config.Duration(5 * time.Second)},
		search, store, cards.NewPublisher(store, logging.NewNop()), logging.NewNop(),
	)
	return b, store
}

func TestBuildSlice(t *testing.T) {
	images := map[string][]byte{
		"/cat-1.png": encodePNG(t, 64, gradientH(64)),
		"/cat-2.png": encodePNG(t, 64, gradientH(64)), // same pixels, duplicate
		"/cat-3.png": encodePNG(t, 64, checker),
		"/dog-1.png": encodePNG(t, 64, gradientV(64)),
		"/dog-2.png": encodePNG(t, 16, checker), // below min dimension
		"/dog-3.png": encodePNG(t, 64, func(x, y int) uint8 {
			if x > y {
				return 255
			}
			return 0
		}),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DatasetSmith/1.0", r.Header.Get("User-Agent"))
		data, ok := images[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer srv.Close()

	search := &fakeImageSearch{byClass: map[string][]tavily.Image{
		"cat": {
			{URL: srv.URL + "/cat-1.png"},
			{URL: srv.URL + "/cat-2.png"},
			{URL: srv.URL + "/cat-3.png"},
		},
		"dog": {
			{URL: srv.URL + "/dog-1.png"},
			{URL: srv.URL + "/dog-2.png"},
			{URL: srv.URL + "/dog-3.png"},
		},
	}}
	b, store := newTestBuilder(t, search)

	ctx := context.Background()
	ds, err := b.BuildSlice(ctx, BuildOptions{
		Name:    "pets",
		Classes: []string{"cat", "dog"},
		Total:   4,
		License: "CC-BY",
	})
	require.NoError(t, err)

	// Duplicate and undersized images are dropped; quota is 2 per class.
	assert.Equal(t, map[string]int{"cat": 2, "dog": 2}, ds.SliceStats)
	assert.NotEmpty(t, ds.ManifestSHA)
	assert.NotEmpty(t, ds.Provenance)

	assets, err := store.ListAssets(ctx, ds.DatasetID)
	require.NoError(t, err)
	require.Len(t, assets, 4)
	for _, a := range assets {
		assert.Equal(t, 64, a.Width)
		assert.Equal(t, 64, a.Height)
		assert.NotEmpty(t, a.PHash)
		assert.Equal(t, "CC-BY", a.License)
		assert.Equal(t, ".jpg", filepath.Ext(a.URI))
		assert.FileExists(t, a.URI)
	}

	// Every build publishes a card.
	card, err := store.LatestCard(ctx, ds.DatasetID)
	require.NoError(t, err)
	assert.Equal(t, "pets", card.Title)
	assert.Equal(t, ds.SliceStats, card.Counts)

	// Manifest lands in the dataset's cache directory.
	dir := filepath.Dir(filepath.Dir(assets[0].URI))
	manifest, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	require.NoError(t, err)
	assert.Contains(t, string(manifest), ds.DatasetID)
}

func TestBuildSliceSearchErrorAborts(t *testing.T) {
	search := &fakeImageSearch{errOn: "cat"}
	b, _ := newTestBuilder(t, search)

	_, err := b.BuildSlice(context.Background(), BuildOptions{
		Name:    "pets",
		Classes: []string{"cat"},
		Total:   2,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestBuildSliceNothingFound(t *testing.T) {
	b, _ := newTestBuilder(t, &fakeImageSearch{})

	_, err := b.BuildSlice(context.Background(), BuildOptions{
		Name:    "empty",
		Classes: []string{"unicorn"},
		Total:   2,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable images")
}

func TestBuildSliceRequiresClasses(t *testing.T) {
	b, _ := newTestBuilder(t, &fakeImageSearch{})
	_, err := b.BuildSlice(context.Background(), BuildOptions{Name: "x", Total: 5})
	require.Error(t, err)
}
