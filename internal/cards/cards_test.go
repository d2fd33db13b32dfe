// internal/cards/cards_test.go
package cards

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/docstore"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
)

func TestPublishDataCardAppendsOnly(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	p := NewPublisher(store, logging.NewNop())

	ds := &docstore.Dataset{
		DatasetID:  "ds-1",
		Name:       "pets",
		Spec:       docstore.DatasetSpec{Classes: []string{"cat", "dog"}, License: "CC-BY"},
		SliceStats: map[string]int{"cat": 5, "dog": 4},
	}

	first, err := p.PublishDataCard(ctx, ds, "first build")
	require.NoError(t, err)
	second, err := p.PublishDataCard(ctx, ds, "second build")
	require.NoError(t, err)
	assert.NotEqual(t, first.CardID, second.CardID)

	latest, err := store.LatestCard(ctx, "ds-1")
	require.NoError(t, err)
	assert.NotEmpty(t, latest.CardID)
}

func TestFormatMarkdown(t *testing.T) {
	card := &docstore.Card{
		Title:     "pets",
		Summary:   "small pet image slice",
		Classes:   []string{"cat", "dog"},
		Counts:    map[string]int{"dog": 4, "cat": 5},
		License:   "CC-BY",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	md := FormatMarkdown(card)
	assert.Contains(t, md, "# Data Card: pets")
	assert.Contains(t, md, "small pet image slice")
	assert.Contains(t, md, "| cat | 5 |")
	assert.Contains(t, md, "| dog | 4 |")
	assert.Contains(t, md, "| **total** | **9** |")
	assert.Contains(t, md, "CC-BY")
	assert.Contains(t, md, "2026-03-01")
}
