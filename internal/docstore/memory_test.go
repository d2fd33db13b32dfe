// internal/docstore/memory_test.go
package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	req := &Request{
		RequestID: "req-1",
		Query:     "weather datasets",
		Persist:   true,
		Status:    RequestPending,
	}
	require.NoError(t, store.UpsertRequest(ctx, req))

	got, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "weather datasets", got.Query)
	assert.False(t, got.CreatedAt.IsZero())

	// Re-upsert with the same ID updates in place.
	req.Query = "climate datasets"
	require.NoError(t, store.UpsertRequest(ctx, req))

	updated, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "climate datasets", updated.Query)
	assert.Equal(t, got.CreatedAt, updated.CreatedAt)

	require.NoError(t, store.SetRequestStatus(ctx, "req-1", RequestCompleted))
	require.NoError(t, store.SetRequestPersist(ctx, "req-1", false))

	final, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, RequestCompleted, final.Status)
	assert.False(t, final.Persist)

	all, err := store.ListRequests(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.DeleteRequest(ctx, "req-1"))
	_, err = store.GetRequest(ctx, "req-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResourceUniquePerRequestURL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	res := &Resource{
		RequestID: "req-1",
		URL:       "https://example.com/data.csv",
		Query:     "weather csv",
		Modality:  "numerical",
		Status:    ResourceDiscovered,
	}
	require.NoError(t, store.UpsertResource(ctx, res))
	require.NoError(t, store.UpsertResource(ctx, res))

	n, err := store.CountResources(ctx, ResourceFilter{RequestID: "req-1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// Same URL under another request is a distinct document.
	other := *res
	other.RequestID = "req-2"
	require.NoError(t, store.UpsertResource(ctx, &other))

	total, err := store.CountResources(ctx, ResourceFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestResourceStatusTransitions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	res := &Resource{
		RequestID: "req-1",
		URL:       "https://example.com/a.png",
		Query:     "cats",
		Modality:  "image",
		Status:    ResourceDiscovered,
	}
	require.NoError(t, store.UpsertResource(ctx, res))

	require.NoError(t, store.MarkResourceSampled(ctx, "req-1", res.URL))
	got := mustGetResource(t, store, "req-1", res.URL)
	assert.Equal(t, ResourceSampled, got.Status)
	require.NotNil(t, got.SampledAt)

	require.NoError(t, store.MarkResourceDownloaded(ctx, "req-1", res.URL, "blob-1", "image/png", "abc.png"))
	got = mustGetResource(t, store, "req-1", res.URL)
	assert.Equal(t, ResourceDownloaded, got.Status)
	assert.Equal(t, "blob-1", got.ContentBlobID)
	assert.Equal(t, "abc.png", got.Filename)
	require.NotNil(t, got.DownloadedAt)

	// Re-discovery must not regress the downloaded state.
	require.NoError(t, store.UpsertResource(ctx, res))
	got = mustGetResource(t, store, "req-1", res.URL)
	assert.Equal(t, ResourceDownloaded, got.Status)
	assert.Equal(t, "blob-1", got.ContentBlobID)

	require.NoError(t, store.ClearResourceBlob(ctx, "req-1", res.URL))
	got = mustGetResource(t, store, "req-1", res.URL)
	assert.Empty(t, got.ContentBlobID)

	require.NoError(t, store.MarkResourceError(ctx, "req-1", res.URL, "decode failed"))
	got = mustGetResource(t, store, "req-1", res.URL)
	assert.Equal(t, ResourceError, got.Status)
	assert.Equal(t, "decode failed", got.Error)

	assert.ErrorIs(t, store.MarkResourceSampled(ctx, "req-1", "https://nope"), ErrNotFound)
}

func TestResourceFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	seed := []Resource{
		{RequestID: "req-1", URL: "u1", Query: "q1", Modality: "text", Status: ResourceDiscovered},
		{RequestID: "req-1", URL: "u2", Query: "q1", Modality: "text", Status: ResourceDiscovered},
		{RequestID: "req-1", URL: "u3", Query: "q2", Modality: "image", Status: ResourceDiscovered},
	}
	for i := range seed {
		require.NoError(t, store.UpsertResource(ctx, &seed[i]))
	}
	require.NoError(t, store.MarkResourceSampled(ctx, "req-1", "u2"))
	require.NoError(t, store.MarkResourceDownloaded(ctx, "req-1", "u3", "blob-3", "image/png", "f.png"))

	n, err := store.CountResources(ctx, ResourceFilter{RequestID: "req-1", Query: "q1", Modality: "text"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	sampled, err := store.ListResources(ctx, ResourceFilter{
		RequestID: "req-1",
		Statuses:  []ResourceStatus{ResourceSampled, ResourceDownloaded},
	})
	require.NoError(t, err)
	assert.Len(t, sampled, 2)

	hasBlob := true
	withBlob, err := store.ListResources(ctx, ResourceFilter{RequestID: "req-1", HasBlob: &hasBlob})
	require.NoError(t, err)
	require.Len(t, withBlob, 1)
	assert.Equal(t, "u3", withBlob[0].URL)

	limited, err := store.ListResources(ctx, ResourceFilter{RequestID: "req-1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestDatasetsAssetsCards(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	ds := &Dataset{
		DatasetID:  "ds-1",
		Name:       "pets",
		Spec:       DatasetSpec{Classes: []string{"cat", "dog"}, Total: 10},
		SliceStats: map[string]int{"cat": 5, "dog": 5},
	}
	require.NoError(t, store.InsertDataset(ctx, ds))
	require.NoError(t, store.InsertAssets(ctx, []Asset{
		{DatasetID: "ds-1", Class: "cat", URL: "u1", PHash: "p1"},
		{DatasetID: "ds-1", Class: "dog", URL: "u2", PHash: "p2"},
	}))

	assets, err := store.ListAssets(ctx, "ds-1")
	require.NoError(t, err)
	assert.Len(t, assets, 2)

	require.NoError(t, store.InsertCard(ctx, &Card{CardID: "c-1", DatasetID: "ds-1", Title: "first"}))
	require.NoError(t, store.InsertCard(ctx, &Card{CardID: "c-2", DatasetID: "ds-1", Title: "second"}))

	latest, err := store.LatestCard(ctx, "ds-1")
	require.NoError(t, err)
	// Cards share a timestamp granularity in fast tests; either is the
	// latest as long as one is returned.
	assert.NotEmpty(t, latest.CardID)

	require.NoError(t, store.DeleteDataset(ctx, "ds-1"))
	_, err = store.GetDataset(ctx, "ds-1")
	assert.ErrorIs(t, err, ErrNotFound)

	assets, err = store.ListAssets(ctx, "ds-1")
	require.NoError(t, err)
	assert.Empty(t, assets)
}

func TestChatAppendSetsTitleOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.AppendChatMessage(ctx, "chat-1", "first message", ChatMessage{
		Role: "user", Content: "first message",
	}))
	require.NoError(t, store.AppendChatMessage(ctx, "chat-1", "ignored", ChatMessage{
		Role: "assistant", Content: "reply",
	}))

	chat, err := store.GetChat(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "first message", chat.Title)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, "user", chat.Messages[0].Role)
	assert.Equal(t, "assistant", chat.Messages[1].Role)
	assert.False(t, chat.UpdatedAt.Before(chat.CreatedAt))

	chats, err := store.ListChats(ctx)
	require.NoError(t, err)
	assert.Len(t, chats, 1)

	require.NoError(t, store.DeleteChat(ctx, "chat-1"))
	assert.ErrorIs(t, store.DeleteChat(ctx, "chat-1"), ErrNotFound)
}

func mustGetResource(t *testing.T, store Store, requestID, url string) Resource {
	t.Helper()
	list, err := store.ListResources(context.Background(), ResourceFilter{RequestID: requestID})
	require.NoError(t, err)
	for _, res := range list {
		if res.URL == url {
			return res
		}
	}
	t.Fatalf("resource %s not found", url)
	return Resource{}
}
