// internal/blobstore/memory_test.go
package blobstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	blobID, err := store.Put(ctx, "data.csv", "text/csv", strings.NewReader("a,b\n1,2\n"))
	require.NoError(t, err)
	require.NotEmpty(t, blobID)

	rc, err := store.Open(ctx, blobID)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	require.NoError(t, store.Delete(ctx, blobID))
	assert.Equal(t, 0, store.Len())

	_, err = store.Open(ctx, blobID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, blobID), ErrNotFound)
}

func TestMemoryStoreDistinctIDs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	id1, err := store.Put(ctx, "a.txt", "text/plain", strings.NewReader("one"))
	require.NoError(t, err)
	id2, err := store.Put(ctx, "a.txt", "text/plain", strings.NewReader("two"))
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, store.Len())
}
