package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/synapse/internal/models"
	"github.com/hyperjump/synapse/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingVault counts writes so tests can assert when the index is persisted.
type countingVault struct {
	*vault.Disk
	writes int
	fail   bool
}

func (c *countingVault) Write(ctx context.Context, p string, data []byte) error {
	if c.fail {
		return errors.New("read-only")
	}
	c.writes++
	return c.Disk.Write(ctx, p, data)
}

func newTestIndex(t *testing.T) (*Index, *countingVault) {
	t.Helper()
	d, err := vault.NewDisk(t.TempDir())
	require.NoError(t, err)
	cv := &countingVault{Disk: d}
	return NewIndex(cv, ".synapse/"+DefaultFileName), cv
}

func entry(doc string, idx int, emb ...float32) models.VectorEntry {
	return models.VectorEntry{DocumentID: doc, ChunkIndex: idx, Path: doc + ".md", Embedding: emb}
}

func TestIndex_getMissingReturnsNilThenEmpty(t *testing.T) {
	ctx := context.Background()
	x, _ := newTestIndex(t)
	got, err := x.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = x.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.Entries)
}

func TestIndex_getMalformed(t *testing.T) {
	ctx := context.Background()
	x, cv := newTestIndex(t)
	require.NoError(t, cv.Disk.Write(ctx, x.Path(), []byte(`{"entries": {"not": "an array"}}`)))
	got, err := x.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, x.Len(ctx))
}

func TestIndex_saveGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	x, cv := newTestIndex(t)
	entries := []models.VectorEntry{entry("a", 0, 1, 0), entry("a", 1, 0, 1), entry("b", 0, 1, 1)}
	ts := time.Unix(1700000000, 0).UTC()
	require.NoError(t, x.Save(ctx, entries, ts))

	got, err := x.Get(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, entries, got.Entries)
	assert.True(t, ts.Equal(got.LastUpdated))

	// a fresh index reads the same data from disk
	fresh := NewIndex(cv, x.Path())
	got, err = fresh.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.ElementsMatch(t, entries, got.Entries)
}

func TestIndex_updateFileIndexReplacesDocument(t *testing.T) {
	ctx := context.Background()
	x, _ := newTestIndex(t)
	require.NoError(t, x.Save(ctx, []models.VectorEntry{entry("a", 0, 1), entry("a", 1, 1), entry("b", 0, 1)}, time.Now()))

	require.NoError(t, x.UpdateFileIndex(ctx, "a", []models.VectorEntry{
		entry("a", 0, 0.5),
		entry("a", 1), // no embedding: dropped
	}))
	got, err := x.Get(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.VectorEntry{entry("b", 0, 1), entry("a", 0, 0.5)}, got.Entries)
}

func TestIndex_updateFileIndexIdempotent(t *testing.T) {
	ctx := context.Background()
	x, _ := newTestIndex(t)
	set := []models.VectorEntry{entry("a", 0, 1, 2), entry("a", 1, 3, 4)}
	require.NoError(t, x.UpdateFileIndex(ctx, "a", set))
	require.NoError(t, x.UpdateFileIndex(ctx, "a", set))
	assert.Equal(t, 2, x.Len(ctx))
}

func TestIndex_removeFileIndexWritesOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	x, cv := newTestIndex(t)
	require.NoError(t, x.Save(ctx, []models.VectorEntry{entry("a", 0, 1), entry("b", 0, 1)}, time.Now()))
	writes := cv.writes

	n, err := x.RemoveFileIndex(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, writes, cv.writes)

	n, err = x.RemoveFileIndex(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, writes+1, cv.writes)
	assert.Equal(t, 1, x.Len(ctx))
}

func TestIndex_modify(t *testing.T) {
	ctx := context.Background()
	x, cv := newTestIndex(t)
	require.NoError(t, x.Save(ctx, []models.VectorEntry{entry("a", 0, 1)}, time.Now()))
	writes := cv.writes

	require.NoError(t, x.Modify(ctx, func(entries []models.VectorEntry) ([]models.VectorEntry, bool) {
		entries[0].Path = "mutated.md"
		return entries, false
	}))
	assert.Equal(t, writes, cv.writes)
	got, _ := x.Get(ctx)
	assert.Equal(t, "a.md", got.Entries[0].Path, "unchanged pass must not leak edits into the cache")

	require.NoError(t, x.Modify(ctx, func(entries []models.VectorEntry) ([]models.VectorEntry, bool) {
		return append(entries, entry("b", 0, 2)), true
	}))
	assert.Equal(t, writes+1, cv.writes)
	assert.Equal(t, 2, x.Len(ctx))
}

func TestIndex_modifyDoesNotLoseConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	x, _ := newTestIndex(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		doc := fmt.Sprintf("doc%d", i)
		go func() {
			defer wg.Done()
			assert.NoError(t, x.UpdateFileIndex(ctx, doc, []models.VectorEntry{entry(doc, 0, 1)}))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, x.Modify(ctx, func(entries []models.VectorEntry) ([]models.VectorEntry, bool) {
				return append(entries, entry(doc+"-extra", 0, 1)), true
			}))
		}()
	}
	wg.Wait()
	assert.Equal(t, 40, x.Len(ctx))
}

func TestIndex_failedSaveKeepsCache(t *testing.T) {
	ctx := context.Background()
	x, cv := newTestIndex(t)
	require.NoError(t, x.Save(ctx, []models.VectorEntry{entry("a", 0, 1)}, time.Now()))
	cv.fail = true
	assert.Error(t, x.UpdateFileIndex(ctx, "b", []models.VectorEntry{entry("b", 0, 1)}))
	assert.Equal(t, 1, x.Len(ctx))
}

func TestIndex_search(t *testing.T) {
	ctx := context.Background()
	x, _ := newTestIndex(t)
	noPath := entry("d", 0, 1, 0)
	noPath.Path = ""
	require.NoError(t, x.Save(ctx, []models.VectorEntry{
		entry("a", 0, 1, 0),
		entry("b", 0, 0, 1),
		entry("c", 0, -1, 0),
		entry("e", 0, 0.7, 0.7),
		entry("f", 0), // no embedding
		noPath,
	}, time.Now()))

	hits, err := x.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	assert.Equal(t, "a", hits[0].DocumentID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "e", hits[1].DocumentID)
	assert.Equal(t, "c", hits[3].DocumentID)
	assert.InDelta(t, -1.0, hits[3].Score, 1e-6)
	assert.True(t, sort.SliceIsSorted(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score }))

	top, err := x.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)

	none, err := x.Search(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestIndex_delete(t *testing.T) {
	ctx := context.Background()
	x, cv := newTestIndex(t)
	require.NoError(t, x.Save(ctx, []models.VectorEntry{entry("a", 0, 1)}, time.Now()))
	require.NoError(t, x.Delete(ctx))
	require.NoError(t, x.Delete(ctx))
	assert.Equal(t, 0, x.Len(ctx))
	ok, err := cv.Exists(ctx, x.Path())
	require.NoError(t, err)
	assert.False(t, ok)
}
