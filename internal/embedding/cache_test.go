package embedding

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/synapse/internal/vault"
)

func TestCacheKey_String(t *testing.T) {
	k := CacheKey{DocumentID: "YS5tZA", ChunkIndex: 3, Provider: "http", Model: "nomic-embed-text"}
	assert.Equal(t, "YS5tZA::3::http::nomic-embed-text", k.String())
}

func newTestJSONCache(t *testing.T) (*JSONCache, *vault.Disk) {
	t.Helper()
	d, err := vault.NewDisk(t.TempDir())
	require.NoError(t, err)
	return NewJSONCache(d, ".synapse/"+JSONCacheFileName, nil), d
}

func TestJSONCache_persistsOnFlush(t *testing.T) {
	ctx := context.Background()
	c, d := newTestJSONCache(t)
	key := CacheKey{DocumentID: "doc", ChunkIndex: 0, Provider: "mock", Model: "mock"}

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
	c.Set(ctx, key, []float32{0.5, 0.25})
	require.NoError(t, c.Flush(ctx))

	reopened := NewJSONCache(d, ".synapse/"+JSONCacheFileName, nil)
	vec, ok := reopened.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []float32{0.5, 0.25}, vec)
	assert.Equal(t, 1, reopened.Len(ctx))
}

func TestJSONCache_flushWithoutChangesDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	c, d := newTestJSONCache(t)
	require.NoError(t, c.Flush(ctx))
	exists, err := d.Exists(ctx, ".synapse/"+JSONCacheFileName)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestJSONCache_malformedFileStartsEmpty(t *testing.T) {
	ctx := context.Background()
	c, d := newTestJSONCache(t)
	require.NoError(t, d.Mkdir(ctx, ".synapse"))
	require.NoError(t, d.Write(ctx, ".synapse/"+JSONCacheFileName, []byte("{not json")))
	assert.Equal(t, 0, c.Len(ctx))
}

func TestJSONCache_deleteDocumentAndClear(t *testing.T) {
	ctx := context.Background()
	c, d := newTestJSONCache(t)
	c.Set(ctx, CacheKey{DocumentID: "a", ChunkIndex: 0}, []float32{1})
	c.Set(ctx, CacheKey{DocumentID: "a", ChunkIndex: 1}, []float32{1})
	c.Set(ctx, CacheKey{DocumentID: "ab", ChunkIndex: 0}, []float32{1})

	c.DeleteDocument(ctx, "a")
	assert.Equal(t, 1, c.Len(ctx))
	_, ok := c.Get(ctx, CacheKey{DocumentID: "ab", ChunkIndex: 0})
	assert.True(t, ok)
	c.Set(ctx, CacheKey{DocumentID: "ab", ChunkIndex: 1}, []float32{2})
	c.Delete(ctx, CacheKey{DocumentID: "ab", ChunkIndex: 1})
	c.Delete(ctx, CacheKey{DocumentID: "missing"})
	assert.Equal(t, 1, c.Len(ctx))

	require.NoError(t, c.Flush(ctx))
	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, c.Len(ctx))
	exists, err := d.Exists(ctx, ".synapse/"+JSONCacheFileName)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLiteCache(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "cache", SQLiteCacheFileName)
	c, err := NewSQLiteCache(dbPath, nil)
	require.NoError(t, err)

	k1 := CacheKey{DocumentID: "a", ChunkIndex: 0, Provider: "mock", Model: "mock"}
	k2 := CacheKey{DocumentID: "b", ChunkIndex: 0, Provider: "mock", Model: "mock"}
	_, ok := c.Get(ctx, k1)
	assert.False(t, ok)

	c.Set(ctx, k1, []float32{1.5, -2, 0})
	c.Set(ctx, k2, []float32{3})
	c.Set(ctx, k2, []float32{4})
	require.NoError(t, c.Flush(ctx))

	vec, ok := c.Get(ctx, k1)
	require.True(t, ok)
	assert.Equal(t, []float32{1.5, -2, 0}, vec)
	vec, _ = c.Get(ctx, k2)
	assert.Equal(t, []float32{4}, vec)
	assert.Equal(t, 2, c.Len(ctx))

	c.DeleteDocument(ctx, "a")
	assert.Equal(t, 1, c.Len(ctx))
	c.Set(ctx, k1, []float32{1})
	c.Delete(ctx, k1)
	_, ok = c.Get(ctx, k1)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len(ctx))
	require.NoError(t, c.Close())

	reopened, err := NewSQLiteCache(dbPath, nil)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 1, reopened.Len(ctx))
	require.NoError(t, reopened.Clear(ctx))
	assert.Equal(t, 0, reopened.Len(ctx))
}

func TestFloat32Bytes(t *testing.T) {
	in := []float32{0, 1, -1, 3.25}
	assert.Equal(t, in, bytesToFloat32Slice(float32SliceToBytes(in)))
	assert.Len(t, float32SliceToBytes(in), 16)
}
