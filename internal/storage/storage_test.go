package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/synapse/internal/fileid"
	"github.com/hyperjump/synapse/internal/models"
	"github.com/hyperjump/synapse/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVault(t *testing.T) *vault.Disk {
	t.Helper()
	v, err := vault.NewDisk(t.TempDir())
	require.NoError(t, err)
	return v
}

// failingRemove fails Remove for paths containing match.
type failingRemove struct {
	*vault.Disk
	match string
}

func (f *failingRemove) Remove(ctx context.Context, p string) error {
	if strings.Contains(p, f.match) {
		return errors.New("disk on fire")
	}
	return f.Disk.Remove(ctx, p)
}

func TestMetadataStore_saveGet(t *testing.T) {
	ctx := context.Background()
	s := NewMetadataStore(newVault(t), ".synapse/metadata")

	got, err := s.Get(ctx, "notes/a.md")
	require.NoError(t, err)
	assert.Nil(t, got)

	meta := &models.DocumentMetadata{
		Title:        "a",
		LastModified: time.Unix(1700000000, 0).UTC(),
		Chunks: []models.ChunkDescriptor{
			{Index: 0, Hash: "h0", Start: 0, End: 10, EmbeddingRef: fileid.EmbeddingRef(fileid.DocumentID("notes/a.md"), 0)},
		},
	}
	require.NoError(t, s.Save(ctx, "notes/a.md", meta, 10))

	got, err = s.Get(ctx, "notes/a.md")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, fileid.DocumentID("notes/a.md"), got.DocumentID)
	assert.Equal(t, "notes/a.md", got.Path)
	assert.Equal(t, 10, got.ChunkSize)
	assert.NotNil(t, got.Metadata)
	assert.NotNil(t, got.Chunks[0].Metadata)
	assert.True(t, meta.LastModified.Equal(got.LastModified))

	byID, err := s.GetByID(ctx, got.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, got, byID)
}

func TestMetadataStore_nilMetadataPersistsAsObject(t *testing.T) {
	ctx := context.Background()
	v := newVault(t)
	s := NewMetadataStore(v, "meta")
	require.NoError(t, s.Save(ctx, "x.md", &models.DocumentMetadata{}, 5))
	raw, err := v.Read(ctx, "meta/"+fileid.DocumentID("x.md")+".json")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"metadata":{}`)
	assert.Contains(t, string(raw), `"chunks":[]`)
}

func TestMetadataStore_malformedGetFails(t *testing.T) {
	ctx := context.Background()
	v := newVault(t)
	s := NewMetadataStore(v, "meta")
	require.NoError(t, v.Write(ctx, "meta/bad.json", []byte("{not json")))
	_, err := s.GetByID(ctx, "bad")
	assert.Error(t, err)
}

func TestMetadataStore_listCreatesDir(t *testing.T) {
	ctx := context.Background()
	v := newVault(t)
	s := NewMetadataStore(v, "meta")
	files, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
	ok, err := v.Exists(ctx, "meta")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Save(ctx, "b.md", &models.DocumentMetadata{}, 5))
	ids, err := s.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{fileid.DocumentID("b.md")}, ids)
}

func TestMetadataStore_delete(t *testing.T) {
	for _, useTrash := range []bool{false, true} {
		ctx := context.Background()
		v := newVault(t)
		s := NewMetadataStore(v, "meta", WithTrash(useTrash))
		require.NoError(t, s.Save(ctx, "c.md", &models.DocumentMetadata{}, 5))
		id := fileid.DocumentID("c.md")

		require.NoError(t, s.Delete(ctx, id))
		require.NoError(t, s.Delete(ctx, id), "second delete must be a no-op")
		got, err := s.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got)

		trashed, err := v.Exists(ctx, vault.TrashDir+"/meta/"+id+".json")
		require.NoError(t, err)
		assert.Equal(t, useTrash, trashed)
	}
}

func TestMetadataStore_allPropertyKeys(t *testing.T) {
	ctx := context.Background()
	v := newVault(t)
	s := NewMetadataStore(v, "meta")
	require.NoError(t, s.Save(ctx, "a.md", &models.DocumentMetadata{
		Metadata: models.Properties{
			"tags":   []interface{}{"go", "notes"},
			"author": map[string]interface{}{"name": "x", "contact": map[string]interface{}{"email": "y"}},
		},
		Chunks: []models.ChunkDescriptor{{Index: 0, Metadata: models.Properties{"heading": "Intro"}}},
	}, 5))
	require.NoError(t, s.Save(ctx, "b.md", &models.DocumentMetadata{
		Metadata: models.Properties{"tags": []interface{}{"go"}, "status": "draft"},
	}, 5))
	require.NoError(t, v.Write(ctx, "meta/broken.json", []byte("{")))

	keys, err := s.AllPropertyKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"author", "author.contact", "author.contact.email", "author.name",
		"heading", "status", "tags", "tags:go", "tags:notes",
	}, keys)
}

func TestMetadataStore_deleteAll(t *testing.T) {
	ctx := context.Background()
	v := newVault(t)
	s := NewMetadataStore(v, "meta")
	require.NoError(t, s.Save(ctx, "a.md", &models.DocumentMetadata{}, 5))
	require.NoError(t, s.Save(ctx, "b.md", &models.DocumentMetadata{}, 5))
	require.NoError(t, s.DeleteAll(ctx))
	ok, err := v.Exists(ctx, "meta")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmbeddingStore_roundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewEmbeddingStore(newVault(t), ".synapse/embeddings")

	got, err := s.Get(ctx, "a.md")
	require.NoError(t, err)
	assert.Nil(t, got)

	file := models.EmbeddingFile{0: {0.1, 0.2}, 3: {1, 0}}
	require.NoError(t, s.Save(ctx, "a.md", file))
	got, err = s.Get(ctx, "a.md")
	require.NoError(t, err)
	assert.Equal(t, file, got)

	require.NoError(t, s.Delete(ctx, fileid.DocumentID("a.md")))
	require.NoError(t, s.Delete(ctx, fileid.DocumentID("a.md")))
	got, err = s.Get(ctx, "a.md")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEmbeddingStore_deleteAllContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	v := &failingRemove{Disk: newVault(t), match: "stuck"}
	s := NewEmbeddingStore(v, "emb")
	require.NoError(t, s.SaveByID(ctx, "stuck", models.EmbeddingFile{0: {1}}))
	require.NoError(t, s.SaveByID(ctx, "free1", models.EmbeddingFile{0: {1}}))
	require.NoError(t, s.SaveByID(ctx, "free2", models.EmbeddingFile{0: {1}}))

	require.NoError(t, s.DeleteAll(ctx))
	ids, err := s.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"stuck"}, ids)
}

func TestDiskUsageBytes(t *testing.T) {
	ctx := context.Background()
	v := newVault(t)
	require.NoError(t, v.Write(ctx, "d/a.json", []byte("12345")))
	require.NoError(t, v.Write(ctx, "d/b.json", []byte("123")))
	require.NoError(t, v.Write(ctx, "index.json", []byte("12")))

	n, err := DiskUsageBytes(ctx, v, "d", "index.json", "missing.json", "")
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
}
