package consistency

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/synapse/internal/fileid"
	"github.com/hyperjump/synapse/internal/models"
	"github.com/hyperjump/synapse/internal/storage"
	"github.com/hyperjump/synapse/internal/vault"
	"github.com/hyperjump/synapse/internal/vector"
)

type fixture struct {
	meta  *storage.MetadataStore
	emb   *storage.EmbeddingStore
	index *vector.Index
	check *Checker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d, err := vault.NewDisk(t.TempDir())
	require.NoError(t, err)
	f := &fixture{
		meta:  storage.NewMetadataStore(d, ".synapse/metadata"),
		emb:   storage.NewEmbeddingStore(d, ".synapse/embeddings"),
		index: vector.NewIndex(d, ".synapse/"+vector.DefaultFileName),
	}
	f.check = NewChecker(f.meta, f.emb, f.index, nil)
	return f
}

// seed stores a consistent two-chunk document at path.
func (f *fixture) seed(t *testing.T, path string) string {
	t.Helper()
	ctx := context.Background()
	id := fileid.DocumentID(path)
	meta := &models.DocumentMetadata{Chunks: []models.ChunkDescriptor{
		{Index: 0, Hash: "h0", EmbeddingRef: fileid.EmbeddingRef(id, 0)},
		{Index: 1, Hash: "h1", EmbeddingRef: fileid.EmbeddingRef(id, 1)},
	}}
	require.NoError(t, f.meta.Save(ctx, path, meta, 10))
	require.NoError(t, f.emb.Save(ctx, path, models.EmbeddingFile{0: {1, 0}, 1: {0, 1}}))
	require.NoError(t, f.index.UpdateFileIndex(ctx, id, []models.VectorEntry{
		{DocumentID: id, ChunkIndex: 0, ChunkHash: "h0", EmbeddingRef: fileid.EmbeddingRef(id, 0), Path: path, Embedding: []float32{1, 0}},
		{DocumentID: id, ChunkIndex: 1, ChunkHash: "h1", EmbeddingRef: fileid.EmbeddingRef(id, 1), Path: path, Embedding: []float32{0, 1}},
	}))
	return id
}

func withPrefix(lines []string, prefix string) []string {
	var out []string
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			out = append(out, l)
		}
	}
	return out
}

func TestCheck_consistentStores(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a.md")
	f.seed(t, "notes/b.md")

	report, err := f.check.Check(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
	assert.Empty(t, report.Fixed)
	assert.True(t, report.Consistent())
}

func TestCheck_emptyStores(t *testing.T) {
	f := newFixture(t)
	report, err := f.check.Check(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}

func TestCheck_missingVectorEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.seed(t, "a.md")
	_, err := f.index.RemoveFileIndex(ctx, id)
	require.NoError(t, err)

	report, err := f.check.Check(ctx, false)
	require.NoError(t, err)
	assert.Len(t, withPrefix(report.Errors, "[vector-index] missing entry"), 2)
	assert.Empty(t, report.Fixed)
	assert.Equal(t, 0, f.index.Len(ctx), "report-only check must not write")

	report, err = f.check.Check(ctx, true)
	require.NoError(t, err)
	assert.Len(t, report.Fixed, 2)
	require.Equal(t, 2, f.index.Len(ctx))

	hits, err := f.index.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].ChunkIndex, "repaired entries carry the stored embedding")

	report, err = f.check.Check(ctx, true)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}

// hookedVault runs onMetaRead once, on the first metadata read.
type hookedVault struct {
	*vault.Disk
	once       sync.Once
	onMetaRead func()
}

func (h *hookedVault) Read(ctx context.Context, p string) ([]byte, error) {
	if h.onMetaRead != nil && strings.HasPrefix(p, ".synapse/metadata/") {
		h.once.Do(h.onMetaRead)
	}
	return h.Disk.Read(ctx, p)
}

func TestCheck_repairKeepsConcurrentIndexUpdates(t *testing.T) {
	ctx := context.Background()
	d, err := vault.NewDisk(t.TempDir())
	require.NoError(t, err)
	index := vector.NewIndex(d, ".synapse/"+vector.DefaultFileName)
	hooked := &hookedVault{Disk: d}
	f := &fixture{
		meta:  storage.NewMetadataStore(hooked, ".synapse/metadata"),
		emb:   storage.NewEmbeddingStore(d, ".synapse/embeddings"),
		index: index,
	}
	f.check = NewChecker(f.meta, f.emb, f.index, nil)
	aID := f.seed(t, "a.md")
	_, err = index.RemoveFileIndex(ctx, aID)
	require.NoError(t, err)

	bID := fileid.DocumentID("b.md")
	hooked.onMetaRead = func() {
		assert.NoError(t, index.UpdateFileIndex(ctx, bID, []models.VectorEntry{
			{DocumentID: bID, ChunkIndex: 0, ChunkHash: "hb", Path: "b.md", Embedding: []float32{1, 1}},
		}))
	}

	report, err := f.check.Check(ctx, true)
	require.NoError(t, err)
	assert.Len(t, withPrefix(report.Fixed, "[vector-index] added entry"), 2)

	file, err := index.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.Len(t, file.Entries, 3)
	var docs []string
	for _, e := range file.Entries {
		docs = append(docs, e.DocumentID)
	}
	assert.Contains(t, docs, bID, "entry written during the check must survive the repair")
	assert.Contains(t, docs, aID)
}

func TestCheck_missingEmbeddingGetsPlaceholder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.seed(t, "a.md")
	require.NoError(t, f.emb.SaveByID(ctx, id, models.EmbeddingFile{0: {1, 0}}))

	report, err := f.check.Check(ctx, true)
	require.NoError(t, err)
	assert.Contains(t, report.Errors, "[embeddings] missing embedding doc="+id+" index=1")
	assert.Contains(t, report.Fixed, "[embeddings] added empty embedding doc="+id+" index=1")

	stored, err := f.emb.GetByID(ctx, id)
	require.NoError(t, err)
	require.Contains(t, stored, 1)
	assert.Empty(t, stored[1])
	assert.Equal(t, []float32{1, 0}, stored[0])

	report, err = f.check.Check(ctx, true)
	require.NoError(t, err)
	assert.True(t, report.Consistent(), "second repair run: %v", report.Errors)
}

func TestCheck_missingEmbeddingFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.seed(t, "a.md")
	require.NoError(t, f.emb.Delete(ctx, id))

	report, err := f.check.Check(ctx, true)
	require.NoError(t, err)
	assert.NotEmpty(t, withPrefix(report.Errors, "[embeddings] missing embedding"))

	stored, err := f.emb.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	report, err = f.check.Check(ctx, true)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}

func TestCheck_orphanedEmbeddingRemoved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.seed(t, "a.md")
	require.NoError(t, f.emb.SaveByID(ctx, id, models.EmbeddingFile{0: {1, 0}, 1: {0, 1}, 5: {1, 1}}))

	report, err := f.check.Check(ctx, false)
	require.NoError(t, err)
	assert.Contains(t, report.Errors, "[metadata] unreferenced embedding doc="+id+" index=5")
	assert.Contains(t, report.Errors, "[vector-index] unreferenced embedding doc="+id+" index=5")

	report, err = f.check.Check(ctx, true)
	require.NoError(t, err)
	assert.Contains(t, report.Fixed, "[embeddings] removed orphaned embedding doc="+id+" index=5")
	stored, err := f.emb.GetByID(ctx, id)
	require.NoError(t, err)
	assert.NotContains(t, stored, 5)
	assert.Len(t, stored, 2)

	report, err = f.check.Check(ctx, true)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}

func TestCheck_missingMetadataIsNeverRepaired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "a.md")
	ghost := fileid.DocumentID("ghost.md")
	require.NoError(t, f.index.UpdateFileIndex(ctx, ghost, []models.VectorEntry{
		{DocumentID: ghost, ChunkIndex: 0, ChunkHash: "x", EmbeddingRef: fileid.EmbeddingRef(ghost, 0), Path: "ghost.md", Embedding: []float32{1}},
	}))

	report, err := f.check.Check(ctx, true)
	require.NoError(t, err)
	assert.Contains(t, report.Errors, "[metadata] missing document doc="+ghost)
	assert.Empty(t, withPrefix(report.Fixed, "[metadata]"))

	exists, err := f.meta.GetByID(ctx, ghost)
	require.NoError(t, err)
	assert.Nil(t, exists)

	report, err = f.check.Check(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, withPrefix(report.Errors, "[vector-index]"))
	assert.Empty(t, withPrefix(report.Errors, "[embeddings]"))
	assert.NotEmpty(t, withPrefix(report.Errors, "[metadata]"))
}

func TestCheck_staleChunkHashReported(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.seed(t, "a.md")
	meta, err := f.meta.GetByID(ctx, id)
	require.NoError(t, err)
	meta.Chunks[1].Hash = "changed"
	require.NoError(t, f.meta.Save(ctx, "a.md", meta, 10))

	report, err := f.check.Check(ctx, true)
	require.NoError(t, err)
	assert.Contains(t, report.Errors, "[vector-index] missing entry doc="+id+" chunk=1 hash=changed")
	assert.Contains(t, report.Errors, "[metadata] missing chunk doc="+id+" chunk=1 hash=h1")
}

func TestCheck_unparsableRefFallsBackToChunk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.seed(t, "a.md")
	meta, err := f.meta.GetByID(ctx, id)
	require.NoError(t, err)
	meta.Chunks[0].EmbeddingRef = "{broken}"
	require.NoError(t, f.meta.Save(ctx, "a.md", meta, 10))

	report, err := f.check.Check(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, withPrefix(report.Errors, "[embeddings]"))
}

func TestResolveRef(t *testing.T) {
	id, idx := resolveRef("../embeddings/YS5tZA.json#3", "other", 0)
	assert.Equal(t, "YS5tZA", id)
	assert.Equal(t, 3, idx)

	id, idx = resolveRef("", "doc", 7)
	assert.Equal(t, "doc", id)
	assert.Equal(t, 7, idx)
}
