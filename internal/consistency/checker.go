// Package consistency cross-checks the metadata, embedding and vector index stores and
// optionally repairs the gaps it finds.
package consistency

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/synapse/internal/fileid"
	"github.com/hyperjump/synapse/internal/models"
	"github.com/hyperjump/synapse/internal/storage"
	"github.com/hyperjump/synapse/internal/vector"
	"github.com/hyperjump/synapse/pkg/utils"
)

// Checker validates the three stores against each other.
type Checker struct {
	metadata   *storage.MetadataStore
	embeddings *storage.EmbeddingStore
	index      *vector.Index
	logger     *zap.Logger
}

// NewChecker returns a checker over the given stores. logger may be nil.
func NewChecker(metadata *storage.MetadataStore, embeddings *storage.EmbeddingStore, index *vector.Index, logger *zap.Logger) *Checker {
	return &Checker{
		metadata:   metadata,
		embeddings: embeddings,
		index:      index,
		logger:     utils.OrNop(logger),
	}
}

// run holds the per-check view of the stores. Records are read at most once.
type run struct {
	ctx     context.Context
	c       *Checker
	autoFix bool
	report  *models.ConsistencyReport

	metas    map[string]*models.DocumentMetadata
	metaErrs map[string]error
	embs     map[string]models.EmbeddingFile
	embErrs  map[string]error

	// entries is the vector index as read at the start plus the entries added by repairs;
	// added holds only the latter, which are merged into the live index at the end.
	entries []models.VectorEntry
	added   []models.VectorEntry
}

// Check runs three passes: metadata against the vector index and embeddings, vector index
// against metadata and embeddings, and embeddings against metadata and the vector index.
// With autoFix, missing vector entries and embeddings are filled in, orphaned embeddings
// are deleted and the added vector entries are merged into the live index once at the end,
// so entries written concurrently by document processing survive. Missing metadata is only
// reported. Repairs are independent; a failed repair is reported and the check goes on.
func (c *Checker) Check(ctx context.Context, autoFix bool) (*models.ConsistencyReport, error) {
	r := &run{
		ctx:      ctx,
		c:        c,
		autoFix:  autoFix,
		report:   &models.ConsistencyReport{Errors: []string{}, Fixed: []string{}},
		metas:    make(map[string]*models.DocumentMetadata),
		metaErrs: make(map[string]error),
		embs:     make(map[string]models.EmbeddingFile),
		embErrs:  make(map[string]error),
	}

	metaIDs, err := c.metadata.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}
	embIDs, err := c.embeddings.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	if file, _ := c.index.Get(ctx); file != nil {
		r.entries = file.Entries
	}

	for _, id := range metaIDs {
		if err := ctx.Err(); err != nil {
			return r.report, err
		}
		r.checkMetadata(id)
	}
	for i := 0; i < len(r.entries); i++ {
		if err := ctx.Err(); err != nil {
			return r.report, err
		}
		r.checkVectorEntry(r.entries[i])
	}
	for _, id := range embIDs {
		if err := ctx.Err(); err != nil {
			return r.report, err
		}
		r.checkEmbeddings(id)
	}

	if autoFix && len(r.added) > 0 {
		if err := c.index.Modify(ctx, r.mergeAdded); err != nil {
			return r.report, fmt.Errorf("failed to save repaired vector index: %w", err)
		}
	}
	c.logger.Info("consistency check finished",
		zap.Bool("auto_fix", autoFix),
		zap.Int("errors", len(r.report.Errors)),
		zap.Int("fixed", len(r.report.Fixed)))
	return r.report, nil
}

func (r *run) errorf(format string, args ...interface{}) {
	r.report.Errors = append(r.report.Errors, fmt.Sprintf(format, args...))
}

func (r *run) fixedf(format string, args ...interface{}) {
	r.report.Fixed = append(r.report.Fixed, fmt.Sprintf(format, args...))
}

func (r *run) meta(id string) (*models.DocumentMetadata, error) {
	if m, ok := r.metas[id]; ok {
		return m, nil
	}
	if err, ok := r.metaErrs[id]; ok {
		return nil, err
	}
	m, err := r.c.metadata.GetByID(r.ctx, id)
	if err != nil {
		r.metaErrs[id] = err
		return nil, err
	}
	r.metas[id] = m
	return m, nil
}

// embeddingFile returns the cached embedding record; nil means absent.
func (r *run) embeddingFile(id string) (models.EmbeddingFile, error) {
	if f, ok := r.embs[id]; ok {
		return f, nil
	}
	if err, ok := r.embErrs[id]; ok {
		return nil, err
	}
	f, err := r.c.embeddings.GetByID(r.ctx, id)
	if err != nil {
		r.embErrs[id] = err
		return nil, err
	}
	r.embs[id] = f
	return f, nil
}

func (r *run) saveEmbeddings(id string, f models.EmbeddingFile) error {
	if err := r.c.embeddings.SaveByID(r.ctx, id, f); err != nil {
		r.c.logger.Warn("consistency repair failed", zap.String("doc_id", id), zap.Error(err))
		r.errorf("[embeddings] failed to write doc=%s: %v", id, err)
		return err
	}
	r.embs[id] = f
	delete(r.embErrs, id)
	return nil
}

// resolveRef maps an embedding reference to its document and index, falling back to
// the owning chunk when the reference cannot be parsed.
func resolveRef(ref, docID string, index int) (string, int) {
	if id, idx, ok := fileid.ParseEmbeddingRef(ref); ok {
		return id, idx
	}
	return docID, index
}

func (r *run) hasEntry(docID, hash string, index int) bool {
	return containsEntry(r.entries, docID, hash, index)
}

func containsEntry(entries []models.VectorEntry, docID, hash string, index int) bool {
	for _, e := range entries {
		if e.DocumentID == docID && e.ChunkHash == hash && e.ChunkIndex == index {
			return true
		}
	}
	return false
}

// mergeAdded appends repaired entries that the live index does not already hold.
func (r *run) mergeAdded(current []models.VectorEntry) ([]models.VectorEntry, bool) {
	changed := false
	for _, e := range r.added {
		if !containsEntry(current, e.DocumentID, e.ChunkHash, e.ChunkIndex) {
			current = append(current, e)
			changed = true
		}
	}
	return current, changed
}

func (r *run) referencedByIndex(docID string, index int) bool {
	for _, e := range r.entries {
		if e.DocumentID == docID && e.ChunkIndex == index {
			return true
		}
	}
	return false
}

func (r *run) checkMetadata(id string) {
	m, err := r.meta(id)
	if err != nil {
		r.c.logger.Warn("skipping unreadable metadata", zap.String("doc_id", id), zap.Error(err))
		r.errorf("[metadata] unreadable doc=%s: %v", id, err)
		return
	}
	if m == nil {
		return
	}
	for _, chunk := range m.Chunks {
		embID, embIdx := resolveRef(chunk.EmbeddingRef, id, chunk.Index)

		if !r.hasEntry(id, chunk.Hash, chunk.Index) {
			r.errorf("[vector-index] missing entry doc=%s chunk=%d hash=%s", id, chunk.Index, chunk.Hash)
			if r.autoFix {
				embedding := []float32{}
				if f, err := r.embeddingFile(embID); err == nil {
					if vec, ok := f[embIdx]; ok && vec != nil {
						embedding = vec
					}
				}
				e := models.VectorEntry{
					DocumentID:   id,
					ChunkIndex:   chunk.Index,
					ChunkHash:    chunk.Hash,
					EmbeddingRef: chunk.EmbeddingRef,
					Path:         m.Path,
					Embedding:    embedding,
				}
				r.entries = append(r.entries, e)
				r.added = append(r.added, e)
				r.fixedf("[vector-index] added entry doc=%s chunk=%d hash=%s", id, chunk.Index, chunk.Hash)
			}
		}
		r.checkEmbedding(embID, embIdx)
	}
}

func (r *run) checkVectorEntry(e models.VectorEntry) {
	m, err := r.meta(e.DocumentID)
	switch {
	case err != nil || m == nil:
		r.errorf("[metadata] missing document doc=%s", e.DocumentID)
	default:
		if c, ok := m.Chunk(e.ChunkIndex); !ok || c.Hash != e.ChunkHash {
			r.errorf("[metadata] missing chunk doc=%s chunk=%d hash=%s", e.DocumentID, e.ChunkIndex, e.ChunkHash)
		}
	}
	embID, embIdx := resolveRef(e.EmbeddingRef, e.DocumentID, e.ChunkIndex)
	r.checkEmbedding(embID, embIdx)
}

// checkEmbedding verifies that the embedding record of id holds index, writing an empty
// placeholder when repairing.
func (r *run) checkEmbedding(id string, index int) {
	f, err := r.embeddingFile(id)
	if err != nil {
		r.errorf("[embeddings] unreadable file doc=%s: %v", id, err)
		if r.autoFix {
			if r.saveEmbeddings(id, models.EmbeddingFile{index: {}}) == nil {
				r.fixedf("[embeddings] replaced unreadable file doc=%s", id)
			}
		}
		return
	}
	if f != nil {
		if _, ok := f[index]; ok {
			return
		}
	}
	r.errorf("[embeddings] missing embedding doc=%s index=%d", id, index)
	if !r.autoFix {
		return
	}
	next := models.EmbeddingFile{}
	for k, v := range f {
		next[k] = v
	}
	next[index] = []float32{}
	if r.saveEmbeddings(id, next) == nil {
		r.fixedf("[embeddings] added empty embedding doc=%s index=%d", id, index)
	}
}

func (r *run) checkEmbeddings(id string) {
	f, err := r.embeddingFile(id)
	if err != nil || f == nil {
		return
	}
	m, metaErr := r.meta(id)
	metaMissing := metaErr != nil || m == nil
	if metaMissing {
		r.errorf("[metadata] missing document doc=%s", id)
	}

	next := models.EmbeddingFile{}
	removed := 0
	for _, idx := range sortedIndices(f) {
		inMeta := false
		if !metaMissing {
			_, inMeta = m.Chunk(idx)
			if !inMeta {
				r.errorf("[metadata] unreferenced embedding doc=%s index=%d", id, idx)
			}
		}
		inIndex := r.referencedByIndex(id, idx)
		if !inIndex {
			r.errorf("[vector-index] unreferenced embedding doc=%s index=%d", id, idx)
		}
		if r.autoFix && !inMeta && !inIndex {
			removed++
			r.fixedf("[embeddings] removed orphaned embedding doc=%s index=%d", id, idx)
			continue
		}
		next[idx] = f[idx]
	}
	if removed > 0 {
		_ = r.saveEmbeddings(id, next)
	}
}

func sortedIndices(f models.EmbeddingFile) []int {
	out := make([]int, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
