// Package indexer keeps the metadata, embedding and vector index stores up to date with
// the documents of a vault.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/synapse/internal/consistency"
	"github.com/hyperjump/synapse/internal/embedding"
	"github.com/hyperjump/synapse/internal/fileid"
	"github.com/hyperjump/synapse/internal/frontmatter"
	"github.com/hyperjump/synapse/internal/keyword"
	"github.com/hyperjump/synapse/internal/models"
	"github.com/hyperjump/synapse/internal/storage"
	"github.com/hyperjump/synapse/internal/vault"
	"github.com/hyperjump/synapse/internal/vector"
	"github.com/hyperjump/synapse/pkg/utils"
)

// Stores groups the three persisted stores and the adapter they write through.
type Stores struct {
	Adapter    vault.Adapter
	Metadata   *storage.MetadataStore
	Embeddings *storage.EmbeddingStore
	Index      *vector.Index
}

// Pipeline processes documents into the stores. Work on one document id is serialized;
// different documents may be processed concurrently. Whole-store passes (rebuild, cleanup,
// consistency check) exclude all document work while they run.
type Pipeline struct {
	source    vault.DocumentSource
	stores    Stores
	generator *embedding.Generator
	checker   *consistency.Checker
	keyword   keyword.KeywordIndex
	policy    ErrorPolicy
	logger    *zap.Logger
	now       func() time.Time
	locks     *keyedMutex
	// maint is held shared by per-document work and exclusively by whole-store passes.
	maint sync.RWMutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a logger for debug output (document processed, document deleted, etc.).
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithKeywordIndex adds a keyword index that is updated after each document. Its
// failures are logged and never fail processing.
func WithKeywordIndex(k keyword.KeywordIndex) Option {
	return func(p *Pipeline) { p.keyword = k }
}

// WithErrorPolicy sets how per-document failures are reported. The default is Absorb.
func WithErrorPolicy(policy ErrorPolicy) Option {
	return func(p *Pipeline) { p.policy = policy }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline returns a pipeline. Missing collaborators are configuration errors.
func NewPipeline(source vault.DocumentSource, stores Stores, generator *embedding.Generator, opts ...Option) (*Pipeline, error) {
	switch {
	case source == nil:
		return nil, errors.New("indexer: document source is required")
	case stores.Adapter == nil || stores.Metadata == nil || stores.Embeddings == nil || stores.Index == nil:
		return nil, errors.New("indexer: all stores are required")
	case generator == nil:
		return nil, fmt.Errorf("indexer: %w", embedding.ErrNoEmbedder)
	}
	p := &Pipeline{
		source:    source,
		stores:    stores,
		generator: generator,
		now:       time.Now,
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = utils.OrNop(p.logger)
	p.checker = consistency.NewChecker(stores.Metadata, stores.Embeddings, stores.Index, p.logger)
	return p, nil
}

// Stores returns the stores the pipeline writes to.
func (p *Pipeline) Stores() Stores { return p.stores }

// Generator returns the embedding generator.
func (p *Pipeline) Generator() *embedding.Generator { return p.generator }

// handle applies the error policy. Cancellation always propagates.
func (p *Pipeline) handle(err error, op, docPath string) error {
	if err == nil {
		return nil
	}
	p.logger.Error("document processing failed",
		zap.String("op", op), zap.String("path", docPath), zap.Error(err))
	if p.policy == Propagate || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// ProcessDocument chunks and embeds content, reusing the embeddings of unchanged chunks,
// then rewrites the metadata and embedding records and the document's vector entries.
func (p *Pipeline) ProcessDocument(ctx context.Context, docPath, content string, modTime time.Time) error {
	p.maint.RLock()
	defer p.maint.RUnlock()
	return p.processDocument(ctx, docPath, content, modTime)
}

func (p *Pipeline) processDocument(ctx context.Context, docPath, content string, modTime time.Time) error {
	id := fileid.DocumentID(docPath)
	unlock := p.locks.Lock(id)
	defer unlock()
	return p.handle(p.process(ctx, id, docPath, content, modTime), "process", docPath)
}

func (p *Pipeline) process(ctx context.Context, id, docPath, content string, modTime time.Time) error {
	existing, err := p.stores.Metadata.GetByID(ctx, id)
	if err != nil {
		p.logger.Warn("ignoring unreadable metadata", zap.String("path", docPath), zap.Error(err))
		existing = nil
	}
	prevHashes := map[int]string{}
	title := utils.TitleFromPath(docPath)
	if existing != nil {
		prevHashes = existing.ChunkHashes()
		if existing.Title != "" {
			title = existing.Title
		}
	}
	existingEmb, err := p.stores.Embeddings.GetByID(ctx, id)
	if err != nil {
		p.logger.Warn("ignoring unreadable embeddings", zap.String("path", docPath), zap.Error(err))
		existingEmb = nil
	}

	res, err := p.generator.IncrementalEmbed(ctx, id, content, prevHashes)
	if err != nil {
		return fmt.Errorf("failed to embed %s: %w", docPath, err)
	}

	// Fresh embeddings win; indices past the new chunk count stay until a repair prunes them.
	merged := make(models.EmbeddingFile, len(existingEmb)+len(res.Embeddings))
	for i, v := range existingEmb {
		merged[i] = v
	}
	for i, v := range res.Embeddings {
		merged[i] = v
	}

	now := p.now()
	chunks := make([]models.ChunkDescriptor, 0, len(res.Chunks))
	entries := make([]models.VectorEntry, 0, len(res.Chunks))
	for _, c := range res.Chunks {
		if len(merged[c.Index]) == 0 {
			p.logger.Warn("embedding missing after incremental pass, using zero vector",
				zap.String("path", docPath), zap.Int("chunk", c.Index))
			merged[c.Index] = p.generator.ZeroVector()
		}
		ref := fileid.EmbeddingRef(id, c.Index)
		chunks = append(chunks, models.ChunkDescriptor{
			Index:         c.Index,
			Hash:          res.Hashes[c.Index],
			Start:         c.Start,
			End:           c.End,
			LastProcessed: now,
			EmbeddingRef:  ref,
			Metadata:      models.Properties{},
		})
		entries = append(entries, models.VectorEntry{
			DocumentID:   id,
			ChunkIndex:   c.Index,
			ChunkHash:    res.Hashes[c.Index],
			EmbeddingRef: ref,
			Path:         docPath,
			Embedding:    merged[c.Index],
		})
	}

	props := frontmatter.Extract(content)
	meta := &models.DocumentMetadata{
		Title:         title,
		LastModified:  modTime,
		Chunks:        chunks,
		LastProcessed: now,
		Metadata:      props,
	}
	if err := p.stores.Metadata.Save(ctx, docPath, meta, p.generator.ChunkSize()); err != nil {
		return err
	}
	if err := p.stores.Embeddings.SaveByID(ctx, id, merged); err != nil {
		return err
	}
	if err := p.stores.Index.UpdateFileIndex(ctx, id, entries); err != nil {
		return err
	}

	if p.keyword != nil {
		tags, _ := props[frontmatter.KeyTags].([]string)
		doc := &keyword.Document{
			Title:   keywordTitle(title),
			Path:    docPath,
			Tags:    tags,
			Content: keywordText(content),
		}
		if err := p.keyword.Index(ctx, id, doc); err != nil {
			p.logger.Warn("keyword indexing failed", zap.String("path", docPath), zap.Error(err))
		}
	}

	p.logger.Debug("document processed",
		zap.String("path", docPath),
		zap.String("doc_id", id),
		zap.Int("chunks", len(chunks)),
		zap.Int("reused", res.Reused),
		zap.Int("computed", res.Computed))
	return nil
}

// ProcessFile reads the document at docPath from the vault and processes it.
func (p *Pipeline) ProcessFile(ctx context.Context, docPath string) error {
	p.maint.RLock()
	defer p.maint.RUnlock()
	return p.processFile(ctx, docPath)
}

func (p *Pipeline) processFile(ctx context.Context, docPath string) error {
	content, modTime, err := p.source.ReadDocument(ctx, docPath)
	if err != nil {
		return p.handle(fmt.Errorf("failed to read %s: %w", docPath, err), "read", docPath)
	}
	return p.processDocument(ctx, docPath, content, modTime)
}

// DeleteDocument removes the document's metadata, embeddings and vector entries. Each
// removal is attempted even when another fails; the failures are returned joined.
func (p *Pipeline) DeleteDocument(ctx context.Context, id string) error {
	p.maint.RLock()
	defer p.maint.RUnlock()
	unlock := p.locks.Lock(id)
	defer unlock()

	var errs []error
	if err := p.stores.Metadata.Delete(ctx, id); err != nil {
		errs = append(errs, err)
	}
	if err := p.stores.Embeddings.Delete(ctx, id); err != nil {
		errs = append(errs, err)
	}
	if _, err := p.stores.Index.RemoveFileIndex(ctx, id); err != nil {
		errs = append(errs, err)
	}
	if p.keyword != nil {
		if err := p.keyword.Delete(ctx, id); err != nil {
			p.logger.Warn("keyword delete failed", zap.String("doc_id", id), zap.Error(err))
		}
	}
	p.generator.ForgetDocument(ctx, id)

	if err := errors.Join(errs...); err != nil {
		p.logger.Error("document deletion incomplete", zap.String("doc_id", id), zap.Error(err))
		return err
	}
	p.logger.Debug("document deleted", zap.String("doc_id", id))
	return nil
}

// DeletePath deletes the document stored for a vault path.
func (p *Pipeline) DeletePath(ctx context.Context, docPath string) error {
	return p.DeleteDocument(ctx, fileid.DocumentID(docPath))
}

// RebuildAll clears every store and reprocesses all vault documents one by one. It fails
// when the stores cannot be cleared or the vault cannot be listed; per-document failures
// follow the error policy.
func (p *Pipeline) RebuildAll(ctx context.Context) error {
	p.maint.Lock()
	defer p.maint.Unlock()
	p.logger.Info("rebuilding index")
	if err := p.stores.Metadata.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}
	if err := p.stores.Embeddings.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to clear embeddings: %w", err)
	}
	if err := p.stores.Index.Delete(ctx); err != nil {
		return fmt.Errorf("failed to clear vector index: %w", err)
	}
	if p.keyword != nil {
		if err := p.keyword.Reset(ctx); err != nil {
			p.logger.Warn("keyword index reset failed", zap.Error(err))
		}
	}

	docs, err := p.source.Documents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	var errs []error
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.processFile(ctx, doc); err != nil {
			errs = append(errs, err)
		}
	}
	p.logger.Info("rebuild finished", zap.Int("documents", len(docs)), zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// SyncResult summarizes a Sync run.
type SyncResult struct {
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Removed   []string `json:"removed"`
}

// Sync processes every vault document whose modification time or chunk size differs from
// its metadata record or that has a chunk without a real embedding, then removes records of documents that no longer exist.
func (p *Pipeline) Sync(ctx context.Context) (*SyncResult, error) {
	docs, err := p.source.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	res := &SyncResult{}
	known := make([]string, 0, len(docs))
	var errs []error
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		id := fileid.DocumentID(doc)
		known = append(known, id)
		if p.upToDate(ctx, id, doc) {
			res.Skipped++
			continue
		}
		if err := p.ProcessFile(ctx, doc); err != nil {
			errs = append(errs, err)
			continue
		}
		res.Processed++
	}
	removed, err := p.CleanupOrphans(ctx, known)
	res.Removed = removed
	if err != nil {
		errs = append(errs, err)
	}
	return res, errors.Join(errs...)
}

func (p *Pipeline) upToDate(ctx context.Context, id, docPath string) bool {
	meta, err := p.stores.Metadata.GetByID(ctx, id)
	if err != nil || meta == nil || meta.ChunkSize != p.generator.ChunkSize() {
		return false
	}
	info, err := p.stores.Adapter.Stat(ctx, docPath)
	if err != nil || !info.ModTime.Equal(meta.LastModified) {
		return false
	}
	// Zero or empty vectors are left by provider failures and repair placeholders.
	emb, err := p.stores.Embeddings.GetByID(ctx, id)
	if err != nil {
		return false
	}
	for _, c := range meta.Chunks {
		if vec := emb[c.Index]; len(vec) == 0 || utils.IsZero(vec) {
			return false
		}
	}
	return true
}

// CleanupOrphans removes metadata and embedding records and vector entries whose document
// id is not in knownIDs. It returns a description of each removal. Failures are logged,
// skipped and returned joined.
func (p *Pipeline) CleanupOrphans(ctx context.Context, knownIDs []string) ([]string, error) {
	p.maint.Lock()
	defer p.maint.Unlock()
	known := make(map[string]struct{}, len(knownIDs))
	for _, id := range knownIDs {
		known[id] = struct{}{}
	}
	deleted := []string{}
	var errs []error

	metaIDs, err := p.stores.Metadata.IDs(ctx)
	if err != nil {
		return deleted, fmt.Errorf("failed to list metadata: %w", err)
	}
	for _, id := range metaIDs {
		if _, ok := known[id]; ok {
			continue
		}
		if err := p.stores.Metadata.Delete(ctx, id); err != nil {
			p.logger.Warn("failed to delete orphaned metadata", zap.String("doc_id", id), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		deleted = append(deleted, fmt.Sprintf("[metadata] removed doc=%s", id))
		p.forget(ctx, id)
	}

	embIDs, err := p.stores.Embeddings.IDs(ctx)
	if err != nil {
		return deleted, errors.Join(append(errs, fmt.Errorf("failed to list embeddings: %w", err))...)
	}
	for _, id := range embIDs {
		if _, ok := known[id]; ok {
			continue
		}
		if err := p.stores.Embeddings.Delete(ctx, id); err != nil {
			p.logger.Warn("failed to delete orphaned embeddings", zap.String("doc_id", id), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		deleted = append(deleted, fmt.Sprintf("[embeddings] removed doc=%s", id))
	}

	removed := 0
	err = p.stores.Index.Modify(ctx, func(entries []models.VectorEntry) ([]models.VectorEntry, bool) {
		kept := entries[:0]
		for _, e := range entries {
			if _, ok := known[e.DocumentID]; ok {
				kept = append(kept, e)
			}
		}
		removed = len(entries) - len(kept)
		return kept, removed > 0
	})
	switch {
	case err != nil:
		p.logger.Warn("failed to prune vector index", zap.Error(err))
		errs = append(errs, err)
	case removed > 0:
		deleted = append(deleted, fmt.Sprintf("[vector-index] removed %d entries", removed))
	}
	return deleted, errors.Join(errs...)
}

// CleanupDeleted removes the records of documents that are no longer in the vault.
func (p *Pipeline) CleanupDeleted(ctx context.Context) ([]string, error) {
	docs, err := p.source.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = fileid.DocumentID(doc)
	}
	return p.CleanupOrphans(ctx, ids)
}

func (p *Pipeline) forget(ctx context.Context, id string) {
	if p.keyword != nil {
		if err := p.keyword.Delete(ctx, id); err != nil {
			p.logger.Debug("keyword delete failed", zap.String("doc_id", id), zap.Error(err))
		}
	}
	p.generator.ForgetDocument(ctx, id)
}

// CheckAndRepairConsistency cross-checks the three stores, repairing when autoFix is set.
func (p *Pipeline) CheckAndRepairConsistency(ctx context.Context, autoFix bool) (*models.ConsistencyReport, error) {
	p.maint.Lock()
	defer p.maint.Unlock()
	return p.checker.Check(ctx, autoFix)
}

// PropertyKeys returns every metadata property key in use.
func (p *Pipeline) PropertyKeys(ctx context.Context) ([]string, error) {
	return p.stores.Metadata.AllPropertyKeys(ctx)
}

// ProcessedCount returns the number of documents with a metadata record.
func (p *Pipeline) ProcessedCount(ctx context.Context) (int, error) {
	files, err := p.stores.Metadata.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

// DatabaseSize returns the combined size in bytes of the three stores.
func (p *Pipeline) DatabaseSize(ctx context.Context) (int64, error) {
	return storage.DiskUsageBytes(ctx, p.stores.Adapter,
		p.stores.Metadata.Dir(), p.stores.Embeddings.Dir(), p.stores.Index.Path())
}

// IndexedChunkCount returns the number of vector index entries.
func (p *Pipeline) IndexedChunkCount(ctx context.Context) int {
	return p.stores.Index.Len(ctx)
}

// Status summarizes the stores. Individual failures are logged and leave zero values.
func (p *Pipeline) Status(ctx context.Context) *models.IndexStatus {
	st := &models.IndexStatus{
		IndexedChunks: p.IndexedChunkCount(ctx),
		Provider:      p.generator.Provider(),
		Model:         p.generator.Model(),
		Dimensions:    p.generator.Dimensions(),
		ChunkSize:     p.generator.ChunkSize(),
	}
	st.QueryCacheHits, st.QueryCacheMisses = p.generator.QueryCacheStats()
	if n, err := p.ProcessedCount(ctx); err != nil {
		p.logger.Warn("failed to count documents", zap.Error(err))
	} else {
		st.Documents = n
	}
	if size, err := p.DatabaseSize(ctx); err != nil {
		p.logger.Warn("failed to compute database size", zap.Error(err))
	} else {
		st.DatabaseSizeBytes = size
	}
	st.DatabaseSize = utils.FormatBytes(st.DatabaseSizeBytes)
	if p.keyword != nil {
		if n, err := p.keyword.DocCount(); err == nil {
			st.KeywordDocuments = n
		}
	}
	return st
}
