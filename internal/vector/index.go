package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/synapse/internal/models"
	"github.com/hyperjump/synapse/internal/vault"
	"go.uber.org/zap"
)

// DefaultFileName is the vector index file name inside the data directory.
const DefaultFileName = "vector-index.json"

// Index is the vector index of every embedded chunk. It is persisted as a single JSON
// file and cached in memory after the first read. All access is serialized.
type Index struct {
	adapter vault.Adapter
	path    string
	logger  *zap.Logger
	now     func() time.Time

	mu          sync.Mutex
	loaded      bool
	entries     []models.VectorEntry
	lastUpdated time.Time
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithLogger sets a logger for warnings and debug output.
func WithLogger(l *zap.Logger) IndexOption {
	return func(x *Index) { x.logger = l }
}

// WithClock overrides the timestamp source used when persisting.
func WithClock(now func() time.Time) IndexOption {
	return func(x *Index) { x.now = now }
}

// NewIndex returns an index persisted at indexPath (a vault path). Nothing is read until first use.
func NewIndex(adapter vault.Adapter, indexPath string, opts ...IndexOption) *Index {
	x := &Index{
		adapter: adapter,
		path:    indexPath,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.logger == nil {
		x.logger = zap.NewNop()
	}
	return x
}

// Path returns the vault path of the index file.
func (x *Index) Path() string {
	return x.path
}

// Get returns the index contents. It returns nil when the index has never been written
// or the file is unreadable or malformed; in that case an empty index is cached and later
// calls return it.
func (x *Index) Get(ctx context.Context) (*models.VectorIndexFile, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.loaded {
		return x.snapshotLocked(), nil
	}
	file := x.loadLocked(ctx)
	if file == nil {
		return nil, nil
	}
	return x.snapshotLocked(), nil
}

// Save overwrites the index with entries. The cache reflects exactly what was written.
func (x *Index) Save(ctx context.Context, entries []models.VectorEntry, ts time.Time) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.saveLocked(ctx, entries, ts)
}

// Modify applies fn to the current entries under the index lock and persists the result
// when fn reports a change. fn receives a copy it may modify and return. Use it for
// read-modify-write passes that must not lose concurrent updates. fn must not call back
// into the index.
func (x *Index) Modify(ctx context.Context, fn func([]models.VectorEntry) ([]models.VectorEntry, bool)) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.ensureLoadedLocked(ctx)
	next, changed := fn(append([]models.VectorEntry(nil), x.entries...))
	if !changed {
		return nil
	}
	return x.saveLocked(ctx, next, x.now())
}

// UpdateFileIndex replaces every entry of documentID with entries and persists. Entries
// without an embedding are dropped.
func (x *Index) UpdateFileIndex(ctx context.Context, documentID string, entries []models.VectorEntry) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.ensureLoadedLocked(ctx)

	next := make([]models.VectorEntry, 0, len(x.entries)+len(entries))
	for _, e := range x.entries {
		if e.DocumentID != documentID {
			next = append(next, e)
		}
	}
	added := 0
	for _, e := range entries {
		if len(e.Embedding) == 0 {
			x.logger.Warn("dropping vector entry without embedding",
				zap.String("doc_id", documentID), zap.Int("chunk", e.ChunkIndex))
			continue
		}
		next = append(next, e)
		added++
	}
	if err := x.saveLocked(ctx, next, x.now()); err != nil {
		return fmt.Errorf("failed to update vector index for %s: %w", documentID, err)
	}
	x.logger.Debug("vector index updated", zap.String("doc_id", documentID), zap.Int("added", added))
	return nil
}

// RemoveFileIndex removes every entry of documentID. The index is only written when
// something was removed.
func (x *Index) RemoveFileIndex(ctx context.Context, documentID string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.ensureLoadedLocked(ctx)

	next := make([]models.VectorEntry, 0, len(x.entries))
	for _, e := range x.entries {
		if e.DocumentID != documentID {
			next = append(next, e)
		}
	}
	removed := len(x.entries) - len(next)
	if removed == 0 {
		return 0, nil
	}
	if err := x.saveLocked(ctx, next, x.now()); err != nil {
		return 0, fmt.Errorf("failed to remove %s from vector index: %w", documentID, err)
	}
	return removed, nil
}

// Delete removes the index file and empties the cache.
func (x *Index) Delete(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.adapter.Remove(ctx, x.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete vector index: %w", err)
	}
	x.loaded = true
	x.entries = nil
	x.lastUpdated = time.Time{}
	return nil
}

// Len returns the number of entries.
func (x *Index) Len(ctx context.Context) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.ensureLoadedLocked(ctx)
	return len(x.entries)
}

// Search scores every entry against query by cosine similarity and returns the best
// limit hits, highest first. Entries missing an embedding or a path are skipped.
func (x *Index) Search(ctx context.Context, query []float32, limit int) ([]models.VectorHit, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.ensureLoadedLocked(ctx)
	if limit <= 0 || len(x.entries) == 0 {
		return []models.VectorHit{}, nil
	}
	hits := make([]models.VectorHit, 0, len(x.entries))
	for _, e := range x.entries {
		if len(e.Embedding) == 0 || e.Path == "" {
			x.logger.Debug("skipping vector entry", zap.String("doc_id", e.DocumentID), zap.Int("chunk", e.ChunkIndex))
			continue
		}
		hits = append(hits, models.VectorHit{
			Path:       e.Path,
			DocumentID: e.DocumentID,
			ChunkIndex: e.ChunkIndex,
			Score:      CosineSimilarity(query, e.Embedding),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (x *Index) ensureLoadedLocked(ctx context.Context) {
	if !x.loaded {
		x.loadLocked(ctx)
	}
}

// loadLocked reads the file into the cache and returns it, or nil when missing or invalid.
func (x *Index) loadLocked(ctx context.Context) *models.VectorIndexFile {
	x.loaded = true
	x.entries = nil
	x.lastUpdated = time.Time{}

	data, err := x.adapter.Read(ctx, x.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			x.logger.Warn("failed to read vector index", zap.String("path", x.path), zap.Error(err))
		}
		return nil
	}
	var file models.VectorIndexFile
	if err := json.Unmarshal(data, &file); err != nil || file.Entries == nil {
		x.logger.Warn("ignoring malformed vector index", zap.String("path", x.path), zap.Error(err))
		return nil
	}
	x.entries = file.Entries
	x.lastUpdated = file.LastUpdated
	return &file
}

func (x *Index) saveLocked(ctx context.Context, entries []models.VectorEntry, ts time.Time) error {
	if entries == nil {
		entries = []models.VectorEntry{}
	}
	data, err := json.Marshal(models.VectorIndexFile{Entries: entries, LastUpdated: ts})
	if err != nil {
		return fmt.Errorf("failed to encode vector index: %w", err)
	}
	if dir := path.Dir(x.path); dir != "." {
		if err := x.adapter.Mkdir(ctx, dir); err != nil {
			return fmt.Errorf("failed to create vector index directory: %w", err)
		}
	}
	if err := x.adapter.Write(ctx, x.path, data); err != nil {
		return fmt.Errorf("failed to write vector index: %w", err)
	}
	x.loaded = true
	x.entries = append([]models.VectorEntry(nil), entries...)
	x.lastUpdated = ts
	return nil
}

func (x *Index) snapshotLocked() *models.VectorIndexFile {
	return &models.VectorIndexFile{
		Entries:     append([]models.VectorEntry{}, x.entries...),
		LastUpdated: x.lastUpdated,
	}
}
