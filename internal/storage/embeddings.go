package storage

import (
	"context"
	"fmt"

	"github.com/hyperjump/synapse/internal/fileid"
	"github.com/hyperjump/synapse/internal/models"
	"github.com/hyperjump/synapse/internal/vault"
)

// EmbeddingStore keeps one chunk-index -> vector record per document.
type EmbeddingStore struct {
	files jsonDir
}

// NewEmbeddingStore stores records under dir (a vault path).
func NewEmbeddingStore(adapter vault.Adapter, dir string, opts ...Option) *EmbeddingStore {
	o := buildOptions(opts)
	return &EmbeddingStore{files: jsonDir{adapter: adapter, dir: dir, logger: o.logger}}
}

// Dir returns the vault directory holding the records.
func (s *EmbeddingStore) Dir() string {
	return s.files.dir
}

// Save writes the embeddings of the document at docPath.
func (s *EmbeddingStore) Save(ctx context.Context, docPath string, file models.EmbeddingFile) error {
	return s.SaveByID(ctx, fileid.DocumentID(docPath), file)
}

// SaveByID writes the embeddings for id.
func (s *EmbeddingStore) SaveByID(ctx context.Context, id string, file models.EmbeddingFile) error {
	if file == nil {
		file = models.EmbeddingFile{}
	}
	if err := s.files.write(ctx, s.files.pathFor(id), file); err != nil {
		return fmt.Errorf("failed to save embeddings for %s: %w", id, err)
	}
	return nil
}

// Get returns the embeddings of the document at docPath, or nil when none exist.
func (s *EmbeddingStore) Get(ctx context.Context, docPath string) (models.EmbeddingFile, error) {
	return s.GetByID(ctx, fileid.DocumentID(docPath))
}

// GetByID returns the embeddings for id, or nil when none exist.
func (s *EmbeddingStore) GetByID(ctx context.Context, id string) (models.EmbeddingFile, error) {
	var file models.EmbeddingFile
	found, err := s.files.read(ctx, s.files.pathFor(id), &file)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if file == nil {
		file = models.EmbeddingFile{}
	}
	return file, nil
}

// List returns the vault paths of all embedding records.
func (s *EmbeddingStore) List(ctx context.Context) ([]string, error) {
	return s.files.list(ctx)
}

// IDs returns the document ids that have an embedding record.
func (s *EmbeddingStore) IDs(ctx context.Context) ([]string, error) {
	return s.files.ids(ctx)
}

// Delete removes the record for id; deleting a missing record succeeds.
func (s *EmbeddingStore) Delete(ctx context.Context, id string) error {
	return s.files.remove(ctx, id, false)
}

// DeleteAll removes every record, logging failures, then the directory if empty.
func (s *EmbeddingStore) DeleteAll(ctx context.Context) error {
	return s.files.removeAll(ctx)
}
