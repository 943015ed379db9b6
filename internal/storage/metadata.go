package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/hyperjump/synapse/internal/fileid"
	"github.com/hyperjump/synapse/internal/models"
	"github.com/hyperjump/synapse/internal/vault"
	"go.uber.org/zap"
)

// MetadataStore keeps one DocumentMetadata record per document.
type MetadataStore struct {
	files    jsonDir
	useTrash bool
	logger   *zap.Logger
}

// NewMetadataStore stores records under dir (a vault path).
func NewMetadataStore(adapter vault.Adapter, dir string, opts ...Option) *MetadataStore {
	o := buildOptions(opts)
	return &MetadataStore{
		files:    jsonDir{adapter: adapter, dir: dir, logger: o.logger},
		useTrash: o.useTrash,
		logger:   o.logger,
	}
}

// Dir returns the vault directory holding the records.
func (s *MetadataStore) Dir() string {
	return s.files.dir
}

// Save writes meta for the document at docPath, stamping its id, path and chunk size.
func (s *MetadataStore) Save(ctx context.Context, docPath string, meta *models.DocumentMetadata, chunkSize int) error {
	meta.DocumentID = fileid.DocumentID(docPath)
	meta.Path = docPath
	meta.ChunkSize = chunkSize
	meta.Normalize()
	if err := s.files.write(ctx, s.files.pathFor(meta.DocumentID), meta); err != nil {
		return fmt.Errorf("failed to save metadata for %s: %w", docPath, err)
	}
	return nil
}

// Get returns the record for docPath, or nil when none exists.
func (s *MetadataStore) Get(ctx context.Context, docPath string) (*models.DocumentMetadata, error) {
	return s.GetByID(ctx, fileid.DocumentID(docPath))
}

// GetByID returns the record for id, or nil when none exists. A record that cannot be
// parsed is an error.
func (s *MetadataStore) GetByID(ctx context.Context, id string) (*models.DocumentMetadata, error) {
	var meta models.DocumentMetadata
	found, err := s.files.read(ctx, s.files.pathFor(id), &meta)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	meta.Normalize()
	return &meta, nil
}

// List returns the vault paths of all metadata records.
func (s *MetadataStore) List(ctx context.Context) ([]string, error) {
	return s.files.list(ctx)
}

// IDs returns the document ids that have a metadata record.
func (s *MetadataStore) IDs(ctx context.Context) ([]string, error) {
	return s.files.ids(ctx)
}

// Delete removes the record for id; deleting a missing record succeeds.
func (s *MetadataStore) Delete(ctx context.Context, id string) error {
	return s.files.remove(ctx, id, s.useTrash)
}

// DeleteAll removes every record.
func (s *MetadataStore) DeleteAll(ctx context.Context) error {
	return s.files.removeAll(ctx)
}

// AllPropertyKeys returns every property key used in document or chunk metadata, nested
// keys joined with dots, plus a "tags:<tag>" key for each element of a tags list.
// Records that fail to parse are skipped.
func (s *MetadataStore) AllPropertyKeys(ctx context.Context) ([]string, error) {
	files, err := s.files.list(ctx)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{})
	for _, f := range files {
		var meta models.DocumentMetadata
		if _, err := s.files.read(ctx, f, &meta); err != nil {
			s.logger.Warn("skipping metadata file", zap.String("path", f), zap.Error(err))
			continue
		}
		collectKeys(keys, "", meta.Metadata)
		for _, c := range meta.Chunks {
			collectKeys(keys, "", c.Metadata)
		}
	}
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func collectKeys(keys map[string]struct{}, prefix string, props map[string]interface{}) {
	for k, v := range props {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		keys[full] = struct{}{}
		switch val := v.(type) {
		case map[string]interface{}:
			collectKeys(keys, full, val)
		case models.Properties:
			collectKeys(keys, full, val)
		case []interface{}:
			if k == "tags" {
				for _, tag := range val {
					keys[fmt.Sprintf("tags:%v", tag)] = struct{}{}
				}
			}
		case []string:
			if k == "tags" {
				for _, tag := range val {
					keys["tags:"+tag] = struct{}{}
				}
			}
		}
	}
}
