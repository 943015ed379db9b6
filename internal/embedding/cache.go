package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/synapse/internal/vault"
	"github.com/hyperjump/synapse/pkg/utils"
)

// CacheKey identifies one chunk embedding produced by one provider/model pair.
type CacheKey struct {
	DocumentID string
	ChunkIndex int
	Provider   string
	Model      string
}

// String returns the persisted form "id::index::provider::model".
func (k CacheKey) String() string {
	return k.DocumentID + "::" + strconv.Itoa(k.ChunkIndex) + "::" + k.Provider + "::" + k.Model
}

// Cache persists chunk embeddings across runs. Implementations are safe for concurrent use
// within one process; concurrent writers from other processes are not supported.
type Cache interface {
	Get(ctx context.Context, key CacheKey) ([]float32, bool)
	Set(ctx context.Context, key CacheKey, vec []float32)
	Delete(ctx context.Context, key CacheKey)
	// DeleteDocument drops every entry of the document.
	DeleteDocument(ctx context.Context, documentID string)
	// Flush persists pending writes.
	Flush(ctx context.Context) error
	Clear(ctx context.Context) error
	Len(ctx context.Context) int
	Close() error
}

// JSONCacheFileName is the default cache file inside the data directory.
const JSONCacheFileName = "embeddings-cache.json"

// JSONCache keeps the whole cache in memory and persists it as one JSON object through
// the vault adapter. It is loaded on first use and written on Flush when dirty.
type JSONCache struct {
	adapter vault.Adapter
	path    string
	logger  *zap.Logger

	mu      sync.Mutex
	loaded  bool
	dirty   bool
	entries map[string][]float32
}

// NewJSONCache returns a cache persisted at cachePath (a vault path). logger may be nil.
func NewJSONCache(adapter vault.Adapter, cachePath string, logger *zap.Logger) *JSONCache {
	return &JSONCache{
		adapter: adapter,
		path:    cachePath,
		logger:  utils.OrNop(logger),
		entries: make(map[string][]float32),
	}
}

func (c *JSONCache) loadLocked(ctx context.Context) {
	if c.loaded {
		return
	}
	c.loaded = true
	data, err := c.adapter.Read(ctx, c.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("failed to read embedding cache", zap.String("path", c.path), zap.Error(err))
		}
		return
	}
	var entries map[string][]float32
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("ignoring malformed embedding cache", zap.String("path", c.path), zap.Error(err))
		return
	}
	if entries != nil {
		c.entries = entries
	}
	c.logger.Debug("loaded embedding cache", zap.Int("entries", len(c.entries)))
}

// Get returns the cached vector for key.
func (c *JSONCache) Get(ctx context.Context, key CacheKey) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked(ctx)
	vec, ok := c.entries[key.String()]
	return vec, ok
}

// Set stores vec under key in memory.
func (c *JSONCache) Set(ctx context.Context, key CacheKey, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked(ctx)
	c.entries[key.String()] = vec
	c.dirty = true
}

// Delete drops the entry for key, if any.
func (c *JSONCache) Delete(ctx context.Context, key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked(ctx)
	if _, ok := c.entries[key.String()]; ok {
		delete(c.entries, key.String())
		c.dirty = true
	}
}

// DeleteDocument drops all entries whose key starts with documentID.
func (c *JSONCache) DeleteDocument(ctx context.Context, documentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked(ctx)
	prefix := documentID + "::"
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			c.dirty = true
		}
	}
}

// Flush writes the cache file if anything changed since the last flush.
func (c *JSONCache) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	data, err := json.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding cache: %w", err)
	}
	if dir := path.Dir(c.path); dir != "." && dir != "/" {
		if err := c.adapter.Mkdir(ctx, dir); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	if err := c.adapter.Write(ctx, c.path, data); err != nil {
		return fmt.Errorf("failed to write embedding cache: %w", err)
	}
	c.dirty = false
	return nil
}

// Clear empties the cache and removes its file.
func (c *JSONCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = true
	c.dirty = false
	c.entries = make(map[string][]float32)
	if err := c.adapter.Remove(ctx, c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove embedding cache: %w", err)
	}
	return nil
}

// Len returns the number of cached vectors.
func (c *JSONCache) Len(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked(ctx)
	return len(c.entries)
}

// Close is a no-op; call Flush to persist.
func (c *JSONCache) Close() error {
	return nil
}
