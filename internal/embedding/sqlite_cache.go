package embedding

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hyperjump/synapse/pkg/utils"
)

// SQLiteCacheFileName is the cache database file inside the data directory.
const SQLiteCacheFileName = "embeddings-cache.db"

// SQLiteCache stores chunk embeddings in a SQLite database, one row per key with the
// vector as a little-endian float32 blob. Writes go straight to the database, so Flush
// has nothing to do.
type SQLiteCache struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteCache opens or creates the cache database at dbPath (an OS path).
// Parent directories are created if they do not exist.
func NewSQLiteCache(dbPath string, logger *zap.Logger) (*SQLiteCache, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		key TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		vector BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_document_id ON embeddings(document_id);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteCache{db: db, logger: utils.OrNop(logger)}, nil
}

// Get returns the cached vector for key. Read errors are logged and reported as a miss.
func (c *SQLiteCache) Get(ctx context.Context, key CacheKey) ([]float32, bool) {
	var blob []byte
	err := c.db.QueryRowContext(ctx, `SELECT vector FROM embeddings WHERE key = ?`, key.String()).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("failed to read cached embedding", zap.String("key", key.String()), zap.Error(err))
		return nil, false
	}
	return bytesToFloat32Slice(blob), true
}

// Set upserts the vector for key.
func (c *SQLiteCache) Set(ctx context.Context, key CacheKey, vec []float32) {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO embeddings (key, document_id, vector) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET vector = excluded.vector`,
		key.String(), key.DocumentID, float32SliceToBytes(vec))
	if err != nil {
		c.logger.Warn("failed to cache embedding", zap.String("key", key.String()), zap.Error(err))
	}
}

// Delete removes the row for key.
func (c *SQLiteCache) Delete(ctx context.Context, key CacheKey) {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM embeddings WHERE key = ?`, key.String()); err != nil {
		c.logger.Warn("failed to delete cached embedding", zap.String("key", key.String()), zap.Error(err))
	}
}

// DeleteDocument removes every row of the document.
func (c *SQLiteCache) DeleteDocument(ctx context.Context, documentID string) {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM embeddings WHERE document_id = ?`, documentID); err != nil {
		c.logger.Warn("failed to delete cached embeddings", zap.String("doc_id", documentID), zap.Error(err))
	}
}

func (c *SQLiteCache) Flush(context.Context) error {
	return nil
}

// Clear deletes all rows.
func (c *SQLiteCache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM embeddings`); err != nil {
		return fmt.Errorf("failed to clear embedding cache: %w", err)
	}
	return nil
}

// Len returns the row count, or 0 on error.
func (c *SQLiteCache) Len(ctx context.Context) int {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
		c.logger.Warn("failed to count cached embeddings", zap.Error(err))
		return 0
	}
	return n
}

// Close closes the database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
