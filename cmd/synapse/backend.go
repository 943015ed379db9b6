package main

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hyperjump/synapse/internal/cli"
	"github.com/hyperjump/synapse/internal/fileid"
	"github.com/hyperjump/synapse/internal/indexer"
	"github.com/hyperjump/synapse/internal/models"
)

var _ cli.Backend = (*localBackend)(nil)

// localBackend runs commands on the stores directly, for when no server is running.
type localBackend struct {
	c *Components
}

func (b *localBackend) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	return b.c.Engine.Search(ctx, query)
}

func (b *localBackend) Process(ctx context.Context, docPath string) (string, error) {
	if err := b.c.Pipeline.ProcessFile(ctx, docPath); err != nil {
		return "", err
	}
	return fileid.DocumentID(docPath), nil
}

func (b *localBackend) Sync(ctx context.Context) (*indexer.SyncResult, error) {
	return b.c.Pipeline.Sync(ctx)
}

func (b *localBackend) Delete(ctx context.Context, id string) error {
	return b.c.Pipeline.DeleteDocument(ctx, id)
}

func (b *localBackend) Rebuild(ctx context.Context) (int, error) {
	if err := b.c.Pipeline.RebuildAll(ctx); err != nil {
		return 0, err
	}
	return b.c.Pipeline.ProcessedCount(ctx)
}

func (b *localBackend) Check(ctx context.Context, fix bool) (*models.ConsistencyReport, error) {
	return b.c.Pipeline.CheckAndRepairConsistency(ctx, fix)
}

func (b *localBackend) Cleanup(ctx context.Context) ([]string, error) {
	return b.c.Pipeline.CleanupDeleted(ctx)
}

func (b *localBackend) Keys(ctx context.Context) ([]string, error) {
	return b.c.Pipeline.PropertyKeys(ctx)
}

func (b *localBackend) Status(ctx context.Context) (*models.IndexStatus, error) {
	return b.c.Pipeline.Status(ctx), nil
}

func (b *localBackend) Close() error {
	return b.c.Close()
}

// vaultPath converts a command-line path into a vault path. Paths that exist relative to
// the working directory are resolved against the vault root; anything else is taken as
// already vault-relative.
func vaultPath(root, arg string) string {
	if abs, err := filepath.Abs(arg); err == nil {
		if rel, err := filepath.Rel(root, abs); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			if filepath.IsAbs(arg) || fileExists(abs) {
				return filepath.ToSlash(rel)
			}
		}
	}
	return path.Clean(filepath.ToSlash(arg))
}

// isPathArg reports whether arg names a document path rather than a document id.
// Ids are base64url without padding, so they never contain a slash or a dot.
func isPathArg(arg string) bool {
	return strings.ContainsAny(arg, "/.") || strings.ContainsRune(arg, filepath.Separator)
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
