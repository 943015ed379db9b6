package cli

import (
	"context"

	"github.com/hyperjump/synapse/internal/indexer"
	"github.com/hyperjump/synapse/internal/models"
)

// Backend runs CLI commands, either against a running server or on the stores directly.
type Backend interface {
	Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error)
	// Process indexes the document at a vault path and returns its id.
	Process(ctx context.Context, docPath string) (string, error)
	Sync(ctx context.Context) (*indexer.SyncResult, error)
	Delete(ctx context.Context, id string) error
	// Rebuild reprocesses the vault and returns the number of documents indexed.
	Rebuild(ctx context.Context) (int, error)
	Check(ctx context.Context, fix bool) (*models.ConsistencyReport, error)
	Cleanup(ctx context.Context) ([]string, error)
	Keys(ctx context.Context) ([]string, error)
	Status(ctx context.Context) (*models.IndexStatus, error)
	Close() error
}
