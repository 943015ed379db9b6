package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/synapse/internal/config"
	"github.com/hyperjump/synapse/internal/embedding"
	"github.com/hyperjump/synapse/internal/indexer"
	"github.com/hyperjump/synapse/internal/keyword"
	"github.com/hyperjump/synapse/internal/search"
	"github.com/hyperjump/synapse/internal/storage"
	"github.com/hyperjump/synapse/internal/vault"
	"github.com/hyperjump/synapse/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Vault        *vault.Disk
	Embedder     embedding.Embedder
	Cache        embedding.Cache
	KeywordIndex *keyword.BleveIndex
	Pipeline     *indexer.Pipeline
	Engine       *search.Engine
}

// Close releases the embedder, the cache and the keyword index.
func (c *Components) Close() error {
	var errs []error
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	if c.Embedder != nil {
		errs = append(errs, c.Embedder.Close())
	}
	if c.KeywordIndex != nil {
		errs = append(errs, c.KeywordIndex.Close())
	}
	return errors.Join(errs...)
}

func newEmbedder(cfg *config.EmbeddingConfig, logger *zap.Logger) (embedding.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		httpEmbedder, err := embedding.NewHTTPEmbedder(embedding.HTTPConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return embedding.NewResilientEmbedder(httpEmbedder, embedding.ResilientConfig{
			RequestsPerMinute: cfg.RequestsPerMinute,
		}, logger), nil
	case config.ProviderONNX:
		onnxEmbedder, err := embedding.NewONNXEmbedder(embedding.ONNXConfig{
			ModelPath:  cfg.ModelPath,
			Dimensions: cfg.Dimensions,
			MaxTokens:  cfg.MaxTokens,
			Pooling:    embedding.Pooling(cfg.Pooling),
			OutputName: cfg.OutputName,
		})
		if err != nil {
			return nil, err
		}
		return onnxEmbedder, nil
	default:
		return embedding.NewMockEmbedder(cfg.Dimensions), nil
	}
}

func newCache(cfg *config.Config, d *vault.Disk, logger *zap.Logger) (embedding.Cache, error) {
	switch cfg.Embedding.Cache {
	case config.CacheNone:
		return nil, nil
	case config.CacheSQLite:
		dbPath, err := d.Abs(cfg.Vault.DataPath(embedding.SQLiteCacheFileName))
		if err != nil {
			return nil, err
		}
		sqliteCache, err := embedding.NewSQLiteCache(dbPath, logger)
		if err != nil {
			return nil, err
		}
		return sqliteCache, nil
	default:
		return embedding.NewJSONCache(d, cfg.Vault.DataPath(embedding.JSONCacheFileName), logger), nil
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	policy, err := indexer.ParseErrorPolicy(cfg.Index.ErrorPolicy)
	if err != nil {
		return nil, err
	}

	d, err := vault.NewDisk(cfg.Vault.Path,
		vault.WithExtensions(cfg.Vault.Extensions...),
		vault.WithSkipDirs(cfg.Vault.DataDir),
		vault.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}
	c := &Components{Vault: d}

	c.Embedder, err = newEmbedder(&cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Cache, err = newCache(cfg, d, logger)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize embedding cache: %w", err)
	}
	gen, err := embedding.NewGenerator(c.Embedder, c.Cache, embedding.GeneratorConfig{
		Provider:       cfg.Embedding.Provider,
		Dimensions:     cfg.Embedding.Dimensions,
		ChunkSize:      cfg.Index.ChunkSize,
		QueryCacheSize: cfg.Embedding.QueryCacheSize,
	}, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	keywordPath, err := d.Abs(cfg.Vault.DataPath("keyword"))
	if err == nil {
		err = os.MkdirAll(filepath.Dir(keywordPath), 0755)
	}
	if err == nil {
		c.KeywordIndex, err = keyword.NewBleveIndex(keywordPath)
	}
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	storeOpts := []storage.Option{storage.WithLogger(logger), storage.WithTrash(cfg.Vault.UseTrash)}
	stores := indexer.Stores{
		Adapter:    d,
		Metadata:   storage.NewMetadataStore(d, cfg.Vault.MetadataDir(), storeOpts...),
		Embeddings: storage.NewEmbeddingStore(d, cfg.Vault.EmbeddingsDir(), storeOpts...),
		Index:      vector.NewIndex(d, cfg.Vault.DataPath(vector.DefaultFileName), vector.WithLogger(logger)),
	}
	c.Pipeline, err = indexer.NewPipeline(d, stores, gen,
		indexer.WithLogger(logger),
		indexer.WithKeywordIndex(c.KeywordIndex),
		indexer.WithErrorPolicy(policy),
	)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	c.Engine = search.NewEngine(d, stores.Metadata, stores.Index, gen,
		search.WithLogger(logger),
		search.WithKeywordIndex(c.KeywordIndex),
		search.WithConfig(search.Config{
			DefaultLimit: cfg.Search.DefaultLimit,
			MaxLimit:     cfg.Search.MaxLimit,
			Keyword: &keyword.SearchOptions{
				TitleBoost:   cfg.Search.KeywordTitleBoost,
				PhraseBoost:  cfg.Search.KeywordPhraseBoost,
				FuzzyEnabled: cfg.Search.Fuzzy,
				Fuzziness:    cfg.Search.Fuzziness,
			},
		}),
	)
	return c, nil
}
