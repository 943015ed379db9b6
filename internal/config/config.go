// Package config provides configuration loading and structs for the synapse server and CLI.
package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvAPIKey overrides embedding.api_key when set.
const EnvAPIKey = "SYNAPSE_EMBEDDING_API_KEY"

// Embedding providers.
const (
	ProviderMock   = "mock"
	ProviderOpenAI = "openai"
	ProviderONNX   = "onnx"
)

// Embedding cache backends.
const (
	CacheJSON   = "json"
	CacheSQLite = "sqlite"
	CacheNone   = "none"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Vault     VaultConfig     `yaml:"vault"`
	Server    ServerConfig    `yaml:"server"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
}

// VaultConfig locates the documents and the index data inside them.
type VaultConfig struct {
	Path string `yaml:"path"`
	// DataDir is the vault-relative directory holding the stores.
	DataDir    string   `yaml:"data_dir"`
	Extensions []string `yaml:"extensions"`
	// UseTrash moves deleted store files into the vault trash instead of removing them.
	UseTrash bool `yaml:"use_trash"`
}

// MetadataDir returns the vault path of the metadata store.
func (v *VaultConfig) MetadataDir() string { return path.Join(v.DataDir, "metadata") }

// EmbeddingsDir returns the vault path of the embedding store.
func (v *VaultConfig) EmbeddingsDir() string { return path.Join(v.DataDir, "embeddings") }

// DataPath joins name onto the data directory.
func (v *VaultConfig) DataPath(name string) string { return path.Join(v.DataDir, name) }

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	// BaseURL, APIKey and Model configure the OpenAI-compatible HTTP provider.
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// RequestsPerMinute throttles the HTTP provider; 0 disables throttling.
	RequestsPerMinute int `yaml:"requests_per_minute"`
	// ModelPath, MaxTokens, Pooling and OutputName configure the local ONNX provider.
	ModelPath      string `yaml:"model_path"`
	MaxTokens      int    `yaml:"max_tokens"`
	Pooling        string `yaml:"pooling"`
	OutputName     string `yaml:"output_name"`
	Dimensions     int    `yaml:"dimensions"`
	Cache          string `yaml:"cache"`
	QueryCacheSize int    `yaml:"query_cache_size"`
}

// IndexConfig holds chunking and processing settings.
type IndexConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	// ErrorPolicy is "absorb" (log per-document failures) or "propagate".
	ErrorPolicy string `yaml:"error_policy"`
}

// SearchConfig holds search limits and keyword ranking settings.
type SearchConfig struct {
	DefaultLimit       int     `yaml:"default_limit"`
	MaxLimit           int     `yaml:"max_limit"`
	KeywordTitleBoost  float64 `yaml:"keyword_title_boost"`
	KeywordPhraseBoost float64 `yaml:"keyword_phrase_boost"`
	Fuzzy              bool    `yaml:"fuzzy"`
	Fuzziness          int     `yaml:"fuzziness"`
}

// WatchConfig holds vault watch settings.
type WatchConfig struct {
	Enabled    *bool `yaml:"enabled"`
	DebounceMS int   `yaml:"debounce_ms"`
}

// EnabledOrDefault returns whether the server watches the vault; defaults to true when unset.
func (w *WatchConfig) EnabledOrDefault() bool {
	if w.Enabled != nil {
		return *w.Enabled
	}
	return true
}

// Load reads and parses the config file at path, loads .env files, expands paths, and
// applies defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := loadEnv(filepath.Join(configDir, ".env"), ".env"); err != nil {
		return nil, err
	}
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	cfg.Vault.Path = expandPath(cfg.Vault.Path, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	return &cfg, nil
}

// Default returns a config for the vault at vaultPath with every default applied. The
// .env file in the working directory is honoured.
func Default(vaultPath string) (*Config, error) {
	if err := loadEnv(".env"); err != nil {
		return nil, err
	}
	cfg := &Config{Vault: VaultConfig{Path: vaultPath}}
	ApplyEnv(cfg)
	ApplyDefaults(cfg)
	if abs, err := filepath.Abs(cfg.Vault.Path); err == nil {
		cfg.Vault.Path = abs
	}
	return cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv copies environment overrides into cfg.
func ApplyEnv(cfg *Config) {
	if key := os.Getenv(EnvAPIKey); key != "" {
		cfg.Embedding.APIKey = key
	}
}

// loadEnv loads each existing .env file. Variables already set are not overridden, so
// earlier files win.
func loadEnv(files ...string) error {
	seen := map[string]bool{}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("error loading %s: %w", f, err)
		}
	}
	return nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case ProviderMock:
	case ProviderONNX:
		switch c.Embedding.Pooling {
		case "", "cls", "mean":
		default:
			return fmt.Errorf("embedding.pooling must be \"cls\" or \"mean\", got %q", c.Embedding.Pooling)
		}
	case ProviderOpenAI:
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required for provider %q", c.Embedding.Provider)
		}
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.Embedding.Cache {
	case CacheJSON, CacheSQLite, CacheNone:
	default:
		return fmt.Errorf("unknown embedding cache %q", c.Embedding.Cache)
	}
	if c.Index.ChunkSize <= 0 {
		return fmt.Errorf("index.chunk_size must be positive, got %d", c.Index.ChunkSize)
	}
	if c.Vault.Path == "" {
		return fmt.Errorf("vault.path is required")
	}
	if clean := path.Clean(filepath.ToSlash(c.Vault.DataDir)); clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return fmt.Errorf("vault.data_dir must be a directory inside the vault, got %q", c.Vault.DataDir)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" is the home directory; other relative paths are relative to configDir.
func expandPath(p string, configDir string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return filepath.Join(configDir, p)
}
