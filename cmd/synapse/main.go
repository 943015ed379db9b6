// Package main is the synapse CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/synapse/internal/cli"
	"github.com/hyperjump/synapse/internal/config"
	"github.com/hyperjump/synapse/internal/fileid"
	"github.com/hyperjump/synapse/internal/models"
	"github.com/hyperjump/synapse/internal/server"
	"github.com/hyperjump/synapse/internal/watcher"
	"github.com/hyperjump/synapse/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/synapse/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// resolveConfig loads the config file, or falls back to defaults for vaultOverride (the
// working directory when empty) when no config file exists at the default location.
// A non-empty vaultOverride replaces the configured vault path.
func resolveConfig(configPath, vaultOverride string) (*config.Config, string, error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		if configPath != defaultConfigPath || !errors.Is(err, os.ErrNotExist) {
			return nil, "", err
		}
		vaultPath := vaultOverride
		if vaultPath == "" {
			vaultPath = "."
		}
		cfg, err = config.Default(vaultPath)
		if err != nil {
			return nil, "", err
		}
		return cfg, "", nil
	}
	if vaultOverride != "" {
		abs, err := filepath.Abs(vaultOverride)
		if err != nil {
			return nil, "", err
		}
		cfg.Vault.Path = abs
	}
	return cfg, resolved, nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid usage")

func run(args []string, stdout io.Writer) error {
	if len(args) < 1 {
		printUsage(stdout)
		return errUsage
	}
	command, rest := args[0], args[1:]
	switch command {
	case "server":
		return runServer(rest)
	case "search":
		return runSearch(rest, stdout)
	case "index":
		return runIndex(rest, stdout)
	case "delete":
		return runDelete(rest, stdout)
	case "rebuild":
		return runRebuild(rest, stdout)
	case "check":
		return runCheck(rest, stdout)
	case "cleanup":
		return runCleanup(rest, stdout)
	case "keys":
		return runKeys(rest, stdout)
	case "status":
		return runStatus(rest, stdout)
	case "init":
		return runInit(rest, stdout)
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "synapse version %s\n", version)
		return nil
	case "help", "--help", "-h":
		printUsage(stdout)
		return nil
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", command)
		printUsage(stdout)
		return errUsage
	}
}

// commonFlags are shared by every command that reads the index.
type commonFlags struct {
	config *string
	vault  *string
	server *string
	output *string
	debug  *bool
}

func registerCommon(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		config: fs.String("config", defaultConfigPath, "config file path"),
		vault:  fs.String("vault", "", "vault directory (overrides the config)"),
		server: fs.String("server", defaultServerURL, "server URL (empty = always use the stores directly)"),
		output: fs.String("output", "text", "output format: text, compact, or json"),
		debug:  fs.Bool("debug", false, "enable debug logging"),
	}
}

// session is an open backend plus the resolved config.
type session struct {
	cfg     *config.Config
	backend cli.Backend
	format  cli.OutputFormat
	logger  *zap.Logger
}

func (s *session) Close() {
	_ = s.backend.Close()
	_ = s.logger.Sync()
}

// open resolves the config and picks a backend: the HTTP API when the server answers
// (avoids Bleve lock conflicts), the stores directly otherwise.
func open(ctx context.Context, f *commonFlags) (*session, error) {
	format, err := cli.ParseOutputFormat(*f.output)
	if err != nil {
		return nil, err
	}
	cfg, _, err := resolveConfig(*f.config, *f.vault)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || *f.debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	s := &session{cfg: cfg, format: format, logger: logger}

	if *f.server != "" {
		client := cli.NewClient(*f.server)
		if err := client.Ping(ctx); err == nil {
			s.backend = client
			return s, nil
		} else if !errors.Is(err, cli.ErrServerUnavailable) {
			logger.Warn("server health check failed, using the stores directly", zap.Error(err))
		}
	}

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	s.backend = &localBackend{c: components}
	return s, nil
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: synapse search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  synapse search machine learning
  synapse search "machine learning"            # same as above
  synapse search --keyword neural networks      # full-text search with spelling suggestions
  synapse search --limit 20 --output json your query
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	common := registerCommon(fs)
	limit := fs.Int("limit", 0, "number of results (0 = configured default)")
	keywordMode := fs.Bool("keyword", false, "search the keyword index instead of the vector index")
	fs.Usage = func() { printSearchUsage(fs) }
	if err := fs.Parse(searchArgsReorder(args)); err != nil {
		return err
	}
	query := buildSearchQuery(fs.Args())
	if query == "" {
		printSearchUsage(fs)
		return errUsage
	}

	ctx := context.Background()
	s, err := open(ctx, common)
	if err != nil {
		return err
	}
	defer s.Close()

	response, err := s.backend.Search(ctx, &models.SearchQuery{Query: query, Limit: *limit, Keyword: *keywordMode})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return cli.WriteSearchResults(stdout, response, s.format)
}

func runIndex(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	common := registerCommon(fs)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: synapse index [flags] [file]\n\nWithout a file, every new or changed document in the vault is indexed.")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	s, err := open(ctx, common)
	if err != nil {
		return err
	}
	defer s.Close()

	if fs.NArg() == 0 {
		res, err := s.backend.Sync(ctx)
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}
		return cli.WriteSyncResult(stdout, res, s.format)
	}
	for _, arg := range fs.Args() {
		docPath := vaultPath(s.cfg.Vault.Path, arg)
		id, err := s.backend.Process(ctx, docPath)
		if err != nil {
			return fmt.Errorf("indexing %s failed: %w", docPath, err)
		}
		fmt.Fprintf(stdout, "Document indexed successfully: %s (%s)\n", docPath, id)
	}
	return nil
}

func runDelete(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	common := registerCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stdout, "Usage: synapse delete [flags] <path-or-document-id>")
		return errUsage
	}

	ctx := context.Background()
	s, err := open(ctx, common)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, arg := range fs.Args() {
		id := arg
		if isPathArg(arg) {
			id = fileid.DocumentID(vaultPath(s.cfg.Vault.Path, arg))
		}
		if err := s.backend.Delete(ctx, id); err != nil {
			return fmt.Errorf("deletion failed: %w", err)
		}
		fmt.Fprintf(stdout, "Document deleted: %s\n", id)
	}
	return nil
}

func runRebuild(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("rebuild", flag.ContinueOnError)
	common := registerCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	s, err := open(ctx, common)
	if err != nil {
		return err
	}
	defer s.Close()

	start := time.Now()
	n, err := s.backend.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}
	fmt.Fprintf(stdout, "Rebuilt index: %d document(s) in %s\n", n, time.Since(start).Round(time.Millisecond))
	return nil
}

func runCheck(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	common := registerCommon(fs)
	fix := fs.Bool("fix", false, "repair the problems found")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	s, err := open(ctx, common)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.backend.Check(ctx, *fix)
	if err != nil {
		return fmt.Errorf("consistency check failed: %w", err)
	}
	return cli.WriteReport(stdout, report, s.format)
}

func runCleanup(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	common := registerCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	s, err := open(ctx, common)
	if err != nil {
		return err
	}
	defer s.Close()

	deleted, err := s.backend.Cleanup(ctx)
	if werr := cli.WriteList(stdout, "deleted", deleted, s.format); werr != nil {
		return werr
	}
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	return nil
}

func runKeys(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("keys", flag.ContinueOnError)
	common := registerCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	s, err := open(ctx, common)
	if err != nil {
		return err
	}
	defer s.Close()

	keys, err := s.backend.Keys(ctx)
	if err != nil {
		return fmt.Errorf("listing property keys failed: %w", err)
	}
	return cli.WriteList(stdout, "keys", keys, s.format)
}

func runStatus(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	common := registerCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	s, err := open(ctx, common)
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := s.backend.Status(ctx)
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}
	return cli.WriteStatus(stdout, st, s.format)
}

func runInit(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	out := fs.String("config", "config.yaml", "config file to write")
	vaultDir := fs.String("vault", ".", "vault directory")
	force := fs.Bool("force", false, "overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*force && fileExists(*out) {
		return fmt.Errorf("%s already exists; use --force to overwrite", *out)
	}
	cfg, err := config.Default(*vaultDir)
	if err != nil {
		return err
	}
	// Keep secrets from the environment out of the file.
	cfg.Embedding.APIKey = ""
	if err := config.Save(*out, cfg); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s for vault %s\n", *out, cfg.Vault.Path)
	return nil
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	vaultDir := fs.String("vault", "", "vault directory (overrides the config)")
	debug := fs.Bool("debug", false, "enable debug logging (file events, document processing, etc.)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, resolvedConfigPath, err := resolveConfig(*configPath, *vaultDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("vault", cfg.Vault.Path),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline := components.Pipeline
	if res, err := pipeline.Sync(ctx); err != nil {
		logger.Warn("initial sync finished with errors", zap.Error(err))
	} else {
		logger.Info("initial sync",
			zap.Int("processed", res.Processed),
			zap.Int("unchanged", res.Skipped),
			zap.Int("removed", len(res.Removed)),
		)
	}

	var watchSvc *watcher.Watcher
	if cfg.Watch.EnabledOrDefault() {
		watchSvc = watcher.NewWatcher(
			components.Vault.Root(),
			components.Vault.IsDocument,
			func(docPath string) {
				if err := pipeline.ProcessFile(ctx, docPath); err != nil {
					logger.Warn("watch process file failed", zap.String("path", docPath), zap.Error(err))
				}
			},
			func(docPath string) {
				if err := pipeline.DeletePath(ctx, docPath); err != nil {
					logger.Warn("watch delete by path failed", zap.String("path", docPath), zap.Error(err))
				}
			},
			watcher.WithLogger(logger),
			watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMS)*time.Millisecond),
		)
		if err := watchSvc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
	}

	srv := server.NewServer(components.Engine, pipeline, &cfg.Server, logger)
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		logger.Error("server failed", zap.Error(runErr))
	}

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if stopErr := srv.Stop(shutdownCtx); stopErr != nil {
		logger.Warn("shutdown incomplete", zap.Error(stopErr))
	}
	return runErr
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `synapse - semantic search over a folder of notes

Usage:
  synapse server [flags]                Start the HTTP server and watch the vault
  synapse search [flags] <query>        Search documents
  synapse index [flags] [file...]       Index files, or sync the whole vault
  synapse delete [flags] <path|id>...   Remove documents from the index
  synapse rebuild [flags]               Clear every store and reindex the vault
  synapse check [--fix] [flags]         Check store consistency, optionally repairing it
  synapse cleanup [flags]               Remove records of documents no longer in the vault
  synapse keys [flags]                  List frontmatter property keys
  synapse status [flags]                Show index status
  synapse init [flags]                  Write a config file with defaults
  synapse version                       Show version
  synapse help                          Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/synapse/config.yaml, or ./config.yaml when present)
  --vault string     Vault directory (overrides the config)
  --server string    Server URL (default: http://localhost:8080). The stores are used directly when the
                     server is not running; use --server "" to always use them.
  --output string    Output format: text, compact, or json (default: text)
  --debug            Enable debug logging

Search Flags:
  --limit int        Number of results (default from config)
  --keyword          Full-text search with spelling suggestions instead of semantic search

Examples:
  synapse init --vault ~/notes
  synapse server
  synapse search "machine learning algorithms"
  synapse search --output json "query"
  synapse index notes/today.md
  synapse delete notes/old.md
  synapse check --fix
  synapse status --output json`)
}
