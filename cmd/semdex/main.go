// Package main is the semdex CLI entry point.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
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

	"github.com/driftworks/semdex/internal/backend"
	"github.com/driftworks/semdex/internal/catalog"
	"github.com/driftworks/semdex/internal/cli"
	"github.com/driftworks/semdex/internal/config"
	"github.com/driftworks/semdex/internal/fileid"
	"github.com/driftworks/semdex/internal/models"
	"github.com/driftworks/semdex/internal/pipeline"
	"github.com/driftworks/semdex/internal/search"
	"github.com/driftworks/semdex/internal/server"
	"github.com/driftworks/semdex/internal/store"
	"github.com/driftworks/semdex/internal/syncer"
	"github.com/driftworks/semdex/internal/watcher"
	"github.com/driftworks/semdex/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/semdex/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "semdex server" from the project dir uses the project's
// config (including debug). Returns the config and the path actually loaded.
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

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "sync":
		runSync()
	case "search":
		runSearch()
	case "filter":
		runFilter()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("semdex version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// Components bundles everything a running command needs.
type Components struct {
	Root     string
	Store    *store.SQLiteStore
	Backend  *backend.Service
	Policy   *catalog.Policy
	Scanner  *catalog.Scanner
	Syncer   *syncer.Synchronizer
	Searcher *search.Service
}

// Close releases held resources.
func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	root := cfg.Project.Root
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve project root: %w", err)
		}
		root = cwd
	}

	st, err := store.NewSQLiteStore(cfg.Storage.DatabasePath, fileid.CollectionID(root))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	primary := backend.NewClient(cfg.Backend.PrimaryURL, ms(cfg.Backend.ProbeTimeoutMs), ms(cfg.Backend.EmbedTimeoutMs))
	var secondary *backend.Client
	if cfg.Backend.SecondaryURL != "" {
		secondary = backend.NewClient(cfg.Backend.SecondaryURL, ms(cfg.Backend.FailoverTimeoutMs), ms(cfg.Backend.EmbedTimeoutMs))
	}
	resolver := backend.NewResolver(primary, secondary, cfg.Backend.CostConstrained,
		backend.WithResolverLogger(logger))
	be := backend.NewService(resolver, cfg.Backend.Model, cfg.Backend.CacheSize,
		backend.WithServiceLogger(logger))

	policy, err := catalog.NewPolicy(cfg.Exclude, cfg.Index.BinaryExtensions)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to build exclusion policy: %w", err)
	}
	if cfg.Exclude.UseGitignore {
		policy.LoadGitignore(root)
	}

	scanOpts := []catalog.ScannerOption{}
	syncOpts := []syncer.Option{syncer.WithLogger(logger)}
	searchOpts := []search.Option{search.WithLogger(logger)}
	if debug {
		scanOpts = append(scanOpts, catalog.WithLogger(logger))
	}
	scanner := catalog.NewScanner(scanOpts...)
	eligibility := syncer.NewEligibility(cfg.Index.EligibilityGlobs, cfg.Index.BinaryExtensions)

	return &Components{
		Root:     root,
		Store:    st,
		Backend:  be,
		Policy:   policy,
		Scanner:  scanner,
		Syncer:   syncer.New(root, st, scanner, policy, eligibility, be, syncOpts...),
		Searcher: search.NewService(st, be, cfg.Index.SnippetLength, searchOpts...),
	}, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (file events, scans, probes)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	sync := components.Syncer
	kickSync := func() {
		go func() {
			if _, err := sync.Run(context.Background(), nil); err != nil && err != syncer.ErrSyncRunning {
				logger.Warn("synchronization failed", zap.Error(err))
			}
		}()
	}

	watchOpts := []watcher.WatcherOption{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	if cfg.Pipeline.DebounceMs > 0 {
		watchOpts = append(watchOpts, watcher.WithDebounce(time.Duration(cfg.Pipeline.DebounceMs)*time.Millisecond))
	}
	watchSvc := watcher.NewWatcher(components.Root, components.Policy, kickSync, watchOpts...)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}

	// Converge once at startup, then keep converging in the background.
	kickSync()
	if cfg.Index.ResyncIntervalSec > 0 {
		go sync.StartPeriodic(watchCtx, time.Duration(cfg.Index.ResyncIntervalSec)*time.Second, nil)
	}

	srv := server.NewServer(
		components.Searcher,
		sync,
		components.Store,
		components.Backend,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	sync.CancelAndWait()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runSync() {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || *debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug || *debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	result, err := components.Syncer.Run(context.Background(), func(p syncer.Progress) {
		fmt.Printf("\r%s %d/%d", p.Phase, p.Completed, p.Total)
	})
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sync failed: %v\n", err)
		os.Exit(1)
	}
	if result.Stopped {
		fmt.Printf("Stopped: indexed %d of %d, removed %d of %d\n",
			result.Indexed, result.IndexTarget, result.Removed, result.RemoveTarget)
		return
	}
	fmt.Printf("Done: indexed %d, removed %d\n", result.Indexed, result.Removed)
}

// buildSearchQuery joins all positional args with spaces so multi-word
// queries work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the
// query to the front of the slice so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument.
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

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct store access when server is not running)")
	limit := fs.Int("limit", 10, "number of results")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	query := buildSearchQuery(fs.Args())
	if query == "" {
		fmt.Fprintln(os.Stderr, "Usage: semdex search [flags] <query>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var results []models.SearchResult
	if *serverURL != "" {
		results, err = searchViaHTTP(*serverURL, query, *limit)
	} else {
		results, err = searchDirect(*configPath, query, *limit)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, results, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL, query string, limit int) ([]models.SearchResult, error) {
	body, err := json.Marshal(map[string]interface{}{"query": query, "limit": limit})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("is the server running? %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	var decoded struct {
		Results []models.SearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	return decoded.Results, nil
}

func searchDirect(configPath, query string, limit int) ([]models.SearchResult, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	return components.Searcher.Search(context.Background(), query, limit)
}

// runFilter is an interactive live filter: every line on stdin becomes the
// current query, the pipeline debounces and evaluates it, and results are
// printed as they arrive. Filesystem changes invalidate the cached catalog
// through the watcher.
func runFilter() {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	semantic := fs.Bool("semantic", false, "match by meaning instead of file name")
	limit := fs.Int("limit", 10, "number of semantic results")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	lister := func(ctx context.Context) ([]models.FileRecord, error) {
		return components.Scanner.Scan(ctx, components.Root, components.Policy)
	}
	pipeOpts := []pipeline.Option{pipeline.WithLogger(logger)}
	if cfg.Pipeline.DebounceMs > 0 {
		pipeOpts = append(pipeOpts, pipeline.WithDebounce(time.Duration(cfg.Pipeline.DebounceMs)*time.Millisecond))
	}
	p := pipeline.New(components.Searcher, lister, *limit, func(u pipeline.Update) {
		writeFilterUpdate(os.Stdout, u)
	}, pipeOpts...)
	defer p.Close()
	if *semantic {
		p.SetMode(pipeline.ModeSemantic)
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	w := watcher.NewWatcher(components.Root, components.Policy, p.OnPolicyChanged)
	if err := w.Start(watchCtx); err != nil {
		logger.Warn("watcher unavailable, catalog will not refresh on file changes", zap.Error(err))
	} else {
		defer w.Stop()
	}

	// Show the full catalog before the first keystroke.
	p.OnQueryChanged("")
	filterLoop(os.Stdin, p)
}

// filterLoop feeds input lines into the pipeline until EOF.
func filterLoop(r io.Reader, p *pipeline.Pipeline) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.OnQueryChanged(scanner.Text())
	}
}

// writeFilterUpdate prints one delivered evaluation, results first and a
// summary line last so interactive readers see a stable terminator.
func writeFilterUpdate(w io.Writer, u pipeline.Update) {
	switch u.Mode {
	case pipeline.ModeSemantic:
		for _, m := range u.Matches {
			fmt.Fprintf(w, "%.4f\t%s\n", m.Similarity, m.RelPath)
		}
		fmt.Fprintf(w, "-- %d matches for %q\n", len(u.Matches), u.Query)
	default:
		for _, f := range u.Files {
			fmt.Fprintln(w, f.RelPath)
		}
		fmt.Fprintf(w, "-- %d files\n", len(u.Files))
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(strings.TrimRight(*serverURL, "/") + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed (is the server running?): %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(status)
		return
	}
	fmt.Printf("State:   %v\n", status["state"])
	fmt.Printf("Status:  %v\n", status["status"])
	fmt.Printf("Indexed: %v\n", status["indexed"])
	if host, ok := status["active_host"].(map[string]interface{}); ok {
		fmt.Printf("Host:    %v (accelerated: %v)\n", host["url"], host["accelerated"])
	}
}

func printUsage() {
	fmt.Println(`semdex - semantic file index for project trees

Usage:
  semdex server [flags]           Start the HTTP server (watch + background sync)
  semdex sync [flags]             Run one synchronization pass
  semdex search [flags] <query>   Search indexed files semantically
  semdex filter [flags]           Live filter: type queries on stdin, results stream back
  semdex status [flags]           Show index state
  semdex version                  Show version
  semdex help                     Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/semdex/config.yaml)
  --debug            Enable debug logging (file events, scans, probes)

Search Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct store access.
  --limit int        Number of results (default: 10)
  --output string    Output format: text, compact, or json (default: text)

Filter Flags:
  --config string    Config file path
  --semantic         Match by meaning instead of file name
  --limit int        Number of semantic results (default: 10)

Examples:
  semdex server
  semdex sync
  semdex search http handler with middleware
  semdex search --output json "graceful shutdown"
  semdex status`)
}
