// Package main is the tanya CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/tanya/internal/cli"
	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/rag"
	"github.com/hyperjump/tanya/internal/server"
	"github.com/hyperjump/tanya/internal/watcher"
	"github.com/hyperjump/tanya/pkg/utils"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/tanya/config.yaml"
	defaultServerURL  = "http://localhost:8080"
	clientTimeout     = 2 * time.Minute
)

// loadConfig loads config from path. When path is the default, config.yaml in the current directory
// wins if present (for development); when neither exists the built-in defaults are used.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				config.ApplyEnv(cfg)
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			config.ApplyEnv(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	config.ApplyEnv(cfg)
	return cfg, path, nil
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "search":
		runSearch()
	case "ingest":
		runIngest()
	case "watch":
		runWatch()
	case "status":
		runStatus()
	case "sources":
		runSources()
	case "version", "--version", "-v":
		fmt.Printf("tanya version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// openDirect loads config and opens the engine in-process.
func openDirect(configPath string, debug bool) (*rag.Engine, *config.Config, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	engine, err := rag.Open(context.Background(), cfg, logger)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	return engine, cfg, logger
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fatalf("%v", err)
	}
	return format
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (requests, retrieval, file ingestion, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	engine, err := rag.Open(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize engine", zap.Error(err))
	}
	defer engine.Close()

	watchOpts := []watcher.WatcherOption{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.NewWatcher(
		engine.Indexer(),
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		watchOpts...,
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	go watchSvc.SyncExistingFiles()

	srv := server.NewServer(engine, cfg, logger, watchSvc, resolvedConfigPath)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	watchSvc.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
	if err := engine.Indexer().Persist(); err != nil {
		logger.Warn("vector index save failed", zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
	}
	stats := watchSvc.Stats()
	logger.Info("watcher stats",
		zap.Int64("ingested", stats.Ingested),
		zap.Int64("skipped", stats.Skipped),
		zap.Int64("failed", stats.Failed),
	)
}

// buildQuery joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the question
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' && a != "-" {
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

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = answer in-process)")
	pageURL := fs.String("url", "", "use this web page as context instead of the index")
	crawl := fs.Bool("crawl", false, "with --url, crawl the page's site and use the combined text")
	topK := fs.Int("top-k", 0, "number of indexed fragments to retrieve (0 = config default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: tanya ask [flags] <question>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))

	question := buildQuery(fs.Args())
	if question == "" {
		fs.Usage()
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	req := &models.ChatRequest{Message: question, URL: *pageURL, Crawl: *crawl, TopK: *topK}

	var resp *models.ChatResponse
	if *serverURL != "" {
		resp = &models.ChatResponse{}
		if err := newAPIClient(*serverURL, clientTimeout).postJSON("/api/v1/chat", req, resp); err != nil {
			fatalf("Ask failed: %v", err)
		}
	} else {
		engine, _, logger := openDirect(*configPath, false)
		defer logger.Sync()
		defer engine.Close()
		var err error
		resp, err = engine.Ask(context.Background(), req)
		if err != nil {
			fatalf("Ask failed (%s): %v", rag.Classify(err), err)
		}
	}
	if err := cli.WriteAnswer(os.Stdout, resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = search in-process)")
	topK := fs.Int("top-k", 0, "number of fragments (0 = config default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: tanya search [flags] <query>\n\nShows the indexed fragments nearest to the query, without asking the model.\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))

	query := buildQuery(fs.Args())
	if query == "" {
		fs.Usage()
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	req := &models.SearchRequest{Query: query, TopK: *topK}

	var resp *models.SearchResponse
	if *serverURL != "" {
		resp = &models.SearchResponse{}
		if err := newAPIClient(*serverURL, clientTimeout).postJSON("/api/v1/search", req, resp); err != nil {
			fatalf("Search failed: %v", err)
		}
	} else {
		engine, _, logger := openDirect(*configPath, false)
		defer logger.Sync()
		defer engine.Close()
		var err error
		resp, err = engine.Search(context.Background(), req)
		if err != nil {
			fatalf("Search failed: %v", err)
		}
	}
	if err := cli.WriteSearchResults(os.Stdout, resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// ingestTarget classifies an ingest argument.
type ingestTarget int

const (
	targetFile ingestTarget = iota
	targetDirectory
	targetURL
	targetStdin
)

func classifyTarget(arg string) (ingestTarget, error) {
	if arg == "-" {
		return targetStdin, nil
	}
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		if err := models.ValidateURL(arg); err != nil {
			return 0, err
		}
		return targetURL, nil
	}
	info, err := os.Stat(arg)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return targetDirectory, nil
	}
	return targetFile, nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "server URL (empty = ingest in-process; directories need in-process mode)")
	crawl := fs.Bool("crawl", false, "for a URL, crawl its site instead of fetching one page")
	title := fs.String("title", "", "title for text read from stdin")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: tanya ingest [flags] <file | directory | url | ->\n\nUse - to read plain text from stdin.\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}
	arg := fs.Arg(0)
	format := parseFormat(*outputFormat)
	target, err := classifyTarget(arg)
	if err != nil {
		fatalf("Invalid ingest target: %v", err)
	}

	var res *models.IngestResult
	if *serverURL != "" {
		res = ingestViaHTTP(newAPIClient(*serverURL, clientTimeout), target, arg, *title, *crawl)
	} else {
		engine, cfg, logger := openDirect(*configPath, false)
		defer logger.Sync()
		defer engine.Close()
		ctx := context.Background()
		switch target {
		case targetDirectory:
			n, err := engine.Indexer().IngestDirectory(ctx, arg, cfg.Watch.Extensions)
			if err != nil {
				fatalf("Ingesting directory failed: %v", err)
			}
			fmt.Printf("Ingested %d file(s) from %s\n", n, arg)
			return
		case targetURL:
			res, err = engine.IngestURL(ctx, &models.IngestURLRequest{URL: arg, Crawl: *crawl})
		case targetStdin:
			var text []byte
			text, err = io.ReadAll(os.Stdin)
			if err == nil {
				res, err = engine.IngestText(ctx, *title, string(text))
			}
		default:
			res, err = engine.Indexer().IngestPath(ctx, arg, nil)
		}
		if err != nil {
			fatalf("Ingestion failed (%s): %v", rag.Classify(err), err)
		}
	}
	if err := cli.WriteIngestResult(os.Stdout, res, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func ingestViaHTTP(c *apiClient, target ingestTarget, arg, title string, crawl bool) *models.IngestResult {
	res := &models.IngestResult{}
	var err error
	switch target {
	case targetDirectory:
		fatalf("Directory ingestion runs in-process; use --server \"\" or tanya watch add %s", arg)
	case targetURL:
		err = c.postJSON("/api/v1/ingest/url", models.IngestURLRequest{URL: arg, Crawl: crawl}, res, http.StatusOK, http.StatusCreated)
	case targetStdin:
		var text []byte
		if text, err = io.ReadAll(os.Stdin); err == nil {
			err = c.postJSON("/api/v1/documents/text", map[string]string{"title": title, "text": string(text)}, res, http.StatusOK, http.StatusCreated)
		}
	default:
		var content []byte
		if content, err = os.ReadFile(arg); err == nil {
			err = c.upload("/api/v1/documents", arg, content, res)
		}
	}
	if err != nil {
		fatalf("Ingestion failed: %v", err)
	}
	return res
}

// statusEnvelope is the shape of GET /api/v1/status.
type statusEnvelope struct {
	Status           rag.Status `json:"status"`
	WatchDirectories []string   `json:"watch_directories,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read storage directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)

	var env statusEnvelope
	if *serverURL != "" {
		if err := newAPIClient(*serverURL, clientTimeout).getJSON("/api/v1/status", &env); err != nil {
			fatalf("Status failed: %v", err)
		}
	} else {
		engine, _, logger := openDirect(*configPath, false)
		defer logger.Sync()
		defer engine.Close()
		st, err := engine.Status(context.Background())
		if err != nil {
			fatalf("Status failed: %v", err)
		}
		env.Status = *st
	}
	if err := cli.WriteStatus(os.Stdout, &env.Status, format); err != nil {
		fatalf("Output failed: %v", err)
	}
	if format == cli.OutputText {
		for _, d := range env.WatchDirectories {
			fmt.Printf("Watching:         %s\n", d)
		}
	}
}

func runSources() {
	fs := flag.NewFlagSet("sources", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the ledger directly)")
	offset := fs.Int("offset", 0, "skip this many sources")
	limit := fs.Int("limit", 50, "maximum sources to list")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)

	var sources []*models.Source
	if *serverURL != "" {
		var out struct {
			Sources []*models.Source `json:"sources"`
		}
		q := url.Values{"offset": {strconv.Itoa(*offset)}, "limit": {strconv.Itoa(*limit)}}
		if err := newAPIClient(*serverURL, clientTimeout).getJSON("/api/v1/sources?"+q.Encode(), &out); err != nil {
			fatalf("Listing sources failed: %v", err)
		}
		sources = out.Sources
	} else {
		engine, _, logger := openDirect(*configPath, false)
		defer logger.Sync()
		defer engine.Close()
		var err error
		sources, err = engine.Sources(context.Background(), *offset, *limit)
		if err != nil {
			fatalf("Listing sources failed: %v", err)
		}
	}
	if err := cli.WriteSources(os.Stdout, sources, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: tanya watch <add|remove|list> [path]")
		fmt.Println("  tanya watch add <path>     Add directory to watch")
		fmt.Println("  tanya watch remove <path>  Remove directory from watch")
		fmt.Println("  tanya watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	noSync := fs.Bool("no-sync", false, "with add, do not ingest files already in the directory")
	_ = fs.Parse(argsReorder(os.Args[3:]))
	c := newAPIClient(*serverURL, clientTimeout)

	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fatalf("Usage: tanya watch add <path>")
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body := map[string]interface{}{"path": path, "sync": !*noSync}
		if err := c.postJSON("/api/v1/watch/directories", body, nil, http.StatusCreated); err != nil {
			fatalf("Add failed: %v", err)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fatalf("Usage: tanya watch remove <path>")
		}
		path, _ := filepath.Abs(fs.Arg(0))
		if err := c.delete("/api/v1/watch/directories", url.Values{"path": {path}}); err != nil {
			fatalf("Remove failed: %v", err)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := c.getJSON("/api/v1/watch/directories", &out); err != nil {
			fatalf("List failed: %v", err)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fatalf("Unknown watch subcommand: %s", sub)
	}
}

func printUsage() {
	fmt.Println(`tanya - Retrieval-augmented chat backend

Usage:
  tanya server [flags]             Start the HTTP server
  tanya ask [flags] <question>     Ask a question (retrieves context from the index or a web page)
  tanya search [flags] <query>     Show the indexed fragments nearest to a query
  tanya ingest [flags] <target>    Ingest a file, directory, URL, or - for stdin text
  tanya status [flags]             Show index and ledger status
  tanya sources [flags]            List ingested sources, newest first
  tanya watch <add|remove|list>    Manage watched inbox directories
  tanya version                    Show version
  tanya help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/tanya/config.yaml, or ./config.yaml)
  --debug            Enable debug logging

Ask Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to answer in-process.
  --url string       Use a web page as context
  --crawl            With --url, crawl the site (same origin, bounded by web.max_pages)
  --top-k int        Number of fragments to retrieve
  --output string    Output format: text or json

Ingest Flags:
  --server string    Server URL (default: in-process)
  --crawl            For a URL, crawl its site
  --title string     Title for stdin text

Environment:
  OPENAI_API_KEY     API key for embeddings and completions (a .env file is loaded if present)
  FRONTEND_ORIGIN    Extra allowed CORS origin
  TANYA_DEBUG        Set to true for debug logging

Examples:
  tanya server
  tanya ask "What is the refund policy?"
  tanya ask --url https://example.com/pricing "How much is the pro plan?"
  tanya ask --url https://example.com --crawl "What does this company do?"
  tanya ingest handbook.pdf
  tanya ingest --crawl https://example.com/docs
  echo "Opening hours are 9 to 5." | tanya ingest --title hours -
  tanya status --output json
  tanya sources --limit 10
  tanya watch add /path/to/inbox`)
}
