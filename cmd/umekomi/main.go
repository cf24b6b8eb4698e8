// Package main is the Umekomi CLI entry point.
package main

import (
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

	"github.com/hyperjump/umekomi/internal/cli"
	"github.com/hyperjump/umekomi/internal/config"
	"github.com/hyperjump/umekomi/internal/embedding"
	"github.com/hyperjump/umekomi/internal/models"
	"github.com/hyperjump/umekomi/internal/server"
	"github.com/hyperjump/umekomi/internal/storage"
	"github.com/hyperjump/umekomi/internal/watcher"
	"github.com/hyperjump/umekomi/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/umekomi/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "umekomi server" from the project dir uses the project's config (including debug).
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

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "embed":
		runEmbed()
	case "similarity":
		runSimilarity()
	case "status":
		runStatus()
	case "config":
		runConfig()
	case "version", "--version", "-v":
		fmt.Printf("umekomi version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (cache hits, tokenization, asset changes)")
	mock := fs.Bool("mock", false, "use the mock backend instead of loading model weights")
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
		zap.Bool("mock", *mock),
	)

	components, err := initializeComponents(cfg, logger, *mock)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	// Model loading can take seconds; serve immediately and let /api/v1/status
	// report initializing until the load settles.
	initDone := components.Service.InitializeAsync(context.Background(), cfg.Embedding.AssetDir)
	go func() {
		if err := <-initDone; err != nil {
			logger.Error("Model initialization failed", zap.Error(err))
			return
		}
		if cfg.Embedding.Dimensions > 0 && components.Service.Dimensions() != cfg.Embedding.Dimensions {
			logger.Warn("configured dimensions differ from loaded model",
				zap.Int("configured", cfg.Embedding.Dimensions),
				zap.Int("loaded", components.Service.Dimensions()))
		}
	}()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.EnabledOrDefault() {
		watchOpts := []watcher.Option{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc := watcher.NewWatcher(
			cfg.Embedding.AssetDir,
			embedding.RequiredAssets(),
			func(name string) {
				logger.Warn("model asset changed on disk; loaded model is unchanged, restart to pick it up",
					zap.String("file", name))
			},
			watchOpts...,
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Warn("Failed to start asset watcher", zap.Error(err))
		} else {
			defer watchSvc.Stop()
		}
	}

	srv := server.NewServer(components.Service, components.Store, cfg, logger)
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
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// buildText joins all positional args with spaces so multi-word texts work the
// same with or without shell quoting (e.g. "hello world" vs hello world).
func buildText(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the text to
// the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "umekomi embed \"text\" -output json"
// would otherwise leave -output unparsed.
func argsReorder(args []string) []string {
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

// parseOutputFormat maps the -output flag value to a cli.OutputFormat,
// exiting on unknown values.
func parseOutputFormat(value string) cli.OutputFormat {
	switch value {
	case "text":
		return cli.OutputText
	case "json":
		return cli.OutputJSON
	case "compact":
		return cli.OutputCompact
	default:
		fmt.Printf("Unknown output format %q; use text, compact, or json\n", value)
		os.Exit(1)
		return cli.OutputText
	}
}

func runEmbed() {
	embedArgs := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = load the model in-process)")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (raw vector), or json (parseable)")
	mock := fs.Bool("mock", false, "use the mock backend instead of loading model weights (direct mode only)")
	_ = fs.Parse(embedArgs)

	if fs.NArg() < 1 {
		fmt.Println("Usage: umekomi embed [flags] <text>")
		os.Exit(1)
	}
	text := buildText(fs.Args())
	format := parseOutputFormat(*outputFormat)

	if *serverURL != "" {
		// Use HTTP API when the server is running (avoids a second model load).
		response, err := embedViaHTTP(*serverURL, text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Embed failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteEmbedResult(os.Stdout, response, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Direct mode: load the model in-process.
	components, cfg := mustInitDirect(*configPath, *mock)
	defer components.Close()

	ctx := context.Background()
	if err := components.Service.Initialize(ctx, cfg.Embedding.AssetDir); err != nil {
		fmt.Fprintf(os.Stderr, "Initialization failed: %v\n", err)
		os.Exit(1)
	}
	vec, err := components.Service.Embed(ctx, text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embed failed: %v\n", err)
		os.Exit(1)
	}
	response := &models.EmbedResponse{
		Embedding:  vec,
		Dimensions: len(vec),
		Model:      components.Service.ModelName(),
	}
	if err := cli.WriteEmbedResult(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runSimilarity() {
	simArgs := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("similarity", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = load the model in-process)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	mock := fs.Bool("mock", false, "use the mock backend instead of loading model weights (direct mode only)")
	_ = fs.Parse(simArgs)

	if fs.NArg() < 2 {
		fmt.Println("Usage: umekomi similarity [flags] <text-a> <text-b>")
		os.Exit(1)
	}
	textA, textB := fs.Arg(0), fs.Arg(1)
	format := parseOutputFormat(*outputFormat)

	if *serverURL != "" {
		response, err := similarityViaHTTP(*serverURL, textA, textB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Similarity failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteSimilarityResult(os.Stdout, response, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	components, cfg := mustInitDirect(*configPath, *mock)
	defer components.Close()

	ctx := context.Background()
	if err := components.Service.Initialize(ctx, cfg.Embedding.AssetDir); err != nil {
		fmt.Fprintf(os.Stderr, "Initialization failed: %v\n", err)
		os.Exit(1)
	}
	vecA, err := components.Service.Embed(ctx, textA)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embed failed: %v\n", err)
		os.Exit(1)
	}
	vecB, err := components.Service.Embed(ctx, textB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embed failed: %v\n", err)
		os.Exit(1)
	}
	response := &models.SimilarityResponse{
		Similarity: utils.Cosine(vecA, vecB),
		Model:      components.Service.ModelName(),
	}
	if err := cli.WriteSimilarityResult(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = inspect local config and assets)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format := parseOutputFormat(*outputFormat)

	var status *models.StatusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		// Without a server there is no loaded model; report what the assets
		// on disk would allow.
		status = &models.StatusResponse{
			State:    embedding.StateUninitialized.String(),
			AssetDir: cfg.Embedding.AssetDir,
		}
		if err := embedding.VerifyAssets(cfg.Embedding.AssetDir); err != nil {
			status.Error = err.Error()
		}
		if cfg.Storage.DatabasePath != "" {
			if store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath); err == nil {
				if n, countErr := store.CountVectors(context.Background()); countErr == nil {
					status.StoredVectors = n
				}
				_ = store.Close()
			}
			if diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath); err == nil {
				status.DiskUsageBytes = &diskBytes
			}
		}
	}

	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runConfig() {
	if len(os.Args) < 3 || os.Args[2] != "init" {
		fmt.Println("Usage: umekomi config init [flags]")
		os.Exit(1)
	}
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	path := fs.String("path", "config.yaml", "where to write the config file")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[3:])

	if err := writeDefaultConfig(*path, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", *path)
}

// writeDefaultConfig writes a config file populated with defaults, refusing
// to clobber an existing file unless force is set.
func writeDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return config.Save(path, cfg)
}

func embedViaHTTP(serverURL, text string) (*models.EmbedResponse, error) {
	body, err := json.Marshal(&models.EmbedRequest{Text: text})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/embed", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.EmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func similarityViaHTTP(serverURL, textA, textB string) (*models.SimilarityResponse, error) {
	body, err := json.Marshal(&models.SimilarityRequest{TextA: textA, TextB: textB})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/similarity", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SimilarityResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func statusViaHTTP(serverURL string) (*models.StatusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s models.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// mustInitDirect loads config, builds a logger, and initializes components for
// commands running without a server. Exits on failure.
func mustInitDirect(configPath string, mock bool) (*Components, *config.Config) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger, mock)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return components, cfg
}

// Components holds initialized services.
type Components struct {
	Service *embedding.Service
	Store   storage.Store
}

func (c *Components) Close() {
	if c.Service != nil {
		_ = c.Service.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, mock bool) (*Components, error) {
	var store storage.Store
	if cfg.Storage.DatabasePath != "" {
		sqliteStore, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		store = sqliteStore
	}

	var backend embedding.Backend
	if mock {
		backend = &embedding.MockBackend{Dims: cfg.Embedding.Dimensions}
	} else {
		backend = embedding.NewONNXBackend(embedding.ONNXOptions{
			LibraryPath: cfg.Embedding.ONNXLibraryPath,
			MaxTokens:   cfg.Embedding.MaxTokens,
			Pooling:     embedding.PoolingStrategy(cfg.Embedding.Pooling),
			Normalize:   cfg.Embedding.NormalizeOrDefault(),
		})
	}

	opts := []embedding.Option{
		embedding.WithCacheSize(cfg.Embedding.CacheSize),
		embedding.WithLogger(logger),
	}
	if store != nil {
		opts = append(opts, embedding.WithStore(store))
	}
	service := embedding.NewService(backend, opts...)

	return &Components{
		Service: service,
		Store:   store,
	}, nil
}

func printUsage() {
	fmt.Println(`umekomi - Local text embedding service

Usage:
  umekomi server [flags]                      Start the HTTP server
  umekomi embed [flags] <text>                Embed a text
  umekomi similarity [flags] <text-a> <text-b>  Cosine similarity of two texts
  umekomi status [flags]                      Show service status
  umekomi config init [flags]                 Write a default config file
  umekomi version                             Show version
  umekomi help                                Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/umekomi/config.yaml)
  --debug            Enable debug logging (cache hits, tokenization, asset changes)
  --mock             Use the mock backend instead of loading model weights

Embed Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to load the model in-process.
  --output string    Output format: text, compact, or json (default: text)
  --mock             Use the mock backend (direct mode only)

Similarity Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to load the model in-process.
  --output string    Output format: text or json (default: text)
  --mock             Use the mock backend (direct mode only)

Status Flags:
  --config string    Config file path (for local mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to inspect local config and assets.
  --output string    Output format: text or json (default: text)

Config Init Flags:
  --path string      Where to write the config file (default: config.yaml)
  --force            Overwrite an existing file

Examples:
  umekomi server
  umekomi embed "machine learning"
  umekomi embed --output json "machine learning" | jq .dimensions
  umekomi embed --output compact "query text"
  umekomi similarity "cat" "kitten"
  umekomi status
  umekomi status --output json
  umekomi config init --path /usr/local/etc/umekomi/config.yaml`)
}
