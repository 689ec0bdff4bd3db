// contentgen serves the educational content generation API.
//
// Usage:
//
//	contentgen serve [--config config.yaml]
//	contentgen version
//	contentgen health [--addr localhost:8080]
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/studyhive/contentgen/config"
	"github.com/studyhive/contentgen/gemini"
	"github.com/studyhive/contentgen/internal/cache"
	"github.com/studyhive/contentgen/internal/metrics"
	"github.com/studyhive/contentgen/internal/server"
	"github.com/studyhive/contentgen/internal/store"
	"github.com/studyhive/contentgen/service"
)

// Injected at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "version":
		fmt.Printf("contentgen %s (%s)\n", Version, GitCommit)
	case "health":
		runHealth(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: contentgen <serve|version|health> [flags]")
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting contentgen",
		zap.String("version", Version),
		zap.String("model", cfg.Gemini.Model),
		zap.Int("api_keys", len(cfg.Gemini.APIKeys)))

	// The cache is optional: without Redis the service still works, every
	// request just goes upstream.
	var recordCache *cache.Cache
	if c, err := cache.New(cfg.Redis, logger); err != nil {
		logger.Warn("record cache unavailable, running uncached", zap.Error(err))
	} else {
		recordCache = c
		defer recordCache.Close()
	}

	recordStore, err := store.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("open record store", zap.Error(err))
	}

	collector := metrics.NewCollector("contentgen", nil)
	client := gemini.NewClient(cfg.Gemini, logger)

	svc, err := service.New(service.Options{
		Upstream:    client,
		Cache:       recordCache,
		Store:       recordStore,
		Metrics:     collector,
		Logger:      logger,
		BatchSize:   cfg.Generation.BatchSize,
		Concurrency: cfg.Generation.Concurrency,
		CacheTTL:    cfg.Generation.CacheTTL,
	})
	if err != nil {
		logger.Fatal("build service", zap.Error(err))
	}

	handler := newHandler(svc, recordCache, logger)
	srv := server.New(handler, cfg.Server, logger)
	if err := srv.Start(); err != nil {
		logger.Fatal("start http server", zap.Error(err))
	}

	if err := srv.Wait(); err != nil {
		logger.Fatal("server terminated", zap.Error(err))
	}
	logger.Info("contentgen stopped")
}

func runHealth(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "localhost:8080", "server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/healthz", *addr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "unhealthy: status %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("ok")
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		return nil, err
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
