// Harrier - Money-mule risk scoring over the transaction graph.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/harrier/internal/api"
	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/explain"
	"github.com/opensource-finance/harrier/internal/fusion"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/sar"
	"github.com/opensource-finance/harrier/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// A missing .env is fine; the environment wins either way.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	cfg, err := domain.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"sample_seed", cfg.Detection.SampleSeed,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Risk Fusion Engine
	engine, err := fusion.NewEngine(repo, cfg, fusion.WithCache(cacheImpl))
	if err != nil {
		slog.Error("failed to initialize fusion engine", "error", err)
		os.Exit(1)
	}

	explainer, err := explain.Select(cfg.Explain)
	if err != nil {
		slog.Error("failed to initialize explainer", "error", err)
		os.Exit(1)
	}
	engine.SetExplainer(explainer)

	if cfg.Explain.TrainOnStartup {
		if _, err := engine.TrainModel(ctx, cfg.Explain.ModelPath, cfg.Explain.TopReasons); err != nil {
			slog.Warn("model training skipped", "error", err)
		}
	}
	slog.Info("fusion engine initialized",
		"explainer", engine.Explainer().Method(),
		"batch_workers", cfg.Fusion.BatchWorkers,
	)

	reports, err := sar.NewBuilder(nil, nil)
	if err != nil {
		slog.Error("failed to initialize SAR builder", "error", err)
		os.Exit(1)
	}

	// Rescore parties of every ingested batch
	rescorer := worker.NewWorker(busImpl, engine)
	if err := rescorer.Start(); err != nil {
		slog.Error("failed to start rescoring worker", "error", err)
		os.Exit(1)
	}

	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, reports, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("harrier is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(os.Stdout, cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop accepting events before the server goes away
	if err := rescorer.Stop(); err != nil {
		slog.Error("failed to stop rescoring worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	stats := rescorer.GetStats()
	slog.Info("harrier shutdown complete",
		"events_processed", stats.EventsProcessed,
		"accounts_rescored", stats.AccountsRescored,
		"alerts_published", stats.AlertsPublished,
	)
}

func logLevel(level string) slog.Level {
	if os.Getenv("HARRIER_DEBUG") == "true" {
		return slog.LevelDebug
	}
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printBanner(w io.Writer, cfg *domain.Config, version string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  +-------------------------------------------+")
	fmt.Fprintln(w, "  |                 HARRIER                   |")
	fmt.Fprintln(w, "  |        Money-Mule Risk Scoring            |")
	fmt.Fprintln(w, "  |     Follow the money, not the rows.       |")
	fmt.Fprintln(w, "  +-------------------------------------------+")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Version:  %s\n", version)
	fmt.Fprintf(w, "  Tier:     %s\n", cfg.Tier)
	fmt.Fprintf(w, "  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Endpoints:")
	fmt.Fprintln(w, "    POST /transactions               - Ingest a transaction batch")
	fmt.Fprintln(w, "    GET  /transactions               - List transactions")
	fmt.Fprintln(w, "    GET  /accounts/{id}/risk         - Score an account")
	fmt.Fprintln(w, "    GET  /accounts/{id}/explain      - Ranked risk reasons")
	fmt.Fprintln(w, "    GET  /accounts/{id}/network      - Topology profile")
	fmt.Fprintln(w, "    GET  /accounts/{id}/layering     - Layering findings")
	fmt.Fprintln(w, "    GET  /accounts/{id}/behavior     - Behavioral profile")
	fmt.Fprintln(w, "    GET  /accounts/{id}/ego          - One-hop neighbourhood")
	fmt.Fprintln(w, "    GET  /accounts/{id}/sar          - Suspicious activity report")
	fmt.Fprintln(w, "    GET  /network/visualization      - Whole-graph overview")
	fmt.Fprintln(w, "    GET  /patterns?type=             - Pattern search")
	fmt.Fprintln(w, "    GET  /risk/high                  - Accounts above threshold")
	fmt.Fprintln(w, "    POST /risk/batch                 - Rescore accounts")
	fmt.Fprintln(w, "    GET  /statistics                 - Network statistics")
	fmt.Fprintln(w, "    GET  /health                     - Health check")
	fmt.Fprintln(w)
}
