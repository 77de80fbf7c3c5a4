// Kestrel - Batch transaction monitoring for card fraud and AML.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/csvio"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	scenariosPath := flag.String("scenarios", "alert_scenarios.json", "Path to the scenario configuration file")
	inputPath := flag.String("input", "", "Transaction CSV to evaluate (batch mode)")
	outputPath := flag.String("output", "", "Alert CSV output path (batch mode, default stdout as JSON)")
	serve := flag.Bool("serve", false, "Run the HTTP API instead of a one-shot batch")
	persist := flag.Bool("persist", false, "Persist the batch and run to the repository (batch mode)")
	flag.Parse()

	initLogger()

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg := loadConfig()

	scenarioData, err := os.ReadFile(*scenariosPath)
	if err != nil {
		slog.Error("failed to read scenario configuration", "path", *scenariosPath, "error", err)
		os.Exit(1)
	}
	scenarios, err := domain.ParseScenarioConfig(scenarioData)
	if err != nil {
		slog.Error("invalid scenario configuration", "path", *scenariosPath, "error", err)
		os.Exit(1)
	}

	engine, err := rules.NewEngine(scenarios, cfg.Engine.MaxWorkers)
	if err != nil {
		slog.Error("failed to initialize engine", "error", err)
		os.Exit(1)
	}
	slog.Info("engine initialized",
		"max_workers", cfg.Engine.MaxWorkers,
		"custom_scenarios", len(scenarios.Custom),
	)

	if *serve {
		runServer(cfg, engine)
		return
	}

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: kestrel -input transactions.csv [-scenarios alert_scenarios.json] [-output alerts.csv]")
		fmt.Fprintln(os.Stderr, "       kestrel -serve")
		fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
		os.Exit(1)
	}

	runBatch(cfg, engine, *inputPath, *outputPath, *persist)
}

func initLogger() {
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}

// loadConfig applies environment overrides on top of defaults.
func loadConfig() *domain.Config {
	cfg := domain.DefaultConfig()

	if v := os.Getenv("KESTREL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KESTREL_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.MaxWorkers = n
		}
	}
	if v := os.Getenv("KESTREL_DB_DRIVER"); v != "" {
		cfg.Repository.Driver = v
	}
	if v := os.Getenv("KESTREL_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("KESTREL_CACHE"); v != "" {
		cfg.Cache.Type = v
	}
	if v := os.Getenv("KESTREL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("KESTREL_BUS"); v != "" {
		cfg.EventBus.Type = v
	}
	if v := os.Getenv("KESTREL_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	return cfg
}

// runBatch evaluates one CSV batch and writes the alert log.
func runBatch(cfg *domain.Config, engine *rules.Engine, inputPath, outputPath string, persist bool) {
	ctx := context.Background()

	txs, err := csvio.ReadTransactionsFile(inputPath)
	if err != nil {
		slog.Error("failed to read transactions", "path", inputPath, "error", err)
		os.Exit(1)
	}
	slog.Info("transactions loaded", "path", inputPath, "count", len(txs))

	result, err := engine.Run(ctx, txs)
	if err != nil {
		slog.Error("evaluation failed", "error", err)
		os.Exit(1)
	}

	if persist {
		repo, err := repository.New(cfg.Repository)
		if err != nil {
			slog.Error("failed to initialize repository", "error", err)
			os.Exit(1)
		}
		defer repo.Close()

		if err := repo.SaveTransactions(ctx, txs); err != nil {
			slog.Error("failed to save transactions", "error", err)
			os.Exit(1)
		}
		if err := repo.SaveRun(ctx, result); err != nil {
			slog.Error("failed to save run", "error", err)
			os.Exit(1)
		}
		slog.Info("run persisted", "run_id", result.RunID, "driver", cfg.Repository.Driver)
	}

	if outputPath != "" {
		if err := csvio.WriteAlertsFile(outputPath, result.Alerts); err != nil {
			slog.Error("failed to write alerts", "path", outputPath, "error", err)
			os.Exit(1)
		}
		slog.Info("alerts written", "path", outputPath, "count", result.AlertCount)
		return
	}

	if err := csvio.WriteRunJSON(os.Stdout, result); err != nil {
		slog.Error("failed to write run result", "error", err)
		os.Exit(1)
	}
}

// runServer wires storage, cache and bus behind the HTTP API.
func runServer(cfg *domain.Config, engine *rules.Engine) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}
