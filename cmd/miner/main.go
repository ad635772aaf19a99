// Command miner runs one correlation-mining pass over a directory of
// datasets and serves the results for the reporting collaborator.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"corrmine/internal/cache"
	"corrmine/internal/config"
	"corrmine/internal/dataset"
	"corrmine/internal/infrastructure"
	"corrmine/internal/loader"
	"corrmine/internal/miner"
	"corrmine/internal/transport"
)

func main() {
	configFile := flag.String("config", "config.yaml", "path to YAML configuration file")
	dataDir := flag.String("data", "", "dataset directory (overrides config)")
	cacheDir := flag.String("cache", "", "cache directory (overrides config)")
	serve := flag.Bool("serve", false, "keep the report server running after the mining pass")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.Paths.DataDir = *dataDir
	}
	if *cacheDir != "" {
		cfg.Paths.CacheDir = *cacheDir
	}

	logger, err := infrastructure.InitLogger(cfg.Logging)
	if err != nil {
		slog.Error("failed to initialize logger", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger, *serve); err != nil {
		logger.Error("miner failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, serve bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry, err := infrastructure.InitTelemetry()
	if err != nil {
		return err
	}
	defer telemetry.Shutdown(context.Background())

	loaders := loader.NewRegistry()

	registry := dataset.NewRegistry(loaders.Extensions(), logger)
	if err := registry.Scan(cfg.Paths.DataDir); err != nil {
		return err
	}

	var columnMap map[string][2]string
	if cfg.Mining.ColumnMapFile != "" {
		if columnMap, err = config.LoadColumnMap(cfg.Mining.ColumnMapFile); err != nil {
			return err
		}
	}
	registry.ApplyColumnMap(columnMap, cfg.Mining.DefaultDateColumn, cfg.Mining.DefaultValueColumn)

	correlationCache := cache.New(cfg.Paths.CacheDir, logger)
	if err := correlationCache.Load(); err != nil {
		return err
	}

	metrics, err := miner.NewMetrics(telemetry.Meter)
	if err != nil {
		return err
	}

	hub := transport.NewHub(logger)
	server := transport.NewServer(cfg.Server, correlationCache, hub, telemetry.Registry, logger)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.ListenAndServe() }()
	defer server.Shutdown(context.Background())

	m := miner.New(registry, loaders, correlationCache, cfg.Mining, logger, metrics)
	m.OnProgress(func(p miner.Progress) { hub.Broadcast(p) })

	report, err := m.Run(ctx)
	if err != nil {
		return err
	}
	server.SetReport(report)

	for _, result := range report.Results {
		attrs := []any{
			"dataset1", result.Dataset1,
			"dataset2", result.Dataset2,
			"correlation", result.Correlation,
			"window", result.Window,
			"shift", result.Shift,
		}
		if result.PValue != nil {
			attrs = append(attrs, "p_value", *result.PValue)
		}
		logger.Info("spurious correlation found", attrs...)
	}

	if !serve {
		return nil
	}

	logger.Info("mining pass complete, serving results", "port", cfg.Server.Port)
	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErr:
		return err
	}
}
