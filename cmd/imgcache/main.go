// Command imgcache serves resized images over HTTP from a size-bounded cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/LavishGent/imgcache/internal/cache"
	"github.com/LavishGent/imgcache/internal/config"
	"github.com/LavishGent/imgcache/internal/metrics"
	"github.com/LavishGent/imgcache/internal/metrics/datadog"
	"github.com/LavishGent/imgcache/internal/server"
	"github.com/LavishGent/imgcache/internal/types"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(*configPath, logger); err != nil {
		logger.Error("imgcache exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("Configuration loaded", "config", cfg.Summary())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	manager, err := cache.NewManager(cfg, &types.ManagerOptions{
		Logger:  logger,
		Metrics: metrics.NewTracker(publisher),
	})
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}
	if err := manager.Init(ctx); err != nil {
		_ = manager.Destroy(context.Background())
		return fmt.Errorf("init cache: %w", err)
	}

	if cfg.Metrics.Enabled {
		bg := metrics.NewBackgroundPublisher(publisher, cfg.Metrics.PublishInterval.Std(), manager.HealthMetrics, logger)
		bg.Start(ctx)
		defer bg.Stop()
	}

	srv := server.New(cfg, manager, publisher, logger)
	serveErr := srv.ListenAndServe(ctx)

	timeout := cfg.Server.ShutdownTimeout.Std()
	if timeout <= 0 {
		timeout = cache.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := manager.Destroy(shutdownCtx); err != nil {
		logger.Error("Cache shutdown incomplete", "error", err)
	}
	return serveErr
}

func newPublisher(cfg *config.Config, logger *slog.Logger) (types.Publisher, error) {
	switch {
	case cfg.Metrics.DataDog.Enabled:
		p, err := datadog.NewPublisher(&cfg.Metrics.DataDog, logger)
		if err != nil {
			return nil, fmt.Errorf("create datadog publisher: %w", err)
		}
		return p, nil
	case cfg.Metrics.Enabled:
		return metrics.NewLoggingPublisher(logger, "service:imgcache"), nil
	default:
		return metrics.NewNoOpPublisher(), nil
	}
}
