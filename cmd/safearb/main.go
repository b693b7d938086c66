// Command safearb is the agent entry point. It loads configuration, validates
// it, wires dependencies, sets up signal handling, and starts the application
// in the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/safearb/internal/app"
	"github.com/alanyoungcy/safearb/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	if err := run(*configPath, *once); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, once bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	logger.Info("safearb starting",
		slog.String("mode", cfg.App.Mode),
		slog.String("config", configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := application.Run
	if once {
		start = application.RunOnce
	}
	if err := start(ctx); err != nil {
		// context.Canceled is the clean-shutdown path, everything else is fatal.
		if !errors.Is(err, context.Canceled) {
			logger.Error("application exited with error", slog.String("error", err.Error()))
			return err
		}
		logger.Info("application shut down gracefully")
	}

	logger.Info("safearb stopped")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
