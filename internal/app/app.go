// Package app provides the top-level application lifecycle management for the
// agent. It wires together all dependencies (chain client, consensus
// substrate, stores, blob storage, notifications) and starts the appropriate
// goroutines based on the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/safearb/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	startedAt time.Time
	closers   []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "app")),
		startedAt: time.Now().UTC(),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.App.Mode),
		slog.String("log_level", a.cfg.Log.Level),
	)
	if a.logger.Enabled(ctx, slog.LevelDebug) {
		a.logger.DebugContext(ctx, "active configuration",
			slog.Any("config", config.RedactedConfig(a.cfg)),
		)
	}

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.App.Mode) {
	case "agent":
		return a.AgentMode(ctx, deps)
	case "server":
		return a.ServerMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.App.Mode)
	}
}

// RunOnce wires dependencies and drives exactly one cycle through the round
// pipeline, then returns. It backs the -once CLI flag, used for smoke tests
// against a live chain without leaving the agent running.
func (a *App) RunOnce(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting single-cycle run")

	if strings.ToLower(a.cfg.App.Mode) != "agent" {
		return fmt.Errorf("app: single-cycle run requires agent mode, not %q", a.cfg.App.Mode)
	}

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	unlock, err := a.acquireAgentLock(ctx, deps)
	if err != nil {
		return err
	}
	defer unlock()

	machine, err := a.buildMachine(deps)
	if err != nil {
		return err
	}
	return machine.RunOnce(ctx)
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
