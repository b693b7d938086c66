package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/safearb/internal/agent"
	"github.com/alanyoungcy/safearb/internal/domain"
	"github.com/alanyoungcy/safearb/internal/server"
	"github.com/alanyoungcy/safearb/internal/server/handler"
	"github.com/alanyoungcy/safearb/internal/server/ws"
)

// agentLockTTL bounds how long a crashed agent blocks a restart under the
// same identity. A live holder refreshes the lock well inside this window.
const agentLockTTL = 30 * time.Second

// AgentMode runs the full round pipeline: the machine loop, the optional
// archive schedule, and the HTTP/WebSocket API.
func (a *App) AgentMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting agent mode",
		slog.String("agent", deps.Signer.Address().Hex()),
		slog.String("consensus", a.cfg.Consensus.Mode),
	)

	unlock, err := a.acquireAgentLock(ctx, deps)
	if err != nil {
		return err
	}
	defer unlock()

	machine, err := a.buildMachine(deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := machine.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			// The run context is already collapsing, so alert on a fresh one.
			alertCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if nerr := deps.Notifier.NotifyAll(alertCtx, "agent stopped", err.Error()); nerr != nil {
				a.logger.Error("stop alert failed", slog.String("error", nerr.Error()))
			}
		}
		return err
	})

	if a.cfg.Blob.ArchiveEnabled && deps.Archiver != nil {
		a.startArchiveLoop(ctx, g, deps)
	}

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, machine)
	}

	return g.Wait()
}

// ServerMode serves the read-only API over an existing cycle store without
// touching the chain. The HTTP server always runs in this mode; there is
// nothing else to do.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Blob.ArchiveEnabled && deps.Archiver != nil {
		a.startArchiveLoop(ctx, g, deps)
	}

	a.startServer(ctx, g, deps, nil)

	return g.Wait()
}

// acquireAgentLock takes the per-agent-address startup lock so two processes
// cannot submit rounds under the same identity.
func (a *App) acquireAgentLock(ctx context.Context, deps *Dependencies) (func(), error) {
	addr := deps.Signer.Address().Hex()
	unlock, err := deps.LockManager.Acquire(ctx, "agent:"+strings.ToLower(addr), agentLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("app: another process is already running as agent %s", addr)
		}
		return nil, fmt.Errorf("app: acquire agent lock: %w", err)
	}
	return unlock, nil
}

// buildMachine assembles the round pipeline machine from configuration and
// wired dependencies.
func (a *App) buildMachine(deps *Dependencies) (*agent.Machine, error) {
	path, err := domain.ParseTokenPath(a.cfg.Tokens.Path)
	if err != nil {
		return nil, fmt.Errorf("app: token path: %w", err)
	}
	probe, ok := new(big.Int).SetString(strings.TrimSpace(a.cfg.Trade.ProbeAmount), 10)
	if !ok {
		return nil, fmt.Errorf("app: probe amount %q is not an integer", a.cfg.Trade.ProbeAmount)
	}

	machine, err := agent.NewMachine(agent.MachineConfig{
		Params: agent.Params{
			Path:           path,
			Router:         common.HexToAddress(a.cfg.Contracts.Router),
			FlashPair:      common.HexToAddress(a.cfg.Contracts.FlashPair),
			MultiSend:      common.HexToAddress(a.cfg.Contracts.MultiSend),
			Safe:           common.HexToAddress(a.cfg.Contracts.Safe),
			ProbeAmount:    probe,
			ProfitMargin:   a.cfg.Trade.ProfitMargin,
			FlashFeeBps:    a.cfg.Trade.FlashFeeBps,
			SwapDeadline:   a.cfg.Trade.SwapDeadline.Duration,
			SafeTxGas:      big.NewInt(a.cfg.Trade.SafeTxGas),
			AmountDecimals: a.cfg.Trade.AmountDecimals,
			RoundInterval:  a.cfg.Trade.RoundInterval.Duration,
		},
		Quotes:    deps.Quotes,
		Pairs:     deps.Pairs,
		Safes:     deps.Safes,
		Encoder:   deps.Encoder,
		Hasher:    deps.Hasher,
		Substrate: deps.Substrate,
		Signer:    deps.Signer,
		Feed:      deps.Feed,
		Store:     deps.CycleStore,
		Artifacts: deps.Artifacts,
		Alerts:    deps.Notifier,
		Bus:       deps.SignalBus,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("app: build machine: %w", err)
	}
	return machine, nil
}

// startServer adds the HTTP server and WebSocket hub goroutines to the given
// errgroup. machine is nil in server mode; store-backed handlers are only
// registered when Postgres is wired. The server shuts down gracefully when
// the context is cancelled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, machine *agent.Machine) {
	health := handler.NewHealthHandler(a.cfg.App.Name)

	var statusSrc handler.StatusSource
	agentAddr := ""
	if machine != nil {
		statusSrc = machine
		agentAddr = deps.Signer.Address().Hex()
	}
	var statsSrc handler.StatsSource
	if deps.CycleStore != nil {
		statsSrc = deps.CycleStore
	}
	status := handler.NewStatusHandler(a.cfg.App.Mode, statusSrc, statsSrc, a.startedAt, a.logger)

	var cycles *handler.CycleHandler
	if deps.CycleStore != nil {
		cycles = handler.NewCycleHandler(deps.CycleStore, a.logger)
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.App.Mode,
		AgentAddr: agentAddr,
		StartedAt: a.startedAt,
		Origins:   a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Addr:        a.cfg.Server.Addr,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health: health,
		Status: status,
		Cycles: cycles,
	}, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startArchiveLoop periodically copies cycles older than the retention window
// to the blob store. Archive failures are logged and retried on the next
// tick; they never stop the agent.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	interval := a.cfg.Blob.ArchiveInterval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	retention := a.cfg.Blob.RetentionDays

	g.Go(func() error {
		runOnce := func() {
			before := time.Now().UTC().AddDate(0, 0, -retention)
			if _, err := deps.Archiver.ArchiveCycles(ctx, before); err != nil {
				a.logger.ErrorContext(ctx, "cycle archive failed",
					slog.String("error", err.Error()),
				)
			}
		}

		runOnce()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				runOnce()
			}
		}
	})
}
