package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/safearb/internal/agent"
	"github.com/alanyoungcy/safearb/internal/domain"
)

// StatusSource exposes the agent machine's current phase snapshot. Nil when
// the process runs in server-only mode.
type StatusSource interface {
	Status() agent.Status
}

// StatsSource aggregates stored cycle history. Nil when Postgres is disabled.
type StatsSource interface {
	Stats(ctx context.Context) (domain.CycleStats, error)
}

// StatusHandler serves the process status: mode, uptime, the live agent
// snapshot, and cycle statistics.
type StatusHandler struct {
	mode      string
	machine   StatusSource
	stats     StatsSource
	startedAt time.Time
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler. machine and stats may be nil;
// the corresponding response sections are omitted.
func NewStatusHandler(mode string, machine StatusSource, stats StatsSource, startedAt time.Time, logger *slog.Logger) *StatusHandler {
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &StatusHandler{
		mode:      mode,
		machine:   machine,
		stats:     stats,
		startedAt: startedAt,
		logger:    logger,
	}
}

// cycleStatsResponse mirrors domain.CycleStats for the wire.
type cycleStatsResponse struct {
	Total          int64      `json:"total"`
	Transacted     int64      `json:"transacted"`
	Done           int64      `json:"done"`
	Failed         int64      `json:"failed"`
	LastCycleAt    *time.Time `json:"last_cycle_at,omitempty"`
	LastTransactTx string     `json:"last_transact_tx,omitempty"`
	BestRatio      float64    `json:"best_ratio"`
	WorstRatio     float64    `json:"worst_ratio"`
}

// statusResponse is the GET /api/status body.
type statusResponse struct {
	Mode          string              `json:"mode"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Agent         *agent.Status       `json:"agent,omitempty"`
	Cycles        *cycleStatsResponse `json:"cycles,omitempty"`
}

// GetStatus responds with the current process mode, the agent machine
// snapshot when running, and aggregate cycle statistics when a store is
// configured.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Mode:          h.mode,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}

	if h.machine != nil {
		st := h.machine.Status()
		resp.Agent = &st
	}

	if h.stats != nil {
		stats, err := h.stats.Stats(r.Context())
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: cycle stats failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to load cycle stats")
			return
		}
		resp.Cycles = &cycleStatsResponse{
			Total:          stats.TotalCycles,
			Transacted:     stats.TransactCycles,
			Done:           stats.DoneCycles,
			Failed:         stats.FailedCycles,
			LastCycleAt:    stats.LastCycleAt,
			LastTransactTx: stats.LastTransactTx,
			BestRatio:      stats.BestRatioSeen,
			WorstRatio:     stats.WorstRatioSeen,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
