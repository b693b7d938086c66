package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/safearb/internal/domain"
)

// CycleReader defines the queries the cycle handler requires.
type CycleReader interface {
	GetByID(ctx context.Context, id string) (domain.CycleRecord, error)
	ListRecent(ctx context.Context, limit int) ([]domain.CycleRecord, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.CycleRecord, error)
}

// CycleHandler serves the cycle history endpoints.
type CycleHandler struct {
	store  CycleReader
	logger *slog.Logger
}

// NewCycleHandler creates a CycleHandler with the given store and logger.
func NewCycleHandler(store CycleReader, logger *slog.Logger) *CycleHandler {
	return &CycleHandler{store: store, logger: logger}
}

// cycleResponse is the wire form of one cycle record. Amounts are decimal
// strings so precision survives JSON.
type cycleResponse struct {
	ID          string     `json:"id"`
	Cycle       uint64     `json:"cycle"`
	FirstRound  uint64     `json:"first_round"`
	Path        string     `json:"path"`
	Prices      []float64  `json:"prices"`
	Amounts     []string   `json:"amounts"`
	Ratio       float64    `json:"ratio"`
	RefPriceUSD float64    `json:"ref_price_usd,omitempty"`
	Event       string     `json:"event,omitempty"`
	TxHash      string     `json:"tx_hash,omitempty"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func toCycleResponse(rec domain.CycleRecord) cycleResponse {
	amounts := make([]string, 0, len(rec.Amounts))
	for _, a := range rec.Amounts {
		if a == nil {
			amounts = append(amounts, "0")
			continue
		}
		amounts = append(amounts, a.String())
	}
	prices := rec.Prices
	if prices == nil {
		prices = []float64{}
	}
	return cycleResponse{
		ID:          rec.ID,
		Cycle:       rec.Cycle,
		FirstRound:  rec.FirstRound,
		Path:        rec.Path,
		Prices:      prices,
		Amounts:     amounts,
		Ratio:       rec.Ratio,
		RefPriceUSD: rec.RefPriceUSD,
		Event:       string(rec.Event),
		TxHash:      rec.TxHash,
		Status:      string(rec.Status),
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
	}
}

// listCyclesResponse wraps the cycle list response.
type listCyclesResponse struct {
	Cycles []cycleResponse `json:"cycles"`
}

// ListCycles returns stored cycles, newest first. Plain calls hit the recent
// view; since/until switch to the time-ranged query.
// GET /api/cycles?limit=50&since=2025-01-01&until=2025-02-01
func (h *CycleHandler) ListCycles(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		recs []domain.CycleRecord
		err  error
	)
	if opts.Since != nil || opts.Until != nil || opts.Offset > 0 {
		recs, err = h.store.List(r.Context(), opts)
	} else {
		recs, err = h.store.ListRecent(r.Context(), opts.Limit)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list cycles failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list cycles")
		return
	}

	out := make([]cycleResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toCycleResponse(rec))
	}
	writeJSON(w, http.StatusOK, listCyclesResponse{Cycles: out})
}

// GetCycle returns a single cycle by id.
// GET /api/cycles/{id}
func (h *CycleHandler) GetCycle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing cycle id")
		return
	}

	rec, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "cycle not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get cycle failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get cycle")
		return
	}
	writeJSON(w, http.StatusOK, toCycleResponse(rec))
}
