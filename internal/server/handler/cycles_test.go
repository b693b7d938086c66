package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/safearb/internal/agent"
	"github.com/alanyoungcy/safearb/internal/domain"
)

type stubCycleReader struct {
	recs       []domain.CycleRecord
	byID       map[string]domain.CycleRecord
	lastOpts   *domain.ListOpts
	recentCall bool
}

func (s *stubCycleReader) GetByID(_ context.Context, id string) (domain.CycleRecord, error) {
	rec, ok := s.byID[id]
	if !ok {
		return domain.CycleRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *stubCycleReader) ListRecent(_ context.Context, limit int) ([]domain.CycleRecord, error) {
	s.recentCall = true
	if limit < len(s.recs) {
		return s.recs[:limit], nil
	}
	return s.recs, nil
}

func (s *stubCycleReader) List(_ context.Context, opts domain.ListOpts) ([]domain.CycleRecord, error) {
	s.lastOpts = &opts
	return s.recs, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRecord() domain.CycleRecord {
	completed := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
	return domain.CycleRecord{
		ID:          "rec-1",
		Cycle:       7,
		FirstRound:  13,
		Path:        "WETH-USDC-DAI",
		Prices:      []float64{0.0005, 1200, 1.75},
		Amounts:     []*big.Int{big.NewInt(100000000), big.NewInt(50000), big.NewInt(60000000), big.NewInt(106000000)},
		Ratio:       1.06,
		RefPriceUSD: 1820.5,
		Event:       domain.EventTransact,
		TxHash:      "0xfeed",
		Status:      domain.CycleTransacted,
		StartedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		CompletedAt: &completed,
	}
}

func TestListCyclesRecent(t *testing.T) {
	store := &stubCycleReader{recs: []domain.CycleRecord{sampleRecord()}}
	h := NewCycleHandler(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/cycles?limit=10", nil)
	rr := httptest.NewRecorder()
	h.ListCycles(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !store.recentCall {
		t.Fatal("plain list did not use the recent query")
	}

	var resp struct {
		Cycles []struct {
			ID      string   `json:"id"`
			Cycle   uint64   `json:"cycle"`
			Amounts []string `json:"amounts"`
			Ratio   float64  `json:"ratio"`
			Status  string   `json:"status"`
		} `json:"cycles"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Cycles) != 1 {
		t.Fatalf("got %d cycles, want 1", len(resp.Cycles))
	}
	got := resp.Cycles[0]
	if got.ID != "rec-1" || got.Cycle != 7 || got.Status != "transacted" {
		t.Fatalf("cycle = %+v", got)
	}
	if len(got.Amounts) != 4 || got.Amounts[3] != "106000000" {
		t.Fatalf("amounts = %v", got.Amounts)
	}
	if got.Ratio != 1.06 {
		t.Fatalf("ratio = %v, want 1.06", got.Ratio)
	}
}

func TestListCyclesTimeRange(t *testing.T) {
	store := &stubCycleReader{}
	h := NewCycleHandler(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/cycles?since=2025-06-01&limit=5", nil)
	rr := httptest.NewRecorder()
	h.ListCycles(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if store.lastOpts == nil {
		t.Fatal("since param did not switch to the ranged query")
	}
	if store.lastOpts.Since == nil || !store.lastOpts.Since.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("opts.Since = %v", store.lastOpts.Since)
	}
	if store.lastOpts.Limit != 5 {
		t.Fatalf("opts.Limit = %d, want 5", store.lastOpts.Limit)
	}
}

func TestGetCycle(t *testing.T) {
	rec := sampleRecord()
	store := &stubCycleReader{byID: map[string]domain.CycleRecord{rec.ID: rec}}
	h := NewCycleHandler(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/cycles/rec-1", nil)
	req.SetPathValue("id", "rec-1")
	rr := httptest.NewRecorder()
	h.GetCycle(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var got struct {
		ID     string `json:"id"`
		TxHash string `json:"tx_hash"`
		Event  string `json:"event"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != "rec-1" || got.TxHash != "0xfeed" || got.Event != string(domain.EventTransact) {
		t.Fatalf("cycle = %+v", got)
	}
}

func TestGetCycleNotFound(t *testing.T) {
	store := &stubCycleReader{byID: map[string]domain.CycleRecord{}}
	h := NewCycleHandler(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/cycles/nope", nil)
	req.SetPathValue("id", "nope")
	rr := httptest.NewRecorder()
	h.GetCycle(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

type stubStatusSource struct{ st agent.Status }

func (s stubStatusSource) Status() agent.Status { return s.st }

type stubStatsSource struct{ stats domain.CycleStats }

func (s stubStatsSource) Stats(context.Context) (domain.CycleStats, error) { return s.stats, nil }

func TestGetStatus(t *testing.T) {
	machine := stubStatusSource{st: agent.Status{
		Agent: "0xabc",
		State: "idle",
		Cycle: 3,
		Round: 9,
		Path:  "WETH-USDC-DAI",
	}}
	stats := stubStatsSource{stats: domain.CycleStats{
		TotalCycles:    3,
		TransactCycles: 1,
		DoneCycles:     2,
		BestRatioSeen:  1.06,
	}}
	h := NewStatusHandler("agent", machine, stats, time.Now().Add(-time.Minute), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rr := httptest.NewRecorder()
	h.GetStatus(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp struct {
		Mode          string `json:"mode"`
		UptimeSeconds int64  `json:"uptime_seconds"`
		Agent         *struct {
			Agent string `json:"agent"`
			Cycle uint64 `json:"cycle"`
		} `json:"agent"`
		Cycles *struct {
			Total      int64   `json:"total"`
			Transacted int64   `json:"transacted"`
			BestRatio  float64 `json:"best_ratio"`
		} `json:"cycles"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Mode != "agent" {
		t.Fatalf("mode = %q", resp.Mode)
	}
	if resp.UptimeSeconds < 59 {
		t.Fatalf("uptime = %d, want >= 59", resp.UptimeSeconds)
	}
	if resp.Agent == nil || resp.Agent.Agent != "0xabc" || resp.Agent.Cycle != 3 {
		t.Fatalf("agent section = %+v", resp.Agent)
	}
	if resp.Cycles == nil || resp.Cycles.Total != 3 || resp.Cycles.Transacted != 1 || resp.Cycles.BestRatio != 1.06 {
		t.Fatalf("cycles section = %+v", resp.Cycles)
	}
}

func TestGetStatusServerMode(t *testing.T) {
	h := NewStatusHandler("server", nil, nil, time.Now(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rr := httptest.NewRecorder()
	h.GetStatus(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := resp["agent"]; ok {
		t.Fatal("agent section present without a machine")
	}
	if _, ok := resp["cycles"]; ok {
		t.Fatal("cycles section present without a store")
	}
}
