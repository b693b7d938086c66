package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/alanyoungcy/safearb/internal/domain"
)

// Notification event types; the notify.events config list filters on these.
const (
	AlertTransact     = "transact"
	AlertRoundFailure = "round_failure"
)

// stateConsensusCommit closes a TRANSACT cycle: the committed hash is handed
// off for signature collection, the bundle artifact is archived, and the
// cycle record is persisted. An empty committed hash means every assembling
// agent aborted, so the cycle closes as failed with nothing to sign.
func (m *Machine) stateConsensusCommit(ctx context.Context, cy *cycleContext) (State, bool, error) {
	m.setPhase(StateConsensusCommit, cy)

	if cy.synced.TxHash == "" {
		m.logger.Warn("empty transaction hash committed, nothing to sign",
			slog.Uint64("cycle", cy.cycle),
		)
		m.finalizeCycle(ctx, cy, domain.CycleFailed)
		return 0, true, nil
	}

	m.logger.Info("transaction hash proposed for sign-off",
		slog.Uint64("cycle", cy.cycle),
		slog.String("tx_hash", cy.synced.TxHash),
		slog.String("safe", m.params.Safe.Hex()),
	)
	m.publishEvent(ctx, EventHashProposed, cy)
	m.archiveBundle(ctx, cy)
	m.alertTransact(ctx, cy)
	m.finalizeCycle(ctx, cy, domain.CycleTransacted)
	return 0, true, nil
}

// finalizeCycle persists the cycle record and publishes the terminal event.
// Persistence trouble is logged and swallowed; losing one row must not stop
// the pipeline.
func (m *Machine) finalizeCycle(ctx context.Context, cy *cycleContext, status domain.CycleStatus) {
	now := time.Now().UTC()
	rec := domain.CycleRecord{
		ID:          uuid.NewString(),
		Cycle:       cy.cycle,
		FirstRound:  cy.firstRound,
		Path:        m.params.Path.String(),
		Prices:      cy.synced.Prices,
		Amounts:     cy.synced.Amounts,
		Ratio:       Ratio(cy.synced.Amounts, m.params.AmountDecimals),
		RefPriceUSD: cy.refPrice,
		Event:       cy.synced.Event,
		TxHash:      cy.synced.TxHash,
		Status:      status,
		StartedAt:   cy.startedAt,
		CompletedAt: &now,
	}
	if m.store != nil {
		if err := m.store.Save(ctx, rec); err != nil {
			m.logger.Error("cycle record save failed",
				slog.Uint64("cycle", cy.cycle),
				slog.String("error", err.Error()),
			)
		}
	}

	m.mu.Lock()
	m.status.State = "idle"
	m.status.LastEvent = string(rec.Event)
	m.status.LastTxHash = rec.TxHash
	m.status.LastRefPrice = rec.RefPriceUSD
	m.status.UpdatedAt = now
	m.mu.Unlock()

	if status == domain.CycleFailed && m.alerts != nil {
		msg := fmt.Sprintf("Path: %s\nCycle: %d\nFirst round: %d",
			rec.Path, rec.Cycle, rec.FirstRound)
		if err := m.alerts.Notify(ctx, AlertRoundFailure, "Cycle failed", msg); err != nil {
			m.logger.Warn("failure alert not delivered", slog.String("error", err.Error()))
		}
	}

	m.publishEvent(ctx, EventCycleCompleted, cy)
	m.logger.Info("cycle completed",
		slog.Uint64("cycle", cy.cycle),
		slog.String("status", string(status)),
		slog.String("event", rec.Event.String()),
		slog.Float64("ratio", rec.Ratio),
	)
}

// bundleArtifact is the JSON document archived for each proposed bundle.
type bundleArtifact struct {
	Cycle     uint64       `json:"cycle"`
	Round     uint64       `json:"round"`
	Path      string       `json:"path"`
	TxHash    string       `json:"tx_hash"`
	OwnTxHash string       `json:"own_tx_hash"`
	MultiSend string       `json:"multisend_data"`
	Calls     []bundleCall `json:"calls"`
	CreatedAt time.Time    `json:"created_at"`
}

type bundleCall struct {
	Operation string `json:"operation"`
	To        string `json:"to"`
	Value     string `json:"value"`
	Data      string `json:"data"`
}

// archiveBundle writes the locally assembled bundle to the artifact store so
// the calldata behind a proposed hash can be audited later. Skipped when the
// local assembly aborted; the committed hash is still in the cycle record.
func (m *Machine) archiveBundle(ctx context.Context, cy *cycleContext) {
	if m.artifacts == nil || len(cy.bundle.Calls) == 0 {
		return
	}

	art := bundleArtifact{
		Cycle:     cy.cycle,
		Round:     cy.synced.Round,
		Path:      m.params.Path.String(),
		TxHash:    cy.synced.TxHash,
		OwnTxHash: cy.ownTxHash,
		MultiSend: hexutil.Encode(cy.multisendData),
		CreatedAt: time.Now().UTC(),
	}
	for _, c := range cy.bundle.Calls {
		value := "0"
		if c.Value != nil {
			value = c.Value.String()
		}
		art.Calls = append(art.Calls, bundleCall{
			Operation: c.Operation.String(),
			To:        c.To.Hex(),
			Value:     value,
			Data:      hexutil.Encode(c.Data),
		})
	}

	buf, err := json.Marshal(art)
	if err != nil {
		m.logger.Error("bundle artifact marshal failed", slog.String("error", err.Error()))
		return
	}
	key := fmt.Sprintf("bundles/%s/cycle-%06d.json", time.Now().UTC().Format("2006/01/02"), cy.cycle)
	if err := m.artifacts.Put(ctx, key, bytes.NewReader(buf), "application/json"); err != nil {
		m.logger.Error("bundle artifact upload failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	m.logger.Debug("bundle artifact archived", slog.String("key", key))
}

func (m *Machine) alertTransact(ctx context.Context, cy *cycleContext) {
	if m.alerts == nil {
		return
	}
	msg := fmt.Sprintf("Path: %s\nRatio: %.4f\nSafe: %s\nTx hash: %s",
		m.params.Path.String(),
		Ratio(cy.synced.Amounts, m.params.AmountDecimals),
		m.params.Safe.Hex(),
		cy.synced.TxHash,
	)
	if err := m.alerts.Notify(ctx, AlertTransact, "Safe transaction proposed", msg); err != nil {
		m.logger.Warn("transact alert not delivered", slog.String("error", err.Error()))
	}
}

func (m *Machine) publishEvent(ctx context.Context, typ string, cy *cycleContext) {
	if m.bus == nil {
		return
	}
	ev := CycleEvent{
		Type:     typ,
		Cycle:    cy.cycle,
		Round:    m.round,
		Path:     m.params.Path.String(),
		Event:    string(cy.synced.Event),
		TxHash:   cy.synced.TxHash,
		Ratio:    Ratio(cy.synced.Amounts, m.params.AmountDecimals),
		RefPrice: cy.refPrice,
		At:       time.Now().UTC(),
	}
	buf, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := m.bus.Publish(ctx, EventsChannel, buf); err != nil {
		m.logger.Warn("cycle event publish failed",
			slog.String("type", typ),
			slog.String("error", err.Error()),
		)
	}
}
