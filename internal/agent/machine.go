// Package agent drives one participant of the round pipeline. A Machine
// loops through four states per cycle: quote the token round trip, decide
// whether it clears the profit margin, assemble and hash the flash-swap
// bundle, and commit the outcome. Each state submits its local result to the
// consensus substrate and transitions on the committed round state, so
// well-behaved participants walk through identical transitions even when
// their local views briefly disagree.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/safearb/internal/crypto"
	"github.com/alanyoungcy/safearb/internal/domain"
)

const (
	defaultProfitMargin   = 0.05
	defaultFlashFeeBps    = 30
	defaultAmountDecimals = 18
	defaultSwapDeadline   = 2 * time.Minute
	defaultRoundInterval  = 5 * time.Second

	// EventsChannel is the signal bus channel cycle events are published on.
	EventsChannel = "cycles"
)

// Params is the read-only trade configuration a Machine runs with. Every
// participant in an agent set must be launched with identical Params or the
// rounds will never reach quorum.
type Params struct {
	Path      domain.TokenPath
	Router    common.Address
	FlashPair common.Address
	MultiSend common.Address
	Safe      common.Address

	ProbeAmount    *big.Int
	ProfitMargin   float64
	FlashFeeBps    int64
	SwapDeadline   time.Duration
	SafeTxGas      *big.Int
	AmountDecimals int
	RoundInterval  time.Duration
}

// The machine declares the narrow slices it needs from the wider store,
// blob, and notification services so callers can hand it the full client or
// a minimal shim interchangeably.

// Alerter is the slice of the notifier the machine uses.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// CycleSink is the slice of the cycle store the machine writes to.
type CycleSink interface {
	Save(ctx context.Context, rec domain.CycleRecord) error
}

// ArtifactSink is the slice of the artifact store the machine writes to.
type ArtifactSink interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// EventPublisher is the slice of the signal bus the machine publishes on.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// MachineConfig wires a Machine's collaborators. Quotes, Encoder, Hasher,
// Pairs, Safes, Substrate, and Signer are required; the rest degrade to
// no-ops when nil.
type MachineConfig struct {
	Params    Params
	Quotes    domain.QuoteSource
	Pairs     domain.PairSource
	Safes     domain.SafeSource
	Encoder   domain.CallEncoder
	Hasher    domain.SafeHasher
	Substrate domain.Substrate
	Signer    *crypto.Signer
	Feed      domain.PriceFeed
	Store     CycleSink
	Artifacts ArtifactSink
	Alerts    Alerter
	Bus       EventPublisher
	Logger    *slog.Logger
}

// Status is a point-in-time view of the machine for the status API.
type Status struct {
	Agent        string    `json:"agent"`
	State        string    `json:"state"`
	Cycle        uint64    `json:"cycle"`
	Round        uint64    `json:"round"`
	Path         string    `json:"path"`
	LastEvent    string    `json:"last_event,omitempty"`
	LastTxHash   string    `json:"last_tx_hash,omitempty"`
	LastRefPrice float64   `json:"last_ref_price,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CycleEvent is the JSON frame published on the signal bus after notable
// transitions. The WebSocket hub relays it verbatim to subscribers.
type CycleEvent struct {
	Type     string    `json:"type"`
	Cycle    uint64    `json:"cycle"`
	Round    uint64    `json:"round"`
	Path     string    `json:"path"`
	Event    string    `json:"event,omitempty"`
	TxHash   string    `json:"tx_hash,omitempty"`
	Ratio    float64   `json:"ratio,omitempty"`
	RefPrice float64   `json:"ref_price,omitempty"`
	At       time.Time `json:"at"`
}

// Event types carried in CycleEvent.Type.
const (
	EventQuoteCommitted    = "quote_committed"
	EventDecisionCommitted = "decision_committed"
	EventHashProposed      = "hash_proposed"
	EventCycleCompleted    = "cycle_completed"
)

type stateFn func(ctx context.Context, cy *cycleContext) (next State, done bool, err error)

// Machine runs the cycle pipeline for a single agent identity.
type Machine struct {
	params    Params
	quotes    domain.QuoteSource
	assembler *Assembler
	substrate domain.Substrate
	signer    *crypto.Signer
	feed      domain.PriceFeed
	store     CycleSink
	artifacts ArtifactSink
	alerts    Alerter
	bus       EventPublisher
	logger    *slog.Logger

	handlers map[State]stateFn

	// round and cycle are touched only by the Run goroutine.
	round uint64
	cycle uint64

	mu     sync.RWMutex
	status Status
}

// NewMachine validates the wiring and returns a ready Machine. Zero Params
// fields fall back to the package defaults.
func NewMachine(cfg MachineConfig) (*Machine, error) {
	switch {
	case len(cfg.Params.Path) != domain.TokenPathLen:
		return nil, fmt.Errorf("agent: token path has %d entries, want %d", len(cfg.Params.Path), domain.TokenPathLen)
	case cfg.Quotes == nil:
		return nil, errors.New("agent: quote source is required")
	case cfg.Pairs == nil:
		return nil, errors.New("agent: pair source is required")
	case cfg.Safes == nil:
		return nil, errors.New("agent: safe source is required")
	case cfg.Encoder == nil:
		return nil, errors.New("agent: call encoder is required")
	case cfg.Hasher == nil:
		return nil, errors.New("agent: safe hasher is required")
	case cfg.Substrate == nil:
		return nil, errors.New("agent: substrate is required")
	case cfg.Signer == nil:
		return nil, errors.New("agent: signer is required")
	}

	p := cfg.Params
	if p.ProbeAmount == nil || p.ProbeAmount.Sign() <= 0 {
		p.ProbeAmount = DefaultProbeAmount()
	}
	if p.ProfitMargin <= 0 {
		p.ProfitMargin = defaultProfitMargin
	}
	if p.FlashFeeBps <= 0 {
		p.FlashFeeBps = defaultFlashFeeBps
	}
	if p.AmountDecimals <= 0 {
		p.AmountDecimals = defaultAmountDecimals
	}
	if p.SwapDeadline <= 0 {
		p.SwapDeadline = defaultSwapDeadline
	}
	if p.RoundInterval <= 0 {
		p.RoundInterval = defaultRoundInterval
	}
	if p.SafeTxGas == nil {
		p.SafeTxGas = big.NewInt(0)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Machine{
		params:    p,
		quotes:    cfg.Quotes,
		assembler: NewAssembler(p, cfg.Pairs, cfg.Safes, cfg.Encoder, cfg.Hasher),
		substrate: cfg.Substrate,
		signer:    cfg.Signer,
		feed:      cfg.Feed,
		store:     cfg.Store,
		artifacts: cfg.Artifacts,
		alerts:    cfg.Alerts,
		bus:       cfg.Bus,
		logger:    logger.With(slog.String("component", "agent")),
		status: Status{
			Agent:     cfg.Signer.Address().Hex(),
			State:     "idle",
			Path:      p.Path.String(),
			UpdatedAt: time.Now().UTC(),
		},
	}
	m.handlers = map[State]stateFn{
		StateQuoteCheck:      m.stateQuoteCheck,
		StateDecision:        m.stateDecision,
		StateTxPreparation:   m.stateTxPreparation,
		StateConsensusCommit: m.stateConsensusCommit,
	}
	return m, nil
}

// DefaultProbeAmount is the quote probe used when none is configured:
// 10 whole tokens at 18 decimals.
func DefaultProbeAmount() *big.Int {
	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(10), one)
}

// Run executes cycles until the context is cancelled. Soft failures (no
// usable quote, a timed-out or split round) complete the cycle and move on;
// only invariant violations and shutdown stop the loop.
func (m *Machine) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "machine started",
		slog.String("agent", m.signer.Address().Hex()),
		slog.String("path", m.params.Path.String()),
		slog.String("probe", m.params.ProbeAmount.String()),
	)
	for {
		if err := m.runCycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				m.logger.Info("machine stopped")
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			m.logger.Info("machine stopped")
			return nil
		case <-time.After(m.params.RoundInterval):
		}
	}
}

// RunOnce executes exactly one cycle. It backs the one-shot CLI mode and is
// the unit the tests drive.
func (m *Machine) RunOnce(ctx context.Context) error {
	return m.runCycle(ctx)
}

func (m *Machine) runCycle(ctx context.Context) error {
	m.cycle++
	cy := &cycleContext{cycle: m.cycle, startedAt: time.Now().UTC()}
	state := StateQuoteCheck
	for {
		handler, ok := m.handlers[state]
		if !ok {
			return fmt.Errorf("agent: no handler for state %d", state)
		}
		next, done, err := handler(ctx, cy)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		state = next
	}
}

// Status returns a copy of the machine's current public state.
func (m *Machine) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Machine) setPhase(s State, cy *cycleContext) {
	m.mu.Lock()
	m.status.State = s.String()
	m.status.Cycle = cy.cycle
	m.status.Round = m.round
	m.status.UpdatedAt = time.Now().UTC()
	m.mu.Unlock()
	m.logger.Debug("state entered",
		slog.String("state", s.String()),
		slog.Uint64("cycle", cy.cycle),
	)
}

// nextRound allocates the substrate round number for the next submission.
func (m *Machine) nextRound() uint64 {
	m.round++
	m.mu.Lock()
	m.status.Round = m.round
	m.mu.Unlock()
	return m.round
}

func (m *Machine) newPayload(kind domain.PayloadKind) *domain.RoundPayload {
	return &domain.RoundPayload{
		Version: domain.PayloadVersion,
		Kind:    kind,
		Round:   m.nextRound(),
		ID:      uuid.NewString(),
		SentAt:  time.Now().UTC(),
	}
}

// submitAndAwait signs and submits a payload, then blocks until the substrate
// commits the round. The second return is false on soft round failures
// (timeout, no quorum, transport trouble); those finish the cycle as failed
// but keep the machine running. Signing errors and cancellation are hard.
func (m *Machine) submitAndAwait(ctx context.Context, p *domain.RoundPayload) (domain.SyncedState, bool, error) {
	if err := m.signer.SignPayload(p); err != nil {
		return domain.SyncedState{}, false, fmt.Errorf("agent: sign round %d: %w", p.Round, err)
	}
	if err := m.substrate.SubmitPayload(ctx, p); err != nil {
		if ctx.Err() != nil {
			return domain.SyncedState{}, false, ctx.Err()
		}
		m.logger.Warn("round submission failed",
			slog.Uint64("round", p.Round),
			slog.String("kind", string(p.Kind)),
			slog.String("error", err.Error()),
		)
		return domain.SyncedState{}, false, nil
	}
	st, err := m.substrate.AwaitRoundEnd(ctx, p.Round)
	if err != nil {
		if ctx.Err() != nil {
			return domain.SyncedState{}, false, ctx.Err()
		}
		m.logger.Warn("round did not commit",
			slog.Uint64("round", p.Round),
			slog.String("kind", string(p.Kind)),
			slog.String("error", err.Error()),
		)
		return domain.SyncedState{}, false, nil
	}
	return st, true, nil
}
