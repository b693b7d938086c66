package agent

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/safearb/internal/domain"
)

// stateDecision maps the committed quote to DONE or TRANSACT and submits the
// verdict. The transition keys off the committed event, not the local one, so
// a split agent set converges on whatever the quorum decided.
func (m *Machine) stateDecision(ctx context.Context, cy *cycleContext) (State, bool, error) {
	m.setPhase(StateDecision, cy)

	cy.event = Decide(cy.synced.Amounts, m.params.ProfitMargin, m.params.AmountDecimals)

	p := m.newPayload(domain.PayloadDecision)
	p.Decision = &domain.DecisionBody{Event: cy.event}

	st, ok, err := m.submitAndAwait(ctx, p)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		m.finalizeCycle(ctx, cy, domain.CycleFailed)
		return 0, true, nil
	}
	cy.synced = st
	cy.event = st.Event

	m.logger.Info("decision committed",
		slog.Uint64("round", st.Round),
		slog.Uint64("cycle", cy.cycle),
		slog.String("event", st.Event.String()),
		slog.Float64("ratio", Ratio(st.Amounts, m.params.AmountDecimals)),
	)
	m.publishEvent(ctx, EventDecisionCommitted, cy)

	if st.Event == domain.EventTransact {
		return StateTxPreparation, false, nil
	}
	m.finalizeCycle(ctx, cy, domain.CycleDone)
	return 0, true, nil
}

// Decide maps quote amounts to the cycle event. The round trip is worth
// trading only when the returned amount exceeds the probe by strictly more
// than the margin; exactly on the margin is DONE, since fees and slippage
// eat boundary trades.
func Decide(amounts []*big.Int, margin float64, decimals int) domain.Event {
	if len(amounts) != domain.QuoteAmountLen {
		return domain.EventDone
	}
	first := amounts[0]
	last := amounts[len(amounts)-1]
	if first == nil || last == nil || first.Sign() <= 0 {
		return domain.EventDone
	}

	exp := -int32(decimals)
	in := decimal.NewFromBigInt(first, exp)
	out := decimal.NewFromBigInt(last, exp)
	threshold := decimal.NewFromInt(1).Add(decimal.NewFromFloat(margin))
	if out.Div(in).GreaterThan(threshold) {
		return domain.EventTransact
	}
	return domain.EventDone
}

// Ratio is the round-trip return implied by the amounts, or 0 when it cannot
// be computed. 1.0 means break-even before fees.
func Ratio(amounts []*big.Int, decimals int) float64 {
	if len(amounts) != domain.QuoteAmountLen {
		return 0
	}
	first := amounts[0]
	last := amounts[len(amounts)-1]
	if first == nil || last == nil || first.Sign() <= 0 {
		return 0
	}
	exp := -int32(decimals)
	in := decimal.NewFromBigInt(first, exp)
	out := decimal.NewFromBigInt(last, exp)
	r, _ := out.Div(in).Float64()
	return r
}
