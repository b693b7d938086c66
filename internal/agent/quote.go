package agent

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/safearb/internal/domain"
)

// stateQuoteCheck probes the round trip, derives the per-hop prices, and
// submits the quote for round agreement. A failed probe is not an error; it
// submits the empty quote so the round still commits and the decision phase
// lands on DONE.
func (m *Machine) stateQuoteCheck(ctx context.Context, cy *cycleContext) (State, bool, error) {
	m.setPhase(StateQuoteCheck, cy)

	cy.quote = m.fetchQuote(ctx)
	cy.refPrice = m.fetchRefPrice(ctx)

	p := m.newPayload(domain.PayloadQuote)
	p.Quote = &domain.QuoteBody{Prices: cy.quote.Prices, Amounts: cy.quote.Amounts}
	cy.firstRound = p.Round

	st, ok, err := m.submitAndAwait(ctx, p)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		m.finalizeCycle(ctx, cy, domain.CycleFailed)
		return 0, true, nil
	}
	cy.synced = st

	m.logger.Info("quote committed",
		slog.Uint64("round", st.Round),
		slog.Uint64("cycle", cy.cycle),
		slog.Int("amounts", len(st.Amounts)),
		slog.Any("prices", st.Prices),
	)
	m.publishEvent(ctx, EventQuoteCommitted, cy)
	return StateDecision, false, nil
}

// fetchQuote returns the probe quote, or the empty quote when the call
// errors or any hop amount is non-positive.
func (m *Machine) fetchQuote(ctx context.Context) domain.QuoteResult {
	amounts, err := m.quotes.AmountsOut(ctx, m.params.ProbeAmount, m.params.Path.RoundTrip())
	if err != nil {
		m.logger.Warn("quote probe failed",
			slog.String("path", m.params.Path.String()),
			slog.String("error", err.Error()),
		)
		return domain.EmptyQuote()
	}
	if !usableAmounts(amounts) {
		m.logger.Warn("quote probe returned unusable amounts",
			slog.Int("count", len(amounts)),
		)
		return domain.EmptyQuote()
	}
	return domain.QuoteResult{Prices: HopPrices(amounts), Amounts: amounts}
}

// fetchRefPrice reads the external reference price. It is informational only;
// a feed failure never blocks the cycle.
func (m *Machine) fetchRefPrice(ctx context.Context) float64 {
	if m.feed == nil {
		return 0
	}
	price, err := m.feed.RefPrice(ctx)
	if err != nil {
		m.logger.Warn("reference price unavailable", slog.String("error", err.Error()))
		return 0
	}
	return price
}

func usableAmounts(amounts []*big.Int) bool {
	if len(amounts) < domain.QuoteAmountLen {
		return false
	}
	for _, a := range amounts {
		if a == nil || a.Sign() <= 0 {
			return false
		}
	}
	return true
}

// HopPrices computes the marginal rate of each hop from the quoted amounts:
// price[i] = amounts[i+1] / amounts[i]. Four amounts yield the three per-hop
// rates a quote carries.
func HopPrices(amounts []*big.Int) []float64 {
	if len(amounts) < 2 {
		return []float64{}
	}
	prices := make([]float64, 0, len(amounts)-1)
	for i := 0; i < len(amounts)-1; i++ {
		in := decimal.NewFromBigInt(amounts[i], 0)
		if in.IsZero() {
			return []float64{}
		}
		out := decimal.NewFromBigInt(amounts[i+1], 0)
		p, _ := out.Div(in).Float64()
		prices = append(prices, p)
	}
	return prices
}
