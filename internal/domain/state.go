package domain

import (
	"math/big"
	"time"
)

// SyncedState is the committed view of a round after the substrate reports
// quorum. Each phase owns exactly one slice of it: the quote phase writes
// Prices and Amounts, the decision phase writes Event, the preparation phase
// writes TxHash. Later phases read it but never rewrite earlier fields.
type SyncedState struct {
	Round     uint64
	Prices    []float64
	Amounts   []*big.Int
	Event     Event
	TxHash    string
	UpdatedAt time.Time
}

// Merge folds a committed payload body into the state, returning the updated
// copy. Unrelated fields are carried forward untouched.
func (s SyncedState) Merge(p *RoundPayload) SyncedState {
	out := s
	out.Round = p.Round
	out.UpdatedAt = time.Now().UTC()
	switch p.Kind {
	case PayloadQuote:
		out.Prices = p.Quote.Prices
		out.Amounts = p.Quote.Amounts
	case PayloadDecision:
		out.Event = p.Decision.Event
	case PayloadTransaction:
		out.TxHash = p.Transaction.TxHash
	}
	return out
}
