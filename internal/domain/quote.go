package domain

import "math/big"

const (
	// QuotePriceLen is the number of per-hop rates in a usable quote.
	QuotePriceLen = 3
	// QuoteAmountLen is the number of amounts in a usable quote: the probe
	// amount restated at index 0 plus the three hop outputs.
	QuoteAmountLen = 4
)

// QuoteResult carries one round's quote over the full token round trip.
// Either both sequences have their fixed lengths (3 prices, 4 amounts) or
// both are empty; an empty result means no usable quote this round and is
// never an error.
type QuoteResult struct {
	Prices  []float64
	Amounts []*big.Int
}

// EmptyQuote is the soft-failure result returned when the quote call errors,
// reverts, or reports a non-positive hop amount.
func EmptyQuote() QuoteResult {
	return QuoteResult{Prices: []float64{}, Amounts: []*big.Int{}}
}

// IsEmpty reports whether the quote carries no usable data.
func (q QuoteResult) IsEmpty() bool {
	return len(q.Prices) == 0 || len(q.Amounts) == 0
}

// Valid reports whether the quote has the fixed usable lengths.
func (q QuoteResult) Valid() bool {
	return len(q.Prices) == QuotePriceLen && len(q.Amounts) == QuoteAmountLen
}
