package domain

import "context"

// PriceFeed supplies an advisory reference price for the path's first token.
// The value is recorded alongside each cycle and never drives decisions.
type PriceFeed interface {
	RefPrice(ctx context.Context) (float64, error)
}
