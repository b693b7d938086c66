package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// QuoteSource answers read-only router quotes for a swap path.
type QuoteSource interface {
	// AmountsOut returns the router's getAmountsOut result: one amount per
	// path entry, index 0 restating amountIn.
	AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
}

// PairSource reads pair contract metadata.
type PairSource interface {
	Token0(ctx context.Context, pair common.Address) (common.Address, error)
}

// SafeSource reads multisig wallet state.
type SafeSource interface {
	Nonce(ctx context.Context, safe common.Address) (*big.Int, error)
}

// CallEncoder produces calldata for every contract call in a bundle. Encoding
// is pure; targets and ordering are the caller's concern.
type CallEncoder interface {
	PairSwap(amount0Out, amount1Out *big.Int, to common.Address, data []byte) ([]byte, error)
	Approve(spender common.Address, amount *big.Int) ([]byte, error)
	Transfer(to common.Address, amount *big.Int) ([]byte, error)
	RouterSwap(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error)
	MultiSend(calls []CallDescriptor) ([]byte, error)
}

// SafeHasher computes the EIP-712 transaction hash a Safe would sign.
// Identical inputs must hash byte-identically on every participant.
type SafeHasher interface {
	TxHash(tx SafeTx) (common.Hash, error)
}
