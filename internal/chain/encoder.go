package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/safearb/internal/domain"
)

// Encoder aggregates the per-contract calldata encoders behind the single
// port the assembly phase consumes.
type Encoder struct {
	router    *Router
	pair      *Pair
	erc20     *ERC20
	multisend *MultiSend
}

// NewEncoder builds the aggregate encoder from the individual bindings.
func NewEncoder(router *Router, pair *Pair, erc20 *ERC20, multisend *MultiSend) *Encoder {
	return &Encoder{
		router:    router,
		pair:      pair,
		erc20:     erc20,
		multisend: multisend,
	}
}

func (e *Encoder) PairSwap(amount0Out, amount1Out *big.Int, to common.Address, data []byte) ([]byte, error) {
	return e.pair.EncodeSwap(amount0Out, amount1Out, to, data)
}

func (e *Encoder) Approve(spender common.Address, amount *big.Int) ([]byte, error) {
	return e.erc20.EncodeApprove(spender, amount)
}

func (e *Encoder) Transfer(to common.Address, amount *big.Int) ([]byte, error) {
	return e.erc20.EncodeTransfer(to, amount)
}

func (e *Encoder) RouterSwap(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return e.router.EncodeSwap(amountIn, amountOutMin, path, to, deadline)
}

func (e *Encoder) MultiSend(calls []domain.CallDescriptor) ([]byte, error) {
	return e.multisend.Encode(calls)
}

// Compile-time interface check.
var _ domain.CallEncoder = (*Encoder)(nil)
