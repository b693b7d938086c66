package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/safearb/internal/domain"
)

// RouterABI covers the two router entry points the pipeline uses: the
// read-only multi-hop quote and the swap whose calldata goes into the bundle.
const RouterABI = `[
	{
		"inputs": [
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "address[]", "name": "path", "type": "address[]"}
		],
		"name": "getAmountsOut",
		"outputs": [
			{"internalType": "uint256[]", "name": "amounts", "type": "uint256[]"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "uint256", "name": "amountOutMin", "type": "uint256"},
			{"internalType": "address[]", "name": "path", "type": "address[]"},
			{"internalType": "address", "name": "to", "type": "address"},
			{"internalType": "uint256", "name": "deadline", "type": "uint256"}
		],
		"name": "swapExactTokensForTokens",
		"outputs": [
			{"internalType": "uint256[]", "name": "amounts", "type": "uint256[]"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// Router binds a V2-style router contract.
type Router struct {
	caller Caller
	addr   common.Address
	abi    abi.ABI
}

// NewRouter parses the router ABI once and binds it to the given address.
func NewRouter(caller Caller, addr common.Address) (*Router, error) {
	parsed, err := abi.JSON(strings.NewReader(RouterABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse router ABI: %w", err)
	}
	return &Router{caller: caller, addr: addr, abi: parsed}, nil
}

// AmountsOut quotes amountIn through path via getAmountsOut. The router
// restates the input at index 0, so a successful quote over a 4-entry path
// returns 4 amounts.
func (r *Router) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	callData, err := r.abi.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("chain: pack getAmountsOut: %w", err)
	}

	out, err := r.caller.Call(ctx, r.addr, callData)
	if err != nil {
		return nil, err
	}

	outputs, err := r.abi.Unpack("getAmountsOut", out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack getAmountsOut: %w", err)
	}
	amounts, ok := outputs[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: getAmountsOut returned %T", outputs[0])
	}
	return amounts, nil
}

// EncodeSwap encodes swapExactTokensForTokens calldata for the bundle.
func (r *Router) EncodeSwap(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	data, err := r.abi.Pack("swapExactTokensForTokens", amountIn, amountOutMin, path, to, deadline)
	if err != nil {
		return nil, fmt.Errorf("chain: pack swapExactTokensForTokens: %w", err)
	}
	return data, nil
}

// Compile-time interface check.
var _ domain.QuoteSource = (*Router)(nil)
