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

// PairABI covers the V2 pair surface the pipeline touches: the swap used as
// a flash borrow (non-zero out amount, calldata attached by the caller) and
// the token0 read that decides which side the borrow goes out on.
const PairABI = `[
	{
		"inputs": [
			{"internalType": "uint256", "name": "amount0Out", "type": "uint256"},
			{"internalType": "uint256", "name": "amount1Out", "type": "uint256"},
			{"internalType": "address", "name": "to", "type": "address"},
			{"internalType": "bytes", "name": "data", "type": "bytes"}
		],
		"name": "swap",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "token0",
		"outputs": [
			{"internalType": "address", "name": "", "type": "address"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// Pair binds the V2-style pair contract surface. The binding is not fixed to
// one pair address; reads take the address explicitly.
type Pair struct {
	caller Caller
	abi    abi.ABI
}

// NewPair parses the pair ABI once.
func NewPair(caller Caller) (*Pair, error) {
	parsed, err := abi.JSON(strings.NewReader(PairABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse pair ABI: %w", err)
	}
	return &Pair{caller: caller, abi: parsed}, nil
}

// Token0 reads which token the pair stores as token0.
func (p *Pair) Token0(ctx context.Context, pair common.Address) (common.Address, error) {
	callData, err := p.abi.Pack("token0")
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: pack token0: %w", err)
	}

	out, err := p.caller.Call(ctx, pair, callData)
	if err != nil {
		return common.Address{}, err
	}

	outputs, err := p.abi.Unpack("token0", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: unpack token0: %w", err)
	}
	addr, ok := outputs[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("chain: token0 returned %T", outputs[0])
	}
	return addr, nil
}

// EncodeSwap encodes the pair swap calldata. A flash borrow sets the
// borrowed side's out amount, zero on the other side, and empty data.
func (p *Pair) EncodeSwap(amount0Out, amount1Out *big.Int, to common.Address, data []byte) ([]byte, error) {
	out, err := p.abi.Pack("swap", amount0Out, amount1Out, to, data)
	if err != nil {
		return nil, fmt.Errorf("chain: pack pair swap: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.PairSource = (*Pair)(nil)
