package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ERC20ABI covers the two token calls a bundle needs: the router allowance
// and the flash repayment transfer.
const ERC20ABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "spender", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [
			{"internalType": "bool", "name": "", "type": "bool"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "to", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [
			{"internalType": "bool", "name": "", "type": "bool"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// ERC20 is a pure calldata encoder for the token calls; it never talks to
// the chain.
type ERC20 struct {
	abi abi.ABI
}

// NewERC20 parses the token ABI once.
func NewERC20() (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse erc20 ABI: %w", err)
	}
	return &ERC20{abi: parsed}, nil
}

// EncodeApprove encodes approve(spender, amount).
func (e *ERC20) EncodeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := e.abi.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: pack approve: %w", err)
	}
	return data, nil
}

// EncodeTransfer encodes transfer(to, amount).
func (e *ERC20) EncodeTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	data, err := e.abi.Pack("transfer", to, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: pack transfer: %w", err)
	}
	return data, nil
}
