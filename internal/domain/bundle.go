package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Operation selects how the executor contract performs a call.
type Operation uint8

const (
	OperationCall         Operation = 0
	OperationDelegateCall Operation = 1
)

func (o Operation) String() string {
	switch o {
	case OperationCall:
		return "CALL"
	case OperationDelegateCall:
		return "DELEGATE_CALL"
	default:
		return "UNKNOWN"
	}
}

// CallDescriptor is one self-contained call inside a batched bundle. Calls
// reference each other only through their position in the bundle.
type CallDescriptor struct {
	Operation Operation
	To        common.Address
	Value     *big.Int
	Data      []byte
}

// Bundle is the ordered call sequence assembled for one cycle. Order is
// load-bearing: the borrow must precede the approve, swap, and repay, and the
// repay must be last so the flash swap stays solvent within one transaction.
type Bundle struct {
	Calls []CallDescriptor
}

// SafeTx holds the fields hashed into a Safe transaction digest. Two agents
// building a SafeTx from identical inputs must hash to identical bytes.
type SafeTx struct {
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      Operation
	SafeTxGas      *big.Int
	BaseGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Nonce          *big.Int
}
