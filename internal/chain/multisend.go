package chain

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/safearb/internal/domain"
)

// MultiSendABI is the batching contract's single entry point.
const MultiSendABI = `[
	{
		"inputs": [
			{"internalType": "bytes", "name": "transactions", "type": "bytes"}
		],
		"name": "multiSend",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	}
]`

// MultiSend batches ordered call descriptors into one multiSend(bytes)
// payload.
type MultiSend struct {
	abi abi.ABI
}

// NewMultiSend parses the MultiSend ABI once.
func NewMultiSend() (*MultiSend, error) {
	parsed, err := abi.JSON(strings.NewReader(MultiSendABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse multisend ABI: %w", err)
	}
	return &MultiSend{abi: parsed}, nil
}

// Pack concatenates the calls in order using the MultiSend packed layout:
// 1-byte operation, 20-byte target, 32-byte value, 32-byte data length, then
// the data itself. A nil value packs as zero.
func (m *MultiSend) Pack(calls []domain.CallDescriptor) []byte {
	var buf bytes.Buffer
	for _, call := range calls {
		buf.WriteByte(byte(call.Operation))
		buf.Write(call.To.Bytes())

		value := call.Value
		if value == nil {
			value = big.NewInt(0)
		}
		buf.Write(common.LeftPadBytes(value.Bytes(), 32))
		buf.Write(common.LeftPadBytes(big.NewInt(int64(len(call.Data))).Bytes(), 32))
		buf.Write(call.Data)
	}
	return buf.Bytes()
}

// Encode wraps the packed calls in multiSend(bytes) calldata.
func (m *MultiSend) Encode(calls []domain.CallDescriptor) ([]byte, error) {
	data, err := m.abi.Pack("multiSend", m.Pack(calls))
	if err != nil {
		return nil, fmt.Errorf("chain: pack multiSend: %w", err)
	}
	return data, nil
}
