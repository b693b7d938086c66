package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/safearb/internal/domain"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(uint256 chainId,address verifyingContract)
	safeDomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(uint256 chainId,address verifyingContract)"),
	)

	// SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)
	safeTxTypeHash = ethcrypto.Keccak256(
		[]byte("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"),
	)
)

// SafeABI is the slice of the wallet interface the pipeline reads.
const SafeABI = `[
	{
		"inputs": [],
		"name": "nonce",
		"outputs": [
			{"internalType": "uint256", "name": "", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// Safe reproduces the wallet's transaction hashing and reads its on-chain
// nonce. The domain separator is fixed at construction from the chain id and
// wallet address, so every agent configured identically hashes identically.
type Safe struct {
	caller    Caller
	abi       abi.ABI
	addr      common.Address
	chainID   int64
	domainSep []byte
}

// NewSafe parses the wallet ABI and pre-computes the EIP-712 domain
// separator for the given wallet on the given chain.
func NewSafe(caller Caller, addr common.Address, chainID int64) (*Safe, error) {
	parsed, err := abi.JSON(strings.NewReader(SafeABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse safe ABI: %w", err)
	}

	s := &Safe{
		caller:  caller,
		abi:     parsed,
		addr:    addr,
		chainID: chainID,
	}
	s.domainSep = buildSafeDomainSeparator(chainID, addr)

	return s, nil
}

// TxHash computes the EIP-712 digest the wallet owners would sign for tx.
// Nil big.Int fields hash as zero, matching the wallet's uint256 defaults.
func (s *Safe) TxHash(tx domain.SafeTx) (common.Hash, error) {
	structHash := ethcrypto.Keccak256(
		concatBytes(
			safeTxTypeHash,
			common.LeftPadBytes(tx.To.Bytes(), 32),
			bigIntTo32Bytes(tx.Value),
			ethcrypto.Keccak256(tx.Data),
			bigIntTo32Bytes(big.NewInt(int64(tx.Operation))),
			bigIntTo32Bytes(tx.SafeTxGas),
			bigIntTo32Bytes(tx.BaseGas),
			bigIntTo32Bytes(tx.GasPrice),
			common.LeftPadBytes(tx.GasToken.Bytes(), 32),
			common.LeftPadBytes(tx.RefundReceiver.Bytes(), 32),
			bigIntTo32Bytes(tx.Nonce),
		),
	)

	return common.BytesToHash(eip712Hash(s.domainSep, structHash)), nil
}

// Nonce reads the wallet's current transaction nonce.
func (s *Safe) Nonce(ctx context.Context, safe common.Address) (*big.Int, error) {
	callData, err := s.abi.Pack("nonce")
	if err != nil {
		return nil, fmt.Errorf("chain: pack nonce: %w", err)
	}

	out, err := s.caller.Call(ctx, safe, callData)
	if err != nil {
		return nil, err
	}

	outputs, err := s.abi.Unpack("nonce", out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack nonce: %w", err)
	}
	n, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: nonce returned %T", outputs[0])
	}
	return n, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// buildSafeDomainSeparator returns keccak256(abi.encode(typeHash, chainId, wallet)).
func buildSafeDomainSeparator(chainID int64, safe common.Address) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			safeDomainTypeHash,
			bigIntTo32Bytes(big.NewInt(chainID)),
			common.LeftPadBytes(safe.Bytes(), 32),
		),
	)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n. A nil
// value encodes as zero.
func bigIntTo32Bytes(n *big.Int) []byte {
	if n == nil {
		return make([]byte, 32)
	}
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}

// Compile-time interface checks.
var (
	_ domain.SafeSource = (*Safe)(nil)
	_ domain.SafeHasher = (*Safe)(nil)
)
