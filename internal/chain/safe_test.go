package chain_test

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/safearb/internal/chain"
	"github.com/alanyoungcy/safearb/internal/domain"
)

// The canonical Safe v1.3 type strings must hash to the constants deployed
// on-chain, otherwise every hash this package produces is unsignable.
func TestSafeTypeHashConstants(t *testing.T) {
	domainHash := ethcrypto.Keccak256([]byte("EIP712Domain(uint256 chainId,address verifyingContract)"))
	if got := hex.EncodeToString(domainHash); got != "47e79534a245952e8b16893a336b85a3d9ea9fa8c573f3d803afb92a79469218" {
		t.Errorf("domain type hash = %s", got)
	}

	txHash := ethcrypto.Keccak256([]byte("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"))
	if got := hex.EncodeToString(txHash); got != "bb8310d486368db6bd6f849402fdd73ad53d316b5a4b2644ad6efe0f941286d8" {
		t.Errorf("safe tx type hash = %s", got)
	}
}

func baseSafeTx() domain.SafeTx {
	return domain.SafeTx{
		To:        common.HexToAddress("0xdddd00000000000000000000000000000000dddd"),
		Value:     big.NewInt(0),
		Data:      []byte{0x8d, 0x80, 0xff, 0x0a, 0x01},
		Operation: domain.OperationDelegateCall,
		SafeTxGas: big.NewInt(0),
		Nonce:     big.NewInt(7),
	}
}

func TestSafeTxHashDeterministic(t *testing.T) {
	safe, err := chain.NewSafe(&stubCaller{}, safeAddr, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, err := safe.TxHash(baseSafeTx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := safe.TxHash(baseSafeTx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Errorf("identical inputs must hash identically: %s vs %s", a.Hex(), b.Hex())
	}
	if a == (common.Hash{}) {
		t.Error("hash must not be zero")
	}

	// A second binding with the same wallet and chain agrees.
	safe2, err := chain.NewSafe(&stubCaller{}, safeAddr, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, err := safe2.TxHash(baseSafeTx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != c {
		t.Error("independent instances must agree on the hash")
	}
}

func TestSafeTxHashFieldSensitivity(t *testing.T) {
	safe, err := chain.NewSafe(&stubCaller{}, safeAddr, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	base, err := safe.TxHash(baseSafeTx())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*domain.SafeTx)
	}{
		{"to", func(tx *domain.SafeTx) { tx.To = routerAddr }},
		{"value", func(tx *domain.SafeTx) { tx.Value = big.NewInt(1) }},
		{"data", func(tx *domain.SafeTx) { tx.Data = []byte{0x01} }},
		{"operation", func(tx *domain.SafeTx) { tx.Operation = domain.OperationCall }},
		{"safeTxGas", func(tx *domain.SafeTx) { tx.SafeTxGas = big.NewInt(100000) }},
		{"baseGas", func(tx *domain.SafeTx) { tx.BaseGas = big.NewInt(21000) }},
		{"gasPrice", func(tx *domain.SafeTx) { tx.GasPrice = big.NewInt(1) }},
		{"gasToken", func(tx *domain.SafeTx) { tx.GasToken = tokenA }},
		{"refundReceiver", func(tx *domain.SafeTx) { tx.RefundReceiver = tokenB }},
		{"nonce", func(tx *domain.SafeTx) { tx.Nonce = big.NewInt(8) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := baseSafeTx()
			tt.mutate(&tx)
			got, err := safe.TxHash(tx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got == base {
				t.Errorf("changing %s must change the hash", tt.name)
			}
		})
	}
}

func TestSafeTxHashDomainBinding(t *testing.T) {
	tx := baseSafeTx()

	mainnet, err := chain.NewSafe(&stubCaller{}, safeAddr, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sidechain, err := chain.NewSafe(&stubCaller{}, safeAddr, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	otherWallet, err := chain.NewSafe(&stubCaller{}, routerAddr, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, _ := mainnet.TxHash(tx)
	b, _ := sidechain.TxHash(tx)
	c, _ := otherWallet.TxHash(tx)

	if a == b {
		t.Error("chain id must be part of the domain")
	}
	if a == c {
		t.Error("wallet address must be part of the domain")
	}
}

func TestSafeTxHashNilBigIntsHashAsZero(t *testing.T) {
	safe, err := chain.NewSafe(&stubCaller{}, safeAddr, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	zeroed := baseSafeTx()
	zeroed.Value = big.NewInt(0)
	zeroed.SafeTxGas = big.NewInt(0)
	zeroed.BaseGas = big.NewInt(0)
	zeroed.GasPrice = big.NewInt(0)
	zeroed.Nonce = big.NewInt(7)

	nils := baseSafeTx()
	nils.Value = nil
	nils.SafeTxGas = nil
	nils.BaseGas = nil
	nils.GasPrice = nil

	a, err := safe.TxHash(zeroed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := safe.TxHash(nils)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Error("nil uint256 fields must hash like explicit zeros")
	}
}
