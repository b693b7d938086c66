package chain_test

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/alanyoungcy/safearb/internal/chain"
	"github.com/alanyoungcy/safearb/internal/domain"
)

func TestMultiSendPackLayout(t *testing.T) {
	ms, err := chain.NewMultiSend()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := []domain.CallDescriptor{
		{Operation: domain.OperationCall, To: pairAddr, Value: big.NewInt(0), Data: []byte{0xde, 0xad}},
		{Operation: domain.OperationCall, To: routerAddr, Value: nil, Data: []byte{0xbe, 0xef, 0x01}},
	}

	packed := ms.Pack(calls)

	// Per call: 1 (operation) + 20 (target) + 32 (value) + 32 (length) + data.
	wantLen := (1 + 20 + 32 + 32 + 2) + (1 + 20 + 32 + 32 + 3)
	if len(packed) != wantLen {
		t.Fatalf("packed length = %d, want %d", len(packed), wantLen)
	}

	// First call starts at offset 0.
	if packed[0] != byte(domain.OperationCall) {
		t.Errorf("operation byte = %d", packed[0])
	}
	if !bytes.Equal(packed[1:21], pairAddr.Bytes()) {
		t.Error("first target not at bytes 1..20")
	}
	if !bytes.Equal(packed[21:53], make([]byte, 32)) {
		t.Error("zero value not 32 zero bytes")
	}
	if packed[84] != 2 {
		t.Errorf("first data length = %d, want 2", packed[84])
	}
	if !bytes.Equal(packed[85:87], []byte{0xde, 0xad}) {
		t.Error("first call data not in place")
	}

	// Second call follows immediately; nil value packs as zero.
	second := packed[87:]
	if second[0] != byte(domain.OperationCall) {
		t.Errorf("second operation byte = %d", second[0])
	}
	if !bytes.Equal(second[1:21], routerAddr.Bytes()) {
		t.Error("second target not in place")
	}
	if !bytes.Equal(second[21:53], make([]byte, 32)) {
		t.Error("nil value must pack as 32 zero bytes")
	}
	if second[84] != 3 {
		t.Errorf("second data length = %d, want 3", second[84])
	}
	if !bytes.Equal(second[85:88], []byte{0xbe, 0xef, 0x01}) {
		t.Error("second call data not in place")
	}
}

func TestMultiSendPackDeterministic(t *testing.T) {
	ms, err := chain.NewMultiSend()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := []domain.CallDescriptor{
		{Operation: domain.OperationCall, To: pairAddr, Data: []byte{0x01}},
		{Operation: domain.OperationCall, To: routerAddr, Data: []byte{0x02}},
	}

	a := ms.Pack(calls)
	b := ms.Pack(calls)
	if !bytes.Equal(a, b) {
		t.Error("packing must be deterministic")
	}

	swapped := []domain.CallDescriptor{calls[1], calls[0]}
	c := ms.Pack(swapped)
	if bytes.Equal(a, c) {
		t.Error("packing must preserve call order")
	}
}

func TestMultiSendEncode(t *testing.T) {
	ms, err := chain.NewMultiSend()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := []domain.CallDescriptor{
		{Operation: domain.OperationCall, To: pairAddr, Data: []byte{0x01, 0x02}},
	}

	data, err := ms.Encode(calls)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := selector(t, data); got != "8d80ff0a" {
		t.Errorf("multiSend selector = %s", got)
	}
	if !bytes.Contains(data, ms.Pack(calls)) {
		t.Error("encoded calldata must embed the packed calls")
	}
}
