package crypto_test

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/safearb/internal/crypto"
	"github.com/alanyoungcy/safearb/internal/domain"
)

const testKeyHex = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

func signedQuotePayload(t *testing.T, s *crypto.Signer) *domain.RoundPayload {
	t.Helper()

	p := &domain.RoundPayload{
		Version: domain.PayloadVersion,
		Kind:    domain.PayloadQuote,
		Round:   3,
		ID:      "3e0a5b1e-0000-4000-8000-000000000001",
		Quote: &domain.QuoteBody{
			Prices:  []float64{0.0005, 1200, 1.75},
			Amounts: []*big.Int{big.NewInt(100000000), big.NewInt(50000), big.NewInt(60000000), big.NewInt(105000000)},
		},
	}
	if err := s.SignPayload(p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p
}

func TestSignAndVerifyPayload(t *testing.T) {
	s, err := crypto.NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := signedQuotePayload(t, s)

	if p.Sender != s.Address().Hex() {
		t.Errorf("expected sender %s, got %s", s.Address().Hex(), p.Sender)
	}
	if !strings.HasPrefix(p.Signature, "0x") || len(p.Signature) != 2+130 {
		t.Errorf("unexpected signature encoding %q", p.Signature)
	}

	if err := crypto.VerifyPayload(p); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	s, err := crypto.NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := signedQuotePayload(t, s)
	p.Quote.Amounts[3] = big.NewInt(999000000)

	if err := crypto.VerifyPayload(p); !errors.Is(err, domain.ErrBadSignature) {
		t.Errorf("expected ErrBadSignature, got %v", err)
	}
}

func TestVerifyRejectsReassignedSender(t *testing.T) {
	s, err := crypto.NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := signedQuotePayload(t, s)
	p.Sender = "0x9999999999999999999999999999999999999999"

	if err := crypto.VerifyPayload(p); !errors.Is(err, domain.ErrBadSignature) {
		t.Errorf("expected ErrBadSignature, got %v", err)
	}
}

func TestVerifyRejectsGarbageSignature(t *testing.T) {
	s, err := crypto.NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := signedQuotePayload(t, s)
	p.Signature = "0x1234"

	if err := crypto.VerifyPayload(p); !errors.Is(err, domain.ErrBadSignature) {
		t.Errorf("expected ErrBadSignature, got %v", err)
	}
}

func TestEncryptDecryptKey(t *testing.T) {
	blob, err := crypto.EncryptKey(testKeyHex, "s3cret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := crypto.DecryptKey(blob, "s3cret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != testKeyHex {
		t.Errorf("expected round-tripped key, got %q", got)
	}

	if _, err := crypto.DecryptKey(blob, "wrong"); err == nil {
		t.Error("expected decryption failure with wrong password")
	}
}

func TestLoadKeyResolution(t *testing.T) {
	// Raw key wins and loses its 0x prefix.
	got, err := crypto.LoadKey(crypto.KeyConfig{RawPrivateKey: "0x" + testKeyHex})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != testKeyHex {
		t.Errorf("expected raw key, got %q", got)
	}

	// Encrypted file fallback.
	blob, err := crypto.EncryptKey(testKeyHex, "s3cret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "agent_key.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err = crypto.LoadKey(crypto.KeyConfig{EncryptedKeyPath: path, KeyPassword: "s3cret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != testKeyHex {
		t.Errorf("expected decrypted key, got %q", got)
	}

	// No source configured.
	if _, err := crypto.LoadKey(crypto.KeyConfig{}); err == nil {
		t.Error("expected error with no key source")
	}
}

func TestLoadSigner(t *testing.T) {
	s, err := crypto.LoadSigner(crypto.KeyConfig{RawPrivateKey: testKeyHex})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Address() == (common.Address{}) {
		t.Error("expected derived address")
	}
}
