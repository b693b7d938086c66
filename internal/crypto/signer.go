package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/safearb/internal/domain"
)

// Signer holds the agent's secp256k1 identity key and signs round payloads
// so the substrate can verify which participant submitted what.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignPayload stamps p with this signer's address and signature. The
// signature covers the signing digest, which includes the sender, so a
// captured signature cannot be replayed under another address.
func (s *Signer) SignPayload(p *domain.RoundPayload) error {
	p.Sender = s.address.Hex()

	digest, err := p.SigningDigest()
	if err != nil {
		return err
	}

	sig, err := ethcrypto.Sign(digest.Bytes(), s.privateKey)
	if err != nil {
		return fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; the wire form uses v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	p.Signature = "0x" + hex.EncodeToString(sig)
	return nil
}

// VerifyPayload checks that p's signature recovers to p.Sender. It returns
// domain.ErrBadSignature (wrapped) on any mismatch.
func VerifyPayload(p *domain.RoundPayload) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(p.Signature, "0x"))
	if err != nil {
		return fmt.Errorf("%w: not hex", domain.ErrBadSignature)
	}
	if len(raw) != 65 {
		return fmt.Errorf("%w: length %d", domain.ErrBadSignature, len(raw))
	}

	// SigToPub expects the recovery id in {0,1}.
	sig := make([]byte, 65)
	copy(sig, raw)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	digest, err := p.SigningDigest()
	if err != nil {
		return err
	}

	pub, err := ethcrypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return fmt.Errorf("%w: recover: %v", domain.ErrBadSignature, err)
	}
	if ethcrypto.PubkeyToAddress(*pub) != common.HexToAddress(p.Sender) {
		return fmt.Errorf("%w: recovered address does not match sender", domain.ErrBadSignature)
	}
	return nil
}
