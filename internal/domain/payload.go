package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PayloadVersion is the wire schema version of RoundPayload. Bump it whenever
// a body shape changes so mixed-version agent sets fail loudly instead of
// committing garbage.
const PayloadVersion = 1

// PayloadKind tags which phase produced a payload.
type PayloadKind string

const (
	PayloadQuote       PayloadKind = "quote"
	PayloadDecision    PayloadKind = "decision"
	PayloadTransaction PayloadKind = "transaction"
)

// QuoteBody carries the quote phase result: 3 per-hop prices and 4 amounts,
// or both empty when the round had no usable quote.
type QuoteBody struct {
	Prices  []float64  `json:"prices"`
	Amounts []*big.Int `json:"amounts"`
}

// DecisionBody carries the decision phase outcome.
type DecisionBody struct {
	Event Event `json:"event"`
}

// TransactionBody carries the proposed Safe transaction hash, or an empty
// string when assembly aborted.
type TransactionBody struct {
	TxHash string `json:"tx_hash"`
}

// RoundPayload is the signed envelope an agent submits for one round. Exactly
// one body field is set, matching Kind. Sender, ID, SentAt, and Signature are
// transport metadata and are excluded from the agreement digest so that
// identical local results from different agents agree byte-for-byte.
type RoundPayload struct {
	Version     int              `json:"version"`
	Kind        PayloadKind      `json:"kind"`
	Round       uint64           `json:"round"`
	ID          string           `json:"id"`
	Sender      string           `json:"sender"`
	SentAt      time.Time        `json:"sent_at"`
	Quote       *QuoteBody       `json:"quote,omitempty"`
	Decision    *DecisionBody    `json:"decision,omitempty"`
	Transaction *TransactionBody `json:"transaction,omitempty"`
	Signature   string           `json:"signature,omitempty"`
}

// payloadCore is the canonical digest input. Field order is fixed; Sender is
// included only for the signing digest.
type payloadCore struct {
	Version     int              `json:"version"`
	Kind        PayloadKind      `json:"kind"`
	Round       uint64           `json:"round"`
	Sender      string           `json:"sender,omitempty"`
	Quote       *QuoteBody       `json:"quote,omitempty"`
	Decision    *DecisionBody    `json:"decision,omitempty"`
	Transaction *TransactionBody `json:"transaction,omitempty"`
}

// Validate checks the envelope invariants: supported version, known kind,
// exactly one body matching the kind, and a well-formed sender address.
func (p *RoundPayload) Validate() error {
	if p.Version != PayloadVersion {
		return fmt.Errorf("%w: version %d", ErrBadPayload, p.Version)
	}
	if !common.IsHexAddress(p.Sender) {
		return fmt.Errorf("%w: sender %q", ErrBadPayload, p.Sender)
	}
	bodies := 0
	if p.Quote != nil {
		bodies++
	}
	if p.Decision != nil {
		bodies++
	}
	if p.Transaction != nil {
		bodies++
	}
	if bodies != 1 {
		return fmt.Errorf("%w: %d bodies set", ErrBadPayload, bodies)
	}
	switch p.Kind {
	case PayloadQuote:
		if p.Quote == nil {
			return fmt.Errorf("%w: kind %s without quote body", ErrBadPayload, p.Kind)
		}
	case PayloadDecision:
		if p.Decision == nil || !p.Decision.Event.Valid() {
			return fmt.Errorf("%w: kind %s with missing or unknown event", ErrBadPayload, p.Kind)
		}
	case PayloadTransaction:
		if p.Transaction == nil {
			return fmt.Errorf("%w: kind %s without transaction body", ErrBadPayload, p.Kind)
		}
	default:
		return fmt.Errorf("%w: kind %q", ErrBadPayload, p.Kind)
	}
	return nil
}

// AgreementDigest hashes the consensus-relevant fields (version, kind, round,
// body). Payloads from different senders that carry the same local result
// produce the same digest.
func (p *RoundPayload) AgreementDigest() (common.Hash, error) {
	return p.coreDigest(false)
}

// SigningDigest hashes the agreement fields plus the sender, binding a
// signature to one identity so it cannot be replayed under another address.
func (p *RoundPayload) SigningDigest() (common.Hash, error) {
	return p.coreDigest(true)
}

func (p *RoundPayload) coreDigest(withSender bool) (common.Hash, error) {
	core := payloadCore{
		Version:     p.Version,
		Kind:        p.Kind,
		Round:       p.Round,
		Quote:       p.Quote,
		Decision:    p.Decision,
		Transaction: p.Transaction,
	}
	if withSender {
		core.Sender = common.HexToAddress(p.Sender).Hex()
	}
	raw, err := json.Marshal(core)
	if err != nil {
		return common.Hash{}, fmt.Errorf("payload digest: %w", err)
	}
	return common.BytesToHash(ethcrypto.Keccak256(raw)), nil
}
