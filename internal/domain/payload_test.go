package domain_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/alanyoungcy/safearb/internal/domain"
)

func quotePayload(sender string) *domain.RoundPayload {
	return &domain.RoundPayload{
		Version: domain.PayloadVersion,
		Kind:    domain.PayloadQuote,
		Round:   7,
		ID:      "2b1caa1c-8d2e-4c55-9f4e-111111111111",
		Sender:  sender,
		SentAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Quote: &domain.QuoteBody{
			Prices:  []float64{0.0005, 1200, 1.75},
			Amounts: []*big.Int{big.NewInt(100000000), big.NewInt(50000), big.NewInt(60000000), big.NewInt(105000000)},
		},
	}
}

func TestRoundPayloadValidate(t *testing.T) {
	sender := "0x1111111111111111111111111111111111111111"

	tests := []struct {
		name   string
		mutate func(*domain.RoundPayload)
		wantOK bool
	}{
		{"valid quote", func(p *domain.RoundPayload) {}, true},
		{"wrong version", func(p *domain.RoundPayload) { p.Version = 99 }, false},
		{"bad sender", func(p *domain.RoundPayload) { p.Sender = "not-an-address" }, false},
		{"no body", func(p *domain.RoundPayload) { p.Quote = nil }, false},
		{"two bodies", func(p *domain.RoundPayload) { p.Decision = &domain.DecisionBody{Event: domain.EventDone} }, false},
		{"kind body mismatch", func(p *domain.RoundPayload) {
			p.Kind = domain.PayloadDecision
		}, false},
		{"unknown kind", func(p *domain.RoundPayload) { p.Kind = "gossip" }, false},
		{"unknown event", func(p *domain.RoundPayload) {
			p.Kind = domain.PayloadDecision
			p.Quote = nil
			p.Decision = &domain.DecisionBody{Event: "MAYBE"}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := quotePayload(sender)
			tt.mutate(p)

			err := p.Validate()
			if tt.wantOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, domain.ErrBadPayload) {
				t.Errorf("expected ErrBadPayload, got %v", err)
			}
		})
	}
}

func TestAgreementDigestIgnoresTransportMetadata(t *testing.T) {
	a := quotePayload("0x1111111111111111111111111111111111111111")
	b := quotePayload("0x2222222222222222222222222222222222222222")
	b.ID = "c3a9be59-0000-4d00-8000-222222222222"
	b.SentAt = b.SentAt.Add(3 * time.Second)
	b.Signature = "0xdeadbeef"

	da, err := a.AgreementDigest()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db, err := b.AgreementDigest()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if da != db {
		t.Errorf("same body should agree: %s vs %s", da.Hex(), db.Hex())
	}

	// The signing digest is bound to the sender, so the same body signed by
	// two identities must not be interchangeable.
	sa, err := a.SigningDigest()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sb, err := b.SigningDigest()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sa == sb {
		t.Error("signing digest should differ per sender")
	}
	if sa == da {
		t.Error("signing digest should not equal agreement digest")
	}
}

func TestAgreementDigestChangesWithBody(t *testing.T) {
	base := quotePayload("0x1111111111111111111111111111111111111111")
	d0, err := base.AgreementDigest()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	amended := quotePayload("0x1111111111111111111111111111111111111111")
	amended.Quote.Amounts[3] = big.NewInt(106000000)
	d1, err := amended.AgreementDigest()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d0 == d1 {
		t.Error("changing an amount must change the digest")
	}

	later := quotePayload("0x1111111111111111111111111111111111111111")
	later.Round = 8
	d2, err := later.AgreementDigest()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d0 == d2 {
		t.Error("changing the round must change the digest")
	}
}

func TestSyncedStateMerge(t *testing.T) {
	sender := "0x1111111111111111111111111111111111111111"

	var st domain.SyncedState

	st = st.Merge(quotePayload(sender))
	if len(st.Prices) != 3 || len(st.Amounts) != 4 {
		t.Fatalf("expected (3, 4) after quote merge, got (%d, %d)", len(st.Prices), len(st.Amounts))
	}
	if st.Round != 7 {
		t.Errorf("expected round 7, got %d", st.Round)
	}

	st = st.Merge(&domain.RoundPayload{
		Version:  domain.PayloadVersion,
		Kind:     domain.PayloadDecision,
		Round:    8,
		Sender:   sender,
		Decision: &domain.DecisionBody{Event: domain.EventTransact},
	})
	if st.Event != domain.EventTransact {
		t.Errorf("expected TRANSACT, got %s", st.Event)
	}
	if len(st.Amounts) != 4 {
		t.Error("decision merge must not clear the quote fields")
	}

	st = st.Merge(&domain.RoundPayload{
		Version:     domain.PayloadVersion,
		Kind:        domain.PayloadTransaction,
		Round:       9,
		Sender:      sender,
		Transaction: &domain.TransactionBody{TxHash: "0xabc"},
	})
	if st.TxHash != "0xabc" {
		t.Errorf("expected tx hash to be set, got %q", st.TxHash)
	}
	if st.Round != 9 {
		t.Errorf("expected round 9, got %d", st.Round)
	}
}
