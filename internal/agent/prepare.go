package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/safearb/internal/domain"
)

// stateTxPreparation assembles the flash-swap bundle for the committed
// amounts and submits the Safe transaction hash for agreement. Assembly
// failures are soft: the phase proposes the empty hash rather than leaving
// the round hanging, and never submits a partially built one. Malformed
// committed state is a hard error; it means the quorum agreed on garbage.
func (m *Machine) stateTxPreparation(ctx context.Context, cy *cycleContext) (State, bool, error) {
	m.setPhase(StateTxPreparation, cy)

	if n := len(m.params.Path); n != domain.TokenPathLen {
		return 0, false, fmt.Errorf("agent: token path has %d entries entering preparation", n)
	}
	if n := len(cy.synced.Amounts); n != domain.QuoteAmountLen {
		return 0, false, fmt.Errorf("agent: committed round has %d amounts entering preparation, want %d", n, domain.QuoteAmountLen)
	}

	bundle, msData, hash, err := m.assembler.Build(ctx, cy.synced.Amounts)
	if err != nil {
		m.logger.Warn("bundle assembly aborted, proposing empty hash",
			slog.Uint64("cycle", cy.cycle),
			slog.String("error", err.Error()),
		)
	} else {
		cy.bundle = bundle
		cy.multisendData = msData
		cy.ownTxHash = hash.Hex()
	}

	p := m.newPayload(domain.PayloadTransaction)
	p.Transaction = &domain.TransactionBody{TxHash: cy.ownTxHash}

	st, ok, err := m.submitAndAwait(ctx, p)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		m.finalizeCycle(ctx, cy, domain.CycleFailed)
		return 0, true, nil
	}
	cy.synced = st
	return StateConsensusCommit, false, nil
}

// Assembler builds the four-call flash-swap bundle and its Safe transaction
// hash. It is deterministic for a given chain state: every agent assembling
// from the same committed amounts produces the same hash.
type Assembler struct {
	params  Params
	pairs   domain.PairSource
	safes   domain.SafeSource
	encoder domain.CallEncoder
	hasher  domain.SafeHasher
}

// NewAssembler returns an Assembler over the given sources and encoder.
func NewAssembler(params Params, pairs domain.PairSource, safes domain.SafeSource, encoder domain.CallEncoder, hasher domain.SafeHasher) *Assembler {
	return &Assembler{
		params:  params,
		pairs:   pairs,
		safes:   safes,
		encoder: encoder,
		hasher:  hasher,
	}
}

// Build assembles the bundle for the quoted amounts and returns it with the
// packed multiSend calldata and the Safe transaction hash to propose. Any
// failure returns zero values; callers must not use a partial bundle.
//
// Call order is fixed: flash-borrow from the pair, approve the router for the
// borrowed amount, swap the round trip, repay the pair with the fee added.
func (a *Assembler) Build(ctx context.Context, amounts []*big.Int) (domain.Bundle, []byte, common.Hash, error) {
	fail := func(err error) (domain.Bundle, []byte, common.Hash, error) {
		return domain.Bundle{}, nil, common.Hash{}, err
	}

	p := a.params
	amountIn := amounts[0]
	amountOutMin := amounts[len(amounts)-1]
	borrowToken := p.Path[0].Address

	token0, err := a.pairs.Token0(ctx, p.FlashPair)
	if err != nil {
		return fail(fmt.Errorf("agent: read pair token0: %w", err))
	}
	amount0Out := big.NewInt(0)
	amount1Out := big.NewInt(0)
	if borrowToken == token0 {
		amount0Out = amountIn
	} else {
		amount1Out = amountIn
	}

	borrowData, err := a.encoder.PairSwap(amount0Out, amount1Out, p.Safe, nil)
	if err != nil {
		return fail(fmt.Errorf("agent: encode flash borrow: %w", err))
	}
	approveData, err := a.encoder.Approve(p.Router, amountIn)
	if err != nil {
		return fail(fmt.Errorf("agent: encode approve: %w", err))
	}
	deadline := big.NewInt(time.Now().Add(p.SwapDeadline).Unix())
	swapData, err := a.encoder.RouterSwap(amountIn, amountOutMin, p.Path.RoundTrip(), p.Safe, deadline)
	if err != nil {
		return fail(fmt.Errorf("agent: encode swap: %w", err))
	}
	repayAmount := new(big.Int).Add(amountIn, FlashFee(amountIn, p.FlashFeeBps))
	repayData, err := a.encoder.Transfer(p.FlashPair, repayAmount)
	if err != nil {
		return fail(fmt.Errorf("agent: encode repay: %w", err))
	}

	bundle := domain.Bundle{Calls: []domain.CallDescriptor{
		{Operation: domain.OperationCall, To: p.FlashPair, Value: big.NewInt(0), Data: borrowData},
		{Operation: domain.OperationCall, To: borrowToken, Value: big.NewInt(0), Data: approveData},
		{Operation: domain.OperationCall, To: p.Router, Value: big.NewInt(0), Data: swapData},
		{Operation: domain.OperationCall, To: borrowToken, Value: big.NewInt(0), Data: repayData},
	}}

	msData, err := a.encoder.MultiSend(bundle.Calls)
	if err != nil {
		return fail(fmt.Errorf("agent: encode multisend: %w", err))
	}
	nonce, err := a.safes.Nonce(ctx, p.Safe)
	if err != nil {
		return fail(fmt.Errorf("agent: read safe nonce: %w", err))
	}

	hash, err := a.hasher.TxHash(domain.SafeTx{
		To:        p.MultiSend,
		Value:     big.NewInt(0),
		Data:      msData,
		Operation: domain.OperationDelegateCall,
		SafeTxGas: p.SafeTxGas,
		Nonce:     nonce,
	})
	if err != nil {
		return fail(fmt.Errorf("agent: hash safe tx: %w", err))
	}
	return bundle, msData, hash, nil
}

// FlashFee is the pair's flash-swap fee on amount at feeBps basis points,
// rounded down.
func FlashFee(amount *big.Int, feeBps int64) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(feeBps))
	return fee.Div(fee, big.NewInt(10_000))
}
