package domain

import "context"

// Substrate is the consensus backend one agent participates in.
//
// SubmitPayload proposes this agent's payload for the payload's round.
// AwaitRoundEnd blocks until the participant set commits a result for the
// round, the configured round timeout elapses, or ctx is cancelled. The
// implementations shipped here are dev-grade simulations, not a consensus
// protocol; the port exists so a real substrate can be swapped in.
type Substrate interface {
	SubmitPayload(ctx context.Context, p *RoundPayload) error
	AwaitRoundEnd(ctx context.Context, round uint64) (SyncedState, error)
}
