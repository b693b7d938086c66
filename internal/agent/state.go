package agent

import (
	"time"

	"github.com/alanyoungcy/safearb/internal/domain"
)

// State identifies one phase of the cycle pipeline.
type State int

const (
	StateQuoteCheck State = iota
	StateDecision
	StateTxPreparation
	StateConsensusCommit
)

func (s State) String() string {
	switch s {
	case StateQuoteCheck:
		return "quote_check"
	case StateDecision:
		return "decision"
	case StateTxPreparation:
		return "tx_preparation"
	case StateConsensusCommit:
		return "consensus_commit"
	default:
		return "unknown"
	}
}

// cycleContext is the scratch state one cycle threads through its phases.
// Everything the commit phase persists lives here; nothing survives into the
// next cycle.
type cycleContext struct {
	cycle      uint64
	firstRound uint64
	startedAt  time.Time

	quote    domain.QuoteResult
	refPrice float64
	event    domain.Event

	bundle        domain.Bundle
	multisendData []byte
	ownTxHash     string

	// synced is the substrate's committed view after the most recent round.
	// Phase transitions key off it, not off the local results above.
	synced domain.SyncedState
}
