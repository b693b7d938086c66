// Package consensus ships the dev-grade substrate implementations behind the
// domain.Substrate port: an in-process loopback for standalone runs and a
// Redis-stream simulation for a small multi-process participant set. Neither
// is a consensus protocol; they exist so the pipeline can be exercised end to
// end while the real substrate stays an external collaborator.
package consensus

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/safearb/internal/domain"
)

// Quorum returns the effective quorum for n participants: the configured
// value when positive, otherwise the Byzantine majority 2n/3+1.
func Quorum(n, configured int) int {
	if configured > 0 {
		return configured
	}
	return 2*n/3 + 1
}

// reduce picks the round winner from at most one payload per sender: the
// first agreement-digest group to reach quorum. When several groups qualify
// the lexicographically smallest digest wins, and within the winning group
// the smallest sender's payload represents the result, so every agent
// resolves the same winner regardless of arrival order. ok is false while no
// group has quorum.
func reduce(bySender map[common.Address]*domain.RoundPayload, quorum int) (winner *domain.RoundPayload, ok bool) {
	groups := make(map[common.Hash][]*domain.RoundPayload)
	for _, p := range bySender {
		digest, err := p.AgreementDigest()
		if err != nil {
			continue
		}
		groups[digest] = append(groups[digest], p)
	}

	var best common.Hash
	for digest, members := range groups {
		if len(members) < quorum {
			continue
		}
		if !ok || bytes.Compare(digest[:], best[:]) < 0 {
			best = digest
			ok = true
		}
	}
	if !ok {
		return nil, false
	}

	for _, p := range groups[best] {
		if winner == nil || p.Sender < winner.Sender {
			winner = p
		}
	}
	return winner, true
}
