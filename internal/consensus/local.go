package consensus

import (
	"context"
	"sync"

	"github.com/alanyoungcy/safearb/internal/domain"
)

// Local is the loopback substrate for running a single agent: every valid
// submitted payload commits immediately with a quorum of one.
type Local struct {
	mu      sync.Mutex
	state   domain.SyncedState
	results map[uint64]domain.SyncedState
	waiters map[uint64]chan struct{}
}

// NewLocal creates an empty loopback substrate.
func NewLocal() *Local {
	return &Local{
		results: make(map[uint64]domain.SyncedState),
		waiters: make(map[uint64]chan struct{}),
	}
}

// SubmitPayload validates p and commits it as the round result.
func (l *Local) SubmitPayload(ctx context.Context, p *domain.RoundPayload) error {
	if err := p.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.state = l.state.Merge(p)
	l.results[p.Round] = l.state
	if ch, ok := l.waiters[p.Round]; ok {
		close(ch)
		delete(l.waiters, p.Round)
	}
	return nil
}

// AwaitRoundEnd returns the committed state for round, blocking until the
// round's payload arrives or ctx is cancelled.
func (l *Local) AwaitRoundEnd(ctx context.Context, round uint64) (domain.SyncedState, error) {
	l.mu.Lock()
	if st, ok := l.results[round]; ok {
		l.mu.Unlock()
		return st, nil
	}
	ch, ok := l.waiters[round]
	if !ok {
		ch = make(chan struct{})
		l.waiters[round] = ch
	}
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return domain.SyncedState{}, ctx.Err()
	case <-ch:
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.results[round], nil
}

// Compile-time interface check.
var _ domain.Substrate = (*Local)(nil)
