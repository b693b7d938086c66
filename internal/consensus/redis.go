package consensus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/safearb/internal/crypto"
	"github.com/alanyoungcy/safearb/internal/domain"
)

const (
	defaultStreamPrefix = "safearb:round"
	defaultPollInterval = 200 * time.Millisecond
	streamReadCount     = 64
)

// RedisConfig fixes the simulated participant set and its timing.
type RedisConfig struct {
	Participants []common.Address
	Quorum       int // 0 = 2n/3+1
	StreamPrefix string
	RoundTimeout time.Duration
	PollInterval time.Duration
}

// Redis runs a fixed-participant agreement simulation over Redis streams.
// Each agent appends its signed payload to the round's stream and polls until
// enough distinct registered participants agree; the reduction is
// deterministic, so all agents commit the same result without a coordinator.
type Redis struct {
	bus          domain.SignalBus
	participants map[common.Address]bool
	quorum       int
	prefix       string
	roundTimeout time.Duration
	pollInterval time.Duration
	logger       *slog.Logger

	mu    sync.Mutex
	state domain.SyncedState
}

// NewRedis builds the substrate on top of a SignalBus.
func NewRedis(bus domain.SignalBus, cfg RedisConfig, logger *slog.Logger) (*Redis, error) {
	if len(cfg.Participants) == 0 {
		return nil, errors.New("consensus: no participants configured")
	}

	participants := make(map[common.Address]bool, len(cfg.Participants))
	for _, addr := range cfg.Participants {
		participants[addr] = true
	}

	prefix := cfg.StreamPrefix
	if prefix == "" {
		prefix = defaultStreamPrefix
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	return &Redis{
		bus:          bus,
		participants: participants,
		quorum:       Quorum(len(cfg.Participants), cfg.Quorum),
		prefix:       prefix,
		roundTimeout: cfg.RoundTimeout,
		pollInterval: poll,
		logger:       logger.With(slog.String("component", "consensus_redis")),
	}, nil
}

func (r *Redis) streamKey(round uint64) string {
	return fmt.Sprintf("%s:%d", r.prefix, round)
}

// SubmitPayload appends the signed payload to the round's stream.
func (r *Redis) SubmitPayload(ctx context.Context, p *domain.RoundPayload) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Signature == "" {
		return fmt.Errorf("%w: unsigned payload", domain.ErrBadPayload)
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("consensus: marshal payload: %w", err)
	}
	return r.bus.StreamAppend(ctx, r.streamKey(p.Round), raw)
}

// AwaitRoundEnd polls the round stream until a quorum of distinct registered
// participants agrees on one result. It returns ErrNoQuorum when every
// participant has reported without agreement and ErrRoundTimeout when the
// round timeout elapses first.
func (r *Redis) AwaitRoundEnd(ctx context.Context, round uint64) (domain.SyncedState, error) {
	if r.roundTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.roundTimeout)
		defer cancel()
	}

	stream := r.streamKey(round)
	lastID := "0"
	bySender := make(map[common.Address]*domain.RoundPayload)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		msgs, err := r.bus.StreamRead(ctx, stream, lastID, streamReadCount)
		if err != nil {
			return domain.SyncedState{}, err
		}

		for _, msg := range msgs {
			lastID = msg.ID
			r.collect(round, msg.Payload, bySender)
		}

		if winner, ok := reduce(bySender, r.quorum); ok {
			return r.commit(winner), nil
		}
		if len(bySender) == len(r.participants) {
			return domain.SyncedState{}, fmt.Errorf("consensus: round %d: %w", round, domain.ErrNoQuorum)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return domain.SyncedState{}, fmt.Errorf("consensus: round %d: %w", round, domain.ErrRoundTimeout)
			}
			return domain.SyncedState{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// collect validates one stream entry and records it. The first valid payload
// per sender wins; later writes from the same sender are ignored.
func (r *Redis) collect(round uint64, raw []byte, bySender map[common.Address]*domain.RoundPayload) {
	var p domain.RoundPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		r.logger.Warn("dropping undecodable payload",
			slog.Uint64("round", round), slog.String("error", err.Error()))
		return
	}
	if err := p.Validate(); err != nil {
		r.logger.Warn("dropping invalid payload",
			slog.Uint64("round", round), slog.String("error", err.Error()))
		return
	}
	if p.Round != round {
		r.logger.Warn("dropping payload for wrong round",
			slog.Uint64("round", round), slog.Uint64("payload_round", p.Round))
		return
	}

	sender := common.HexToAddress(p.Sender)
	if !r.participants[sender] {
		r.logger.Warn("dropping payload from unregistered sender",
			slog.Uint64("round", round), slog.String("sender", p.Sender))
		return
	}
	if err := crypto.VerifyPayload(&p); err != nil {
		r.logger.Warn("dropping payload with bad signature",
			slog.Uint64("round", round), slog.String("sender", p.Sender), slog.String("error", err.Error()))
		return
	}

	if _, seen := bySender[sender]; seen {
		return
	}
	bySender[sender] = &p
}

func (r *Redis) commit(winner *domain.RoundPayload) domain.SyncedState {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = r.state.Merge(winner)
	return r.state
}

// Compile-time interface check.
var _ domain.Substrate = (*Redis)(nil)
