// Package chain implements the node-facing adapters: rate-limited read-only
// contract calls, calldata encoding for the bundle contracts, and the Safe
// transaction hash.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Caller performs a read-only contract call and returns the raw result. The
// contract bindings depend on this instead of the concrete client so they can
// be exercised without a node.
type Caller interface {
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// ClientConfig holds connection and call-budget parameters for the RPC
// client.
type ClientConfig struct {
	RPCURL          string
	CallTimeout     time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
	BreakerMaxFails uint32
	BreakerCooldown time.Duration
}

// Client wraps an ethclient behind a client-side rate limit and a circuit
// breaker. Every contract read issued by this package goes through Call; a
// tripped breaker surfaces as an ordinary call error.
type Client struct {
	eth     *ethclient.Client
	rpc     *gethrpc.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	timeout time.Duration
}

// New dials the RPC endpoint and wires the rate limiter and breaker around
// it. A non-positive rate limit disables client-side throttling.
func New(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	rpcClient, err := gethrpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	limit := rate.Limit(cfg.RateLimitRPS)
	if cfg.RateLimitRPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}

	maxFails := cfg.BreakerMaxFails
	if maxFails == 0 {
		maxFails = 5
	}

	c := &Client{
		eth:     ethclient.NewClient(rpcClient),
		rpc:     rpcClient,
		limiter: rate.NewLimiter(limit, burst),
		timeout: cfg.CallTimeout,
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "eth-call",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return c, nil
}

// Call performs one eth_call against to with the given calldata. It blocks on
// the rate limiter first, then runs the call through the breaker under the
// configured per-call timeout.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("chain: rate limit: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out, err := c.breaker.Execute(func() ([]byte, error) {
		return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("chain: call %s: %w", to.Hex(), err)
	}
	return out, nil
}

// ChainID asks the node for its chain id so wiring can verify it against the
// configured one before any round runs.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: chain id: %w", err)
	}
	return id, nil
}

// Close tears down the underlying RPC connection.
func (c *Client) Close() error {
	c.rpc.Close()
	return nil
}

// Compile-time interface check.
var _ Caller = (*Client)(nil)
