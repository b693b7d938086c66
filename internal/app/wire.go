package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/safearb/internal/blob/s3"
	"github.com/alanyoungcy/safearb/internal/cache/redis"
	"github.com/alanyoungcy/safearb/internal/chain"
	"github.com/alanyoungcy/safearb/internal/config"
	"github.com/alanyoungcy/safearb/internal/consensus"
	"github.com/alanyoungcy/safearb/internal/crypto"
	"github.com/alanyoungcy/safearb/internal/domain"
	"github.com/alanyoungcy/safearb/internal/notify"
	"github.com/alanyoungcy/safearb/internal/platform/coingecko"
	"github.com/alanyoungcy/safearb/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Chain-facing (agent mode only; nil in server mode)
	Signer    *crypto.Signer
	Quotes    domain.QuoteSource
	Pairs     domain.PairSource
	Safes     domain.SafeSource
	Encoder   domain.CallEncoder
	Hasher    domain.SafeHasher
	Substrate domain.Substrate

	// Persistence
	CycleStore domain.CycleStore

	// Redis
	SignalBus   domain.SignalBus
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	// Blob storage
	Artifacts domain.ArtifactStore
	Archiver  domain.Archiver

	// Ancillary
	Feed     domain.PriceFeed
	Notifier *notify.Notifier
}

// needsChain returns true for modes that talk to the RPC node and run rounds.
func needsChain(mode string) bool {
	return strings.ToLower(mode) == "agent"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis (always; the bus carries rounds and cycle events) ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.SignalBus = redis.NewSignalBusWithMaxLen(redisClient, cfg.Consensus.MaxStreamLen)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- PostgreSQL cycle store ---
	var cycleStore *postgres.CycleStore
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		cycleStore = postgres.NewCycleStore(pgClient.Pool())
		deps.CycleStore = cycleStore
	}

	// --- S3 blob storage (artifacts plus cold-storage archive) ---
	if cfg.Blob.Enabled {
		if err := wireBlob(ctx, cfg, deps, cycleStore, logger, &closers); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Reference price feed ---
	if cfg.Feed.PriceURL != "" {
		deps.Feed = coingecko.NewClient(cfg.Feed.PriceURL, cfg.Feed.APIKey, cfg.Feed.Timeout.Duration)
	}

	// --- Chain stack and consensus substrate (agent mode only) ---
	if needsChain(cfg.App.Mode) {
		if err := wireChain(ctx, cfg, deps, logger, &closers); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	return deps, cleanup, nil
}

// wireBlob builds the S3 client, the artifact writer, and, when the cycle
// store is present, the archiver.
func wireBlob(ctx context.Context, cfg *config.Config, deps *Dependencies, cycles *postgres.CycleStore, logger *slog.Logger, closers *[]func()) error {
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.Blob.Endpoint,
		Region:         cfg.Blob.Region,
		Bucket:         cfg.Blob.Bucket,
		Prefix:         cfg.Blob.Prefix,
		AccessKey:      cfg.Blob.AccessKey,
		SecretKey:      cfg.Blob.SecretKey,
		UseSSL:         cfg.Blob.UseSSL,
		ForcePathStyle: cfg.Blob.ForcePathStyle,
	})
	if err != nil {
		return fmt.Errorf("wire: s3: %w", err)
	}
	*closers = append(*closers, func() { _ = s3Client.Close() })

	// A missing bucket or bad credentials should fail startup, not the first
	// archive tick hours later.
	if err := s3Client.Health(ctx); err != nil {
		return fmt.Errorf("wire: s3: %w", err)
	}

	writer := s3blob.NewWriter(s3Client)
	deps.Artifacts = writer
	if cycles != nil {
		deps.Archiver = s3blob.NewArchiver(writer, cycles, logger)
	}
	return nil
}

// wireChain resolves the signing key, dials the RPC node, verifies the chain
// id, and builds the contract bindings and the consensus substrate.
func wireChain(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger, closers *[]func()) error {
	signer, err := crypto.LoadSigner(crypto.KeyConfig{
		RawPrivateKey:    cfg.AgentKey.PrivateKey,
		EncryptedKeyPath: cfg.AgentKey.EncryptedKeyPath,
		KeyPassword:      cfg.AgentKey.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("wire: agent key: %w", err)
	}
	deps.Signer = signer

	chainClient, err := chain.New(ctx, chain.ClientConfig{
		RPCURL:          cfg.Chain.RPCURL,
		CallTimeout:     cfg.Chain.CallTimeout.Duration,
		RateLimitRPS:    cfg.Chain.RateLimitRPS,
		RateLimitBurst:  cfg.Chain.RateLimitBurst,
		BreakerMaxFails: uint32(cfg.Chain.BreakerMaxFails),
		BreakerCooldown: cfg.Chain.BreakerCooldown.Duration,
	}, logger)
	if err != nil {
		return fmt.Errorf("wire: chain: %w", err)
	}
	*closers = append(*closers, func() { _ = chainClient.Close() })

	// A mismatched node would quote a different network and hash a different
	// EIP-712 domain, so refuse to start.
	nodeID, err := chainClient.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("wire: chain: %w", err)
	}
	if nodeID.Int64() != cfg.Chain.ChainID {
		return fmt.Errorf("wire: chain: node reports chain id %s, config expects %d", nodeID, cfg.Chain.ChainID)
	}

	router, err := chain.NewRouter(chainClient, common.HexToAddress(cfg.Contracts.Router))
	if err != nil {
		return fmt.Errorf("wire: router: %w", err)
	}
	pair, err := chain.NewPair(chainClient)
	if err != nil {
		return fmt.Errorf("wire: pair: %w", err)
	}
	erc20, err := chain.NewERC20()
	if err != nil {
		return fmt.Errorf("wire: erc20: %w", err)
	}
	multisend, err := chain.NewMultiSend()
	if err != nil {
		return fmt.Errorf("wire: multisend: %w", err)
	}
	safe, err := chain.NewSafe(chainClient, common.HexToAddress(cfg.Contracts.Safe), cfg.Chain.ChainID)
	if err != nil {
		return fmt.Errorf("wire: safe: %w", err)
	}

	deps.Quotes = router
	deps.Pairs = pair
	deps.Safes = safe
	deps.Hasher = safe
	deps.Encoder = chain.NewEncoder(router, pair, erc20, multisend)

	substrate, err := buildSubstrate(cfg, deps, signer, logger)
	if err != nil {
		return err
	}
	deps.Substrate = substrate
	return nil
}

// buildSubstrate selects the round substrate: in-process for a single agent,
// Redis streams for a registered participant set.
func buildSubstrate(cfg *config.Config, deps *Dependencies, signer *crypto.Signer, logger *slog.Logger) (domain.Substrate, error) {
	if strings.ToLower(cfg.Consensus.Mode) != "redis" {
		return consensus.NewLocal(), nil
	}

	participants := make([]common.Address, 0, len(cfg.Consensus.Participants))
	self := false
	for _, p := range cfg.Consensus.Participants {
		addr := common.HexToAddress(p)
		participants = append(participants, addr)
		if addr == signer.Address() {
			self = true
		}
	}
	// An unlisted agent would have every submission dropped by its peers.
	if !self {
		return nil, fmt.Errorf("wire: consensus: agent %s is not in the participant set", signer.Address().Hex())
	}

	sub, err := consensus.NewRedis(deps.SignalBus, consensus.RedisConfig{
		Participants: participants,
		Quorum:       cfg.Consensus.Quorum,
		StreamPrefix: cfg.Consensus.StreamPrefix,
		RoundTimeout: cfg.Trade.RoundTimeout.Duration,
		PollInterval: cfg.Consensus.PollInterval.Duration,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("wire: consensus: %w", err)
	}
	return sub, nil
}
