// Package config defines the top-level configuration for the agent and
// provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/safearb/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SAFEARB_* environment variables.
type Config struct {
	App       AppConfig       `toml:"app"`
	Log       LogConfig       `toml:"log"`
	Chain     ChainConfig     `toml:"chain"`
	Tokens    TokensConfig    `toml:"tokens"`
	Contracts ContractsConfig `toml:"contracts"`
	Trade     TradeConfig     `toml:"trade"`
	Consensus ConsensusConfig `toml:"consensus"`
	AgentKey  AgentKeyConfig  `toml:"agent_key"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Blob      BlobConfig      `toml:"blob"`
	Notify    NotifyConfig    `toml:"notify"`
	Server    ServerConfig    `toml:"server"`
	Feed      FeedConfig      `toml:"feed"`
}

// AppConfig selects the process role.
type AppConfig struct {
	// Mode is "agent" (run the round pipeline) or "server" (API only).
	Mode string `toml:"mode"`
	Name string `toml:"name"`
}

// LogConfig holds logging parameters.
type LogConfig struct {
	Level string `toml:"level"`
}

// ChainConfig holds RPC connection and call-budget parameters.
type ChainConfig struct {
	RPCURL          string   `toml:"rpc_url"`
	ChainID         int64    `toml:"chain_id"`
	CallTimeout     duration `toml:"call_timeout"`
	RateLimitRPS    float64  `toml:"rate_limit_rps"`
	RateLimitBurst  int      `toml:"rate_limit_burst"`
	BreakerMaxFails int      `toml:"breaker_max_fails"`
	BreakerCooldown duration `toml:"breaker_cooldown"`
}

// TokensConfig holds the routed token path.
type TokensConfig struct {
	// Path is a "sym:0x..,sym:0x..,sym:0x.." list of exactly three tokens.
	// The quoted route is the round trip t1 -> t2 -> t3 -> t1.
	Path string `toml:"path"`
}

// ContractsConfig holds the addresses the agent trades through.
type ContractsConfig struct {
	Router    string `toml:"router"`
	FlashPair string `toml:"flash_pair"`
	MultiSend string `toml:"multisend"`
	Safe      string `toml:"safe"`
}

// TradeConfig holds the probe and decision parameters.
type TradeConfig struct {
	// ProbeAmount is a base-unit decimal string, e.g. "10000000000000000000".
	ProbeAmount    string   `toml:"probe_amount"`
	ProfitMargin   float64  `toml:"profit_margin"`
	FlashFeeBps    int64    `toml:"flash_fee_bps"`
	SwapDeadline   duration `toml:"swap_deadline"`
	SafeTxGas      int64    `toml:"safe_tx_gas"`
	AmountDecimals int      `toml:"amount_decimals"`
	RoundInterval  duration `toml:"round_interval"`
	RoundTimeout   duration `toml:"round_timeout"`
}

// ConsensusConfig selects and parameterises the round substrate.
type ConsensusConfig struct {
	// Mode is "local" (single-agent, in-process) or "redis" (multi-agent
	// agreement over Redis streams).
	Mode         string   `toml:"mode"`
	Participants []string `toml:"participants"`
	// Quorum of 0 means 2n/3+1 over the participant count.
	Quorum       int      `toml:"quorum"`
	StreamPrefix string   `toml:"stream_prefix"`
	MaxStreamLen int64    `toml:"max_stream_len"`
	PollInterval duration `toml:"poll_interval"`
}

// AgentKeyConfig resolves the agent's signing identity.
type AgentKeyConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds cycle-store connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// BlobConfig holds S3-compatible object storage parameters for bundle
// artifacts and the cycle archive.
type BlobConfig struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`

	// ArchiveEnabled moves cycles older than RetentionDays to the bucket on
	// an ArchiveInterval schedule. Requires Postgres.
	ArchiveEnabled  bool     `toml:"archive_enabled"`
	ArchiveInterval duration `toml:"archive_interval"`
	RetentionDays   int      `toml:"retention_days"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit requests per client IP per RateWindow; 0 disables limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// FeedConfig holds the optional USD reference price feed.
type FeedConfig struct {
	// PriceURL is the full simple-price query; empty disables the feed. An
	// "{api_key}" placeholder is substituted when present.
	PriceURL string   `toml:"price_url"`
	APIKey   string   `toml:"api_key"`
	Timeout  duration `toml:"timeout"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		App: AppConfig{
			Mode: "agent",
			Name: "safearb",
		},
		Log: LogConfig{
			Level: "info",
		},
		Chain: ChainConfig{
			ChainID:         100,
			CallTimeout:     duration{10 * time.Second},
			RateLimitRPS:    10,
			RateLimitBurst:  20,
			BreakerMaxFails: 5,
			BreakerCooldown: duration{30 * time.Second},
		},
		Tokens: TokensConfig{
			Path: "usdt:0x4ecaba5870353805a9f068101a40e0f32ed605c6," +
				"btc:0x8e5bbbb09ed1ebde8674cda39a0c169401db4252," +
				"eth:0x6a023ccd1ff6f2045c3309768ead9e68f978f6e1",
		},
		Trade: TradeConfig{
			ProbeAmount:    "10000000000000000000",
			ProfitMargin:   0.05,
			FlashFeeBps:    30,
			SwapDeadline:   duration{2 * time.Minute},
			SafeTxGas:      0,
			AmountDecimals: 18,
			RoundInterval:  duration{5 * time.Second},
			RoundTimeout:   duration{30 * time.Second},
		},
		Consensus: ConsensusConfig{
			Mode:         "local",
			Quorum:       0,
			StreamPrefix: "consensus",
			MaxStreamLen: 10_000,
			PollInterval: duration{200 * time.Millisecond},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "safearb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Blob: BlobConfig{
			Enabled:         false,
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "safearb-artifacts",
			UseSSL:          false,
			ForcePathStyle:  true,
			ArchiveEnabled:  false,
			ArchiveInterval: duration{24 * time.Hour},
			RetentionDays:   90,
		},
		Notify: NotifyConfig{
			Events: []string{"transact", "round_failure"},
		},
		Server: ServerConfig{
			Enabled:     true,
			Addr:        ":8000",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   0,
			RateWindow:  duration{time.Second},
		},
		Feed: FeedConfig{
			Timeout: duration{10 * time.Second},
		},
	}
}

// validModes enumerates the accepted values for App.Mode.
var validModes = map[string]bool{
	"agent":  true,
	"server": true,
}

// validLogLevels enumerates the accepted values for Log.Level.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validConsensusModes enumerates the accepted values for Consensus.Mode.
var validConsensusModes = map[string]bool{
	"local": true,
	"redis": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.App.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("app: unknown mode %q (valid: agent, server)", c.App.Mode))
	}
	agentMode := mode == "agent"

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log: unknown level %q (valid: debug, info, warn, error)", c.Log.Level))
	}

	// Chain -- the RPC endpoint is only needed when the pipeline runs.
	if agentMode && strings.TrimSpace(c.Chain.RPCURL) == "" {
		errs = append(errs, "chain: rpc_url is required in agent mode")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, fmt.Sprintf("chain: chain_id must be positive, got %d", c.Chain.ChainID))
	}

	// Tokens -- the route is fixed at three tokens.
	if _, err := domain.ParseTokenPath(c.Tokens.Path); err != nil {
		errs = append(errs, fmt.Sprintf("tokens: invalid path: %v", err))
	}

	// Contracts -- all four addresses must be present and valid in agent mode.
	if agentMode {
		for _, addr := range []struct{ name, value string }{
			{"router", c.Contracts.Router},
			{"flash_pair", c.Contracts.FlashPair},
			{"multisend", c.Contracts.MultiSend},
			{"safe", c.Contracts.Safe},
		} {
			if !common.IsHexAddress(addr.value) {
				errs = append(errs, fmt.Sprintf("contracts: %s address %q is not a valid address", addr.name, addr.value))
			}
		}
	}

	// Trade
	if probe, ok := new(big.Int).SetString(strings.TrimSpace(c.Trade.ProbeAmount), 10); !ok || probe.Sign() <= 0 {
		errs = append(errs, fmt.Sprintf("trade: probe_amount %q must be a positive integer", c.Trade.ProbeAmount))
	}
	if c.Trade.ProfitMargin < 0 {
		errs = append(errs, fmt.Sprintf("trade: profit_margin must be >= 0, got %g", c.Trade.ProfitMargin))
	}
	if c.Trade.FlashFeeBps < 0 {
		errs = append(errs, fmt.Sprintf("trade: flash_fee_bps must be >= 0, got %d", c.Trade.FlashFeeBps))
	}
	if c.Trade.AmountDecimals < 0 {
		errs = append(errs, fmt.Sprintf("trade: amount_decimals must be >= 0, got %d", c.Trade.AmountDecimals))
	}
	if c.Trade.RoundInterval.Duration <= 0 {
		errs = append(errs, "trade: round_interval must be positive")
	}

	// Consensus
	consensusMode := strings.ToLower(c.Consensus.Mode)
	if !validConsensusModes[consensusMode] {
		errs = append(errs, fmt.Sprintf("consensus: unknown mode %q (valid: local, redis)", c.Consensus.Mode))
	}
	if consensusMode == "redis" {
		if len(c.Consensus.Participants) == 0 {
			errs = append(errs, "consensus: participants must not be empty in redis mode")
		}
		for _, p := range c.Consensus.Participants {
			if !common.IsHexAddress(p) {
				errs = append(errs, fmt.Sprintf("consensus: participant %q is not a valid address", p))
			}
		}
		if c.Consensus.Quorum < 0 {
			errs = append(errs, "consensus: quorum must be >= 0")
		}
	}

	// Agent key -- the agent signs every payload it submits.
	if agentMode {
		if c.AgentKey.PrivateKey == "" && c.AgentKey.EncryptedKeyPath == "" {
			errs = append(errs, "agent_key: either private_key or encrypted_key_path must be set in agent mode")
		}
		if c.AgentKey.EncryptedKeyPath != "" && c.AgentKey.KeyPassword == "" {
			errs = append(errs, "agent_key: key_password is required when encrypted_key_path is set")
		}
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Blob
	if c.Blob.Enabled {
		if c.Blob.Endpoint == "" {
			errs = append(errs, "blob: endpoint must not be empty")
		}
		if c.Blob.Bucket == "" {
			errs = append(errs, "blob: bucket must not be empty")
		}
		if c.Blob.ArchiveEnabled {
			if !c.Postgres.Enabled {
				errs = append(errs, "blob: archive_enabled requires postgres to be enabled")
			}
			if c.Blob.RetentionDays < 1 {
				errs = append(errs, fmt.Sprintf("blob: retention_days must be >= 1, got %d", c.Blob.RetentionDays))
			}
		}
	}

	// Server
	if c.Server.Enabled {
		if strings.TrimSpace(c.Server.Addr) == "" {
			errs = append(errs, "server: addr must not be empty")
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
