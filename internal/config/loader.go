package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SAFEARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SAFEARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── App ──
	setStr(&cfg.App.Mode, "SAFEARB_MODE")
	setStr(&cfg.App.Name, "SAFEARB_NAME")
	setStr(&cfg.Log.Level, "SAFEARB_LOG_LEVEL")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "SAFEARB_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "SAFEARB_CHAIN_ID")
	setDuration(&cfg.Chain.CallTimeout, "SAFEARB_CHAIN_CALL_TIMEOUT")
	setFloat64(&cfg.Chain.RateLimitRPS, "SAFEARB_CHAIN_RATE_LIMIT_RPS")
	setInt(&cfg.Chain.RateLimitBurst, "SAFEARB_CHAIN_RATE_LIMIT_BURST")

	// ── Tokens & contracts ──
	setStr(&cfg.Tokens.Path, "SAFEARB_TOKENS_PATH")
	setStr(&cfg.Contracts.Router, "SAFEARB_CONTRACTS_ROUTER")
	setStr(&cfg.Contracts.FlashPair, "SAFEARB_CONTRACTS_FLASH_PAIR")
	setStr(&cfg.Contracts.MultiSend, "SAFEARB_CONTRACTS_MULTISEND")
	setStr(&cfg.Contracts.Safe, "SAFEARB_CONTRACTS_SAFE")

	// ── Trade ──
	setStr(&cfg.Trade.ProbeAmount, "SAFEARB_TRADE_PROBE_AMOUNT")
	setFloat64(&cfg.Trade.ProfitMargin, "SAFEARB_TRADE_PROFIT_MARGIN")
	setInt64(&cfg.Trade.FlashFeeBps, "SAFEARB_TRADE_FLASH_FEE_BPS")
	setDuration(&cfg.Trade.SwapDeadline, "SAFEARB_TRADE_SWAP_DEADLINE")
	setInt64(&cfg.Trade.SafeTxGas, "SAFEARB_TRADE_SAFE_TX_GAS")
	setDuration(&cfg.Trade.RoundInterval, "SAFEARB_TRADE_ROUND_INTERVAL")
	setDuration(&cfg.Trade.RoundTimeout, "SAFEARB_TRADE_ROUND_TIMEOUT")

	// ── Consensus ──
	setStr(&cfg.Consensus.Mode, "SAFEARB_CONSENSUS_MODE")
	setStringSlice(&cfg.Consensus.Participants, "SAFEARB_CONSENSUS_PARTICIPANTS")
	setInt(&cfg.Consensus.Quorum, "SAFEARB_CONSENSUS_QUORUM")
	setStr(&cfg.Consensus.StreamPrefix, "SAFEARB_CONSENSUS_STREAM_PREFIX")

	// ── Agent key ──
	setStr(&cfg.AgentKey.PrivateKey, "SAFEARB_AGENT_PRIVATE_KEY")
	setStr(&cfg.AgentKey.EncryptedKeyPath, "SAFEARB_AGENT_ENCRYPTED_KEY_PATH")
	setStr(&cfg.AgentKey.KeyPassword, "SAFEARB_AGENT_KEY_PASSWORD")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SAFEARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SAFEARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SAFEARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SAFEARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SAFEARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SAFEARB_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "SAFEARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SAFEARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SAFEARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SAFEARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SAFEARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SAFEARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SAFEARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SAFEARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SAFEARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SAFEARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SAFEARB_POSTGRES_RUN_MIGRATIONS")

	// ── Blob ──
	setBool(&cfg.Blob.Enabled, "SAFEARB_BLOB_ENABLED")
	setStr(&cfg.Blob.Endpoint, "SAFEARB_BLOB_ENDPOINT")
	setStr(&cfg.Blob.Region, "SAFEARB_BLOB_REGION")
	setStr(&cfg.Blob.Bucket, "SAFEARB_BLOB_BUCKET")
	setStr(&cfg.Blob.Prefix, "SAFEARB_BLOB_PREFIX")
	setStr(&cfg.Blob.AccessKey, "SAFEARB_BLOB_ACCESS_KEY")
	setStr(&cfg.Blob.SecretKey, "SAFEARB_BLOB_SECRET_KEY")
	setBool(&cfg.Blob.UseSSL, "SAFEARB_BLOB_USE_SSL")
	setBool(&cfg.Blob.ForcePathStyle, "SAFEARB_BLOB_FORCE_PATH_STYLE")
	setBool(&cfg.Blob.ArchiveEnabled, "SAFEARB_BLOB_ARCHIVE_ENABLED")
	setDuration(&cfg.Blob.ArchiveInterval, "SAFEARB_BLOB_ARCHIVE_INTERVAL")
	setInt(&cfg.Blob.RetentionDays, "SAFEARB_BLOB_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SAFEARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SAFEARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SAFEARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SAFEARB_NOTIFY_EVENTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SAFEARB_SERVER_ENABLED")
	setStr(&cfg.Server.Addr, "SAFEARB_SERVER_ADDR")
	setStr(&cfg.Server.APIKey, "SAFEARB_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "SAFEARB_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "SAFEARB_SERVER_RATE_LIMIT")

	// ── Feed ──
	setStr(&cfg.Feed.PriceURL, "SAFEARB_FEED_PRICE_URL")
	setStr(&cfg.Feed.APIKey, "SAFEARB_FEED_API_KEY")
	setDuration(&cfg.Feed.Timeout, "SAFEARB_FEED_TIMEOUT")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
