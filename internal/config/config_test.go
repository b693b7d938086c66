package config

import (
	"strings"
	"testing"
	"time"
)

// validConfig returns defaults plus the fields agent mode requires.
func validConfig() Config {
	cfg := Defaults()
	cfg.Chain.RPCURL = "https://rpc.gnosischain.com"
	cfg.Contracts.Router = "0x1111111111111111111111111111111111111111"
	cfg.Contracts.FlashPair = "0x2222222222222222222222222222222222222222"
	cfg.Contracts.MultiSend = "0x3333333333333333333333333333333333333333"
	cfg.Contracts.Safe = "0x4444444444444444444444444444444444444444"
	cfg.AgentKey.PrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	return cfg
}

func TestValidateOK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateDefaultsMissAgentInputs(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error for bare defaults in agent mode")
	}
	for _, want := range []string{"rpc_url", "router", "agent_key"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidateServerModeSkipsAgentInputs(t *testing.T) {
	cfg := Defaults()
	cfg.App.Mode = "server"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil in server mode", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.App.Mode = "daemon" },
			wantErr: "unknown mode",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: "unknown level",
		},
		{
			name:    "token path too short",
			mutate:  func(c *Config) { c.Tokens.Path = "a:0x1111111111111111111111111111111111111111" },
			wantErr: "tokens",
		},
		{
			name:    "probe amount not an integer",
			mutate:  func(c *Config) { c.Trade.ProbeAmount = "10.5e18" },
			wantErr: "probe_amount",
		},
		{
			name:    "probe amount zero",
			mutate:  func(c *Config) { c.Trade.ProbeAmount = "0" },
			wantErr: "probe_amount",
		},
		{
			name:    "negative margin",
			mutate:  func(c *Config) { c.Trade.ProfitMargin = -0.01 },
			wantErr: "profit_margin",
		},
		{
			name:    "zero round interval",
			mutate:  func(c *Config) { c.Trade.RoundInterval.Duration = 0 },
			wantErr: "round_interval",
		},
		{
			name: "redis consensus without participants",
			mutate: func(c *Config) {
				c.Consensus.Mode = "redis"
				c.Consensus.Participants = nil
			},
			wantErr: "participants",
		},
		{
			name: "bad participant address",
			mutate: func(c *Config) {
				c.Consensus.Mode = "redis"
				c.Consensus.Participants = []string{"not-an-address"}
			},
			wantErr: "not a valid address",
		},
		{
			name:    "bad contract address",
			mutate:  func(c *Config) { c.Contracts.Safe = "0x123" },
			wantErr: "safe",
		},
		{
			name: "archive without postgres",
			mutate: func(c *Config) {
				c.Blob.Enabled = true
				c.Blob.AccessKey = "key"
				c.Blob.SecretKey = "secret"
				c.Blob.ArchiveEnabled = true
				c.Postgres.Enabled = false
			},
			wantErr: "archive_enabled requires postgres",
		},
		{
			name: "encrypted key without password",
			mutate: func(c *Config) {
				c.AgentKey.PrivateKey = ""
				c.AgentKey.EncryptedKeyPath = "/etc/safearb/key.enc"
				c.AgentKey.KeyPassword = ""
			},
			wantErr: "key_password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SAFEARB_MODE", "server")
	t.Setenv("SAFEARB_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("SAFEARB_TRADE_PROFIT_MARGIN", "0.1")
	t.Setenv("SAFEARB_BLOB_ARCHIVE_INTERVAL", "1h")
	t.Setenv("SAFEARB_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SAFEARB_POSTGRES_ENABLED", "true")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.App.Mode != "server" {
		t.Errorf("App.Mode = %q, want server", cfg.App.Mode)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("Redis.Addr = %q, want redis.internal:6380", cfg.Redis.Addr)
	}
	if cfg.Trade.ProfitMargin != 0.1 {
		t.Errorf("Trade.ProfitMargin = %g, want 0.1", cfg.Trade.ProfitMargin)
	}
	if cfg.Blob.ArchiveInterval.Duration != time.Hour {
		t.Errorf("Blob.ArchiveInterval = %v, want 1h", cfg.Blob.ArchiveInterval.Duration)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("Server.CORSOrigins = %v, want trimmed two-element list", cfg.Server.CORSOrigins)
	}
	if !cfg.Postgres.Enabled {
		t.Error("Postgres.Enabled = false, want true")
	}
}

func TestEnvOverridesIgnoreEmptyAndMalformed(t *testing.T) {
	t.Setenv("SAFEARB_REDIS_ADDR", "")
	t.Setenv("SAFEARB_TRADE_PROFIT_MARGIN", "not-a-number")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q, want default preserved", cfg.Redis.Addr)
	}
	if cfg.Trade.ProfitMargin != 0.05 {
		t.Errorf("Trade.ProfitMargin = %g, want default preserved", cfg.Trade.ProfitMargin)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Password = "hunter2"
	cfg.Postgres.Password = "pgpass"
	cfg.Blob.SecretKey = "s3secret"
	cfg.Notify.TelegramToken = "123:abc"
	cfg.Server.APIKey = "apikey"
	cfg.AgentKey.KeyPassword = "kp"

	red := RedactedConfig(&cfg)

	for name, got := range map[string]string{
		"AgentKey.PrivateKey":  red.AgentKey.PrivateKey,
		"AgentKey.KeyPassword": red.AgentKey.KeyPassword,
		"Chain.RPCURL":         red.Chain.RPCURL,
		"Redis.Password":       red.Redis.Password,
		"Postgres.Password":    red.Postgres.Password,
		"Blob.SecretKey":       red.Blob.SecretKey,
		"Notify.TelegramToken": red.Notify.TelegramToken,
		"Server.APIKey":        red.Server.APIKey,
	} {
		if got != "***" {
			t.Errorf("%s = %q, want redacted", name, got)
		}
	}

	// Non-secret fields are passed through untouched.
	if red.Redis.Addr != cfg.Redis.Addr {
		t.Errorf("Redis.Addr = %q, want %q", red.Redis.Addr, cfg.Redis.Addr)
	}
	if red.Tokens.Path != cfg.Tokens.Path {
		t.Errorf("Tokens.Path changed: %q", red.Tokens.Path)
	}

	// The original is not modified.
	if cfg.Redis.Password != "hunter2" {
		t.Errorf("original Redis.Password = %q, want hunter2", cfg.Redis.Password)
	}

	// Slice copies are independent.
	red.Server.CORSOrigins[0] = "mutated"
	if cfg.Server.CORSOrigins[0] == "mutated" {
		t.Error("redacted copy shares CORSOrigins backing array with original")
	}

	// Empty secrets stay empty rather than becoming "***".
	if red.Postgres.DSN != "" {
		t.Errorf("Postgres.DSN = %q, want empty", red.Postgres.DSN)
	}
}
