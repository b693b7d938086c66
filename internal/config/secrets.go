package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Agent key
	out.AgentKey = cfg.AgentKey
	redact(&out.AgentKey.PrivateKey)
	redact(&out.AgentKey.KeyPassword)

	// Chain -- the RPC URL often embeds a provider API key.
	out.Chain = cfg.Chain
	redact(&out.Chain.RPCURL)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Blob
	out.Blob = cfg.Blob
	redact(&out.Blob.AccessKey)
	redact(&out.Blob.SecretKey)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Server / feed
	out.Server = cfg.Server
	redact(&out.Server.APIKey)
	out.Feed = cfg.Feed
	redact(&out.Feed.APIKey)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}
	if cfg.Consensus.Participants != nil {
		out.Consensus.Participants = make([]string, len(cfg.Consensus.Participants))
		copy(out.Consensus.Participants, cfg.Consensus.Participants)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
