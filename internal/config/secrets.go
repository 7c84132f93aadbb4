package config

import (
	"net/url"
	"slices"
)

const redacted = "***"

// RedactedConfig returns a copy of cfg that is safe to log: credentials are
// masked and slices are copied so the original cannot be mutated through it.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	out.Chain.RPCURL = redactURL(cfg.Chain.RPCURL)
	out.Postgres.DSN = redactURL(cfg.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	return out
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// redactURL keeps the scheme and host of a URL, which is useful in logs,
// and masks user info, path and query, where RPC providers and DSNs carry
// keys. Strings that do not parse are masked entirely.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return redacted
	}
	masked := u.Scheme + "://" + u.Host
	if u.User != nil || u.Path != "" || u.RawQuery != "" {
		masked += "/" + redacted
	}
	return masked
}
