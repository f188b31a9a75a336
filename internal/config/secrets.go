package config

import (
	"net/url"
	"slices"
)

const redacted = "***"

// RedactedConfig returns a copy of cfg that is safe to log. Plain secrets
// become "***". Connection URLs keep their scheme and host so operators can
// tell which backend is configured, but lose credentials, path and query.
func RedactedConfig(cfg *Config) Config {
	out := *cfg
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Notify.Events = slices.Clone(cfg.Notify.Events)

	for _, s := range []*string{
		&out.Supabase.Password,
		&out.Redis.Password,
		&out.S3.AccessKey,
		&out.S3.SecretKey,
		&out.Server.APIKey,
		&out.Server.WebhookSecret,
		&out.Notify.TelegramToken,
	} {
		if *s != "" {
			*s = redacted
		}
	}

	for _, s := range []*string{
		&out.Supabase.DSN,
		&out.ClickHouse.DSN,
		&out.Redis.URL,
		&out.Notify.DiscordWebhookURL,
	} {
		*s = redactURL(*s)
	}
	return out
}

// redactURL reduces a URL to scheme://host, with "***" standing in for any
// credentials, path or query. Strings that do not parse as URLs are fully
// redacted.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return redacted
	}
	s := u.Scheme + "://"
	if u.User != nil {
		s += redacted + "@"
	}
	s += u.Host
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" {
		s += "/" + redacted
	}
	return s
}
