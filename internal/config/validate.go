package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"invitebot/internal/dedup"
	"invitebot/internal/storage"
	logx "invitebot/pkg/logx"
)

var (
	ErrMissingToken     = errors.New("BOT_TOKEN (telegram.token) is required")
	ErrMissingWebAppURL = errors.New("WEBAPP_URL (webapp_url) is required")
)

// Validate checks everything that must hold before the relay starts.
// Errors name the offending key.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return ErrMissingToken
	}

	raw := strings.TrimSpace(c.WebAppURL)
	if raw == "" {
		return ErrMissingWebAppURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("webapp_url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("webapp_url: %q is not an absolute URL", raw)
	}

	if storage.ResolveDriver(c.StorageOptions()) == "" {
		return storage.ErrNotConfigured
	}
	switch d := strings.ToLower(strings.TrimSpace(c.Datastore.Driver)); d {
	case "", "supabase", "rest", "postgres", "postgresql", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("datastore.driver: unknown driver %q", d)
	}

	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"telegram.send_timeout", c.Telegram.SendTimeout},
		{"datastore.timeout", c.Datastore.Timeout},
		{"relay.poll_interval", c.Relay.PollInterval},
		{"dedup.retention", c.Dedup.Retention},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}

	if c.Dedup.MaxEntries < 0 {
		return fmt.Errorf("dedup.max_entries: must be >= 0, got %d", c.Dedup.MaxEntries)
	}
	switch d := strings.ToLower(strings.TrimSpace(c.Dedup.Driver)); d {
	case "", "memory":
	case "sqlite", "sqlite3":
		if strings.TrimSpace(c.Dedup.Path) == "" {
			return errors.New("dedup.path: required for the sqlite driver")
		}
	case "redis":
		if strings.TrimSpace(c.Dedup.RedisURL) == "" {
			return errors.New("dedup.redis_url: required for the redis driver")
		}
	default:
		return fmt.Errorf("dedup.driver: unknown driver %q", d)
	}
	if err := dedup.ValidateSchedule(c.Dedup.PruneSchedule); err != nil {
		return fmt.Errorf("dedup.prune_schedule: %w", err)
	}
	return nil
}

// StorageOptions maps the datastore section onto storage.Config.
func (c *Config) StorageOptions() storage.Config {
	return storage.Config{
		Driver:  strings.TrimSpace(c.Datastore.Driver),
		URL:     strings.TrimSpace(c.Datastore.URL),
		Key:     strings.TrimSpace(c.Datastore.Key),
		DSN:     strings.TrimSpace(c.Datastore.DSN),
		Path:    strings.TrimSpace(c.Datastore.Path),
		Timeout: c.Datastore.TimeoutDuration(),
	}
}

// DedupOptions maps the dedup section onto dedup.Config.
func (c *Config) DedupOptions() dedup.Config {
	return dedup.Config{
		Driver:   strings.TrimSpace(c.Dedup.Driver),
		Path:     strings.TrimSpace(c.Dedup.Path),
		RedisURL: strings.TrimSpace(c.Dedup.RedisURL),
		RedisKey: strings.TrimSpace(c.Dedup.RedisKey),
	}
}

// LogOptions maps the logging section onto logx.Config.
func (c *Config) LogOptions() logx.Config {
	return logx.Config{
		Level:    c.Logging.Level,
		Console:  c.Logging.Console,
		FilePath: strings.TrimSpace(c.Logging.File),
		Telegram: logx.TelegramConfig{
			ChatID:     c.Logging.TelegramChat,
			MinLevel:   c.Logging.TelegramMinLevel,
			RatePerSec: c.Logging.TelegramRate,
		},
	}
}
