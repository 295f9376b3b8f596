package config

import "time"

// Config is the full process configuration.
//
// Durations are Go duration strings ("3s", "72h"). Every field can be set from
// the config file (json key) and overridden from the environment (env tag).
type Config struct {
	WebAppURL string `json:"webapp_url" env:"WEBAPP_URL"`

	Telegram  TelegramConfig  `json:"telegram"`
	Datastore DatastoreConfig `json:"datastore"`
	Relay     RelayConfig     `json:"relay"`
	Dedup     DedupConfig     `json:"dedup"`
	Logging   LoggingConfig   `json:"logging"`
	Ops       OpsConfig       `json:"ops"`
}

type TelegramConfig struct {
	Token       string  `json:"token" env:"BOT_TOKEN"`
	PollTimeout string  `json:"poll_timeout" env:"TELEGRAM_POLL_TIMEOUT"`
	SendTimeout string  `json:"send_timeout" env:"TELEGRAM_SEND_TIMEOUT"`
	RatePerSec  float64 `json:"rate_per_sec" env:"TELEGRAM_RATE_PER_SEC"`

	// Callbacks enables long polling for the invitation buttons. Leave it off
	// when another process already polls with the same token.
	Callbacks bool `json:"callbacks" env:"TELEGRAM_CALLBACKS"`
}

// DatastoreConfig selects the invitation datastore. Driver is derived from
// whichever connection setting is present when left empty.
type DatastoreConfig struct {
	Driver  string `json:"driver" env:"DATASTORE_DRIVER"`
	URL     string `json:"url" env:"SUPABASE_URL"`
	Key     string `json:"key" env:"SUPABASE_KEY"`
	DSN     string `json:"dsn" env:"DATABASE_URL"`
	Path    string `json:"path" env:"SQLITE_PATH"`
	Timeout string `json:"timeout" env:"DATASTORE_TIMEOUT"`
}

type RelayConfig struct {
	PollInterval string `json:"poll_interval" env:"POLL_INTERVAL"`
}

type DedupConfig struct {
	MaxEntries int    `json:"max_entries" env:"DEDUP_MAX_ENTRIES"`
	Driver     string `json:"driver" env:"DEDUP_DRIVER"`
	Path       string `json:"path" env:"DEDUP_PATH"`
	RedisURL   string `json:"redis_url" env:"REDIS_URL"`
	RedisKey   string `json:"redis_key" env:"DEDUP_REDIS_KEY"`

	// Retention and PruneSchedule only apply to persistent drivers.
	Retention     string `json:"retention" env:"DEDUP_RETENTION"`
	PruneSchedule string `json:"prune_schedule" env:"DEDUP_PRUNE_SCHEDULE"`
}

type LoggingConfig struct {
	Level   string `json:"level" env:"LOG_LEVEL"`
	Console bool   `json:"console" env:"LOG_CONSOLE"`
	File    string `json:"file" env:"LOG_FILE"`

	TelegramChat     int64  `json:"telegram_chat" env:"LOG_TELEGRAM_CHAT"`
	TelegramMinLevel string `json:"telegram_min_level" env:"LOG_TELEGRAM_LEVEL"`
	TelegramRate     int    `json:"telegram_rate_per_sec" env:"LOG_TELEGRAM_RATE"`
}

type OpsConfig struct {
	// Addr is the listen address of the metrics/health server; empty disables it.
	Addr string `json:"addr" env:"OPS_ADDR"`
}

const (
	DefaultPollInterval     = 3 * time.Second
	DefaultMaxEntries       = 1000
	DefaultPollTimeout      = 10 * time.Second
	DefaultSendTimeout      = 10 * time.Second
	DefaultDedupRetention   = 72 * time.Hour
	DefaultDatastoreTimeout = 10 * time.Second
)

// Default returns the configuration every load starts from.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{
			PollTimeout: DefaultPollTimeout.String(),
			SendTimeout: DefaultSendTimeout.String(),
			RatePerSec:  25,
		},
		Relay: RelayConfig{PollInterval: DefaultPollInterval.String()},
		Dedup: DedupConfig{
			MaxEntries: DefaultMaxEntries,
			Driver:     "memory",
			Retention:  DefaultDedupRetention.String(),
		},
		Logging: LoggingConfig{
			Level:            "INFO",
			Console:          true,
			TelegramMinLevel: "WARN",
			TelegramRate:     1,
		},
	}
}

// Parsed duration accessors. Validate has already rejected malformed values,
// so these fall back to defaults silently.

func (c TelegramConfig) PollTimeoutDuration() time.Duration {
	d, _ := ParseDurationOrDefault("telegram.poll_timeout", c.PollTimeout, DefaultPollTimeout)
	return d
}

func (c TelegramConfig) SendTimeoutDuration() time.Duration {
	d, _ := ParseDurationOrDefault("telegram.send_timeout", c.SendTimeout, DefaultSendTimeout)
	return d
}

func (c DatastoreConfig) TimeoutDuration() time.Duration {
	d, _ := ParseDurationOrDefault("datastore.timeout", c.Timeout, DefaultDatastoreTimeout)
	return d
}

func (c RelayConfig) Interval() time.Duration {
	d, _ := ParseDurationOrDefault("relay.poll_interval", c.PollInterval, DefaultPollInterval)
	return d
}

func (c DedupConfig) RetentionDuration() time.Duration {
	d, _ := ParseDurationOrDefault("dedup.retention", c.Retention, DefaultDedupRetention)
	return d
}
