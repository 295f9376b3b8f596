package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"invitebot/internal/storage"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func validConfig() *Config {
	cfg := Default()
	cfg.Telegram.Token = "123:abc"
	cfg.WebAppURL = "https://t.me/wordsbot/app"
	cfg.Datastore.Path = "/tmp/game.db"
	return cfg
}

func TestLoadDefaultsFromEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("WEBAPP_URL", "https://t.me/wordsbot/app")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "game.db"))

	cfg, err := Load(LoadOptions{EnvFiles: []string{}})
	require.NoError(t, err)

	require.Equal(t, 3*time.Second, cfg.Relay.Interval())
	require.Equal(t, 1000, cfg.Dedup.MaxEntries)
	require.Equal(t, "memory", cfg.Dedup.Driver)
	require.Equal(t, 72*time.Hour, cfg.Dedup.RetentionDuration())
	require.Equal(t, 10*time.Second, cfg.Telegram.PollTimeoutDuration())
	require.False(t, cfg.Telegram.Callbacks)
	require.True(t, cfg.Logging.Console)
	require.Equal(t, "sqlite", storage.ResolveDriver(cfg.StorageOptions()))
}

func TestLoadYAMLThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "invitebot.yaml", `
webapp_url: https://t.me/wordsbot/app
telegram:
  token: "123:abc"
  callbacks: true
datastore:
  dsn: postgres://localhost/game
relay:
  poll_interval: 5s
dedup:
  max_entries: 10
  driver: sqlite
  path: ./dedup.db
  prune_schedule: "@every 1h"
`)
	t.Setenv("POLL_INTERVAL", "7s")

	cfg, err := Load(LoadOptions{Path: path, EnvFiles: []string{}})
	require.NoError(t, err)

	require.Equal(t, 7*time.Second, cfg.Relay.Interval())
	require.Equal(t, 10, cfg.Dedup.MaxEntries)
	require.True(t, cfg.Telegram.Callbacks)
	require.Equal(t, "postgres", storage.ResolveDriver(cfg.StorageOptions()))
	require.Equal(t, "sqlite", cfg.DedupOptions().Driver)
	require.Equal(t, "./dedup.db", cfg.DedupOptions().Path)
	// untouched keys keep their defaults
	require.True(t, cfg.Logging.Console)
	require.Equal(t, "INFO", cfg.Logging.Level)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "invitebot.json", `{"webapp_url":"https://x.test","relay":{"interval":"3s"}}`)

	_, err := Build(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")
}

func TestLoadRejectsTrailingData(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "invitebot.json", `{"webapp_url":"https://x.test"}{"ops":{}}`)

	_, err := Build(path)
	require.ErrorContains(t, err, "trailing data")
}

func TestLoadEnvFiles(t *testing.T) {
	// Register restore of the original value, then clear it so the file wins.
	t.Setenv("WEBAPP_URL", "placeholder")
	require.NoError(t, os.Unsetenv("WEBAPP_URL"))
	t.Setenv("BOT_TOKEN", "from-process")
	t.Setenv("SQLITE_PATH", "/tmp/game.db")

	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", "WEBAPP_URL=https://t.me/from/file\nBOT_TOKEN=from-file\n")

	n, err := LoadEnvFiles(envPath, filepath.Join(dir, ".env.local"))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	cfg, err := Build("")
	require.NoError(t, err)
	require.Equal(t, "https://t.me/from/file", cfg.WebAppURL)
	require.Equal(t, "from-process", cfg.Telegram.Token)
}

func TestLoadFailsFast(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("WEBAPP_URL", "https://t.me/wordsbot/app")

	_, err := Load(LoadOptions{EnvFiles: []string{}})
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, validConfig().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
		is     error
	}{
		{name: "no token", mutate: func(c *Config) { c.Telegram.Token = " " }, is: ErrMissingToken},
		{name: "no webapp", mutate: func(c *Config) { c.WebAppURL = "" }, is: ErrMissingWebAppURL},
		{name: "relative webapp", mutate: func(c *Config) { c.WebAppURL = "/app" }, want: "not an absolute URL"},
		{name: "no datastore", mutate: func(c *Config) { c.Datastore = DatastoreConfig{} }, is: storage.ErrNotConfigured},
		{name: "supabase needs key", mutate: func(c *Config) {
			c.Datastore = DatastoreConfig{URL: "https://db.supabase.co"}
		}, is: storage.ErrNotConfigured},
		{name: "unknown datastore", mutate: func(c *Config) { c.Datastore.Driver = "mongo" }, want: "datastore.driver"},
		{name: "bad interval", mutate: func(c *Config) { c.Relay.PollInterval = "soon" }, want: "relay.poll_interval"},
		{name: "negative retention", mutate: func(c *Config) { c.Dedup.Retention = "-1h" }, want: "dedup.retention"},
		{name: "negative max entries", mutate: func(c *Config) { c.Dedup.MaxEntries = -1 }, want: "dedup.max_entries"},
		{name: "sqlite dedup without path", mutate: func(c *Config) { c.Dedup.Driver = "sqlite" }, want: "dedup.path"},
		{name: "redis dedup without url", mutate: func(c *Config) { c.Dedup.Driver = "redis" }, want: "dedup.redis_url"},
		{name: "unknown dedup", mutate: func(c *Config) { c.Dedup.Driver = "etcd" }, want: "dedup.driver"},
		{name: "bad schedule", mutate: func(c *Config) { c.Dedup.PruneSchedule = "every hour" }, want: "dedup.prune_schedule"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			if tc.is != nil {
				require.ErrorIs(t, err, tc.is)
			}
			if tc.want != "" {
				require.Contains(t, err.Error(), tc.want)
			}
		})
	}
}

func TestOptionsMapping(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Datastore.Timeout = "2s"
	cfg.Dedup.RedisKey = " custom "
	cfg.Logging.File = " /var/log/invitebot.log "
	cfg.Logging.TelegramChat = -100123

	require.Equal(t, 2*time.Second, cfg.StorageOptions().Timeout)
	require.Equal(t, "custom", cfg.DedupOptions().RedisKey)

	lc := cfg.LogOptions()
	require.Equal(t, "/var/log/invitebot.log", lc.FilePath)
	require.EqualValues(t, -100123, lc.Telegram.ChatID)
	require.Equal(t, "WARN", lc.Telegram.MinLevel)
}

func TestParseDuration(t *testing.T) {
	t.Parallel()

	d, err := ParseDurationField("x", "")
	require.NoError(t, err)
	require.Zero(t, d)

	d, err = ParseDurationOrDefault("x", "0s", time.Minute)
	require.NoError(t, err)
	require.Equal(t, time.Minute, d)

	_, err = ParseDurationField("relay.poll_interval", "3 seconds")
	require.ErrorContains(t, err, "relay.poll_interval")
}
