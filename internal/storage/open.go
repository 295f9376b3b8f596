package storage

import (
	"context"
	"fmt"
	"strings"

	logx "invitebot/pkg/logx"
)

// ResolveDriver returns the effective driver for cfg, or "" if nothing is configured.
func ResolveDriver(cfg Config) string {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver != "" {
		return driver
	}
	switch {
	case strings.TrimSpace(cfg.URL) != "" && strings.TrimSpace(cfg.Key) != "":
		return "supabase"
	case strings.TrimSpace(cfg.DSN) != "":
		return "postgres"
	case strings.TrimSpace(cfg.Path) != "":
		return "sqlite"
	default:
		return ""
	}
}

// Open initializes the configured datastore.
// It returns ErrNotConfigured if no backend is configured.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := ResolveDriver(cfg); driver {
	case "":
		return nil, ErrNotConfigured
	case "supabase", "rest":
		return openREST(cfg, log)
	case "postgres", "postgresql":
		return openPostgres(ctx, cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown datastore driver: %s", driver)
	}
}
