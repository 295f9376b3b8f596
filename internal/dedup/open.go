package dedup

import (
	"context"
	"fmt"
	"strings"
)

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch d := strings.ToLower(strings.TrimSpace(cfg.Driver)); d {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		st, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("dedup sqlite: %w", err)
		}
		return st, nil
	case "redis":
		st, err := OpenRedis(ctx, cfg.RedisURL, cfg.RedisKey)
		if err != nil {
			return nil, fmt.Errorf("dedup redis: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown dedup driver: %s", d)
	}
}
