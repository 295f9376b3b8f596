// Package dedup remembers which invitations were already dispatched.
//
// The relay consults a Store before sending and records an entry only after the
// gateway accepted the message, so failed sends are retried on the next cycle.
// Entries are keyed by invitation id. The relay bounds growth by clearing the
// whole store once it exceeds a threshold; persistent drivers additionally
// support age-based pruning through Pruner.
package dedup

import (
	"context"
	"time"
)

// Store is a set of dispatched invitation ids. Implementations are safe for
// concurrent use.
type Store interface {
	Contains(ctx context.Context, id string) (bool, error)
	Insert(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Size(ctx context.Context) (int, error)
	Close() error
}

// Pruner is implemented by stores that record insertion time.
type Pruner interface {
	// Prune removes entries inserted before the given time and returns how many were removed.
	Prune(ctx context.Context, before time.Time) (int, error)
}

// Config selects and configures the dedup driver.
type Config struct {
	Driver   string // memory (default), sqlite, redis
	Path     string // sqlite
	RedisURL string // redis
	RedisKey string // redis; defaults to DefaultRedisKey
}

const DefaultRedisKey = "invitebot:dispatched"
