// Package storage reads invitations, players and games from the game datastore.
//
// It supports:
//   - supabase: the PostgREST endpoint in front of the game database
//   - postgres: a direct connection to the same database
//   - sqlite:   a local file with the same tables (development, tests)
package storage

import (
	"context"
	"errors"
	"time"

	"invitebot/internal/invite"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrNotPending    = errors.New("invitation is no longer pending")
	ErrNotConfigured = errors.New("datastore is not configured: set SUPABASE_URL/SUPABASE_KEY, DATABASE_URL or SQLITE_PATH")
)

// Store is the datastore contract used by the relay and the callback responder.
// Lookups return ErrNotFound when no row matches.
type Store interface {
	PendingInvitations(ctx context.Context) ([]invite.Invitation, error)
	PlayerByID(ctx context.Context, id string) (invite.Player, error)
	GameByID(ctx context.Context, id string) (invite.Game, error)

	// UpdateInvitationStatus answers a PENDING invitation.
	// It returns ErrNotPending if the invitation was already answered.
	UpdateInvitationStatus(ctx context.Context, id string, status invite.Status) error

	Close() error
}

// Config configures the datastore.
//
// Driver values:
//   - "supabase": URL + Key
//   - "postgres": DSN
//   - "sqlite":   Path
//
// If Driver is empty it is derived from whichever of the above is set.
type Config struct {
	Driver string

	URL string
	Key string

	DSN string

	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// Timeout bounds a single HTTP request (supabase only).
	Timeout time.Duration
}
