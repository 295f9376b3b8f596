package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"invitebot/internal/invite"
	logx "invitebot/pkg/logx"
)

//go:embed schema.sql
var sqliteSchema string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (*sqliteStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Debug("sqlite datastore opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) PendingInvitations(ctx context.Context) ([]invite.Invitation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, game_id, from_player_id, to_player_id, status, created_at, updated_at
		 FROM invitations WHERE status = ?`, string(invite.StatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []invite.Invitation
	for rows.Next() {
		var (
			inv              invite.Invitation
			status           string
			created, updated string
		)
		if err := rows.Scan(&inv.ID, &inv.GameID, &inv.FromPlayerID, &inv.ToPlayerID, &status, &created, &updated); err != nil {
			return nil, err
		}
		inv.Status = invite.Status(status)
		inv.CreatedAt = parseTime(created)
		inv.UpdatedAt = parseTime(updated)
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PlayerByID(ctx context.Context, id string) (invite.Player, error) {
	var (
		p                      invite.Player
		tgID                   sql.NullInt64
		first, login, nickname sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, telegram_id, telegram_first_name, login, nickname FROM players WHERE id = ?`, id,
	).Scan(&p.ID, &tgID, &first, &login, &nickname)
	if errors.Is(err, sql.ErrNoRows) {
		return invite.Player{}, ErrNotFound
	}
	if err != nil {
		return invite.Player{}, err
	}
	if tgID.Valid {
		v := tgID.Int64
		p.TelegramID = &v
	}
	p.FirstName = first.String
	p.Login = login.String
	p.Nickname = nickname.String
	return p, nil
}

func (s *sqliteStore) GameByID(ctx context.Context, id string) (invite.Game, error) {
	var (
		g           invite.Game
		name, prize sql.NullString
		mode        string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, game_name, game_mode, prize FROM games WHERE id = ?`, id,
	).Scan(&g.ID, &name, &mode, &prize)
	if errors.Is(err, sql.ErrNoRows) {
		return invite.Game{}, ErrNotFound
	}
	if err != nil {
		return invite.Game{}, err
	}
	g.Name = name.String
	g.Mode = invite.Mode(mode)
	if prize.Valid {
		v := prize.String
		g.Prize = &v
	}
	return g, nil
}

func (s *sqliteStore) UpdateInvitationStatus(ctx context.Context, id string, status invite.Status) error {
	if !invite.StatusPending.CanTransition(status) {
		return fmt.Errorf("invalid target status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE invitations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339Nano), id, string(invite.StatusPending),
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	var cur string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM invitations WHERE id = ?`, id).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrNotPending
}

// parseTime accepts the timestamp shapes produced by sqlite and PostgREST.
// Unparseable values yield the zero time; timestamps are informational only.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999-07", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
