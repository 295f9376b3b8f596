package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"invitebot/internal/invite"
	logx "invitebot/pkg/logx"
)

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (*postgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	// The relay is a single sequential worker plus the occasional callback.
	if pcfg.MaxConns > 4 {
		pcfg.MaxConns = 4
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	log.Debug("postgres datastore opened", logx.String("host", pcfg.ConnConfig.Host))
	return &postgresStore{pool: pool, log: log}, nil
}

func (s *postgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *postgresStore) PendingInvitations(ctx context.Context) ([]invite.Invitation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, game_id::text, from_player_id::text, to_player_id::text, status,
		        COALESCE(created_at, now()), COALESCE(updated_at, created_at, now())
		 FROM invitations WHERE status = $1`, string(invite.StatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []invite.Invitation
	for rows.Next() {
		var (
			inv    invite.Invitation
			status string
		)
		if err := rows.Scan(&inv.ID, &inv.GameID, &inv.FromPlayerID, &inv.ToPlayerID, &status, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, err
		}
		inv.Status = invite.Status(status)
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *postgresStore) PlayerByID(ctx context.Context, id string) (invite.Player, error) {
	var p invite.Player
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, telegram_id, COALESCE(telegram_first_name, ''), COALESCE(login, ''), COALESCE(nickname, '')
		 FROM players WHERE id = $1`, id,
	).Scan(&p.ID, &p.TelegramID, &p.FirstName, &p.Login, &p.Nickname)
	if errors.Is(err, pgx.ErrNoRows) {
		return invite.Player{}, ErrNotFound
	}
	if err != nil {
		return invite.Player{}, err
	}
	return p, nil
}

func (s *postgresStore) GameByID(ctx context.Context, id string) (invite.Game, error) {
	var (
		g    invite.Game
		mode string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, COALESCE(game_name, ''), COALESCE(game_mode, ''), prize FROM games WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &mode, &g.Prize)
	if errors.Is(err, pgx.ErrNoRows) {
		return invite.Game{}, ErrNotFound
	}
	if err != nil {
		return invite.Game{}, err
	}
	g.Mode = invite.Mode(mode)
	return g, nil
}

func (s *postgresStore) UpdateInvitationStatus(ctx context.Context, id string, status invite.Status) error {
	if !invite.StatusPending.CanTransition(status) {
		return fmt.Errorf("invalid target status %q", status)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE invitations SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`,
		id, string(status), string(invite.StatusPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var cur string
	err = s.pool.QueryRow(ctx, `SELECT status FROM invitations WHERE id = $1`, id).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrNotPending
}
