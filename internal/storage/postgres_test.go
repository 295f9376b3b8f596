package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"invitebot/internal/invite"
	logx "invitebot/pkg/logx"
)

const postgresSchema = `
CREATE TABLE players (
	id                  text PRIMARY KEY,
	login               text,
	nickname            text,
	telegram_id         bigint,
	telegram_first_name text
);
CREATE TABLE games (
	id        text PRIMARY KEY,
	game_name text,
	game_mode text,
	prize     text
);
CREATE TABLE invitations (
	id             text PRIMARY KEY,
	game_id        text NOT NULL,
	from_player_id text NOT NULL,
	to_player_id   text NOT NULL,
	status         text NOT NULL DEFAULT 'PENDING',
	created_at     timestamptz DEFAULT now(),
	updated_at     timestamptz
);
INSERT INTO players(id, login, nickname, telegram_id, telegram_first_name) VALUES
	('p1', 'anna_l', 'Anna', 111, 'Anna'),
	('p2', 'bob', NULL, 123, NULL);
INSERT INTO games(id, game_name, game_mode, prize) VALUES
	('g1', 'Quick Match', 'NUMBERS', NULL),
	('g2', NULL, 'WORDS', '100 coins');
INSERT INTO invitations(id, game_id, from_player_id, to_player_id, status) VALUES
	('inv1', 'g1', 'p1', 'p2', 'PENDING'),
	('inv2', 'g2', 'p2', 'p1', 'ACCEPTED');
`

// withSearchPath points dsn at schema for both URL and keyword/value DSNs.
func withSearchPath(t *testing.T, dsn, schema string) string {
	t.Helper()
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		require.NoError(t, err)
		q := u.Query()
		q.Set("search_path", schema)
		u.RawQuery = q.Encode()
		return u.String()
	}
	return dsn + " search_path=" + schema
}

func newTestPostgres(t *testing.T) *postgresStore {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	schema := fmt.Sprintf("invitebot_test_%d", time.Now().UnixNano())
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, "SET search_path TO "+schema+";"+postgresSchema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		_ = conn.Close(context.Background())
	})

	st, err := openPostgres(ctx, Config{DSN: withSearchPath(t, dsn, schema)}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestPostgresReads(t *testing.T) {
	st := newTestPostgres(t)
	ctx := context.Background()

	pending, err := st.PendingInvitations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "inv1", pending[0].ID)
	require.Equal(t, invite.StatusPending, pending[0].Status)

	p, err := st.PlayerByID(ctx, "p2")
	require.NoError(t, err)
	require.Equal(t, "bob", p.Login)
	require.Empty(t, p.FirstName)
	require.EqualValues(t, 123, *p.TelegramID)

	_, err = st.PlayerByID(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)

	g, err := st.GameByID(ctx, "g2")
	require.NoError(t, err)
	require.Empty(t, g.Name)
	require.Equal(t, "100 coins", *g.Prize)

	_, err = st.GameByID(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresUpdateInvitationStatus(t *testing.T) {
	st := newTestPostgres(t)
	ctx := context.Background()

	require.NoError(t, st.UpdateInvitationStatus(ctx, "inv1", invite.StatusRejected))
	require.ErrorIs(t, st.UpdateInvitationStatus(ctx, "inv1", invite.StatusAccepted), ErrNotPending)
	require.ErrorIs(t, st.UpdateInvitationStatus(ctx, "inv2", invite.StatusRejected), ErrNotPending)
	require.ErrorIs(t, st.UpdateInvitationStatus(ctx, "nope", invite.StatusRejected), ErrNotFound)
	require.Error(t, st.UpdateInvitationStatus(ctx, "inv1", invite.StatusExpired))

	pending, err := st.PendingInvitations(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}
