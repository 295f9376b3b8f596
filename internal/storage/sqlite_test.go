package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"invitebot/internal/invite"
	logx "invitebot/pkg/logx"
)

func newTestSQLite(t *testing.T) *sqliteStore {
	t.Helper()
	st, err := openSQLite(context.Background(), Config{Path: filepath.Join(t.TempDir(), "game.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	_, err = st.db.Exec(`
		INSERT INTO players(id, login, nickname, telegram_id, telegram_first_name) VALUES
			('p1', 'anna_l', 'Anna', 111, 'Anna'),
			('p2', 'bob', 'Bob', 123, NULL),
			('p3', NULL, 'Ghost', NULL, NULL);
		INSERT INTO games(id, game_name, game_mode, prize) VALUES
			('g1', 'Quick Match', 'NUMBERS', NULL),
			('g2', NULL, 'WORDS', '100 coins');
		INSERT INTO invitations(id, game_id, from_player_id, to_player_id, status) VALUES
			('inv1', 'g1', 'p1', 'p2', 'PENDING'),
			('inv2', 'g2', 'p2', 'p1', 'PENDING'),
			('inv3', 'g1', 'p1', 'p3', 'ACCEPTED');
	`)
	require.NoError(t, err)
	return st
}

func TestSQLitePendingInvitations(t *testing.T) {
	st := newTestSQLite(t)

	got, err := st.PendingInvitations(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	ids := []string{got[0].ID, got[1].ID}
	require.ElementsMatch(t, []string{"inv1", "inv2"}, ids)
	for _, inv := range got {
		require.Equal(t, invite.StatusPending, inv.Status)
		require.False(t, inv.CreatedAt.IsZero(), "created_at should parse")
	}
}

func TestSQLitePlayerByID(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	p, err := st.PlayerByID(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "Anna", p.FirstName)
	require.True(t, p.Notifiable())
	require.EqualValues(t, 111, *p.TelegramID)

	ghost, err := st.PlayerByID(ctx, "p3")
	require.NoError(t, err)
	require.False(t, ghost.Notifiable())
	require.Empty(t, ghost.Login)

	_, err = st.PlayerByID(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteGameByID(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	g, err := st.GameByID(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, "Quick Match", g.Name)
	require.Equal(t, invite.ModeNumbers, g.Mode)
	require.Nil(t, g.Prize)

	g2, err := st.GameByID(ctx, "g2")
	require.NoError(t, err)
	require.Empty(t, g2.Name)
	require.NotNil(t, g2.Prize)
	require.Equal(t, "100 coins", *g2.Prize)

	_, err = st.GameByID(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteUpdateInvitationStatus(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, st.UpdateInvitationStatus(ctx, "inv1", invite.StatusRejected))

	pending, err := st.PendingInvitations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "inv2", pending[0].ID)

	// Answered invitations stay answered.
	require.ErrorIs(t, st.UpdateInvitationStatus(ctx, "inv1", invite.StatusAccepted), ErrNotPending)
	require.ErrorIs(t, st.UpdateInvitationStatus(ctx, "inv3", invite.StatusRejected), ErrNotPending)
	require.ErrorIs(t, st.UpdateInvitationStatus(ctx, "ghost", invite.StatusRejected), ErrNotFound)
	require.Error(t, st.UpdateInvitationStatus(ctx, "inv2", invite.StatusPending))
}

func TestResolveDriver(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "explicit", cfg: Config{Driver: "Postgres", URL: "https://x", Key: "k"}, want: "postgres"},
		{name: "supabase", cfg: Config{URL: "https://x.supabase.co", Key: "k"}, want: "supabase"},
		{name: "url without key", cfg: Config{URL: "https://x.supabase.co", DSN: "postgres://db"}, want: "postgres"},
		{name: "sqlite", cfg: Config{Path: "./game.db"}, want: "sqlite"},
		{name: "nothing", cfg: Config{}, want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, ResolveDriver(tt.cfg))
		})
	}
}

func TestOpenWithoutDatastore(t *testing.T) {
	_, err := Open(context.Background(), Config{}, logx.Nop())
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = Open(context.Background(), Config{Driver: "mongo"}, logx.Nop())
	require.Error(t, err)
}
