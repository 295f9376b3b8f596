package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"invitebot/internal/invite"
	logx "invitebot/pkg/logx"
)

// restStore talks to the PostgREST API that Supabase exposes under /rest/v1.
type restStore struct {
	base *url.URL
	key  string
	http *http.Client
	log  logx.Logger
}

type invitationRow struct {
	ID           string  `json:"id"`
	GameID       string  `json:"game_id"`
	FromPlayerID string  `json:"from_player_id"`
	ToPlayerID   string  `json:"to_player_id"`
	Status       string  `json:"status"`
	CreatedAt    *string `json:"created_at"`
	UpdatedAt    *string `json:"updated_at"`
}

type playerRow struct {
	ID                string  `json:"id"`
	TelegramID        *int64  `json:"telegram_id"`
	TelegramFirstName *string `json:"telegram_first_name"`
	Login             *string `json:"login"`
	Nickname          *string `json:"nickname"`
}

type gameRow struct {
	ID       string  `json:"id"`
	GameName *string `json:"game_name"`
	GameMode *string `json:"game_mode"`
	Prize    *string `json:"prize"`
}

func openREST(cfg Config, log logx.Logger) (*restStore, error) {
	raw := strings.TrimSpace(cfg.URL)
	key := strings.TrimSpace(cfg.Key)
	if raw == "" || key == "" {
		return nil, ErrNotConfigured
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("supabase url %q is not an absolute url", raw)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/rest/v1/"
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	log.Debug("supabase datastore configured", logx.String("host", u.Host))
	return &restStore{base: u, key: key, http: &http.Client{Timeout: timeout}, log: log}, nil
}

func (s *restStore) Close() error {
	s.http.CloseIdleConnections()
	return nil
}

func (s *restStore) PendingInvitations(ctx context.Context) ([]invite.Invitation, error) {
	q := url.Values{}
	q.Set("select", "id,game_id,from_player_id,to_player_id,status,created_at,updated_at")
	q.Set("status", "eq."+string(invite.StatusPending))

	var rows []invitationRow
	if err := s.do(ctx, http.MethodGet, "invitations", q, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]invite.Invitation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toInvitation())
	}
	return out, nil
}

func (s *restStore) PlayerByID(ctx context.Context, id string) (invite.Player, error) {
	q := url.Values{}
	q.Set("select", "id,telegram_id,telegram_first_name,login,nickname")
	q.Set("id", "eq."+id)
	q.Set("limit", "1")

	var rows []playerRow
	if err := s.do(ctx, http.MethodGet, "players", q, nil, &rows); err != nil {
		return invite.Player{}, err
	}
	if len(rows) == 0 {
		return invite.Player{}, ErrNotFound
	}
	r := rows[0]
	return invite.Player{
		ID:         r.ID,
		TelegramID: r.TelegramID,
		FirstName:  deref(r.TelegramFirstName),
		Login:      deref(r.Login),
		Nickname:   deref(r.Nickname),
	}, nil
}

func (s *restStore) GameByID(ctx context.Context, id string) (invite.Game, error) {
	q := url.Values{}
	q.Set("select", "id,game_name,game_mode,prize")
	q.Set("id", "eq."+id)
	q.Set("limit", "1")

	var rows []gameRow
	if err := s.do(ctx, http.MethodGet, "games", q, nil, &rows); err != nil {
		return invite.Game{}, err
	}
	if len(rows) == 0 {
		return invite.Game{}, ErrNotFound
	}
	r := rows[0]
	return invite.Game{
		ID:    r.ID,
		Name:  deref(r.GameName),
		Mode:  invite.Mode(deref(r.GameMode)),
		Prize: r.Prize,
	}, nil
}

func (s *restStore) UpdateInvitationStatus(ctx context.Context, id string, status invite.Status) error {
	if !invite.StatusPending.CanTransition(status) {
		return fmt.Errorf("invalid target status %q", status)
	}
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("status", "eq."+string(invite.StatusPending))
	body := map[string]string{
		"status":     string(status),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	var updated []invitationRow
	if err := s.do(ctx, http.MethodPatch, "invitations", q, body, &updated); err != nil {
		return err
	}
	if len(updated) > 0 {
		return nil
	}

	q = url.Values{}
	q.Set("select", "id,status")
	q.Set("id", "eq."+id)
	var cur []invitationRow
	if err := s.do(ctx, http.MethodGet, "invitations", q, nil, &cur); err != nil {
		return err
	}
	if len(cur) == 0 {
		return ErrNotFound
	}
	return ErrNotPending
}

func (s *restStore) do(ctx context.Context, method, table string, q url.Values, in, out any) error {
	u := s.base.JoinPath(table)
	u.RawQuery = q.Encode()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("supabase %s %s: http %d: %s", method, table, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("supabase %s %s: decode: %w", method, table, err)
	}
	return nil
}

func (r invitationRow) toInvitation() invite.Invitation {
	return invite.Invitation{
		ID:           r.ID,
		GameID:       r.GameID,
		FromPlayerID: r.FromPlayerID,
		ToPlayerID:   r.ToPlayerID,
		Status:       invite.Status(r.Status),
		CreatedAt:    parseTime(deref(r.CreatedAt)),
		UpdatedAt:    parseTime(deref(r.UpdatedAt)),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
