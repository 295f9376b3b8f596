// Package invite holds the records the relay reads from the game datastore.
package invite

import "time"

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
	StatusExpired  Status = "EXPIRED"
)

// CanTransition reports whether an invitation may move from s to next.
// Only PENDING invitations are ever answered.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && (next == StatusAccepted || next == StatusRejected)
}

type Mode string

const (
	ModeNumbers    Mode = "NUMBERS"
	ModeWords      Mode = "WORDS"
	ModeBattleship Mode = "BATTLESHIP"
)

type Invitation struct {
	ID           string
	GameID       string
	FromPlayerID string
	ToPlayerID   string
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Player struct {
	ID         string
	TelegramID *int64 // nil: the player never linked a chat and cannot be notified
	FirstName  string
	Login      string
	Nickname   string
}

// Notifiable reports whether the player has a chat the bot can write to.
func (p Player) Notifiable() bool {
	return p.TelegramID != nil && *p.TelegramID != 0
}

type Game struct {
	ID    string
	Name  string
	Mode  Mode
	Prize *string
}
