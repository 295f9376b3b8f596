package relay

import (
	"context"
	"errors"
	"fmt"

	"invitebot/internal/invite"
	"invitebot/internal/storage"
	"invitebot/pkg/tgui"
)

var (
	// ErrNoChannel marks a recipient without a Telegram id.
	ErrNoChannel = errors.New("player has no telegram id")
	// ErrIDTooLong marks an invitation whose id does not fit in the reject button's callback data.
	ErrIDTooLong = errors.New("invitation id exceeds callback data limit")
)

// Fields reported by ResolveError.
const (
	FieldInvitation = "invitation"
	FieldSender     = "from_player"
	FieldRecipient  = "to_player"
	FieldChannel    = "to_player.telegram_id"
	FieldGame       = "game"
)

// ResolveError reports which reference of an invitation could not be resolved.
// Err is storage.ErrNotFound, ErrNoChannel, ErrIDTooLong or the underlying datastore error.
type ResolveError struct {
	Field string
	Ref   string
	Err   error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve %s %q: %v", e.Field, e.Ref, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Lookup is the part of the datastore the resolver needs.
type Lookup interface {
	PlayerByID(ctx context.Context, id string) (invite.Player, error)
	GameByID(ctx context.Context, id string) (invite.Game, error)
}

// Notice is a fully resolved invitation, ready to render.
type Notice struct {
	Invitation invite.Invitation
	Sender     invite.Player
	Recipient  invite.Player
	Game       invite.Game
}

// Resolver loads the entities an invitation refers to.
type Resolver struct {
	lookup Lookup
}

func NewResolver(l Lookup) *Resolver { return &Resolver{lookup: l} }

// Resolve checks that the invitation id fits a button, then performs three point reads. Any missing entity, or a recipient that
// cannot be reached, yields a *ResolveError and no Notice.
func (r *Resolver) Resolve(ctx context.Context, inv invite.Invitation) (Notice, error) {
	if len(RejectPrefix)+len(inv.ID) > tgui.MaxCallbackDataLen {
		return Notice{}, &ResolveError{Field: FieldInvitation, Ref: inv.ID, Err: ErrIDTooLong}
	}
	sender, err := r.lookup.PlayerByID(ctx, inv.FromPlayerID)
	if err != nil {
		return Notice{}, &ResolveError{Field: FieldSender, Ref: inv.FromPlayerID, Err: err}
	}
	recipient, err := r.lookup.PlayerByID(ctx, inv.ToPlayerID)
	if err != nil {
		return Notice{}, &ResolveError{Field: FieldRecipient, Ref: inv.ToPlayerID, Err: err}
	}
	if !recipient.Notifiable() {
		return Notice{}, &ResolveError{Field: FieldChannel, Ref: inv.ToPlayerID, Err: ErrNoChannel}
	}
	game, err := r.lookup.GameByID(ctx, inv.GameID)
	if err != nil {
		return Notice{}, &ResolveError{Field: FieldGame, Ref: inv.GameID, Err: err}
	}
	return Notice{Invitation: inv, Sender: sender, Recipient: recipient, Game: game}, nil
}

// IsMissing reports whether err is a resolution failure caused by absent data
// rather than a datastore outage.
func IsMissing(err error) bool {
	return errors.Is(err, storage.ErrNotFound) || errors.Is(err, ErrNoChannel)
}
