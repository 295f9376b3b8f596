// Package responder answers the buttons attached to invitation messages.
//
// A press on "reject_<id>" or "accept_<id>" moves a PENDING invitation to
// REJECTED or ACCEPTED. Answered invitations are left untouched.
package responder

import (
	"context"
	"errors"
	"strings"

	"invitebot/internal/eventbus"
	"invitebot/internal/invite"
	"invitebot/internal/relay"
	"invitebot/internal/storage"
	"invitebot/internal/transport"
	logx "invitebot/pkg/logx"
)

const EventAnswered = "invitation.answered"

const (
	textRejected = "❌ Приглашение отклонено"
	textAccepted = "✅ Приглашение принято!"
	textHandled  = "Приглашение уже обработано"
	textFailed   = "❌ Ошибка"
)

// Updater is the datastore operation the responder needs.
type Updater interface {
	UpdateInvitationStatus(ctx context.Context, id string, status invite.Status) error
}

// Answerer acknowledges callback presses.
type Answerer interface {
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// Command is a parsed invitation button press.
type Command struct {
	InvitationID string
	Status       invite.Status
}

// Result values reported in Answered.Result.
const (
	ResultApplied = "applied"
	ResultHandled = "already_handled"
	ResultFailed  = "failed"
	ResultIgnored = "ignored"
)

// Answered is the payload of EventAnswered.
type Answered struct {
	InvitationID string
	Status       invite.Status
	FromID       int64
	Result       string
}

// ParseCallback recognises invitation button data.
func ParseCallback(data string) (Command, bool) {
	data = strings.TrimSpace(data)
	var (
		id     string
		status invite.Status
	)
	switch {
	case strings.HasPrefix(data, relay.RejectPrefix):
		id, status = strings.TrimPrefix(data, relay.RejectPrefix), invite.StatusRejected
	case strings.HasPrefix(data, relay.AcceptPrefix):
		id, status = strings.TrimPrefix(data, relay.AcceptPrefix), invite.StatusAccepted
	default:
		return Command{}, false
	}
	if id == "" {
		return Command{}, false
	}
	return Command{InvitationID: id, Status: status}, true
}

// Handle applies cmd and returns the text to show the user along with a result code.
func Handle(ctx context.Context, store Updater, cmd Command) (string, string, error) {
	err := store.UpdateInvitationStatus(ctx, cmd.InvitationID, cmd.Status)
	switch {
	case err == nil && cmd.Status == invite.StatusRejected:
		return textRejected, ResultApplied, nil
	case err == nil:
		return textAccepted, ResultApplied, nil
	case errors.Is(err, storage.ErrNotPending), errors.Is(err, storage.ErrNotFound):
		return textHandled, ResultHandled, nil
	default:
		return textFailed, ResultFailed, err
	}
}

type Responder struct {
	store Updater
	ans   Answerer
	bus   eventbus.Bus
	log   logx.Logger
}

func New(store Updater, ans Answerer, bus eventbus.Bus, log logx.Logger) *Responder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Responder{store: store, ans: ans, bus: bus, log: log.With(logx.String("comp", "responder"))}
}

// Run consumes updates until ctx is done or updates is closed.
func (r *Responder) Run(ctx context.Context, updates <-chan transport.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind != transport.UpdateCallback || up.Callback == nil {
				continue
			}
			r.OnCallback(ctx, *up.Callback)
		}
	}
}

// OnCallback handles a single callback press and always answers it.
func (r *Responder) OnCallback(ctx context.Context, cb transport.Callback) {
	log := r.log.With(logx.String("callback", cb.ID), logx.Int64("from", cb.FromID))

	cmd, ok := ParseCallback(cb.Data)
	if !ok {
		r.answer(ctx, log, cb.ID, "")
		r.publish(Answered{FromID: cb.FromID, Result: ResultIgnored})
		return
	}

	text, result, err := Handle(ctx, r.store, cmd)
	switch result {
	case ResultApplied:
		log.Info("invitation answered", logx.String("invitation", cmd.InvitationID), logx.String("status", string(cmd.Status)))
	case ResultHandled:
		log.Debug("invitation already answered", logx.String("invitation", cmd.InvitationID))
	default:
		log.Error("invitation update failed", logx.String("invitation", cmd.InvitationID), logx.Err(err))
	}
	r.answer(ctx, log, cb.ID, text)
	r.publish(Answered{InvitationID: cmd.InvitationID, Status: cmd.Status, FromID: cb.FromID, Result: result})
}

func (r *Responder) answer(ctx context.Context, log logx.Logger, id, text string) {
	if err := r.ans.AnswerCallback(ctx, id, text); err != nil {
		log.Warn("answer callback failed", logx.Err(err))
	}
}

func (r *Responder) publish(a Answered) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: EventAnswered, Data: a})
}
