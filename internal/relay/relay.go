// Package relay notifies players about new game invitations.
//
// A Relay polls the datastore for PENDING invitations, resolves the players and
// game each one refers to, renders a message and sends it through the gateway.
// Invitations that were sent are recorded in a dedup store so later cycles skip
// them; failures are left unrecorded and retried on the next cycle.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"invitebot/internal/dedup"
	"invitebot/internal/eventbus"
	"invitebot/internal/invite"
	"invitebot/internal/transport"
	logx "invitebot/pkg/logx"
)

const (
	DefaultInterval  = 3 * time.Second
	DefaultThreshold = 1000

	EventCycle        = "relay.cycle"
	EventCacheCleared = "relay.cache_cleared"
)

// Source is the datastore as seen by the relay.
type Source interface {
	Lookup
	PendingInvitations(ctx context.Context) ([]invite.Invitation, error)
}

type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeSkipped
	OutcomeUnresolved
	OutcomeDispatchFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeUnresolved:
		return "unresolved"
	case OutcomeDispatchFailed:
		return "dispatch_failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of one invitation within a cycle.
type Result struct {
	InvitationID string
	Outcome      Outcome
	Err          error
}

// DispatchError wraps a gateway failure for one invitation.
type DispatchError struct {
	InvitationID string
	ChatID       int64
	Err          error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch invitation %s to chat %d: %v", e.InvitationID, e.ChatID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// CycleReport summarizes one relay cycle. It is published on the bus as EventCycle.
type CycleReport struct {
	ID       string
	Started  time.Time
	Duration time.Duration

	Pending    int
	Sent       int
	Skipped    int
	Unresolved int
	Failed     int
	Results    []Result

	// QueryErr is set when the pending query failed and nothing was processed.
	QueryErr error

	CacheSize    int
	CacheCleared bool
}

func (r *CycleReport) add(res Result) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeSent:
		r.Sent++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeUnresolved:
		r.Unresolved++
	case OutcomeDispatchFailed:
		r.Failed++
	}
}

// CacheCleared is the payload of EventCacheCleared.
type CacheCleared struct {
	CycleID   string
	Size      int
	Threshold int
}

type Options struct {
	WebAppURL string
	Interval  time.Duration
	Threshold int

	Bus eventbus.Bus
	Log logx.Logger

	// Heartbeat, if set, is called after every processed invitation and at the
	// end of every cycle, so a long backlog still shows liveness.
	Heartbeat func()
}

type Relay struct {
	src      Source
	resolver *Resolver
	gw       transport.Sender
	cache    dedup.Store
	bus      eventbus.Bus
	log      logx.Logger

	webAppURL string
	heartbeat func()

	interval  atomic.Int64
	threshold atomic.Int64
	progress  atomic.Int64 // unix nanos of the last processed item or cycle end

	// oversized holds invitation ids already reported as ErrIDTooLong.
	oversized sync.Map

	newID func() string
	now   func() time.Time
}

func New(src Source, gw transport.Sender, cache dedup.Store, opt Options) (*Relay, error) {
	if src == nil {
		return nil, errors.New("relay: datastore is required")
	}
	if gw == nil {
		return nil, errors.New("relay: gateway is required")
	}
	if cache == nil {
		return nil, errors.New("relay: dedup store is required")
	}
	base := strings.TrimSpace(opt.WebAppURL)
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("relay: web app url %q is not an absolute url", opt.WebAppURL)
	}
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Relay{
		src:       src,
		resolver:  NewResolver(src),
		gw:        gw,
		cache:     cache,
		bus:       opt.Bus,
		log:       log.With(logx.String("comp", "relay")),
		webAppURL: base,
		heartbeat: opt.Heartbeat,
		newID:     func() string { return uuid.NewString() },
		now:       time.Now,
	}
	r.Apply(opt.Interval, opt.Threshold)
	return r, nil
}

// Apply updates the poll interval and cache threshold. Non-positive values select defaults.
// It is safe to call while Run is active; the new interval applies from the next sleep.
func (r *Relay) Apply(interval time.Duration, threshold int) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	r.interval.Store(int64(interval))
	r.threshold.Store(int64(threshold))
}

// LastProgress returns when the relay last finished an invitation or a cycle,
// or the zero time before the first one.
func (r *Relay) LastProgress() time.Time {
	n := r.progress.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (r *Relay) touch() {
	r.progress.Store(r.now().UnixNano())
	if r.heartbeat != nil {
		r.heartbeat()
	}
}

func (r *Relay) Interval() time.Duration { return time.Duration(r.interval.Load()) }
func (r *Relay) Threshold() int          { return int(r.threshold.Load()) }

// Run executes cycles until ctx is canceled. The interval is measured from the
// end of one cycle to the start of the next.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info("relay started", logx.Duration("interval", r.Interval()), logx.Int("threshold", r.Threshold()))
	defer r.log.Info("relay stopped")

	for {
		r.RunCycle(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t := time.NewTimer(r.Interval())
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// RunCycle performs one poll-resolve-render-dispatch pass.
func (r *Relay) RunCycle(ctx context.Context) CycleReport {
	rep := CycleReport{ID: r.newID(), Started: r.now()}
	log := r.log.With(logx.String("cycle", rep.ID))
	defer func() {
		rep.Duration = r.now().Sub(rep.Started)
		r.publish(EventCycle, rep)
		r.touch()
	}()

	pending, err := r.src.PendingInvitations(ctx)
	if err != nil {
		rep.QueryErr = err
		if ctx.Err() == nil {
			log.Error("pending invitations query failed", logx.Err(err))
		}
		return rep
	}
	rep.Pending = len(pending)

	for _, inv := range pending {
		if ctx.Err() != nil {
			log.Debug("cycle interrupted", logx.Int("remaining", rep.Pending-len(rep.Results)))
			return rep
		}
		rep.add(r.process(ctx, log, inv))
		r.touch()
	}

	r.bound(ctx, log, &rep)
	if rep.Sent > 0 || rep.Unresolved > 0 || rep.Failed > 0 {
		log.Debug("cycle done",
			logx.Int("pending", rep.Pending),
			logx.Int("sent", rep.Sent),
			logx.Int("unresolved", rep.Unresolved),
			logx.Int("failed", rep.Failed),
		)
	}
	return rep
}

func (r *Relay) process(ctx context.Context, log logx.Logger, inv invite.Invitation) Result {
	log = log.With(logx.String("invitation", inv.ID))

	seen, err := r.cache.Contains(ctx, inv.ID)
	switch {
	case err != nil:
		log.Warn("dedup lookup failed, treating as unseen", logx.Err(err))
	case seen:
		return Result{InvitationID: inv.ID, Outcome: OutcomeSkipped}
	}

	notice, err := r.resolver.Resolve(ctx, inv)
	if err != nil {
		var re *ResolveError
		if errors.Is(err, ErrIDTooLong) {
			if _, reported := r.oversized.LoadOrStore(inv.ID, struct{}{}); reported {
				log.Debug("invitation id too long, skipped")
			} else {
				log.Warn("invitation id too long, it cannot be delivered", logx.Int("bytes", len(inv.ID)))
			}
		} else if errors.As(err, &re) {
			log.Warn("invitation not resolved", logx.String("field", re.Field), logx.String("ref", re.Ref), logx.Err(re.Err))
		} else {
			log.Warn("invitation not resolved", logx.Err(err))
		}
		return Result{InvitationID: inv.ID, Outcome: OutcomeUnresolved, Err: err}
	}

	n := Render(r.webAppURL, notice)
	_, err = r.gw.SendText(ctx, transport.ChatTarget{ChatID: n.ChatID}, n.Text, &transport.SendOptions{
		ParseMode: n.ParseMode,
		Actions:   n.Actions,
	})
	if err != nil {
		derr := &DispatchError{InvitationID: inv.ID, ChatID: n.ChatID, Err: err}
		if ctx.Err() == nil {
			log.Warn("invitation dispatch failed", logx.Int64("chat_id", n.ChatID), logx.Err(err))
		}
		return Result{InvitationID: inv.ID, Outcome: OutcomeDispatchFailed, Err: derr}
	}

	if err := r.cache.Insert(ctx, inv.ID); err != nil {
		log.Warn("dedup insert failed, invitation may be sent again", logx.Err(err))
	}
	log.Info("invitation notified",
		logx.Int64("chat_id", n.ChatID),
		logx.String("game", notice.Game.ID),
		logx.String("from", notice.Sender.ID),
	)
	return Result{InvitationID: inv.ID, Outcome: OutcomeSent}
}

// bound clears the dedup store once it holds more than the threshold. Cleared
// invitations that are still pending are sent again next cycle.
func (r *Relay) bound(ctx context.Context, log logx.Logger, rep *CycleReport) {
	size, err := r.cache.Size(ctx)
	if err != nil {
		log.Warn("dedup size failed", logx.Err(err))
		return
	}
	rep.CacheSize = size
	threshold := r.Threshold()
	if size <= threshold {
		return
	}
	if err := r.cache.Clear(ctx); err != nil {
		log.Warn("dedup clear failed", logx.Err(err))
		return
	}
	rep.CacheCleared = true
	rep.CacheSize = 0
	r.oversized.Clear()
	log.Info("dedup cache cleared", logx.Int("size", size), logx.Int("threshold", threshold))
	r.publish(EventCacheCleared, CacheCleared{CycleID: rep.ID, Size: size, Threshold: threshold})
}

func (r *Relay) publish(typ string, data any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Time: r.now(), Data: data})
}
