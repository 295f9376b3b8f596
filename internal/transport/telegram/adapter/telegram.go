package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	rtsup "invitebot/internal/runtime/supervisor"
	kit "invitebot/internal/transport"
	logx "invitebot/pkg/logx"
	"invitebot/pkg/tgui"
)

const (
	defaultPollTimeout = 10 * time.Second
	defaultSendTimeout = 10 * time.Second
	defaultRatePerSec  = 25
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	SendTimeout time.Duration
	// RatePerSec spaces outgoing calls. Zero selects the default; negative disables it.
	RatePerSec float64
}

// Adapter implements transport.Adapter on top of telebot.
// Sending works without Start; Start is only needed to receive callback presses.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter

	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	droppedUpdates atomic.Uint64
}

// New validates the token with getMe and prepares the bot. It does not start polling.
func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "telegram"))

	b, err := tele.NewBot(tele.Settings{
		Token: strings.TrimSpace(cfg.Token),
		Poller: &tele.LongPoller{
			Timeout:        cfg.PollTimeout,
			AllowedUpdates: []string{"callback_query"},
		},
		// getUpdates holds the connection for PollTimeout.
		Client: &http.Client{Timeout: cfg.PollTimeout + cfg.SendTimeout},
		OnError: func(err error, c tele.Context) {
			log.Warn("telegram handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	a := newAdapter(cfg, log)
	a.bot = b
	a.registerHandlers()
	log.Info("telegram bot ready", logx.String("username", b.Me.Username))
	return a, nil
}

func newAdapter(cfg Config, log logx.Logger) *Adapter {
	a := &Adapter{cfg: cfg, log: log}
	switch {
	case cfg.RatePerSec == 0:
		a.limiter = rate.NewLimiter(rate.Limit(defaultRatePerSec), 1)
	case cfg.RatePerSec > 0:
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	return a
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		up := kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: cb.ID, Data: cb.Data}}
		if cb.Sender != nil {
			up.Callback.FromID = cb.Sender.ID
		}
		if m := cb.Message; m != nil && m.Chat != nil {
			up.Callback.ChatID = m.Chat.ID
			up.Callback.MessageID = m.ID
		}
		a.sendUpdate(up)
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.droppedUpdates.Add(1)
	}
}

// Start begins long polling and forwards callback presses to out.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(false))
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return
			case <-ticker.C:
				a.reportDropped(cap(out))
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// bot.Start blocks until Stop. Restart it if it returns while we still want updates.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) reportDropped(capacity int) {
	if n := a.droppedUpdates.Swap(0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Int64("count", int64(n)), logx.Int("chan_cap", capacity))
	}
}

// Stop ends polling. It never blocks longer than a short grace window.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	sup.Cancel()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

// SendText sends text to a chat. Actions are attached to the first chunk only.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	markup, err := replyMarkup(opt.Actions)
	if err != nil {
		return kit.MessageRef{}, err
	}

	chat := &tele.Chat{ID: to.ChatID}
	var first kit.MessageRef
	for i, chunk := range splitText(text, telegramTextLimit) {
		sendOpt := &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		}
		if i == 0 && markup != nil {
			sendOpt.ReplyMarkup = markup
		}

		var msg *tele.Message
		err := a.call(ctx, func() error {
			var err error
			msg, err = a.bot.Send(chat, chunk, sendOpt)
			return err
		})
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// AnswerCallback acknowledges a button press. A non-empty text is shown as an alert.
func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	text = tgui.TruncRunes(text, tgui.MaxCallbackAnswerLen)
	resp := &tele.CallbackResponse{Text: text, ShowAlert: text != ""}
	return a.call(ctx, func() error {
		return a.bot.Respond(&tele.Callback{ID: callbackID}, resp)
	})
}

// call runs one Bot API request. telebot has no context support, so the
// request runs on its own goroutine and the caller stops waiting on ctx or
// after SendTimeout; the HTTP client timeout bounds the abandoned request.
func (a *Adapter) call(ctx context.Context, fn func() error) error {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	timeout := a.cfg.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("telegram request: %w", ctx.Err())
	}
}
