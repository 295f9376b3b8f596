// Package app wires the relay, its backends and the operational side
// (config reload, metrics, ops server, systemd notifications) into one process.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"invitebot/internal/config"
	"invitebot/internal/dedup"
	"invitebot/internal/eventbus"
	"invitebot/internal/metrics"
	"invitebot/internal/observability/ops"
	"invitebot/internal/relay"
	"invitebot/internal/responder"
	"invitebot/internal/runtime/sdnotify"
	"invitebot/internal/runtime/supervisor"
	"invitebot/internal/storage"
	kit "invitebot/internal/transport"
	telegram "invitebot/internal/transport/telegram/adapter"
	logx "invitebot/pkg/logx"
)

// Options carries what New cannot derive from the config.
type Options struct {
	// ConfigPath is watched for hot reload when set.
	ConfigPath string
	// Gateway replaces the Telegram adapter built from the config.
	Gateway kit.Adapter
	// Notifier replaces the systemd notifier.
	Notifier *sdnotify.Notifier
}

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.MemBus

	store   storage.Store
	cache   dedup.Store
	adapter kit.Adapter

	relay   *relay.Relay
	resp    *responder.Responder
	metrics *metrics.Metrics
	ops     *ops.Server
	pruner  *dedup.PruneScheduler
	sd      *sdnotify.Notifier

	applied *config.Config
	started time.Time
	polling bool
	updates chan kit.Update
}

// New opens every backend named by cfg. cfg must already be validated.
// On error everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, opt Options) (_ *App, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	logSvc, log := logx.New(cfg.LogOptions(), nil)
	log = log.With(logx.String("comp", "app"))

	var cleanup []func()
	defer func() {
		if err == nil {
			return
		}
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
		_ = logSvc.Close()
	}()

	ad := opt.Gateway
	if ad == nil {
		ad, err = telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: cfg.Telegram.PollTimeoutDuration(),
			SendTimeout: cfg.Telegram.SendTimeoutDuration(),
			RatePerSec:  cfg.Telegram.RatePerSec,
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
	}
	logSvc.SetSender(ad)

	store, err := storage.Open(ctx, cfg.StorageOptions(), log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	cleanup = append(cleanup, func() { _ = store.Close() })

	cache, err := dedup.Open(ctx, cfg.DedupOptions())
	if err != nil {
		return nil, err
	}
	cleanup = append(cleanup, func() { _ = cache.Close() })

	sd := opt.Notifier
	if sd == nil {
		sd = sdnotify.New(log)
	}

	bus := eventbus.New()
	rl, err := relay.New(store, ad, cache, relay.Options{
		WebAppURL: cfg.WebAppURL,
		Interval:  cfg.Relay.Interval(),
		Threshold: cfg.Dedup.MaxEntries,
		Bus:       bus,
		Log:       log,
		Heartbeat: sd.Heartbeat,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:    config.NewManager(opt.ConfigPath, log),
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		cache:   cache,
		adapter: ad,
		relay:   rl,
		metrics: metrics.New(),
		sd:      sd,
		applied: cfg,
		polling: cfg.Telegram.Callbacks,
		updates: make(chan kit.Update, 64),
	}
	a.cfgm.Commit(cfg)
	a.metrics.TrackBus(bus)
	a.ops = ops.New(a.metrics.Gatherer(), a.health, log)

	if a.polling {
		a.resp = responder.New(store, ad, bus, log)
	}
	if schedule := strings.TrimSpace(cfg.Dedup.PruneSchedule); schedule != "" {
		if p, ok := cache.(dedup.Pruner); ok {
			a.pruner = dedup.NewPruneScheduler(p, schedule, cfg.Dedup.RetentionDuration(), log)
		} else {
			log.Warn("dedup driver cannot prune; schedule ignored", logx.String("driver", cfg.Dedup.Driver))
		}
	}
	return a, nil
}

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.started = time.Now()
	cfg := a.applied

	a.sup.Go("metrics", func(c context.Context) error { return a.metrics.Run(c, a.bus) })
	a.sup.Go("events.log", func(c context.Context) error {
		return eventbus.Consume(c, a.bus, 32, func(e eventbus.Event) {
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		})
	})

	if a.polling {
		if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
			return fmt.Errorf("telegram start: %w", err)
		}
		a.sup.GoRestart("responder", func(c context.Context) error { return a.resp.Run(c, a.updates) },
			supervisor.WithRestartBackoff(time.Second, 10*time.Second),
			supervisor.WithMaxRestarts(5),
		)
	}

	a.ops.Route("/debug/supervisor", ops.JSON(func() any { return a.sup.Snapshot() }))
	if err := a.ops.Apply(a.sup.Context(), cfg.Ops.Addr); err != nil {
		return fmt.Errorf("ops server: %w", err)
	}
	if a.pruner != nil {
		if err := a.pruner.Start(a.sup.Context()); err != nil {
			return fmt.Errorf("dedup prune: %w", err)
		}
	}

	sub := a.cfgm.Subscribe(4)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("config.apply", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.Apply(c, next)
			}
		}
	})

	a.sup.GoRestart("relay", a.relay.Run,
		supervisor.WithRestartBackoff(time.Second, 30*time.Second),
		supervisor.WithPublishFirstError(true),
	)

	a.sd.Ready()
	a.sd.Status("relaying invitations")
	a.log.Info("started",
		logx.String("datastore", storage.ResolveDriver(cfg.StorageOptions())),
		logx.String("dedup", cfg.Dedup.Driver),
		logx.Duration("interval", a.relay.Interval()),
		logx.Int("threshold", a.relay.Threshold()),
		logx.Bool("callbacks", a.polling),
	)
	return nil
}

// Apply hot-applies the live parts of next: logging, relay knobs and the ops
// listener. Other sections are logged as requiring a restart.
func (a *App) Apply(ctx context.Context, next *config.Config) {
	if next == nil {
		return
	}
	ch := config.SummarizeChange(a.applied, next)
	if ch.Empty() {
		a.log.Debug("config reload without effective changes")
		return
	}
	a.applied = next

	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	a.log.Info("config change", fields...)
	if len(ch.RestartRequired) > 0 {
		a.log.Warn("config changed; restart required for these sections",
			logx.String("sections", strings.Join(ch.RestartRequired, ",")))
	}

	if ch.Has("logging") {
		a.logs.Apply(next.LogOptions())
	}
	if ch.Has("relay") || ch.Has("dedup") {
		a.relay.Apply(next.Relay.Interval(), next.Dedup.MaxEntries)
	}
	if ch.Has("ops") {
		if err := a.ops.Apply(ctx, next.Ops.Addr); err != nil {
			a.log.Warn("ops server reconfigure failed", logx.String("addr", next.Ops.Addr), logx.Err(err))
		}
	}
}

// health fails when the relay made no progress (an invitation or a whole
// cycle finished) within a few intervals.
func (a *App) health() error {
	window := 3 * a.relay.Interval()
	if window < time.Minute {
		window = time.Minute
	}
	last := a.relay.LastProgress()
	if c := a.metrics.LastCycle(); c.After(last) {
		last = c
	}
	if last.IsZero() {
		if !a.started.IsZero() && time.Since(a.started) > window {
			return fmt.Errorf("no relay progress since start %s ago", time.Since(a.started).Round(time.Second))
		}
		return nil
	}
	if age := time.Since(last); age > window {
		return fmt.Errorf("last relay progress %s ago", age.Round(time.Second))
	}
	return nil
}

// Stop shuts components down in order, each step bounded so one stuck
// component cannot stall the whole stop.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()
	if a.sup != nil {
		a.sup.Cancel()
	}

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("prune", time.Second, func(context.Context) error {
		if a.pruner != nil {
			a.pruner.Stop()
		}
		return nil
	})
	step("ops", 2*time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	if a.polling && a.sup != nil {
		step("adapter", 2*time.Second, a.adapter.Stop)
	}
	if a.sup != nil {
		// relay and responder must be idle before their stores close
		step("supervisor", 3*time.Second, a.sup.Stop)
	}
	step("dedup", time.Second, func(context.Context) error { return a.cache.Close() })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
