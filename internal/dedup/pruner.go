package dedup

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "invitebot/pkg/logx"
)

// cronParser accepts 5- and 6-field specs plus descriptors like "@every 1h".
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether expr is a valid prune schedule. Empty is valid (disabled).
func ValidateSchedule(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil
	}
	_, err := cronParser.Parse(expr)
	return err
}

// PruneScheduler periodically removes entries older than the retention window.
type PruneScheduler struct {
	pruner    Pruner
	schedule  string
	retention time.Duration
	log       logx.Logger
	now       func() time.Time

	mu sync.Mutex
	c  *cron.Cron
}

func NewPruneScheduler(p Pruner, schedule string, retention time.Duration, log logx.Logger) *PruneScheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &PruneScheduler{
		pruner:    p,
		schedule:  strings.TrimSpace(schedule),
		retention: retention,
		log:       log.With(logx.String("comp", "dedup.prune")),
		now:       time.Now,
	}
}

// Start registers the cron job and returns immediately. The job stops when ctx is done or Stop is called.
func (s *PruneScheduler) Start(ctx context.Context) error {
	if s.pruner == nil || s.schedule == "" {
		return errors.New("prune scheduler needs a pruner and a schedule")
	}
	if s.retention <= 0 {
		return errors.New("prune retention must be positive")
	}
	c := cron.New(cron.WithParser(cronParser))
	if _, err := c.AddFunc(s.schedule, func() { _, _ = s.RunOnce(ctx) }); err != nil {
		return err
	}
	s.mu.Lock()
	s.c = c
	s.mu.Unlock()
	c.Start()
	s.log.Info("dedup prune scheduled", logx.String("schedule", s.schedule), logx.Duration("retention", s.retention))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// RunOnce prunes entries older than now-retention.
func (s *PruneScheduler) RunOnce(ctx context.Context) (int, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	cutoff := s.now().Add(-s.retention)
	n, err := s.pruner.Prune(ctx, cutoff)
	if err != nil {
		s.log.Warn("dedup prune failed", logx.Err(err))
		return 0, err
	}
	if n > 0 {
		s.log.Info("dedup pruned", logx.Int("removed", n), logx.Time("before", cutoff))
	}
	return n, nil
}

// Stop halts the schedule and waits for a running prune to finish.
func (s *PruneScheduler) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
