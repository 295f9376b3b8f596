// Package sdnotify reports readiness and liveness to systemd (Type=notify units).
// Outside systemd every call is a no-op.
package sdnotify

import (
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "invitebot/pkg/logx"
)

// Notifier sends sd_notify messages. The zero value is not usable; call New.
type Notifier struct {
	log    logx.Logger
	notify func(state string) (bool, error)

	watchdog time.Duration

	mu       sync.Mutex
	lastPing time.Time
	now      func() time.Time
}

func New(log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	n := &Notifier{
		log:    log.With(logx.String("comp", "sdnotify")),
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
		now:    time.Now,
	}
	if d, err := daemon.SdWatchdogEnabled(false); err == nil && d > 0 {
		n.watchdog = d
	}
	return n
}

// WatchdogInterval is WATCHDOG_USEC, or 0 when the watchdog is off.
func (n *Notifier) WatchdogInterval() time.Duration { return n.watchdog }

func (n *Notifier) Ready()    { n.send(daemon.SdNotifyReady) }
func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(s string) { n.send("STATUS=" + s) }

// Heartbeat pings the watchdog, at most twice per watchdog interval.
// Call it whenever the main loop completes a unit of work.
func (n *Notifier) Heartbeat() {
	if n.watchdog <= 0 {
		return
	}
	n.mu.Lock()
	now := n.now()
	due := n.lastPing.IsZero() || now.Sub(n.lastPing) >= n.watchdog/2
	if due {
		n.lastPing = now
	}
	n.mu.Unlock()
	if due {
		n.send(daemon.SdNotifyWatchdog)
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Debug("sd_notify sent", logx.String("state", state))
	}
}
