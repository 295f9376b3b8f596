// Package metrics turns relay and responder events into Prometheus series.
package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"invitebot/internal/eventbus"
	"invitebot/internal/relay"
	"invitebot/internal/responder"
)

const namespace = "invitebot"

type Metrics struct {
	reg *prometheus.Registry

	cycles        *prometheus.CounterVec
	notifications *prometheus.CounterVec
	cycleSeconds  prometheus.Histogram
	lastCycle     prometheus.Gauge
	dedupEntries  prometheus.Gauge
	dedupClears   prometheus.Counter
	callbacks     *prometheus.CounterVec

	lastCycleAt atomic.Int64 // unix nanos
}

// New registers all series on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "cycles_total",
			Help:      "Relay cycles broken down by result (ok, query_error).",
		}, []string{"result"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "notifications_total",
			Help:      "Pending invitations processed, by outcome.",
		}, []string{"outcome"}),
		cycleSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "cycle_seconds",
			Help:      "Duration of relay cycles.",
			Buckets: []float64{
				0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5, 10, 30,
			},
		}),
		lastCycle: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time the last relay cycle finished.",
		}),
		dedupEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "entries",
			Help:      "Dispatched invitation ids currently remembered.",
		}),
		dedupClears: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "clears_total",
			Help:      "Times the dedup store was cleared after exceeding its threshold.",
		}),
		callbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "responder",
			Name:      "callbacks_total",
			Help:      "Invitation button presses by result.",
		}, []string{"result"}),
	}
}

// DropCounter is implemented by buses that count undelivered events.
type DropCounter interface {
	Dropped() uint64
}

// TrackBus exports the drop count of bus as invitebot_eventbus_dropped_total.
func (m *Metrics) TrackBus(bus DropCounter) {
	promauto.With(m.reg).NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "eventbus",
		Name:      "dropped_total",
		Help:      "Events not delivered because a subscriber buffer was full.",
	}, func() float64 { return float64(bus.Dropped()) })
}

// Gatherer exposes the registry for the /metrics handler.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.reg }

// LastCycle returns when the last relay cycle finished, or the zero time.
func (m *Metrics) LastCycle() time.Time {
	n := m.lastCycleAt.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Observe updates series from a single bus event. Unknown events are ignored.
func (m *Metrics) Observe(e eventbus.Event) {
	switch d := e.Data.(type) {
	case relay.CycleReport:
		m.observeCycle(e.Time, d)
	case relay.CacheCleared:
		m.dedupClears.Inc()
	case responder.Answered:
		m.callbacks.WithLabelValues(d.Result).Inc()
	}
}

func (m *Metrics) observeCycle(at time.Time, rep relay.CycleReport) {
	if rep.QueryErr != nil {
		m.cycles.WithLabelValues("query_error").Inc()
	} else {
		m.cycles.WithLabelValues("ok").Inc()
		m.dedupEntries.Set(float64(rep.CacheSize))
	}
	for outcome, n := range map[relay.Outcome]int{
		relay.OutcomeSent:           rep.Sent,
		relay.OutcomeSkipped:        rep.Skipped,
		relay.OutcomeUnresolved:     rep.Unresolved,
		relay.OutcomeDispatchFailed: rep.Failed,
	} {
		if n > 0 {
			m.notifications.WithLabelValues(outcome.String()).Add(float64(n))
		}
	}
	m.cycleSeconds.Observe(rep.Duration.Seconds())
	if at.IsZero() {
		at = time.Now()
	}
	m.lastCycle.Set(float64(at.Unix()))
	m.lastCycleAt.Store(at.UnixNano())
}

// Run feeds bus events into Observe until ctx is done.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) error {
	return eventbus.Consume(ctx, bus, 64, m.Observe)
}
