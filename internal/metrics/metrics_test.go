package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"invitebot/internal/eventbus"
	"invitebot/internal/relay"
	"invitebot/internal/responder"
)

func TestObserveCycle(t *testing.T) {
	t.Parallel()
	m := New()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	m.Observe(eventbus.Event{Type: relay.EventCycle, Time: at, Data: relay.CycleReport{
		Pending: 4, Sent: 2, Skipped: 1, Unresolved: 1, CacheSize: 7, Duration: 120 * time.Millisecond,
	}})
	m.Observe(eventbus.Event{Type: relay.EventCycle, Time: at.Add(3 * time.Second), Data: relay.CycleReport{
		QueryErr: errors.New("timeout"),
	}})

	require.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("query_error")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.notifications.WithLabelValues("sent")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("skipped")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("unresolved")))
	require.Equal(t, 7.0, testutil.ToFloat64(m.dedupEntries))
	require.Equal(t, 2, testutil.CollectAndCount(m.cycleSeconds))
	require.Equal(t, at.Add(3*time.Second), m.LastCycle().UTC())
}

func TestObserveClearsAndCallbacks(t *testing.T) {
	t.Parallel()
	m := New()
	require.True(t, m.LastCycle().IsZero())

	m.Observe(eventbus.Event{Type: relay.EventCacheCleared, Data: relay.CacheCleared{Size: 1001, Threshold: 1000}})
	m.Observe(eventbus.Event{Type: responder.EventAnswered, Data: responder.Answered{Result: responder.ResultApplied}})
	m.Observe(eventbus.Event{Type: responder.EventAnswered, Data: responder.Answered{Result: responder.ResultApplied}})
	m.Observe(eventbus.Event{Type: "unrelated", Data: 42})

	require.Equal(t, 1.0, testutil.ToFloat64(m.dedupClears))
	require.Equal(t, 2.0, testutil.ToFloat64(m.callbacks.WithLabelValues(responder.ResultApplied)))
}

func TestGathererExposesSeries(t *testing.T) {
	t.Parallel()
	m := New()
	m.Observe(eventbus.Event{Data: relay.CycleReport{Sent: 1}})

	mfs, err := m.Gatherer().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	require.True(t, names["invitebot_relay_cycles_total"])
	require.True(t, names["invitebot_relay_notifications_total"])
	require.True(t, names["invitebot_dedup_entries"])
	require.True(t, names["go_goroutines"])
}

func TestTrackBusExportsDrops(t *testing.T) {
	t.Parallel()
	m := New()
	bus := eventbus.New()
	m.TrackBus(bus)

	_, unsub := bus.Subscribe(1)
	defer unsub()
	for i := 0; i < 3; i++ {
		bus.Publish(eventbus.Event{Type: "test"})
	}

	want := `
# HELP invitebot_eventbus_dropped_total Events not delivered because a subscriber buffer was full.
# TYPE invitebot_eventbus_dropped_total counter
invitebot_eventbus_dropped_total 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Gatherer(), strings.NewReader(want), "invitebot_eventbus_dropped_total"))
}
