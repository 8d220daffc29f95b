package bridge

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siddamnn/SpeakMind/component"
	"github.com/Siddamnn/SpeakMind/metric"
	"github.com/Siddamnn/SpeakMind/processor/band"
	"github.com/Siddamnn/SpeakMind/telemetry"
)

// sequenceSink appends "<name>:<n>" to a shared log for every event so the
// test can check delivery order across sinks.
type sequenceSink struct {
	name   string
	log    *[]string
	events []telemetry.Event
}

func (s *sequenceSink) Broadcast(_ context.Context, ev telemetry.Event) {
	s.events = append(s.events, ev)
	*s.log = append(*s.log, fmt.Sprintf("%s:%d", s.name, len(s.events)))
}

func TestBridge_AcceptedLineReachesEverySink(t *testing.T) {
	var log []string
	hub := &sequenceSink{name: "hub", log: &log}
	rec := &sequenceSink{name: "recorder", log: &log}
	b := New(nil, hub, rec)

	fixed := time.UnixMilli(1_700_000_000_123)
	b.now = func() time.Time { return fixed }

	state, ok := b.HandleLine(context.Background(), "S,1000,612")
	require.True(t, ok)
	assert.Equal(t, 612, state.LastRaw)
	assert.InDelta(t, 1.0, state.Alpha, 1e-9)
	assert.InDelta(t, 3.6, state.Beta, 1e-9)
	assert.InDelta(t, 0.24, state.Theta, 1e-9)
	assert.InDelta(t, 0.12, state.Delta, 1e-9)
	assert.InDelta(t, 4.5, state.Gamma, 1e-9)

	assert.Equal(t, []string{"hub:1", "recorder:1"}, log)
	require.Len(t, hub.events, 1)
	assert.Equal(t, hub.events[0], rec.events[0])
	assert.Equal(t, int64(1_700_000_000_123), hub.events[0].Timestamp)
	assert.Equal(t, state.Alpha, hub.events[0].Alpha)

	ev, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, hub.events[0], ev)
	assert.Equal(t, state, b.Snapshot())
}

func TestBridge_SkippedLineChangesNothing(t *testing.T) {
	var log []string
	sink := &sequenceSink{name: "hub", log: &log}
	b := New(nil, sink)

	for _, line := range []string{"", "hello", "S,1", "S,1,abc", "x,y,zz"} {
		state, ok := b.HandleLine(context.Background(), line)
		assert.False(t, ok, "line %q", line)
		assert.Equal(t, band.NewState(), state)
	}

	assert.Empty(t, sink.events)
	_, ok := b.Last()
	assert.False(t, ok)

	accepted, skipped := b.Counts()
	assert.Equal(t, int64(0), accepted)
	assert.Equal(t, int64(5), skipped)
}

func TestBridge_PreservesAcceptanceOrder(t *testing.T) {
	var log []string
	sink := &sequenceSink{name: "hub", log: &log}
	b := New(nil, sink)

	var want []int
	for i := 0; i < 50; i++ {
		raw := 512 + i*3
		if i%7 == 0 {
			_, _ = b.HandleLine(context.Background(), "garbage")
		}
		_, ok := b.HandleLine(context.Background(), fmt.Sprintf("S,%d,%d", i, raw))
		require.True(t, ok)
		want = append(want, raw)
	}

	require.Len(t, sink.events, len(want))
	est := band.NewEstimator()
	for i, raw := range want {
		s := est.Update(raw)
		assert.Equal(t, s.Alpha, sink.events[i].Alpha, "event %d", i)
		assert.Equal(t, s.Gamma, sink.events[i].Gamma, "event %d", i)
	}
}

func TestBridge_RecordsCoreMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	b := New(&component.Dependencies{MetricsRegistry: registry})

	_, _ = b.HandleLine(context.Background(), "S,1,612")
	_, _ = b.HandleLine(context.Background(), "700")
	_, _ = b.HandleLine(context.Background(), "noise")

	m := registry.CoreMetrics()
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LinesRead))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LinesSkipped))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SamplesAccepted))
	assert.Equal(t, 700.0, testutil.ToFloat64(m.LastRaw))

	snap := b.Snapshot()
	assert.Equal(t, snap.Alpha, testutil.ToFloat64(m.BandValue.WithLabelValues("alpha")))
}

func TestBridge_Discoverable(t *testing.T) {
	b := New(nil)
	assert.Equal(t, "bridge", b.Meta().Name)
	assert.True(t, b.Health().Healthy)

	_, _ = b.HandleLine(context.Background(), "S,1,600")
	_, _ = b.HandleLine(context.Background(), "bad")
	flow := b.DataFlow()
	assert.InDelta(t, 0.5, flow.ErrorRate, 1e-9)
	assert.False(t, flow.LastActivity.IsZero())
}
