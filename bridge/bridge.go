// Package bridge turns serial lines into telemetry events and hands each
// event to the broadcast hub and the auxiliary sinks.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Siddamnn/SpeakMind/component"
	"github.com/Siddamnn/SpeakMind/metric"
	"github.com/Siddamnn/SpeakMind/processor/band"
	"github.com/Siddamnn/SpeakMind/processor/sample"
	"github.com/Siddamnn/SpeakMind/telemetry"
)

// Broadcaster receives every accepted event. Implementations must not block
// the caller.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev telemetry.Event)
}

// Bridge owns the band estimator. HandleLine must only be called from the
// single serial reader goroutine; Snapshot and Last are safe from anywhere.
type Bridge struct {
	estimator *band.Estimator
	sinks     []Broadcaster
	metrics   *metric.Metrics
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.RWMutex // guards last and lastEvent
	last      band.State
	lastEvent telemetry.Event
	hasEvent  bool

	lines        atomic.Int64
	accepted     atomic.Int64
	skipped      atomic.Int64
	startTime    time.Time
	lastActivity atomic.Int64
}

var _ component.Discoverable = (*Bridge)(nil)

// New creates a Bridge delivering to sinks in the given order. The hub goes
// first.
func New(deps *component.Dependencies, sinks ...Broadcaster) *Bridge {
	return &Bridge{
		estimator: band.NewEstimator(),
		sinks:     sinks,
		metrics:   deps.GetMetricsRegistry().CoreMetrics(),
		logger:    deps.GetLoggerWithComponent("bridge"),
		now:       time.Now,
		last:      band.NewState(),
		startTime: time.Now(),
	}
}

// HandleLine parses one line. An accepted sample updates the estimator and
// is delivered to every sink before HandleLine returns. Skipped lines change
// nothing.
func (b *Bridge) HandleLine(ctx context.Context, line string) (band.State, bool) {
	start := b.now()
	b.lines.Add(1)

	raw, ok := sample.Parse(line)
	if !ok {
		b.skipped.Add(1)
		b.metrics.RecordLine(false, 0)
		b.logger.Debug("Skipped line", "line", line)
		return b.Snapshot(), false
	}

	state := b.estimator.Update(raw)
	ev := telemetry.FromState(state, start)

	b.mu.Lock()
	b.last = state
	b.lastEvent = ev
	b.hasEvent = true
	b.mu.Unlock()

	for _, s := range b.sinks {
		s.Broadcast(ctx, ev)
	}

	b.accepted.Add(1)
	b.lastActivity.Store(start.UnixNano())
	b.metrics.RecordLine(true, b.now().Sub(start))
	b.metrics.RecordBands(state.Alpha, state.Beta, state.Theta, state.Delta, state.Gamma, state.LastRaw)
	return state, true
}

// Snapshot returns the estimator state after the last accepted sample.
func (b *Bridge) Snapshot() band.State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last
}

// Last returns the most recent event, if any.
func (b *Bridge) Last() (telemetry.Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastEvent, b.hasEvent
}

// Counts returns the accepted and skipped line totals.
func (b *Bridge) Counts() (accepted, skipped int64) {
	return b.accepted.Load(), b.skipped.Load()
}

// Meta returns the component metadata
func (b *Bridge) Meta() component.Metadata {
	return component.Metadata{
		Name:        "bridge",
		Type:        "processor",
		Description: "Parses sample lines and broadcasts band estimates",
		Version:     "1.0.0",
	}
}

// Health is always healthy; the bridge has no external resources.
func (b *Bridge) Health() component.HealthStatus {
	return component.HealthStatus{
		Healthy:   true,
		LastCheck: time.Now(),
		Uptime:    time.Since(b.startTime),
	}
}

// DataFlow reports accepted samples per second and the skip ratio.
func (b *Bridge) DataFlow() component.FlowMetrics {
	var rate, skipRate float64
	if uptime := time.Since(b.startTime).Seconds(); uptime > 0 {
		rate = float64(b.accepted.Load()) / uptime
	}
	if lines := b.lines.Load(); lines > 0 {
		skipRate = float64(b.skipped.Load()) / float64(lines)
	}

	var last time.Time
	if ns := b.lastActivity.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}
	return component.FlowMetrics{
		MessagesPerSecond: rate,
		ErrorRate:         skipRate,
		LastActivity:      last,
	}
}
