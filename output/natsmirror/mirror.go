// Package natsmirror republishes every telemetry event to a NATS subject.
package natsmirror

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Siddamnn/SpeakMind/component"
	"github.com/Siddamnn/SpeakMind/errors"
	"github.com/Siddamnn/SpeakMind/metric"
	"github.com/Siddamnn/SpeakMind/telemetry"
)

// DefaultSubject is the subject events are published on.
const DefaultSubject = "eeg.telemetry"

// Client is the part of natsclient.Client the mirror uses.
type Client interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	Publish(ctx context.Context, subject string, data []byte) error
	IsHealthy() bool
}

type mirrorMetrics struct {
	published *prometheus.CounterVec
}

func newMetrics(registry *metric.MetricsRegistry, name string) (*mirrorMetrics, error) {
	if registry == nil {
		return nil, nil
	}
	m := &mirrorMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "natsmirror",
			Name:      "events_total",
			Help:      "Mirrored events by outcome (published, dropped, failed)",
		}, []string{"outcome"}),
	}
	if err := registry.RegisterCounterVec(name, "events_total", m.published); err != nil {
		return nil, err
	}
	return m, nil
}

// Mirror is a Broadcaster that publishes the same JSON frame the WebSocket
// subscribers receive. Events are dropped while the connection is down.
type Mirror struct {
	name    string
	subject string
	client  Client
	logger  *slog.Logger
	metrics *mirrorMetrics

	lifecycleMu sync.Mutex
	running     atomic.Bool
	startTime   time.Time

	published    atomic.Int64
	dropped      atomic.Int64
	failed       atomic.Int64
	lastError    atomic.Value // string
	lastActivity atomic.Int64
}

var _ component.LifecycleComponent = (*Mirror)(nil)

// New creates a Mirror publishing on subject through client.
func New(client Client, subject string, deps *component.Dependencies) (*Mirror, error) {
	if client == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: nil NATS client", errors.ErrInvalidConfig),
			"Mirror", "New", "check client")
	}
	if subject == "" {
		subject = DefaultSubject
	}
	const name = "nats-mirror"
	metrics, err := newMetrics(deps.GetMetricsRegistry(), name)
	if err != nil {
		return nil, errors.Wrap(err, "Mirror", "New", "register metrics")
	}

	m := &Mirror{
		name:      name,
		subject:   subject,
		client:    client,
		logger:    deps.GetLoggerWithComponent(name).With("subject", subject),
		metrics:   metrics,
		startTime: time.Now(),
	}
	m.lastError.Store("")
	return m, nil
}

// Meta returns the component metadata
func (m *Mirror) Meta() component.Metadata {
	return component.Metadata{
		Name:        m.name,
		Type:        "sink",
		Description: fmt.Sprintf("Mirrors telemetry to NATS subject %s", m.subject),
		Version:     "1.0.0",
	}
}

// Health is degraded while the NATS connection is down.
func (m *Mirror) Health() component.HealthStatus {
	lastErr, _ := m.lastError.Load().(string)
	running := m.running.Load()
	return component.HealthStatus{
		Healthy:    running,
		Degraded:   running && !m.client.IsHealthy(),
		LastCheck:  time.Now(),
		ErrorCount: int(m.failed.Load()),
		LastError:  lastErr,
		Uptime:     time.Since(m.startTime),
	}
}

// DataFlow returns publish throughput; ErrorRate counts drops and failures.
func (m *Mirror) DataFlow() component.FlowMetrics {
	published := m.published.Load()
	lost := m.dropped.Load() + m.failed.Load()

	var rate, errRate float64
	if uptime := time.Since(m.startTime).Seconds(); uptime > 0 {
		rate = float64(published) / uptime
	}
	if total := published + lost; total > 0 {
		errRate = float64(lost) / float64(total)
	}
	var last time.Time
	if ns := m.lastActivity.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}
	return component.FlowMetrics{
		MessagesPerSecond: rate,
		ErrorRate:         errRate,
		LastActivity:      last,
	}
}

// Initialize is a no-op; the connection is made in Start.
func (m *Mirror) Initialize() error {
	return nil
}

// Start connects to NATS. A failed connect is logged and the mirror runs
// degraded rather than failing the process.
func (m *Mirror) Start(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.running.Load() {
		return nil
	}
	if err := m.client.Connect(ctx); err != nil {
		m.lastError.Store(err.Error())
		m.logger.Warn("NATS connect failed, mirroring disabled until connected", "error", err)
	}
	m.startTime = time.Now()
	m.running.Store(true)
	return nil
}

// Stop drains and closes the NATS connection.
func (m *Mirror) Stop(timeout time.Duration) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if !m.running.Load() {
		return nil
	}
	m.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := m.client.Close(ctx); err != nil {
		return errors.WrapTransient(err, "Mirror", "Stop", "close NATS connection")
	}
	m.logger.Info("NATS mirror stopped", "published", m.published.Load(), "dropped", m.dropped.Load())
	return nil
}

// Broadcast publishes ev. It never waits for the server.
func (m *Mirror) Broadcast(ctx context.Context, ev telemetry.Event) {
	if !m.running.Load() {
		return
	}
	if !m.client.IsHealthy() {
		m.dropped.Add(1)
		m.record("dropped")
		return
	}

	payload, err := ev.Marshal()
	if err == nil {
		err = m.client.Publish(ctx, m.subject, payload)
	}
	if err != nil {
		m.failed.Add(1)
		m.lastError.Store(err.Error())
		m.record("failed")
		m.logger.Debug("Publish failed", "error", err)
		return
	}

	m.published.Add(1)
	m.lastActivity.Store(time.Now().UnixNano())
	m.record("published")
}

func (m *Mirror) record(outcome string) {
	if m.metrics != nil {
		m.metrics.published.WithLabelValues(outcome).Inc()
	}
}

// Counts returns published, dropped and failed totals.
func (m *Mirror) Counts() (published, dropped, failed int64) {
	return m.published.Load(), m.dropped.Load(), m.failed.Load()
}
