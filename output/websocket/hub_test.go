package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Siddamnn/SpeakMind/component"
	"github.com/Siddamnn/SpeakMind/errors"
	"github.com/Siddamnn/SpeakMind/metric"
	"github.com/Siddamnn/SpeakMind/telemetry"
)

// fakeSink records every accepted payload.
type fakeSink struct {
	mu       sync.Mutex
	open     bool
	capacity int // 0 means unlimited
	got      [][]byte
}

func (f *fakeSink) TrySend(p []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.capacity > 0 && len(f.got) >= f.capacity {
		return false
	}
	f.got = append(f.got, p)
	return true
}

func (f *fakeSink) Open() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeSink) payloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.got...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Port = 0
	cfg.OutboxSize = 512
	return cfg
}

func newTestHub(t *testing.T, registry *metric.MetricsRegistry) *Hub {
	t.Helper()
	h, err := NewHub(testConfig(), &component.Dependencies{MetricsRegistry: registry})
	require.NoError(t, err)
	return h
}

func wsURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + Path
}

func TestHub_FanOutSkipsClosedSink(t *testing.T) {
	h := newTestHub(t, nil)

	open := []*fakeSink{{open: true}, {open: true}, {open: true}}
	closed := &fakeSink{open: false}
	for _, s := range open {
		h.Subscribe(s)
	}
	h.Subscribe(closed)
	assert.Equal(t, 3, h.SubscriberCount())

	ev := telemetry.Event{Alpha: 1.5, Beta: 2.25, Theta: 1, Delta: 0.6, Gamma: 3, Timestamp: 1700000000000}
	want, err := ev.Marshal()
	require.NoError(t, err)

	assert.NotPanics(t, func() { h.Broadcast(context.Background(), ev) })

	for i, s := range open {
		got := s.payloads()
		require.Len(t, got, 1, "sink %d", i)
		assert.Equal(t, want, got[0], "sink %d", i)
	}
	assert.Empty(t, closed.payloads())
}

func TestHub_FullSinkDoesNotBlockOthers(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	h := newTestHub(t, registry)

	stuck := &fakeSink{open: true, capacity: 1}
	healthy := &fakeSink{open: true}
	h.Subscribe(stuck)
	h.Subscribe(healthy)

	for i := 0; i < 5; i++ {
		h.BroadcastPayload(context.Background(), []byte{byte('0' + i)})
	}

	assert.Len(t, stuck.payloads(), 1)
	assert.Len(t, healthy.payloads(), 5)
	assert.Equal(t, 4.0, testutil.ToFloat64(h.metrics.framesDropped))
	assert.Equal(t, 6.0, testutil.ToFloat64(h.metrics.framesSent))
}

func TestHub_UnsubscribeAndCancelledContext(t *testing.T) {
	h := newTestHub(t, nil)
	s := &fakeSink{open: true}
	h.Subscribe(s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, h.BroadcastPayload(ctx, []byte("x")))

	h.Unsubscribe(s)
	assert.Zero(t, h.BroadcastPayload(context.Background(), []byte("y")))
	assert.Empty(t, s.payloads())
}

func TestHub_OrderingOverWebSocket(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newTestHub(t, nil)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()
	defer func() { require.NoError(t, h.Stop(5*time.Second)) }()

	const clients, events = 3, 200
	conns := make([]*websocket.Conn, clients)
	for i := range conns {
		c, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL), nil)
		require.NoError(t, err)
		defer c.Close()
		conns[i] = c
	}
	require.Eventually(t, func() bool { return h.SubscriberCount() == clients },
		2*time.Second, 10*time.Millisecond)

	for i := 0; i < events; i++ {
		h.Broadcast(context.Background(), telemetry.Event{Alpha: float64(i), Timestamp: int64(i)})
	}

	var wg sync.WaitGroup
	for i, c := range conns {
		wg.Add(1)
		go func(i int, c *websocket.Conn) {
			defer wg.Done()
			_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
			for want := 0; want < events; want++ {
				_, data, err := c.ReadMessage()
				if !assert.NoError(t, err, "client %d", i) {
					return
				}
				ev, err := telemetry.Unmarshal(data)
				if !assert.NoError(t, err) {
					return
				}
				if !assert.Equal(t, int64(want), ev.Timestamp, "client %d out of order", i) {
					return
				}
			}
		}(i, c)
	}
	wg.Wait()
}

func TestHub_NoReplayForLateSubscriber(t *testing.T) {
	h := newTestHub(t, nil)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()
	defer h.Stop(5 * time.Second)

	h.Broadcast(context.Background(), telemetry.Event{Timestamp: 1})

	c, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL), nil)
	require.NoError(t, err)
	defer c.Close()
	require.Eventually(t, func() bool { return h.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	h.Broadcast(context.Background(), telemetry.Event{Timestamp: 2})

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	ev, err := telemetry.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ev.Timestamp)
}

func TestHub_ClientDisconnectRemovesSubscriber(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	h := newTestHub(t, registry)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()
	defer h.Stop(5 * time.Second)

	c, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	_ = c.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	_ = c.Close()

	require.Eventually(t, func() bool { return h.SubscriberCount() == 0 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.connectionTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.subscribers))

	// Broadcasting after the peer left is not an error.
	assert.Zero(t, h.BroadcastPayload(context.Background(), []byte("{}")))
}

func TestHub_RejectsConnectionsAfterStop(t *testing.T) {
	h := newTestHub(t, nil)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	require.NoError(t, h.Stop(time.Second))

	c, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL), nil)
	require.NoError(t, err)
	defer c.Close()

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = c.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Zero(t, h.SubscriberCount())
}

func TestHub_StartServesPath(t *testing.T) {
	h := newTestHub(t, nil)
	require.NoError(t, h.Initialize())
	require.NoError(t, h.Start(context.Background()))
	defer h.Stop(5 * time.Second)

	assert.True(t, h.Health().Healthy)

	c, _, err := websocket.DefaultDialer.Dial("ws://"+h.Addr()+Path, nil)
	require.NoError(t, err)
	defer c.Close()

	require.Eventually(t, func() bool { return h.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	h.Broadcast(context.Background(), telemetry.Event{Gamma: 4.5, Timestamp: 9})
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"alpha":0,"beta":0,"theta":0,"delta":0,"gamma":4.5,"timestamp":9}`, string(data))

	require.NoError(t, h.Stop(5*time.Second))
	assert.False(t, h.Health().Healthy)
}

func TestHub_StandardLifecycle(t *testing.T) {
	component.StandardLifecycleTests(t, func() component.LifecycleComponent {
		h, err := NewHub(testConfig(), nil)
		require.NoError(t, err)
		return h
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"negative port", func(c *Config) { c.Port = -1 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"zero outbox", func(c *Config) { c.OutboxSize = 0 }},
		{"read timeout below ping", func(c *Config) { c.ReadTimeout = c.PingInterval }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)

			_, err = NewHub(cfg, nil)
			assert.Error(t, err)
		})
	}

	assert.NoError(t, DefaultConfig().Validate())
}

func TestHub_Meta(t *testing.T) {
	h := newTestHub(t, nil)
	meta := h.Meta()
	assert.Equal(t, "websocket-hub", meta.Name)
	assert.Equal(t, "output", meta.Type)
	assert.Contains(t, meta.Description, Path)
}
