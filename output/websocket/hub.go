// Package websocket provides the push transport that fans telemetry frames
// out to WebSocket subscribers.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Siddamnn/SpeakMind/component"
	"github.com/Siddamnn/SpeakMind/errors"
	"github.com/Siddamnn/SpeakMind/telemetry"
)

// Path is the endpoint subscribers connect to.
const Path = "/eeg"

// Config holds Hub settings
type Config struct {
	Name         string        // component name, default "websocket-hub"
	Port         int           // listen port; 0 picks a free port
	OutboxSize   int           // frames buffered per subscriber
	WriteTimeout time.Duration // per-frame write deadline
	PingInterval time.Duration // keep-alive ping period
	ReadTimeout  time.Duration // read deadline, extended by every pong
}

// DefaultConfig returns the Hub defaults
func DefaultConfig() Config {
	return Config{
		Name:         "websocket-hub",
		Port:         8080,
		OutboxSize:   32,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("%w: port %d out of range", errors.ErrInvalidConfig, c.Port),
			"Hub", "Validate", "check port")
	}
	if c.OutboxSize <= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: outbox size must be positive", errors.ErrInvalidConfig),
			"Hub", "Validate", "check outbox size")
	}
	if c.WriteTimeout <= 0 || c.PingInterval <= 0 || c.ReadTimeout <= c.PingInterval {
		return errors.WrapInvalid(fmt.Errorf("%w: read timeout must exceed ping interval", errors.ErrInvalidConfig),
			"Hub", "Validate", "check timeouts")
	}
	return nil
}

// Hub tracks the open subscribers and delivers every broadcast to each of
// them at most once. A new subscriber only sees events broadcast after it
// joined. Broadcast never waits on a subscriber: frames go into a bounded
// per-subscriber outbox and a full outbox drops the frame for that
// subscriber only.
type Hub struct {
	cfg      Config
	logger   *slog.Logger
	metrics  *Metrics
	upgrader websocket.Upgrader

	mu      sync.RWMutex // protects sinks, closing and wg
	sinks   map[Sink]struct{}
	closing bool
	wg      *sync.WaitGroup

	lifecycleMu sync.Mutex
	server      *http.Server
	listener    net.Listener
	serveDone   chan struct{}
	running     atomic.Bool
	startTime   time.Time

	broadcasts   atomic.Int64
	framesSent   atomic.Int64
	framesDrop   atomic.Int64
	bytesSent    atomic.Int64
	errorCount   atomic.Int64
	lastActivity atomic.Int64 // unix nanos
}

var (
	_ component.LifecycleComponent = (*Hub)(nil)
	_ http.Handler                 = (*Hub)(nil)
)

// NewHub creates a Hub. It does not listen until Start.
func NewHub(cfg Config, deps *component.Dependencies) (*Hub, error) {
	if cfg.Name == "" {
		cfg.Name = "websocket-hub"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	metrics, err := newMetrics(deps.GetMetricsRegistry(), cfg.Name)
	if err != nil {
		return nil, errors.Wrap(err, "Hub", "NewHub", "register metrics")
	}

	return &Hub{
		cfg:     cfg,
		logger:  deps.GetLoggerWithComponent(cfg.Name),
		metrics: metrics,
		upgrader: websocket.Upgrader{
			// Display clients connect from arbitrary local origins.
			CheckOrigin:     func(_ *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		sinks:     make(map[Sink]struct{}),
		wg:        &sync.WaitGroup{},
		startTime: time.Now(),
	}, nil
}

// Meta returns the component metadata
func (h *Hub) Meta() component.Metadata {
	return component.Metadata{
		Name:        h.cfg.Name,
		Type:        "output",
		Description: fmt.Sprintf("WebSocket telemetry push on :%d%s", h.cfg.Port, Path),
		Version:     "1.0.0",
	}
}

// Health reports healthy while the listener is up
func (h *Hub) Health() component.HealthStatus {
	return component.HealthStatus{
		Healthy:    h.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(h.errorCount.Load()),
		Uptime:     time.Since(h.startTime),
	}
}

// DataFlow returns frame throughput since start
func (h *Hub) DataFlow() component.FlowMetrics {
	var fps, bps, errRate float64
	if uptime := time.Since(h.startTime).Seconds(); uptime > 0 {
		fps = float64(h.framesSent.Load()) / uptime
		bps = float64(h.bytesSent.Load()) / uptime
	}
	if sent := h.framesSent.Load(); sent > 0 {
		errRate = float64(h.framesDrop.Load()) / float64(sent)
	}

	var last time.Time
	if ns := h.lastActivity.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}

	return component.FlowMetrics{
		MessagesPerSecond: fps,
		BytesPerSecond:    bps,
		ErrorRate:         errRate,
		LastActivity:      last,
	}
}

// Initialize prepares the Hub for a new Start
func (h *Hub) Initialize() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closing = false
	h.wg = &sync.WaitGroup{}
	return nil
}

// Start listens on the configured port and serves Path.
func (h *Hub) Start(ctx context.Context) error {
	h.lifecycleMu.Lock()
	defer h.lifecycleMu.Unlock()

	if h.running.Load() {
		return nil
	}
	if ctx == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Hub", "Start", "context cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "Hub", "Start", "context already cancelled")
	}

	h.mu.Lock()
	if h.closing {
		h.closing = false
		h.wg = &sync.WaitGroup{}
	}
	h.mu.Unlock()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", h.cfg.Port))
	if err != nil {
		return errors.WrapFatal(err, "Hub", "Start", fmt.Sprintf("listen on port %d", h.cfg.Port))
	}

	h.listener = ln
	h.server = &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	h.serveDone = make(chan struct{})
	h.startTime = time.Now()
	h.running.Store(true)

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.errorCount.Add(1)
			h.recordError("serve")
			h.running.Store(false)
			h.logger.Error("WebSocket server failed", "error", err)
		}
	}(h.server, h.serveDone)

	h.logger.Info("WebSocket hub listening", "address", h.Addr(), "path", Path)
	return nil
}

// Addr returns the bound listen address, or the configured port before Start.
func (h *Hub) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return fmt.Sprintf(":%d", h.cfg.Port)
}

// Stop shuts the HTTP server, closes every subscriber and waits for their
// goroutines. Safe to call more than once.
func (h *Hub) Stop(timeout time.Duration) error {
	h.lifecycleMu.Lock()
	defer h.lifecycleMu.Unlock()

	h.running.Store(false)

	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := h.server.Shutdown(ctx)
		cancel()
		if err != nil {
			h.logger.Warn("HTTP server shutdown error", "error", err)
		}
		<-h.serveDone
		h.server = nil
		h.listener = nil
	}

	h.mu.Lock()
	h.closing = true
	wg := h.wg
	subs := make([]*subscriber, 0, len(h.sinks))
	for s := range h.sinks {
		if sub, ok := s.(*subscriber); ok {
			subs = append(subs, sub)
		}
	}
	h.sinks = make(map[Sink]struct{})
	h.mu.Unlock()

	for _, sub := range subs {
		h.closeSubscriber(sub, "shutdown")
	}
	if h.metrics != nil {
		h.metrics.subscribers.Set(0)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrConnectionTimeout, "Hub", "Stop",
			"wait for subscriber goroutines")
	}
}

// Handler returns an http.Handler serving Path only.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(Path, h)
	return mux
}

// ServeHTTP upgrades the request and registers the connection as a subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.errorCount.Add(1)
		h.recordError("connection_upgrade")
		return
	}

	sub := newSubscriber(conn, h.cfg.OutboxSize)

	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	h.sinks[sub] = struct{}{}
	count := h.countLocked()
	wg := h.wg
	wg.Add(2)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.connectionTotal.Inc()
		h.metrics.subscribers.Set(float64(count))
	}
	h.logger.Info("Subscriber connected", "subscriber", sub.id, "remote", sub.remote, "subscribers", count)

	go h.writeLoop(wg, sub)
	go h.readLoop(wg, sub)
}

// Subscribe registers an external sink. It receives every later broadcast.
func (h *Hub) Subscribe(s Sink) {
	h.mu.Lock()
	h.sinks[s] = struct{}{}
	h.mu.Unlock()
}

// Unsubscribe removes a sink registered with Subscribe.
func (h *Hub) Unsubscribe(s Sink) {
	h.mu.Lock()
	delete(h.sinks, s)
	h.mu.Unlock()
}

// SubscriberCount returns the number of registered sinks that are open.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked()
}

func (h *Hub) countLocked() int {
	n := 0
	for s := range h.sinks {
		if s.Open() {
			n++
		}
	}
	return n
}

// Broadcast serialises ev once and offers the payload to every open sink.
func (h *Hub) Broadcast(ctx context.Context, ev telemetry.Event) {
	payload, err := ev.Marshal()
	if err != nil {
		h.errorCount.Add(1)
		h.recordError("marshal")
		return
	}
	h.BroadcastPayload(ctx, payload)
}

// BroadcastPayload offers an already serialised frame to every open sink.
// It returns the number of sinks that accepted it.
func (h *Hub) BroadcastPayload(ctx context.Context, payload []byte) int {
	if ctx.Err() != nil {
		return 0
	}
	start := time.Now()

	accepted, dropped := 0, 0
	h.mu.RLock()
	for s := range h.sinks {
		if !s.Open() {
			continue
		}
		if s.TrySend(payload) {
			accepted++
		} else {
			dropped++
		}
	}
	h.mu.RUnlock()

	h.broadcasts.Add(1)
	h.framesSent.Add(int64(accepted))
	h.framesDrop.Add(int64(dropped))
	h.lastActivity.Store(start.UnixNano())

	if h.metrics != nil {
		h.metrics.framesSent.Add(float64(accepted))
		h.metrics.framesDropped.Add(float64(dropped))
		h.metrics.broadcastDuration.Observe(time.Since(start).Seconds())
	}
	return accepted
}

// writeLoop drains the subscriber outbox and sends keep-alive pings.
func (h *Hub) writeLoop(wg *sync.WaitGroup, sub *subscriber) {
	defer wg.Done()

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sub.done:
			return

		case payload := <-sub.outbox:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.errorCount.Add(1)
				h.recordError("write")
				h.removeSubscriber(sub, "write_error")
				return
			}
			sub.sent.Add(1)
			h.bytesSent.Add(int64(len(payload)))
			if h.metrics != nil {
				h.metrics.bytesSent.Add(float64(len(payload)))
			}

		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := sub.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				h.errorCount.Add(1)
				h.recordError("ping")
				h.removeSubscriber(sub, "ping_failed")
				return
			}
		}
	}
}

// readLoop discards inbound frames and notices when the peer goes away.
func (h *Hub) readLoop(wg *sync.WaitGroup, sub *subscriber) {
	defer wg.Done()

	_ = sub.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			reason := "read_error"
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = "client_closed"
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				reason = "timeout"
			}
			h.removeSubscriber(sub, reason)
			return
		}
	}
}

func (h *Hub) removeSubscriber(sub *subscriber, reason string) {
	h.mu.Lock()
	delete(h.sinks, sub)
	count := h.countLocked()
	h.mu.Unlock()

	if h.closeSubscriber(sub, reason) {
		if h.metrics != nil {
			h.metrics.subscribers.Set(float64(count))
		}
		h.logger.Info("Subscriber disconnected",
			"subscriber", sub.id, "reason", reason,
			"frames", sub.sent.Load(), "dropped", sub.dropped.Load(),
			"subscribers", count)
	}
}

func (h *Hub) closeSubscriber(sub *subscriber, reason string) bool {
	if !sub.close() {
		return false
	}
	if h.metrics != nil {
		h.metrics.disconnectionTotal.WithLabelValues(reason).Inc()
	}
	return true
}

func (h *Hub) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.errorsTotal.WithLabelValues(kind).Inc()
	}
}
