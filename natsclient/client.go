package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Siddamnn/SpeakMind/errors"
	"github.com/Siddamnn/SpeakMind/metric"
)

// ConnectionStatus is where the client is in its connection lifecycle.
type ConnectionStatus int32

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

var statusNames = [...]string{
	StatusDisconnected: "disconnected",
	StatusConnecting:   "connecting",
	StatusConnected:    "connected",
	StatusReconnecting: "reconnecting",
	StatusCircuitOpen:  "circuit_open",
}

func (s ConnectionStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrCircuitOpen  = stderrors.New("circuit breaker is open")
)

// Status is a snapshot for logs and diagnostics.
type Status struct {
	Status          ConnectionStatus
	FailureCount    int32
	LastFailureTime time.Time
	Reconnects      int32
	RTT             time.Duration
}

// Client owns one NATS connection used for publishing.
type Client struct {
	url     string
	logger  *slog.Logger
	metrics *metric.Metrics

	status     atomic.Int32 // ConnectionStatus
	circuit    *breaker
	reconnects atomic.Int32
	dropped    atomic.Bool // an established connection was lost

	// set by options before the breaker is built
	circuitThreshold int32
	maxBackoff       time.Duration

	maxReconnects   int
	reconnectWait   time.Duration
	pingInterval    time.Duration
	timeout         time.Duration
	drainTimeout    time.Duration
	retryOnFailure  bool
	reconnectBuffer int
	clientName      string

	mu             sync.RWMutex
	conn           *nats.Conn
	onHealthChange func(bool)

	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a client for url. It does not connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:              url,
		logger:           slog.Default().With("component", "natsclient"),
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		pingInterval:     30 * time.Second,
		timeout:          5 * time.Second,
		drainTimeout:     5 * time.Second,
		reconnectBuffer:  nats.DefaultReconnectBufSize,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.circuit = newBreaker(c.circuitThreshold, c.maxBackoff)
	return c, nil
}

// URL returns the server URL the client dials.
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

func (c *Client) setStatus(s ConnectionStatus) {
	c.status.Store(int32(s))
	c.metrics.RecordNATSStatus(s == StatusConnected)
}

// IsHealthy reports whether publishes can currently go out.
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Failures returns the number of failed connects since the last success.
func (c *Client) Failures() int32 {
	total, _, _ := c.circuit.snapshot()
	return total
}

// Backoff returns how long the circuit stays open on its next trip.
func (c *Client) Backoff() time.Duration {
	_, backoff, _ := c.circuit.snapshot()
	return backoff
}

func (c *Client) recordFailure() {
	tripped, wait := c.circuit.fail(time.Now())
	if !tripped {
		return
	}

	prev := c.Status()
	if prev == StatusCircuitOpen {
		c.logger.Warn("Circuit breaker still open", "backoff", c.Backoff())
		return
	}
	if c.status.CompareAndSwap(int32(prev), int32(StatusCircuitOpen)) {
		c.metrics.RecordNATSStatus(false)
		c.logger.Warn("Circuit breaker opened", "failures", c.Failures(), "backoff", wait)
		time.AfterFunc(wait, c.halfOpen)
	}
}

func (c *Client) resetCircuit() {
	c.circuit.reset()
	if c.Status() == StatusCircuitOpen {
		c.setStatus(StatusDisconnected)
	}
}

// halfOpen lets the next Connect through after the backoff.
func (c *Client) halfOpen() {
	if c.status.CompareAndSwap(int32(StatusCircuitOpen), int32(StatusDisconnected)) {
		c.logger.Debug("Circuit breaker half-open")
	}
}

func (c *Client) natsOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.ReconnectBufSize(c.reconnectBuffer),
		nats.ConnectHandler(c.handleConnect),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}
	if c.retryOnFailure {
		opts = append(opts, nats.RetryOnFailedConnect(true))
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	return opts
}

// GetStatus returns a snapshot of the connection.
func (c *Client) GetStatus() *Status {
	total, _, last := c.circuit.snapshot()
	s := &Status{
		Status:          c.Status(),
		FailureCount:    total,
		LastFailureTime: last,
		Reconnects:      c.reconnects.Load(),
	}
	if rtt, err := c.RTT(); err == nil {
		s.RTT = rtt
	}
	return s
}

type dialResult struct {
	conn *nats.Conn
	err  error
}

// Connect dials the server. With RetryOnFailedConnect set, an unreachable
// server leaves the client Reconnecting and nats.go keeps dialing in the
// background.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.WrapInvalid(ErrNotConnected, "Client", "Connect", "client closed")
	}
	if c.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}

	c.setStatus(StatusConnecting)
	c.logger.Info("Connecting to NATS", "url", c.url)

	opts := c.natsOptions()
	dialed := make(chan dialResult, 1)
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		dialed <- dialResult{conn, err}
	}()

	var res dialResult
	select {
	case res = <-dialed:
	case <-ctx.Done():
		// a dial that finishes after we gave up must not leak
		go func() {
			if late := <-dialed; late.conn != nil {
				late.conn.Close()
			}
		}()
		c.failConnect()
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}

	if res.err != nil {
		if c.failConnect() {
			return ErrCircuitOpen
		}
		return errors.WrapTransient(res.err, "Client", "Connect", "establish connection")
	}

	c.mu.Lock()
	c.conn = res.conn
	c.mu.Unlock()

	if !res.conn.IsConnected() {
		c.setStatus(StatusReconnecting)
		c.logger.Warn("NATS unreachable, retrying in background", "url", c.url)
		return nil
	}

	c.markConnected()
	c.logger.Info("Connected to NATS", "url", res.conn.ConnectedUrlRedacted())
	return nil
}

// failConnect records a failed dial and reports whether the circuit is open.
func (c *Client) failConnect() bool {
	c.recordFailure()
	if c.Status() == StatusCircuitOpen {
		return true
	}
	c.setStatus(StatusDisconnected)
	return false
}

func (c *Client) markConnected() {
	c.dropped.Store(false)
	c.setStatus(StatusConnected)
	c.resetCircuit()
	c.notifyHealth(true)
}

// Close drains and closes the connection. Safe to call more than once; a
// closed client cannot connect again.
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = c.drain(ctx, conn)
		conn.Close()
	}
	c.setStatus(StatusDisconnected)
	return err
}

func (c *Client) drain(ctx context.Context, conn *nats.Conn) error {
	limit := c.drainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < limit {
			limit = remaining
		}
	}
	timer := time.NewTimer(limit)
	defer timer.Stop()

	drained := make(chan error, 1)
	go func() { drained <- conn.Drain() }()

	select {
	case err := <-drained:
		// Drain refuses while reconnecting; Close still releases everything
		if err != nil && !stderrors.Is(err, nats.ErrConnectionReconnecting) {
			return errors.Wrap(err, "Client", "Close", "drain connection")
		}
		return nil
	case <-timer.C:
		return errors.WrapTransient(fmt.Errorf("drain timeout after %v", limit),
			"Client", "Close", "drain connection")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "Client", "Close", "drain connection")
	}
}

func (c *Client) liveConn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil || !c.conn.IsConnected() {
		return nil
	}
	return c.conn
}

// RTT returns the round-trip time to the server.
func (c *Client) RTT() (time.Duration, error) {
	conn := c.liveConn()
	if conn == nil {
		return 0, ErrNotConnected
	}
	return conn.RTT()
}

// Publish hands data to the connection's write buffer. It does not wait
// for the server, and fails fast with ErrNotConnected while disconnected.
// After an established connection drops the error also matches
// errors.ErrConnectionLost and is transient.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	conn := c.liveConn()
	if conn == nil {
		if c.dropped.Load() {
			return errors.WrapTransient(fmt.Errorf("%w: %w", ErrNotConnected, errors.ErrConnectionLost),
				"Client", "Publish", "publish to "+subject)
		}
		return ErrNotConnected
	}
	return conn.Publish(subject, data)
}

// OnHealthChange registers fn to be called, on its own goroutine, whenever
// the connection comes up or goes down.
func (c *Client) OnHealthChange(fn func(bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onHealthChange = fn
}

func (c *Client) notifyHealth(healthy bool) {
	c.mu.RLock()
	fn := c.onHealthChange
	c.mu.RUnlock()
	if fn != nil {
		go fn(healthy)
	}
}

// handleConnect only fires for a delayed first connect under
// RetryOnFailedConnect.
func (c *Client) handleConnect(_ *nats.Conn) {
	c.markConnected()
	c.logger.Info("Connected to NATS", "url", c.url)
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	if c.closed.Load() {
		return
	}
	c.dropped.Store(true)
	c.setStatus(StatusReconnecting)
	c.logger.Warn("NATS disconnected", "error", err)
	c.notifyHealth(false)
}

func (c *Client) handleReconnect(_ *nats.Conn) {
	c.reconnects.Add(1)
	c.metrics.RecordNATSReconnect()
	c.markConnected()
	c.logger.Info("NATS reconnected", "url", c.url)
}

func (c *Client) handleClosed(_ *nats.Conn) {
	c.setStatus(StatusDisconnected)
	c.notifyHealth(false)
}

func (c *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	c.logger.Error("NATS error", "error", err)
}
