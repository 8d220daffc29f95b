// Package serial reads sample lines from the acquisition board's serial port
// and hands each one to a LineHandler.
package serial

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Siddamnn/SpeakMind/component"
	"github.com/Siddamnn/SpeakMind/errors"
	"github.com/Siddamnn/SpeakMind/metric"
	"github.com/Siddamnn/SpeakMind/pkg/retry"
	"github.com/Siddamnn/SpeakMind/processor/band"
)

// State is the device connection state.
type State int32

const (
	// StateClosed means no device handle is held
	StateClosed State = iota
	// StateOpening means an open attempt is in progress
	StateOpening
	// StateOpen means lines are being read
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// LineHandler consumes one line. It returns the estimator state after the
// line and whether the line was accepted as a sample.
type LineHandler interface {
	HandleLine(ctx context.Context, line string) (band.State, bool)
}

// LineHandlerFunc adapts a function to LineHandler.
type LineHandlerFunc func(ctx context.Context, line string) (band.State, bool)

// HandleLine calls f.
func (f LineHandlerFunc) HandleLine(ctx context.Context, line string) (band.State, bool) {
	return f(ctx, line)
}

// Config holds driver settings
type Config struct {
	Name          string       // component name, default "serial-input"
	Device        string       // device path, e.g. COM7 or /dev/ttyUSB0
	BaudRate      int          // line speed
	Reconnect     bool         // reopen after a read error
	Retry         retry.Config // reopen policy when Reconnect is set
	ProgressEvery int          // log a progress line every N accepted samples
}

// DefaultConfig returns the driver defaults for device.
func DefaultConfig(device string) Config {
	return Config{
		Name:          "serial-input",
		Device:        device,
		BaudRate:      BaudRate,
		Retry:         retry.Reconnect(),
		ProgressEvery: 500,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Device == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: empty device", errors.ErrInvalidConfig),
			"Driver", "Validate", "check device")
	}
	if c.BaudRate <= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: baud rate %d", errors.ErrInvalidConfig, c.BaudRate),
			"Driver", "Validate", "check baud rate")
	}
	if c.ProgressEvery <= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: progress interval must be positive", errors.ErrInvalidConfig),
			"Driver", "Validate", "check progress interval")
	}
	return nil
}

// Driver owns the serial device. A single reader goroutine reads one line,
// hands it to the handler and waits for the handler to return before the
// next read.
type Driver struct {
	cfg     Config
	opener  Opener
	handler LineHandler
	logger  *slog.Logger
	metrics *Metrics
	core    *metric.Metrics

	// errLog throttles repeated open failures while reconnecting
	errLog *rate.Limiter

	lifecycleMu sync.Mutex
	running     atomic.Bool
	cancel      context.CancelFunc
	done        chan struct{}
	startTime   time.Time

	mu  sync.Mutex // protects src
	src LineSource

	state        atomic.Int32
	lines        atomic.Int64
	samples      atomic.Int64
	bytes        atomic.Int64
	errorCount   atomic.Int64
	lastError    atomic.Value // string
	lastActivity atomic.Int64 // unix nanos
}

var _ component.LifecycleComponent = (*Driver)(nil)

// NewDriver creates a Driver. A nil opener means OpenDevice.
func NewDriver(cfg Config, opener Opener, handler LineHandler, deps *component.Dependencies) (*Driver, error) {
	if cfg.Name == "" {
		cfg.Name = "serial-input"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: nil line handler", errors.ErrInvalidConfig),
			"Driver", "NewDriver", "check handler")
	}
	if opener == nil {
		opener = OpenDevice
	}

	metrics, err := newMetrics(deps.GetMetricsRegistry(), cfg.Name)
	if err != nil {
		return nil, errors.Wrap(err, "Driver", "NewDriver", "register metrics")
	}

	d := &Driver{
		cfg:       cfg,
		opener:    opener,
		handler:   handler,
		logger:    deps.GetLoggerWithComponent(cfg.Name).With("device", cfg.Device),
		metrics:   metrics,
		core:      deps.GetMetricsRegistry().CoreMetrics(),
		errLog:    rate.NewLimiter(rate.Every(10*time.Second), 1),
		startTime: time.Now(),
	}
	d.lastError.Store("")
	return d, nil
}

// Meta returns the component metadata
func (d *Driver) Meta() component.Metadata {
	return component.Metadata{
		Name:        d.cfg.Name,
		Type:        "input",
		Description: fmt.Sprintf("Serial sample reader on %s at %d baud", d.cfg.Device, d.cfg.BaudRate),
		Version:     "1.0.0",
	}
}

// Health is healthy only while the device is open.
func (d *Driver) Health() component.HealthStatus {
	lastErr, _ := d.lastError.Load().(string)
	return component.HealthStatus{
		Healthy:    d.running.Load() && d.State() == StateOpen,
		LastCheck:  time.Now(),
		ErrorCount: int(d.errorCount.Load()),
		LastError:  lastErr,
		Uptime:     time.Since(d.startTime),
	}
}

// DataFlow returns line throughput since start
func (d *Driver) DataFlow() component.FlowMetrics {
	var lps, bps, errRate float64
	lines := d.lines.Load()
	if uptime := time.Since(d.startTime).Seconds(); uptime > 0 {
		lps = float64(lines) / uptime
		bps = float64(d.bytes.Load()) / uptime
	}
	if lines > 0 {
		errRate = float64(d.errorCount.Load()) / float64(lines)
	}

	var last time.Time
	if ns := d.lastActivity.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}

	return component.FlowMetrics{
		MessagesPerSecond: lps,
		BytesPerSecond:    bps,
		ErrorRate:         errRate,
		LastActivity:      last,
	}
}

// State returns the current device state.
func (d *Driver) State() State {
	return State(d.state.Load())
}

// Samples returns the number of accepted samples since creation.
func (d *Driver) Samples() int64 {
	return d.samples.Load()
}

// Initialize validates the configuration
func (d *Driver) Initialize() error {
	return d.cfg.Validate()
}

// Start opens the device and starts the reader goroutine. A device that
// cannot be opened is logged and leaves the driver Closed; Start still
// succeeds so the rest of the process keeps serving.
func (d *Driver) Start(ctx context.Context) error {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	if d.running.Load() {
		return nil
	}
	if ctx == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Driver", "Start", "context cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "Driver", "Start", "context already cancelled")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.startTime = time.Now()
	d.running.Store(true)

	src, err := d.open(runCtx)
	if err != nil {
		d.logger.Error("Failed to open serial device", "baud", d.cfg.BaudRate, "error", err)
	}

	go func(done chan struct{}) {
		defer close(done)
		d.run(runCtx, src)
	}(d.done)

	return nil
}

// Stop cancels the reader, closes the device and waits for the reader to
// exit. Safe to call more than once.
func (d *Driver) Stop(timeout time.Duration) error {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	if !d.running.Load() {
		return nil
	}
	d.running.Store(false)

	d.cancel()
	d.closeSource(nil)

	select {
	case <-d.done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"Driver", "Stop", "wait for reader")
	}

	d.setState(StateClosed)
	d.logger.Info("Serial driver stopped", "samples", d.samples.Load())
	return nil
}

// run reads until the context ends. Without Reconnect it returns after the
// first read error.
func (d *Driver) run(ctx context.Context, src LineSource) {
	for {
		if src != nil {
			err := d.readLoop(ctx, src)
			if ctx.Err() != nil {
				return
			}
			d.closeSource(src)
			d.setState(StateClosed)
			d.recordError("read_error", err)
			d.logger.Error("Serial read failed, device closed", "error", err)
		}

		if !d.cfg.Reconnect || ctx.Err() != nil {
			return
		}

		var err error
		src, err = d.reopen(ctx)
		if err != nil {
			if ctx.Err() == nil {
				d.logger.Error("Giving up on serial device", "error", err)
			}
			return
		}
	}
}

func (d *Driver) readLoop(ctx context.Context, src LineSource) error {
	for {
		line, err := src.ReadLine()
		if err != nil {
			return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrDeviceClosed, err),
				"Driver", "readLoop", "read line")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		now := time.Now()
		d.lines.Add(1)
		d.bytes.Add(int64(len(line)) + 1)
		d.lastActivity.Store(now.UnixNano())
		if d.metrics != nil {
			d.metrics.linesRead.Inc()
			d.metrics.bytesRead.Add(float64(len(line) + 1))
			d.metrics.lastActivity.Set(float64(now.Unix()))
		}

		state, ok := d.handler.HandleLine(ctx, line)
		if !ok {
			continue
		}
		if n := d.samples.Add(1); n%int64(d.cfg.ProgressEvery) == 0 {
			d.logger.Info("Processed samples", "count", n, "raw", state.LastRaw, "alpha", state.Alpha)
		}
	}
}

func (d *Driver) reopen(ctx context.Context) (LineSource, error) {
	policy := d.cfg.Retry
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		if d.errLog.Allow() {
			d.logger.Warn("Serial reopen failed, retrying", "attempt", attempt, "wait", wait, "error", err)
		}
	}
	src, err := retry.DoWithResult(ctx, policy, func() (LineSource, error) {
		return d.open(ctx)
	})
	if err != nil {
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.reconnects.Inc()
	}
	d.logger.Info("Serial device reopened")
	return src, nil
}

// open runs one Closed -> Opening -> Open (or back to Closed) cycle.
func (d *Driver) open(ctx context.Context) (LineSource, error) {
	d.setState(StateOpening)

	src, err := d.opener(d.cfg.Device, d.cfg.BaudRate)
	if err != nil {
		d.setState(StateClosed)
		if d.metrics != nil {
			d.metrics.openFailures.Inc()
		}
		err = errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrDeviceUnavailable, err),
			"Driver", "open", fmt.Sprintf("open %s", d.cfg.Device))
		d.recordError("open_failed", err)
		return nil, err
	}

	d.mu.Lock()
	if ctx.Err() != nil {
		d.mu.Unlock()
		_ = src.Close()
		d.setState(StateClosed)
		return nil, retry.NonRetryable(ctx.Err())
	}
	d.src = src
	d.mu.Unlock()

	d.setState(StateOpen)
	return src, nil
}

// closeSource closes the current source. With a non-nil want it only acts
// if want is still current.
func (d *Driver) closeSource(want LineSource) {
	d.mu.Lock()
	src := d.src
	if src == nil || (want != nil && src != want) {
		d.mu.Unlock()
		return
	}
	d.src = nil
	d.mu.Unlock()

	if err := src.Close(); err != nil {
		d.logger.Debug("Serial close error", "error", err)
	}
}

func (d *Driver) setState(s State) {
	old := State(d.state.Swap(int32(s)))
	if d.metrics != nil {
		d.metrics.deviceState.Set(float64(s))
	}
	if old != s {
		d.logger.Info("Serial state changed", "from", old.String(), "to", s.String())
	}
}

func (d *Driver) recordError(kind string, err error) {
	d.errorCount.Add(1)
	d.lastError.Store(err.Error())
	if d.metrics != nil && kind == "read_error" {
		d.metrics.readErrors.Inc()
	}
	d.core.RecordError(d.cfg.Name, kind)
}
