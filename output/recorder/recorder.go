// Package recorder stores every telemetry event in a SQLite database.
package recorder

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Siddamnn/SpeakMind/component"
	"github.com/Siddamnn/SpeakMind/errors"
	"github.com/Siddamnn/SpeakMind/metric"
	"github.com/Siddamnn/SpeakMind/telemetry"
)

const schema = `
CREATE TABLE IF NOT EXISTS telemetry (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	alpha     REAL NOT NULL,
	beta      REAL NOT NULL,
	theta     REAL NOT NULL,
	delta     REAL NOT NULL,
	gamma     REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_telemetry_timestamp ON telemetry(timestamp);
`

const insertEvent = `INSERT INTO telemetry (timestamp, alpha, beta, theta, delta, gamma) VALUES (?, ?, ?, ?, ?, ?)`

// Config holds recorder settings
type Config struct {
	Name          string        // component name, default "recorder"
	Path          string        // database file
	QueueSize     int           // events buffered between ingestion and the writer
	BatchSize     int           // events per transaction
	FlushInterval time.Duration // max time an event waits in a partial batch
}

// DefaultConfig returns recorder defaults for path.
func DefaultConfig(path string) Config {
	return Config{
		Name:          "recorder",
		Path:          path,
		QueueSize:     1024,
		BatchSize:     50,
		FlushInterval: time.Second,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Path == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "path is required")
	}
	if c.QueueSize <= 0 || c.BatchSize <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"queue and batch size must be positive")
	}
	if c.FlushInterval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"flush interval must be positive")
	}
	return nil
}

type recorderMetrics struct {
	written       prometheus.Counter
	dropped       prometheus.Counter
	writeErrors   prometheus.Counter
	queueDepth    prometheus.Gauge
	batchDuration prometheus.Histogram
}

func newMetrics(registry *metric.MetricsRegistry, name string) (*recorderMetrics, error) {
	if registry == nil {
		return nil, nil
	}
	m := &recorderMetrics{
		written: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "recorder",
			Name: "events_written_total", Help: "Events committed to SQLite",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "recorder",
			Name: "events_dropped_total", Help: "Events dropped because the queue was full",
		}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace, Subsystem: "recorder",
			Name: "write_errors_total", Help: "Failed batch transactions",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace, Subsystem: "recorder",
			Name: "queue_depth", Help: "Events waiting for the writer",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace, Subsystem: "recorder",
			Name: "batch_duration_seconds", Help: "Time to commit one batch",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		}),
	}
	for _, err := range []error{
		registry.RegisterCounter(name, "events_written_total", m.written),
		registry.RegisterCounter(name, "events_dropped_total", m.dropped),
		registry.RegisterCounter(name, "write_errors_total", m.writeErrors),
		registry.RegisterGauge(name, "queue_depth", m.queueDepth),
		registry.RegisterHistogram(name, "batch_duration_seconds", m.batchDuration),
	} {
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Recorder is a Broadcaster that persists events. Broadcast only enqueues;
// a single writer goroutine inserts batches.
type Recorder struct {
	cfg     Config
	logger  *slog.Logger
	metrics *recorderMetrics
	queue   chan telemetry.Event

	lifecycleMu sync.Mutex
	running     atomic.Bool
	db          *sql.DB // open until the writer has exited
	shutdown    chan struct{}
	writerDone  chan struct{}
	startTime   time.Time

	written      atomic.Int64
	dropped      atomic.Int64
	errorCount   atomic.Int64
	lastError    atomic.Value // string
	lastFlushErr atomic.Bool
	lastActivity atomic.Int64
}

var _ component.LifecycleComponent = (*Recorder)(nil)

// NewRecorder creates a Recorder. The database is opened by Start.
func NewRecorder(cfg Config, deps *component.Dependencies) (*Recorder, error) {
	if cfg.Name == "" {
		cfg.Name = "recorder"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metrics, err := newMetrics(deps.GetMetricsRegistry(), cfg.Name)
	if err != nil {
		return nil, errors.Wrap(err, "Recorder", "NewRecorder", "register metrics")
	}

	r := &Recorder{
		cfg:       cfg,
		logger:    deps.GetLoggerWithComponent(cfg.Name),
		metrics:   metrics,
		queue:     make(chan telemetry.Event, cfg.QueueSize),
		startTime: time.Now(),
	}
	r.lastError.Store("")
	return r, nil
}

// Meta returns the component metadata
func (r *Recorder) Meta() component.Metadata {
	return component.Metadata{
		Name:        r.cfg.Name,
		Type:        "sink",
		Description: fmt.Sprintf("SQLite telemetry recorder at %s", r.cfg.Path),
		Version:     "1.0.0",
	}
}

// Health is degraded after a failed batch or once events have been dropped.
func (r *Recorder) Health() component.HealthStatus {
	lastErr, _ := r.lastError.Load().(string)
	return component.HealthStatus{
		Healthy:    r.running.Load(),
		Degraded:   r.lastFlushErr.Load() || r.dropped.Load() > 0,
		LastCheck:  time.Now(),
		ErrorCount: int(r.errorCount.Load()),
		LastError:  lastErr,
		Uptime:     time.Since(r.startTime),
	}
}

// DataFlow returns write throughput; ErrorRate is the share of dropped events.
func (r *Recorder) DataFlow() component.FlowMetrics {
	var rate, dropRate float64
	written, dropped := r.written.Load(), r.dropped.Load()
	if uptime := time.Since(r.startTime).Seconds(); uptime > 0 {
		rate = float64(written) / uptime
	}
	if total := written + dropped; total > 0 {
		dropRate = float64(dropped) / float64(total)
	}
	var last time.Time
	if ns := r.lastActivity.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}
	return component.FlowMetrics{
		MessagesPerSecond: rate,
		ErrorRate:         dropRate,
		LastActivity:      last,
	}
}

// Initialize validates the configuration and makes sure the directory exists.
func (r *Recorder) Initialize() error {
	if err := r.cfg.Validate(); err != nil {
		return err
	}
	if dir := filepath.Dir(r.cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WrapFatal(err, "Recorder", "Initialize", "create database directory")
		}
	}
	return nil
}

// Start opens the database, creates the schema and starts the writer.
func (r *Recorder) Start(ctx context.Context) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	if r.running.Load() {
		return nil
	}
	if r.db != nil {
		return errors.WrapTransient(fmt.Errorf("%w: previous stop did not finish", errors.ErrStorageUnavailable),
			"Recorder", "Start", "open database")
	}

	db, err := sql.Open("sqlite3", r.cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return errors.WrapFatal(err, "Recorder", "Start", "open database")
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return errors.WrapFatal(fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err),
			"Recorder", "Start", "create schema")
	}

	r.db = db
	r.shutdown = make(chan struct{})
	r.writerDone = make(chan struct{})
	r.startTime = time.Now()
	r.running.Store(true)

	go r.writeLoop(db, r.shutdown, r.writerDone)

	r.logger.Info("Recorder started", "path", r.cfg.Path)
	return nil
}

// Stop flushes what is queued, stops the writer and closes the database.
// When the writer does not finish within timeout the database stays open
// and a later Stop waits again.
func (r *Recorder) Stop(timeout time.Duration) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	if r.db == nil {
		return nil
	}
	if r.running.Swap(false) {
		close(r.shutdown)
	}

	select {
	case <-r.writerDone:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("shutdown timeout after %v", timeout),
			"Recorder", "Stop", "wait for writer")
	}

	if err := r.db.Close(); err != nil {
		r.logger.Warn("Failed to close database", "error", err)
	}
	r.db = nil
	r.logger.Info("Recorder stopped", "written", r.written.Load(), "dropped", r.dropped.Load())
	return nil
}

// Broadcast queues ev for the writer. It never blocks: when the queue is
// full, or the recorder is not running, the event is dropped and counted.
func (r *Recorder) Broadcast(_ context.Context, ev telemetry.Event) {
	if !r.running.Load() {
		return
	}
	select {
	case r.queue <- ev:
		if r.metrics != nil {
			r.metrics.queueDepth.Set(float64(len(r.queue)))
		}
	default:
		r.dropped.Add(1)
		if r.metrics != nil {
			r.metrics.dropped.Inc()
		}
	}
}

func (r *Recorder) writeLoop(db *sql.DB, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]telemetry.Event, 0, r.cfg.BatchSize)
	for {
		select {
		case ev := <-r.queue:
			batch = append(batch, ev)
			if len(batch) >= r.cfg.BatchSize {
				batch = r.flush(db, batch)
			}
		case <-ticker.C:
			batch = r.flush(db, batch)
		case <-shutdown:
			for {
				select {
				case ev := <-r.queue:
					batch = append(batch, ev)
					if len(batch) >= r.cfg.BatchSize {
						batch = r.flush(db, batch)
					}
				default:
					r.flush(db, batch)
					return
				}
			}
		}
	}
}

// flush writes batch in one transaction and returns it emptied.
func (r *Recorder) flush(db *sql.DB, batch []telemetry.Event) []telemetry.Event {
	if len(batch) == 0 {
		return batch
	}
	start := time.Now()

	if err := insertBatch(db, batch); err != nil {
		r.errorCount.Add(1)
		r.lastError.Store(err.Error())
		r.lastFlushErr.Store(true)
		if r.metrics != nil {
			r.metrics.writeErrors.Inc()
		}
		r.logger.Error("Failed to write telemetry batch", "events_lost", len(batch),
			"class", errors.Classify(err), "error", err)
		return batch[:0]
	}

	r.lastFlushErr.Store(false)
	r.written.Add(int64(len(batch)))
	r.lastActivity.Store(time.Now().UnixNano())
	if r.metrics != nil {
		r.metrics.written.Add(float64(len(batch)))
		r.metrics.batchDuration.Observe(time.Since(start).Seconds())
		r.metrics.queueDepth.Set(float64(len(r.queue)))
	}
	return batch[:0]
}

func insertBatch(db *sql.DB, batch []telemetry.Event) error {
	tx, err := db.Begin()
	if err != nil {
		return writeError(err, "begin transaction")
	}
	stmt, err := tx.Prepare(insertEvent)
	if err != nil {
		_ = tx.Rollback()
		return writeError(err, "prepare insert")
	}
	defer stmt.Close()

	for _, ev := range batch {
		if _, err := stmt.Exec(ev.Timestamp, ev.Alpha, ev.Beta, ev.Theta, ev.Delta, ev.Gamma); err != nil {
			_ = tx.Rollback()
			return writeError(err, "insert event")
		}
	}
	if err := tx.Commit(); err != nil {
		return writeError(err, "commit")
	}
	return nil
}

// writeError classifies a SQLite write failure. A full database or disk is
// fatal; anything else, a busy lock included, may clear up.
func writeError(err error, action string) error {
	var se sqlite3.Error
	if stderrors.As(err, &se) && se.Code == sqlite3.ErrFull {
		return errors.WrapFatal(fmt.Errorf("%w: %w", errors.ErrStorageFull, err), "Recorder", "flush", action)
	}
	return errors.WrapTransient(err, "Recorder", "flush", action)
}

// Written returns the number of committed events.
func (r *Recorder) Written() int64 { return r.written.Load() }

// Dropped returns the number of events dropped on a full queue.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Recent reads up to limit events from the database at path, oldest first.
func Recent(ctx context.Context, path string, limit int) ([]telemetry.Event, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, errors.WrapFatal(err, "Recorder", "Recent", "open database")
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT timestamp, alpha, beta, theta, delta, gamma FROM
			(SELECT * FROM telemetry ORDER BY id DESC LIMIT ?) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, errors.WrapTransient(err, "Recorder", "Recent", "query telemetry")
	}
	defer rows.Close()

	var out []telemetry.Event
	for rows.Next() {
		var ev telemetry.Event
		if err := rows.Scan(&ev.Timestamp, &ev.Alpha, &ev.Beta, &ev.Theta, &ev.Delta, &ev.Gamma); err != nil {
			return nil, errors.WrapInvalid(err, "Recorder", "Recent", "scan row")
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
