package component

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Siddamnn/SpeakMind/errors"
	"github.com/Siddamnn/SpeakMind/metric"
)

// State represents the current lifecycle state of a component
type State int

const (
	// StateCreated indicates component was created but not initialized
	StateCreated State = iota
	// StateInitialized indicates component was initialized but not started
	StateInitialized
	// StateStarted indicates component is running
	StateStarted
	// StateStopped indicates component was stopped
	StateStopped
	// StateFailed indicates component failed during lifecycle operation
	StateFailed
)

// String returns a string representation of the component state
func (cs State) String() string {
	switch cs {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Service status values exported through the service status gauge.
const (
	statusStopped  = 0
	statusStarting = 1
	statusRunning  = 2
	statusStopping = 3
	statusFailed   = 4
)

// LifecycleComponent is a Discoverable that can be started and stopped.
type LifecycleComponent interface {
	Discoverable
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

type managed struct {
	comp  LifecycleComponent
	state State
	err   error
}

// Group runs a fixed set of components. Start goes in registration order,
// Stop in reverse.
type Group struct {
	logger  *slog.Logger
	metrics *metric.Metrics

	mu      sync.Mutex
	members []*managed
}

// NewGroup creates an empty Group.
func NewGroup(deps *Dependencies) *Group {
	return &Group{
		logger:  deps.GetLoggerWithComponent("lifecycle"),
		metrics: deps.GetMetricsRegistry().CoreMetrics(),
	}
}

// Add registers a component. Components must be added before Start.
func (g *Group) Add(c LifecycleComponent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members = append(g.members, &managed{comp: c, state: StateCreated})
}

// Components returns the registered components in start order.
func (g *Group) Components() []Discoverable {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Discoverable, len(g.members))
	for i, m := range g.members {
		out[i] = m.comp
	}
	return out
}

// State returns the lifecycle state of the named component.
func (g *Group) State(name string) (State, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.members {
		if m.comp.Meta().Name == name {
			return m.state, true
		}
	}
	return StateCreated, false
}

// Start initializes and starts every component. If one fails, the ones
// already started are stopped again and the error is returned.
func (g *Group) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, m := range g.members {
		name := m.comp.Meta().Name
		g.metrics.RecordServiceStatus(name, statusStarting)

		if err := m.comp.Initialize(); err != nil {
			return g.abort(i, m, errors.Wrap(err, "Group", "Start", fmt.Sprintf("initialize %s", name)))
		}
		m.state = StateInitialized

		if err := m.comp.Start(ctx); err != nil {
			return g.abort(i, m, errors.Wrap(err, "Group", "Start", fmt.Sprintf("start %s", name)))
		}
		m.state = StateStarted
		g.metrics.RecordServiceStatus(name, statusRunning)
		g.logger.Debug("Component started", "name", name)
	}
	return nil
}

func (g *Group) abort(failed int, m *managed, err error) error {
	if m.state == StateInitialized {
		_ = m.comp.Stop(5 * time.Second)
	}
	m.state = StateFailed
	m.err = err
	g.metrics.RecordServiceStatus(m.comp.Meta().Name, statusFailed)
	g.logger.Error("Component failed to start", "name", m.comp.Meta().Name, "error", err)

	for i := failed - 1; i >= 0; i-- {
		g.stopOne(g.members[i], 5*time.Second)
	}
	return err
}

// Stop stops every started component in reverse order. Each component gets
// the full timeout. All stop errors are joined.
func (g *Group) Stop(timeout time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for i := len(g.members) - 1; i >= 0; i-- {
		if err := g.stopOne(g.members[i], timeout); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (g *Group) stopOne(m *managed, timeout time.Duration) error {
	if m.state != StateStarted && m.state != StateInitialized {
		return nil
	}
	name := m.comp.Meta().Name
	g.metrics.RecordServiceStatus(name, statusStopping)

	if err := m.comp.Stop(timeout); err != nil {
		m.state = StateFailed
		m.err = err
		g.metrics.RecordServiceStatus(name, statusFailed)
		g.logger.Warn("Component stop failed", "name", name, "error", err)
		return errors.Wrap(err, "Group", "Stop", fmt.Sprintf("stop %s", name))
	}
	m.state = StateStopped
	g.metrics.RecordServiceStatus(name, statusStopped)
	g.logger.Debug("Component stopped", "name", name)
	return nil
}
