package component

import (
	"time"
)

// Discoverable is implemented by every component so the process can report
// on it without knowing its concrete type.
type Discoverable interface {
	Meta() Metadata        // name used in logs, metrics and /health
	Health() HealthStatus  // polled by health.Monitor
	DataFlow() FlowMetrics // throughput since start
}

// Metadata names a component. Type is one of "input", "processor", "output"
// or "sink".
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// HealthStatus is a point-in-time health report. Degraded only has meaning
// while Healthy is true: the component runs but with reduced function, such
// as the NATS mirror while disconnected.
type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	Degraded   bool          `json:"degraded,omitempty"`
	LastCheck  time.Time     `json:"last_check"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Uptime     time.Duration `json:"uptime"`
}

// FlowMetrics summarises traffic through a component. For the serial input a
// message is one accepted sample; for outputs it is one delivered event.
type FlowMetrics struct {
	MessagesPerSecond float64   `json:"messages_per_second"`
	BytesPerSecond    float64   `json:"bytes_per_second"`
	ErrorRate         float64   `json:"error_rate"`
	LastActivity      time.Time `json:"last_activity"`
}
