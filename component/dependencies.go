package component

import (
	"log/slog"

	"github.com/Siddamnn/SpeakMind/metric"
)

// Dependencies carries the shared services handed to every component.
type Dependencies struct {
	MetricsRegistry *metric.MetricsRegistry // nil disables metrics
	Logger          *slog.Logger            // nil means slog.Default()
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d != nil && d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}

// GetMetricsRegistry returns the registry, or nil when metrics are disabled.
func (d *Dependencies) GetMetricsRegistry() *metric.MetricsRegistry {
	if d == nil {
		return nil
	}
	return d.MetricsRegistry
}
