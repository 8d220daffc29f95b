// Package metric provides Prometheus metrics and the status HTTP server.
//
// MetricsRegistry wraps a private prometheus.Registry that carries the
// pipeline metrics (lines read, samples accepted, band values, errors) and
// the Go runtime collectors. Components register their own collectors under
// their name:
//
//	registry := metric.NewMetricsRegistry()
//	err := registry.RegisterGauge("websocket-hub", "subscribers", gauge)
//
// A nil *MetricsRegistry means metrics are disabled. Components check for nil
// before registering, and the *Metrics recorders are no-ops on nil.
//
// Server exposes /metrics (OpenMetrics enabled) and any endpoints attached
// with Handle, such as /health and /session.
package metric
