// Package health reports whether the bridge is doing useful work.
//
// Each component reports a component.HealthStatus. The Monitor converts these
// into Status values with one of three levels:
//
//   - healthy: operating normally
//   - degraded: running with reduced function (NATS mirror disconnected)
//   - unhealthy: not working (serial device closed after an error)
//
// Aggregate folds the component statuses into one process status. The
// serial input being unhealthy makes the whole bridge unhealthy, which the
// status server reports as HTTP 503 on /health.
//
//	monitor := health.NewMonitor(registry.CoreMetrics())
//	monitor.Track(group.Components()...)
//	server.Handle("/health", monitor.Handler("eegbridge"))
//
// Error messages are sanitized before they are served: URLs, file and device
// paths, IP addresses, ports and credentials are replaced with placeholders.
package health
