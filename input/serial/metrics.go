package serial

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Siddamnn/SpeakMind/metric"
)

// Metrics holds Prometheus metrics for the serial driver
type Metrics struct {
	linesRead    prometheus.Counter
	bytesRead    prometheus.Counter
	readErrors   prometheus.Counter
	openFailures prometheus.Counter
	reconnects   prometheus.Counter
	deviceState  prometheus.Gauge
	lastActivity prometheus.Gauge
}

func newMetrics(registry *metric.MetricsRegistry, name string) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		linesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "serial",
			Name:      "lines_read_total",
			Help:      "Complete lines read from the serial device",
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "serial",
			Name:      "bytes_read_total",
			Help:      "Bytes read from the serial device",
		}),
		readErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "serial",
			Name:      "read_errors_total",
			Help:      "Read errors that closed the device",
		}),
		openFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "serial",
			Name:      "open_failures_total",
			Help:      "Failed attempts to open the serial device",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "serial",
			Name:      "reconnects_total",
			Help:      "Successful reopens after a read error",
		}),
		deviceState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "serial",
			Name:      "device_state",
			Help:      "Device state (0=closed, 1=opening, 2=open)",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "serial",
			Name:      "last_activity_timestamp",
			Help:      "Unix timestamp of the last line read",
		}),
	}

	for _, err := range []error{
		registry.RegisterCounter(name, "lines_read_total", m.linesRead),
		registry.RegisterCounter(name, "bytes_read_total", m.bytesRead),
		registry.RegisterCounter(name, "read_errors_total", m.readErrors),
		registry.RegisterCounter(name, "open_failures_total", m.openFailures),
		registry.RegisterCounter(name, "reconnects_total", m.reconnects),
		registry.RegisterGauge(name, "device_state", m.deviceState),
		registry.RegisterGauge(name, "last_activity_timestamp", m.lastActivity),
	} {
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}
