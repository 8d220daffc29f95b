package websocket

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Siddamnn/SpeakMind/metric"
)

// Metrics holds Prometheus metrics for the Hub
type Metrics struct {
	framesSent         prometheus.Counter
	framesDropped      prometheus.Counter
	bytesSent          prometheus.Counter
	subscribers        prometheus.Gauge
	connectionTotal    prometheus.Counter
	disconnectionTotal *prometheus.CounterVec
	broadcastDuration  prometheus.Histogram
	errorsTotal        *prometheus.CounterVec
}

// newMetrics creates and registers Hub metrics. A nil registry yields nil
// metrics and every call site checks for that.
func newMetrics(registry *metric.MetricsRegistry, name string) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "frames_sent_total",
			Help:      "Frames handed to subscriber outboxes",
		}),

		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped because a subscriber outbox was full",
		}),

		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "bytes_sent_total",
			Help:      "Total bytes written to subscribers",
		}),

		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "subscribers",
			Help:      "Number of currently connected subscribers",
		}),

		connectionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "connections_total",
			Help:      "Total subscriber connections",
		}),

		disconnectionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "disconnections_total",
			Help:      "Total subscriber disconnections",
		}, []string{"reason"}),

		broadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "broadcast_duration_seconds",
			Help:      "Time to hand one event to every subscriber",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "websocket",
			Name:      "errors_total",
			Help:      "WebSocket errors by type",
		}, []string{"error_type"}),
	}

	for _, err := range []error{
		registry.RegisterCounter(name, "frames_sent_total", m.framesSent),
		registry.RegisterCounter(name, "frames_dropped_total", m.framesDropped),
		registry.RegisterCounter(name, "bytes_sent_total", m.bytesSent),
		registry.RegisterGauge(name, "subscribers", m.subscribers),
		registry.RegisterCounter(name, "connections_total", m.connectionTotal),
		registry.RegisterCounterVec(name, "disconnections_total", m.disconnectionTotal),
		registry.RegisterHistogram(name, "broadcast_duration_seconds", m.broadcastDuration),
		registry.RegisterCounterVec(name, "errors_total", m.errorsTotal),
	} {
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}
