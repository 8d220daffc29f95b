package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline-wide metrics shared by every component.
// All Record methods are no-ops on a nil receiver.
type Metrics struct {
	ServiceStatus      *prometheus.GaugeVec
	LinesRead          prometheus.Counter
	LinesSkipped       prometheus.Counter
	SamplesAccepted    prometheus.Counter
	BandValue          *prometheus.GaugeVec
	LastRaw            prometheus.Gauge
	ProcessingDuration prometheus.Histogram
	ErrorsTotal        *prometheus.CounterVec
	HealthCheckStatus  *prometheus.GaugeVec

	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates the pipeline metrics, unregistered.
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "service",
				Name:      "status",
				Help:      "Component status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),

		LinesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ingest",
			Name:      "lines_total",
			Help:      "Total serial lines read",
		}),

		LinesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ingest",
			Name:      "lines_skipped_total",
			Help:      "Serial lines that carried no usable sample",
		}),

		SamplesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ingest",
			Name:      "samples_total",
			Help:      "Samples accepted into the band estimator",
		}),

		BandValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "band",
				Name:      "value",
				Help:      "Current smoothed value per band",
			},
			[]string{"band"},
		),

		LastRaw: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "band",
			Name:      "last_raw",
			Help:      "Last accepted raw reading",
		}),

		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "ingest",
			Name:      "line_duration_seconds",
			Help:      "Time to parse, estimate and fan out one line",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"service", "type"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"service"},
		),

		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "nats",
			Name:      "connected",
			Help:      "NATS connection status (0=disconnected, 1=connected)",
		}),

		NATSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "Total number of NATS reconnections",
		}),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.ServiceStatus,
		c.LinesRead,
		c.LinesSkipped,
		c.SamplesAccepted,
		c.BandValue,
		c.LastRaw,
		c.ProcessingDuration,
		c.ErrorsTotal,
		c.HealthCheckStatus,
		c.NATSConnected,
		c.NATSReconnects,
	}
}

// RecordServiceStatus updates the status gauge of a component
func (c *Metrics) RecordServiceStatus(service string, status int) {
	if c == nil {
		return
	}
	c.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordLine counts one serial line and whether it yielded a sample.
func (c *Metrics) RecordLine(accepted bool, duration time.Duration) {
	if c == nil {
		return
	}
	c.LinesRead.Inc()
	if !accepted {
		c.LinesSkipped.Inc()
		return
	}
	c.SamplesAccepted.Inc()
	c.ProcessingDuration.Observe(duration.Seconds())
}

// RecordBands publishes the current band values and raw reading.
func (c *Metrics) RecordBands(alpha, beta, theta, delta, gamma float64, raw int) {
	if c == nil {
		return
	}
	c.BandValue.WithLabelValues("alpha").Set(alpha)
	c.BandValue.WithLabelValues("beta").Set(beta)
	c.BandValue.WithLabelValues("theta").Set(theta)
	c.BandValue.WithLabelValues("delta").Set(delta)
	c.BandValue.WithLabelValues("gamma").Set(gamma)
	c.LastRaw.Set(float64(raw))
}

// RecordError increments error counter
func (c *Metrics) RecordError(service, errorType string) {
	if c == nil {
		return
	}
	c.ErrorsTotal.WithLabelValues(service, errorType).Inc()
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(service string, healthy bool) {
	if c == nil {
		return
	}
	c.HealthCheckStatus.WithLabelValues(service).Set(boolToFloat(healthy))
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	if c == nil {
		return
	}
	c.NATSConnected.Set(boolToFloat(connected))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	if c == nil {
		return
	}
	c.NATSReconnects.Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
