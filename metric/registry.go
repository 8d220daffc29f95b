package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Siddamnn/SpeakMind/errors"
)

// Namespace prefixes every metric the bridge exports.
const Namespace = "eegbridge"

type collectorKey struct {
	component string
	name      string
}

// MetricsRegistry owns a private Prometheus registry holding the core
// metrics, the Go runtime collectors and whatever components add.
type MetricsRegistry struct {
	prom *prometheus.Registry
	core *Metrics

	mu         sync.Mutex
	collectors map[collectorKey]prometheus.Collector
}

// NewMetricsRegistry creates a registry with the core metrics and the Go
// runtime collectors already registered.
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		prom:       prometheus.NewRegistry(),
		core:       NewMetrics(),
		collectors: make(map[collectorKey]prometheus.Collector),
	}
	r.prom.MustRegister(r.core.collectors()...)
	r.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the underlying registry for promhttp.
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prom
}

// CoreMetrics returns the shared pipeline metrics. Safe on a nil registry.
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	if r == nil {
		return nil
	}
	return r.core
}

// RegisterCounter adds a component's counter.
func (r *MetricsRegistry) RegisterCounter(component, name string, c prometheus.Counter) error {
	return r.register(component, name, "RegisterCounter", c)
}

// RegisterGauge adds a component's gauge.
func (r *MetricsRegistry) RegisterGauge(component, name string, g prometheus.Gauge) error {
	return r.register(component, name, "RegisterGauge", g)
}

// RegisterHistogram adds a component's histogram.
func (r *MetricsRegistry) RegisterHistogram(component, name string, h prometheus.Histogram) error {
	return r.register(component, name, "RegisterHistogram", h)
}

// RegisterCounterVec adds a component's labelled counter.
func (r *MetricsRegistry) RegisterCounterVec(component, name string, cv *prometheus.CounterVec) error {
	return r.register(component, name, "RegisterCounterVec", cv)
}

// RegisterGaugeVec adds a component's labelled gauge.
func (r *MetricsRegistry) RegisterGaugeVec(component, name string, gv *prometheus.GaugeVec) error {
	return r.register(component, name, "RegisterGaugeVec", gv)
}

// register rejects a second collector under the same component and name,
// and any collector whose descriptor clashes with one already exported.
func (r *MetricsRegistry) register(component, name, method string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := collectorKey{component, name}
	if _, exists := r.collectors[key]; exists {
		return errors.WrapInvalid(fmt.Errorf("metric %s already registered by %s", name, component),
			"MetricsRegistry", method, "register collector")
	}

	if err := r.prom.Register(c); err != nil {
		var dup prometheus.AlreadyRegisteredError
		if stderrors.As(err, &dup) {
			return errors.WrapInvalid(err, "MetricsRegistry", method,
				fmt.Sprintf("register %s for %s", name, component))
		}
		return errors.WrapFatal(err, "MetricsRegistry", method, "register collector")
	}
	r.collectors[key] = c
	return nil
}

// Unregister removes a collector added under component and name.
func (r *MetricsRegistry) Unregister(component, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := collectorKey{component, name}
	c, ok := r.collectors[key]
	if !ok || !r.prom.Unregister(c) {
		return false
	}
	delete(r.collectors, key)
	return true
}
