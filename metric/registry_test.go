package metric

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siddamnn/SpeakMind/errors"
)

func gatheredNames(t *testing.T, r *MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
	assert.Same(t, registry.CoreMetrics(), registry.CoreMetrics())

	registry.CoreMetrics().RecordLine(true, time.Millisecond)
	names := gatheredNames(t, registry)
	assert.True(t, names["eegbridge_ingest_samples_total"])
	assert.True(t, names["go_goroutines"])
}

func TestMetricsRegistry_NilCoreMetrics(t *testing.T) {
	var registry *MetricsRegistry
	m := registry.CoreMetrics()
	assert.Nil(t, m)

	// All recorders tolerate a nil receiver.
	m.RecordLine(true, time.Millisecond)
	m.RecordBands(1, 2, 3, 4, 5, 600)
	m.RecordError("hub", "write")
	m.RecordHealthStatus("hub", true)
	m.RecordServiceStatus("hub", 2)
	m.RecordNATSStatus(true)
	m.RecordNATSReconnect()
}

func TestMetricsRegistry_Register(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "c"})
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "g"})
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_hist", Help: "h"})
	cvec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cvec", Help: "cv"}, []string{"k"})
	gvec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "test_gvec", Help: "gv"}, []string{"k"})

	require.NoError(t, registry.RegisterCounter("svc", "test_counter", counter))
	require.NoError(t, registry.RegisterGauge("svc", "test_gauge", gauge))
	require.NoError(t, registry.RegisterHistogram("svc", "test_hist", hist))
	require.NoError(t, registry.RegisterCounterVec("svc", "test_cvec", cvec))
	require.NoError(t, registry.RegisterGaugeVec("svc", "test_gvec", gvec))

	counter.Inc()
	gauge.Set(1)
	hist.Observe(1)
	cvec.WithLabelValues("a").Inc()
	gvec.WithLabelValues("a").Set(1)

	names := gatheredNames(t, registry)
	for _, n := range []string{"test_counter", "test_gauge", "test_hist", "test_cvec", "test_gvec"} {
		assert.True(t, names[n], "%s should be registered", n)
	}
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	c1 := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_counter", Help: "c"})
	c2 := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_counter", Help: "c"})

	require.NoError(t, registry.RegisterCounter("svc", "dup_counter", c1))

	err := registry.RegisterCounter("svc", "dup_counter", c2)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// Same collector name under a different key conflicts in Prometheus.
	err = registry.RegisterCounter("other", "dup_counter", c2)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "temp_gauge", Help: "g"})

	require.NoError(t, registry.RegisterGauge("svc", "temp_gauge", gauge))
	assert.True(t, registry.Unregister("svc", "temp_gauge"))
	assert.False(t, registry.Unregister("svc", "temp_gauge"))

	// Can register again after removal.
	require.NoError(t, registry.RegisterGauge("svc", "temp_gauge", gauge))
}

func TestMetricsRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := prometheus.NewCounter(prometheus.CounterOpts{
				Name:        "concurrent_counter",
				Help:        "c",
				ConstLabels: prometheus.Labels{"n": string(rune('a' + i))},
			})
			errs <- registry.RegisterCounter("svc", string(rune('a'+i)), c)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics()

	m.RecordLine(true, time.Millisecond)
	m.RecordLine(false, 0)
	m.RecordLine(false, 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LinesRead))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LinesSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SamplesAccepted))

	m.RecordBands(1, 2, 3, 4, 5, 700)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.BandValue.WithLabelValues("theta")))
	assert.Equal(t, 700.0, testutil.ToFloat64(m.LastRaw))

	m.RecordError("serial-input", "read")
	m.RecordError("serial-input", "read")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("serial-input", "read")))

	m.RecordHealthStatus("hub", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HealthCheckStatus.WithLabelValues("hub")))
	m.RecordHealthStatus("hub", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HealthCheckStatus.WithLabelValues("hub")))

	m.RecordNATSStatus(true)
	m.RecordNATSReconnect()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSConnected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSReconnects))
}
