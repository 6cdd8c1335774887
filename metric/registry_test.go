package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mavrouter/errors"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})
	require.NoError(t, registry.RegisterCounter("router", "test_counter", counter))

	counter.Inc()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily)
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}
	mf := byName["test_counter"]
	require.NotNil(t, mf, "counter should be gathered")
	assert.Equal(t, dto.MetricType_COUNTER, mf.GetType())
	require.Len(t, mf.GetMetric(), 1)
	assert.Equal(t, float64(1), mf.GetMetric()[0].GetCounter().GetValue())
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "dup"})
	require.NoError(t, registry.RegisterGauge("hub", "dup_gauge", gauge))

	err := registry.RegisterGauge("hub", "dup_gauge", gauge)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "gone_gauge", Help: "gone"})
	require.NoError(t, registry.RegisterGauge("hub", "gone_gauge", gauge))

	assert.True(t, registry.Unregister("hub", "gone_gauge"))
	assert.False(t, registry.Unregister("hub", "gone_gauge"))

	// registering again works once the old collector is gone
	require.NoError(t, registry.RegisterGauge("hub", "gone_gauge", gauge))
}

func TestMetrics_ForgetLink(t *testing.T) {
	m := NewMetrics()

	m.BytesReceived.WithLabelValues("GCS").Add(10)
	m.SetLinkState("GCS", LinkStateOpen)
	assert.Equal(t, 1, testutil.CollectAndCount(m.BytesReceived))
	assert.Equal(t, float64(LinkStateOpen), testutil.ToFloat64(m.LinkState.WithLabelValues("GCS")))

	m.ForgetLink("GCS")
	assert.Equal(t, 0, testutil.CollectAndCount(m.BytesReceived))
	assert.Equal(t, 0, testutil.CollectAndCount(m.LinkState))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetLinkState("x", LinkStateFailed)
		m.ForgetLink("x")
	})

	var r *MetricsRegistry
	assert.Nil(t, r.CoreMetrics())
}
