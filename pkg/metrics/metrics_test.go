package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordingHelpers(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.MessageConsumed("calculation-requests", "calculator-workers", "committed")
	m.MessageConsumed("calculation-requests", "calculator-workers", "committed")
	m.Published("calculation-responses", "success", 0.01)
	m.PublishRetried("calculation-responses")
	m.Calculated("divide", "compute_error")
	m.SetResultStoreEntries(3)
	m.ResultWait("not_ready")
	m.SetCircuitState("request-publisher", 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesConsumed.WithLabelValues("calculation-requests", "calculator-workers", "committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesPublished.WithLabelValues("calculation-responses", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishRetriesTotal.WithLabelValues("calculation-responses")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CalculationsTotal.WithLabelValues("divide", "compute_error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ResultStoreEntries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResultWaitsTotal.WithLabelValues("not_ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("request-publisher")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MessageConsumed("t", "g", "committed")
		m.FetchError("t", "g")
		m.Published("t", "failed", 1)
		m.PublishRetried("t")
		m.Calculated("add", "success")
		m.SetResultStoreEntries(1)
		m.ResultWait("ready")
		m.SetCircuitState("x", 0)
	})
}
