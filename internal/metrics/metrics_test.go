package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Request(OutcomeOK)
		m.Retry()
		m.Refresh(RefreshSuccess)
		m.RefreshCoalesced()
		m.Reconnect()
		m.Resubscribe()
	})
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Request(OutcomeOK)
	m.Request(OutcomeOK)
	m.Request(OutcomeUnavailable)
	m.Retry()
	m.Refresh(RefreshFailure)
	m.RefreshCoalesced()
	m.RefreshCoalesced()
	m.Reconnect()
	m.Resubscribe()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(OutcomeUnavailable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues(RefreshFailure)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.refreshes.WithLabelValues(RefreshSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.refreshCoalesced))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.realtimeReconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.realtimeResubs))
}

func TestNew_NilRegistererDoesNotRegister(t *testing.T) {
	require.NotPanics(t, func() {
		_ = New(nil)
		_ = New(nil)
	})
}

func TestHandler_ExposesCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Retry()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "lecom_pipeline_retries_total 1")
}
