package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveExecution(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())

	m.ObserveExecution("bilibili", "rpa", true, "", 2*time.Second)
	m.ObserveExecution("bilibili", "rpa", false, "timeout", time.Minute)
	m.ObserveExecution("bilibili", "rpa", false, "timeout", time.Minute)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.executions.WithLabelValues("bilibili", "rpa", "true", "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.executions.WithLabelValues("bilibili", "rpa", "false", "timeout")))
}

func TestTrackInFlight(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())
	done := m.Track()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inFlight))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveExecution("x", "direct_api", true, "", time.Second)
	m.ObservePolls("x", 3)
	m.ObserveFileRequest(200)
	m.Track()()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())
	m.ObserveFileRequest(403)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `rpa_file_buffer_requests_total{code="403"} 1`)
}
