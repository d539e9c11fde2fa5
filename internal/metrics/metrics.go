// Package metrics exposes Prometheus collectors for publish activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	reg        prometheus.Gatherer
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	polls      *prometheus.HistogramVec
	inFlight   prometheus.Gauge
	fileServed *prometheus.CounterVec
}

// MustNewMetrics registers the collectors with reg and panics on a
// registration error.
func MustNewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		reg: reg,
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpa",
			Name:      "executions_total",
			Help:      "Publish executions by platform, method and outcome.",
		}, []string{"platform", "method", "success", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rpa",
			Name:      "execution_duration_seconds",
			Help:      "Wall time of publish executions.",
			Buckets:   []float64{0.1, 1, 5, 10, 30, 60, 90, 120, 300},
		}, []string{"platform", "method"}),
		polls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rpa",
			Name:      "upload_poll_attempts",
			Help:      "Completion-flag polls made per browser upload.",
			Buckets:   prometheus.LinearBuckets(0, 10, 7),
		}, []string{"platform"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rpa",
			Name:      "executions_in_flight",
			Help:      "Publish executions currently running or queued.",
		}),
		fileServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpa",
			Name:      "file_buffer_requests_total",
			Help:      "File-buffer endpoint requests by status code.",
		}, []string{"code"}),
	}
	reg.MustRegister(m.executions, m.duration, m.polls, m.inFlight, m.fileServed)
	return m
}

func (m *Metrics) ObserveExecution(platform, method string, success bool, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(platform, method, strconv.FormatBool(success), kind).Inc()
	m.duration.WithLabelValues(platform, method).Observe(d.Seconds())
}

func (m *Metrics) ObservePolls(platform string, attempts int) {
	if m == nil || attempts == 0 {
		return
	}
	m.polls.WithLabelValues(platform).Observe(float64(attempts))
}

// Track marks one execution as in flight until the returned func is called.
func (m *Metrics) Track() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

func (m *Metrics) ObserveFileRequest(code int) {
	if m == nil {
		return
	}
	m.fileServed.WithLabelValues(strconv.Itoa(code)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
