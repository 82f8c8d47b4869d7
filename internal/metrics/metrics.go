// Package metrics exposes Prometheus collectors for the report pipeline.
// All recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	vendorRequests *prometheus.CounterVec
	vendorDuration *prometheus.HistogramVec
	pollAttempts   *prometheus.HistogramVec
	reports        *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.vendorRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citypulse_vendor_requests_total",
			Help: "Requests sent to the assistant vendor API",
		},
		[]string{"endpoint", "status"},
	)
	m.vendorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "citypulse_vendor_request_duration_seconds",
			Help:    "Latency of assistant vendor API calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"endpoint"},
	)
	m.pollAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "citypulse_poll_attempts",
			Help:    "Thread poll attempts per report, by final decision",
			Buckets: prometheus.LinearBuckets(1, 1, 8),
		},
		[]string{"decision"},
	)
	m.reports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citypulse_report_submissions_total",
			Help: "Report submissions by outcome",
		},
		[]string{"outcome"},
	)
	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citypulse_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"method", "path", "status"},
	)
	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "citypulse_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	for _, c := range []prometheus.Collector{
		m.vendorRequests, m.vendorDuration, m.pollAttempts, m.reports, m.httpRequests, m.httpDuration,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveVendor records one vendor call. status is the HTTP status code, or 0
// when the request never produced a response.
func (m *Metrics) ObserveVendor(endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.vendorRequests.WithLabelValues(endpoint, label).Inc()
	m.vendorDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Metrics) ObservePoll(decision string, attempts int) {
	if m == nil {
		return
	}
	m.pollAttempts.WithLabelValues(decision).Observe(float64(attempts))
}

func (m *Metrics) ReportSubmitted(outcome string) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// ReportCounter returns the submissions counter for one outcome.
func (m *Metrics) ReportCounter(outcome string) (prometheus.Counter, error) {
	return m.reports.GetMetricWithLabelValues(outcome)
}
