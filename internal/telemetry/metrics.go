package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the console's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests       *prometheus.CounterVec
	apiDuration       *prometheus.HistogramVec
	tokenRefresh      *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	fanoutUnavailable *prometheus.CounterVec
}

func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vulnsphere_api_requests_total",
				Help: "Requests sent to the VulnSphere API",
			},
			[]string{"method", "code"},
		),
		apiDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vulnsphere_api_request_duration_seconds",
				Help:    "Latency of VulnSphere API requests",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),
		tokenRefresh: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vulnsphere_token_refresh_total",
				Help: "Access token refresh attempts by outcome",
			},
			[]string{"outcome"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vulnsphere_http_requests_total",
				Help: "Requests served by the console",
			},
			[]string{"method", "status"},
		),
		fanoutUnavailable: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vulnsphere_fanout_unavailable_total",
				Help: "Derived per-row fetches that degraded to a placeholder",
			},
			[]string{"view"},
		),
	}

	collectors := []prometheus.Collector{
		m.apiRequests,
		m.apiDuration,
		m.tokenRefresh,
		m.httpRequests,
		m.fanoutUnavailable,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveAPI records one upstream request. code 0 means a transport failure.
func (m *Metrics) ObserveAPI(method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.apiRequests.WithLabelValues(method, label).Inc()
	m.apiDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveRefresh records a refresh attempt: "ok", "missing", "failed" or "rejected".
func (m *Metrics) ObserveRefresh(outcome string) {
	if m == nil {
		return
	}
	m.tokenRefresh.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHTTP(method string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveUnavailable(view string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.fanoutUnavailable.WithLabelValues(view).Add(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
