package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesCounters(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.ObserveAPI("GET", 200, 30*time.Millisecond)
	m.ObserveAPI("GET", 0, time.Millisecond)
	m.ObserveRefresh("ok")
	m.ObserveHTTP("GET", 302)
	m.ObserveUnavailable("company_detail", 2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	assert.Contains(t, out, `vulnsphere_api_requests_total{code="200",method="GET"} 1`)
	assert.Contains(t, out, `vulnsphere_api_requests_total{code="error",method="GET"} 1`)
	assert.Contains(t, out, `vulnsphere_token_refresh_total{outcome="ok"} 1`)
	assert.Contains(t, out, `vulnsphere_http_requests_total{method="GET",status="302"} 1`)
	assert.Contains(t, out, `vulnsphere_fanout_unavailable_total{view="company_detail"} 2`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAPI("GET", 200, time.Millisecond)
		m.ObserveRefresh("failed")
		m.ObserveHTTP("POST", 500)
		m.ObserveUnavailable("x", 1)
	})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestTracerProviderWithoutEndpoint(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), TracingOptions{})
	require.NoError(t, err)
	defer tp.Shutdown(context.Background())

	_, span := Tracer(tp).Start(context.Background(), "probe")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}
