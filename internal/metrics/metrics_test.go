package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewWithRegistry("api", reg, reg)

	c.RecordBooking("created")
	c.RecordBooking("created")
	c.RecordBooking("conflict")
	c.RecordPayment("confirm", "confirmed")
	c.RecordReconciled(3)
	c.RecordReconciled(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.bookingsTotal.WithLabelValues("created", "api")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.bookingsTotal.WithLabelValues("conflict", "api")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.paymentsTotal.WithLabelValues("confirm", "confirmed", "api")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.reconciledTotal))
}

func TestCollector_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewWithRegistry("api", reg, reg)
	c.RecordHTTPRequest(http.MethodGet, "/availability", http.StatusOK, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="/availability",service="api",status_code="200"} 1`)
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordBooking("created")
		c.RecordHTTPRequest(http.MethodGet, "/", 200, time.Second)
		c.RecordNotification("x", true)
	})
}
