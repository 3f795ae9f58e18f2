// Package metrics holds the Prometheus collectors for the booking service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records service metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	service  string
	gatherer prometheus.Gatherer

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	bookingsTotal       *prometheus.CounterVec
	paymentsTotal       *prometheus.CounterVec
	authAttemptsTotal   *prometheus.CounterVec
	notificationsTotal  *prometheus.CounterVec
	reconciledTotal     prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New(service string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return NewWithRegistry(service, reg, reg)
}

func NewWithRegistry(service string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Collector {
	c := &Collector{
		service:  service,
		gatherer: gatherer,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code", "service"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "service"},
		),
		bookingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookings_total",
				Help: "Booking attempts by outcome",
			},
			[]string{"outcome", "service"},
		),
		paymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_total",
				Help: "Payment operations by outcome",
			},
			[]string{"operation", "outcome", "service"},
		),
		authAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_attempts_total",
				Help: "Total number of authentication attempts",
			},
			[]string{"method", "status", "service"},
		),
		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_total",
				Help: "Notifications handed to the sender",
			},
			[]string{"kind", "delivered", "service"},
		),
		reconciledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "reconciled_appointments_total",
				Help:        "Appointments moved to PAID by the reconcile job",
				ConstLabels: prometheus.Labels{"service": service},
			},
		),
	}

	reg.MustRegister(
		c.httpRequestsTotal,
		c.httpRequestDuration,
		c.bookingsTotal,
		c.paymentsTotal,
		c.authAttemptsTotal,
		c.notificationsTotal,
		c.reconciledTotal,
	)
	return c
}

func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status), c.service).Inc()
	c.httpRequestDuration.WithLabelValues(method, route, c.service).Observe(duration.Seconds())
}

// RecordBooking takes an outcome such as "created", "conflict" or "rejected".
func (c *Collector) RecordBooking(outcome string) {
	if c == nil {
		return
	}
	c.bookingsTotal.WithLabelValues(outcome, c.service).Inc()
}

func (c *Collector) RecordPayment(operation, outcome string) {
	if c == nil {
		return
	}
	c.paymentsTotal.WithLabelValues(operation, outcome, c.service).Inc()
}

func (c *Collector) RecordAuthAttempt(method, status string) {
	if c == nil {
		return
	}
	c.authAttemptsTotal.WithLabelValues(method, status, c.service).Inc()
}

func (c *Collector) RecordNotification(kind string, delivered bool) {
	if c == nil {
		return
	}
	c.notificationsTotal.WithLabelValues(kind, strconv.FormatBool(delivered), c.service).Inc()
}

func (c *Collector) RecordReconciled(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.reconciledTotal.Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
