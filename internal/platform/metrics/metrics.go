// Package metrics exposes Prometheus counters and histograms for the HTTP
// surface, the bearer guard and the payment flow.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medpay"

var durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics owns every collector the service reports. Nothing is registered
// on the global default registry.
type Metrics struct {
	gatherer prometheus.Gatherer

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	activeRequests   prometheus.Gauge
	authFailures     *prometheus.CounterVec
	paymentsStarted  prometheus.Counter
	paymentsSettled  prometheus.Counter
	linesSettled     prometheus.Counter
	assignmentsTotal prometheus.Counter
}

// New registers the collectors on reg. Go runtime and process collectors are
// added as well.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status_code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   durationBuckets,
		}, []string{"method", "route"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_active_requests",
			Help:      "Number of in-flight HTTP requests.",
		}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected bearer credentials by reason.",
		}, []string{"reason"}),
		paymentsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_initiated_total",
			Help:      "Payment intents issued.",
		}),
		paymentsSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_verified_total",
			Help:      "Payment verifications processed, including no-ops.",
		}),
		linesSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_settled_total",
			Help:      "Assignments flipped from unpaid to paid.",
		}),
		assignmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_created_total",
			Help:      "Assignments recorded in the ledger.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDuration,
		m.activeRequests,
		m.authFailures,
		m.paymentsStarted,
		m.paymentsSettled,
		m.linesSettled,
		m.assignmentsTotal,
	)
	return m
}

// AuthFailure counts a rejected bearer credential.
func (m *Metrics) AuthFailure(reason string) {
	m.authFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) PaymentInitiated() {
	m.paymentsStarted.Inc()
}

// PaymentVerified counts a verification and the number of lines it settled.
func (m *Metrics) PaymentVerified(settled int64) {
	m.paymentsSettled.Inc()
	m.linesSettled.Add(float64(settled))
}

func (m *Metrics) AssignmentCreated() {
	m.assignmentsTotal.Inc()
}

// Middleware records request count, latency and in-flight requests. The
// route label is the registered path pattern, not the raw URL.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.activeRequests.Inc()
			defer m.activeRequests.Dec()

			start := time.Now()
			err := next(c)
			elapsed := time.Since(start).Seconds()

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(statusOf(c, err))).Inc()
			m.requestDuration.WithLabelValues(method, route).Observe(elapsed)
			return err
		}
	}
}

// statusOf resolves the status the client will see. Errors are rendered by
// the echo error handler after middleware returns, so the response writer
// has not been committed yet.
func statusOf(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}
