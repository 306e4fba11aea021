// Package telemetry exposes Prometheus metrics for the HTTP API, the
// appointment workflow, sign-in attempts and the database pool.
package telemetry

import (
	"strconv"
	"time"

	"github.com/docbook/docbook/internal/platform/db"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docbook"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	appointmentsCreated prometheus.Counter
	transitions         *prometheus.CounterVec
	authAttempts        *prometheus.CounterVec
	doctorReviews       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		appointmentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_created_total",
			Help:      "Appointments requested by patients",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_transitions_total",
			Help:      "Appointment status transitions by outcome",
		}, []string{"from", "to", "outcome"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Sign-up and sign-in attempts by outcome",
		}, []string{"operation", "outcome"}),
		doctorReviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "doctor_reviews_total",
			Help:      "Doctor registrations approved or rejected by admins",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.appointmentsCreated,
		m.transitions,
		m.authAttempts,
		m.doctorReviews,
	)
	return m
}

// Registry returns the registry metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Middleware records request count and latency per route template. Errors
// are handed to the echo error handler first so the recorded status is the
// one sent.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/metrics" {
				return next(c)
			}
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Response().Status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

func (m *Metrics) AppointmentCreated() {
	m.appointmentsCreated.Inc()
}

// StatusTransition counts an attempted appointment transition. outcome is
// "applied", "rejected" or "conflict".
func (m *Metrics) StatusTransition(from, to, outcome string) {
	m.transitions.WithLabelValues(from, to, outcome).Inc()
}

func (m *Metrics) AuthAttempt(operation string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.authAttempts.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) DoctorReviewed(status string) {
	m.doctorReviews.WithLabelValues(status).Inc()
}

// RegisterPool exposes connection pool statistics as gauges read on scrape.
func (m *Metrics) RegisterPool(stats func() *db.PoolStats) {
	gauge := func(name, help string, read func(*db.PoolStats) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(stats())) })
	}

	m.registry.MustRegister(
		gauge("total_conns", "Open connections", func(s *db.PoolStats) int32 { return s.TotalConns }),
		gauge("idle_conns", "Idle connections", func(s *db.PoolStats) int32 { return s.IdleConns }),
		gauge("acquired_conns", "Connections in use", func(s *db.PoolStats) int32 { return s.AcquiredConns }),
		gauge("max_conns", "Configured pool size", func(s *db.PoolStats) int32 { return s.MaxConns }),
	)
}
