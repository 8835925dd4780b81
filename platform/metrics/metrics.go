// Package metrics provides Prometheus instrumentation for the HTTP layer and
// the lead lifecycle. All recording methods are safe on a nil *Metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	CalendarMatches    *prometheus.CounterVec
	Bookings           *prometheus.CounterVec
	UpstreamFailures   *prometheus.CounterVec
	StatusTransitions  *prometheus.CounterVec
	PoolReleases       prometheus.Counter
	PoolClaimConflicts prometheus.Counter
}

// New registers all collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CalendarMatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calendar_match_decisions_total",
				Help: "External calendar events by match strategy",
			},
			[]string{"event_type", "strategy"}, // company, time, none
		),
		Bookings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appointment_bookings_total",
				Help: "Appointment booking attempts by outcome",
			},
			[]string{"outcome"}, // booked, duplicate, primary_failed, invalid
		),
		UpstreamFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upstream_failures_total",
				Help: "Failed calls to external calendar systems",
			},
			[]string{"system", "operation"},
		),
		StatusTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hot_lead_status_transitions_total",
				Help: "Applied hot lead status transitions",
			},
			[]string{"to"},
		),
		PoolReleases: factory.NewCounter(prometheus.CounterOpts{
			Name: "pool_releases_total",
			Help: "Hot leads released back to the pool",
		}),
		PoolClaimConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "pool_claim_conflicts_total",
			Help: "Claims that lost the race for a pool hot lead",
		}),
	}
}

// Middleware records request counts and latency. The route template is used
// as the path label so ids do not explode cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) RecordMatch(eventType, strategy string) {
	if m == nil {
		return
	}
	m.CalendarMatches.WithLabelValues(eventType, strategy).Inc()
}

func (m *Metrics) RecordBooking(outcome string) {
	if m == nil {
		return
	}
	m.Bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordUpstreamFailure(system, operation string) {
	if m == nil {
		return
	}
	m.UpstreamFailures.WithLabelValues(system, operation).Inc()
}

func (m *Metrics) RecordTransition(to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) RecordRelease(count int) {
	if m == nil {
		return
	}
	m.PoolReleases.Add(float64(count))
}

func (m *Metrics) RecordClaimConflict() {
	if m == nil {
		return
	}
	m.PoolClaimConflicts.Inc()
}
