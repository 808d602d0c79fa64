package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campuscare/campuscare-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	issuesCreated   *prometheus.CounterVec
	escalations     prometheus.Counter
	emailFailures   prometheus.Counter
	rateLimited     prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	issuesCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "issues_created_total",
		Help: "Total issues reported, by category and priority",
	}, []string{"category", "priority"})

	escalations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "issue_escalations_total",
		Help: "Total vote-driven issue escalations",
	})

	emailFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "email_failures_total",
		Help: "Total outbound email failures",
	})

	rateLimited := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limited_requests_total",
		Help: "Total requests rejected by the issue rate limiter",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, issuesCreated, escalations, emailFailures, rateLimited, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		issuesCreated:   issuesCreated,
		escalations:     escalations,
		emailFailures:   emailFailures,
		rateLimited:     rateLimited,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordIssueCreated counts one new report.
func (m *MetricsService) RecordIssueCreated(category models.IssueCategory, priority models.IssuePriority) {
	if m == nil {
		return
	}
	m.issuesCreated.WithLabelValues(string(category), string(priority)).Inc()
}

// RecordEscalation counts one vote-driven escalation.
func (m *MetricsService) RecordEscalation() {
	if m == nil {
		return
	}
	m.escalations.Inc()
}

// RecordEmailFailure counts one failed outbound email.
func (m *MetricsService) RecordEmailFailure() {
	if m == nil {
		return
	}
	m.emailFailures.Inc()
}

// RecordRateLimited counts one rejected request.
func (m *MetricsService) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
