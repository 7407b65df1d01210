package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface
// and the session lifecycle.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	sessionsCreated prometheus.Counter
	sessionRotated  prometheus.Counter
	sessionsRevoked prometheus.Counter
	sessionsReaped  prometheus.Counter
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

	sessionsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_sessions_created_total",
		Help: "Sessions opened by login or registration",
	})

	sessionRotated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_sessions_rotated_total",
		Help: "Successful refresh rotations",
	})

	sessionsRevoked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_sessions_revoked_total",
		Help: "Sessions removed by logout",
	})

	sessionsReaped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_sessions_reaped_total",
		Help: "Expired sessions removed by the reaper",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, sessionsCreated, sessionRotated, sessionsRevoked, sessionsReaped, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		sessionsCreated: sessionsCreated,
		sessionRotated:  sessionRotated,
		sessionsRevoked: sessionsRevoked,
		sessionsReaped:  sessionsReaped,
	}
}

// Handler returns the Prometheus scrape handler.
func (m *MetricsService) Handler() http.Handler {
	return m.handler
}

// ObserveHTTPRequest records duration and count for a finished request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.requestDuration.With(labels).Observe(duration.Seconds())
	m.requestTotal.With(labels).Inc()
}

// SessionCreated increments the session-open counter.
func (m *MetricsService) SessionCreated() {
	m.sessionsCreated.Inc()
}

// SessionRotated increments the rotation counter.
func (m *MetricsService) SessionRotated() {
	m.sessionRotated.Inc()
}

// SessionsRevoked adds to the revocation counter.
func (m *MetricsService) SessionsRevoked(n int64) {
	m.sessionsRevoked.Add(float64(n))
}

// SessionsReaped adds to the reaper counter.
func (m *MetricsService) SessionsReaped(n int64) {
	m.sessionsReaped.Add(float64(n))
}
