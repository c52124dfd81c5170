// Package metrics collects and exposes Prometheus metrics for the auth core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Recorder is the metrics surface used by verifiers, services and middleware.
type Recorder interface {
	RecordProviderVerification(provider, result string, duration time.Duration)
	RecordJWKSRefresh(result string)
	RecordSessionIssued()
	RecordSessionRejected(reason string)
	RecordHTTPStatus(statusCode int)
}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	providerVerifications *prometheus.CounterVec
	providerLatency       *prometheus.HistogramVec
	jwksRefresh           *prometheus.CounterVec
	sessionsIssued        prometheus.Counter
	sessionsRejected      *prometheus.CounterVec
	httpStatus            *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		providerVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wingcoach_provider_verifications_total",
			Help: "Identity provider token verifications by provider and result.",
		}, []string{"provider", "result"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wingcoach_provider_verification_seconds",
			Help:    "Latency of identity provider token verification.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		jwksRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wingcoach_jwks_refresh_total",
			Help: "Apple JWKS fetches by result.",
		}, []string{"result"}),
		sessionsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wingcoach_sessions_issued_total",
			Help: "Session tokens minted.",
		}),
		sessionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wingcoach_sessions_rejected_total",
			Help: "Session tokens rejected by reason.",
		}, []string{"reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wingcoach_http_status_total",
			Help: "HTTP responses by status code.",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.providerVerifications,
		c.providerLatency,
		c.jwksRefresh,
		c.sessionsIssued,
		c.sessionsRejected,
		c.httpStatus,
	)

	return c
}

// RecordProviderVerification records one provider token verification.
func (c *Collector) RecordProviderVerification(provider, result string, duration time.Duration) {
	c.providerVerifications.WithLabelValues(provider, result).Inc()
	c.providerLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordJWKSRefresh records one JWKS fetch.
func (c *Collector) RecordJWKSRefresh(result string) {
	c.jwksRefresh.WithLabelValues(result).Inc()
}

// RecordSessionIssued records a minted session token.
func (c *Collector) RecordSessionIssued() {
	c.sessionsIssued.Inc()
}

// RecordSessionRejected records a rejected session token.
func (c *Collector) RecordSessionRejected(reason string) {
	c.sessionsRejected.WithLabelValues(reason).Inc()
}

// RecordHTTPStatus records an HTTP response status.
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop discards all metrics.
type Nop struct{}

func (Nop) RecordProviderVerification(string, string, time.Duration) {}
func (Nop) RecordJWKSRefresh(string)                                 {}
func (Nop) RecordSessionIssued()                                     {}
func (Nop) RecordSessionRejected(string)                             {}
func (Nop) RecordHTTPStatus(int)                                     {}

// Handler returns the HTTP handler Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
