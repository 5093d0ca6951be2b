// Package metrics provides Prometheus metrics collection for EntraGuard services
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "entraguard",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "entraguard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)

	httpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "entraguard",
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
		[]string{"service"},
	)
)

// Analysis outcome labels. The service reports these so the counter and
// the duration histogram never drift apart.
const (
	AnalysisCompleted = "completed"
	AnalysisNoData    = "no_data"
	AnalysisError     = "error"
)

// Analysis metrics
var (
	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "entraguard",
			Name:      "analyses_total",
			Help:      "Total number of account analyses",
		},
		[]string{"outcome"}, // outcome: completed, no_data, error
	)

	analysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "entraguard",
			Name:      "analysis_duration_seconds",
			Help:      "Time taken to analyze one account",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	indicatorsFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "entraguard",
			Name:      "indicators_fired_total",
			Help:      "Total number of applicable indicator outcomes by indicator id",
		},
		[]string{"indicator_id"},
	)

	breachProbabilityHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "entraguard",
			Name:      "breach_probability_percent",
			Help:      "Breach probability distribution across analyzed accounts",
			Buckets:   []float64{0, 10, 20, 40, 70, 90, 100},
		},
	)

	riskLevelsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "entraguard",
			Name:      "risk_levels_total",
			Help:      "Risk level classifications produced",
		},
		[]string{"kind", "level"}, // kind: signin, user
	)
)

// External lookup metrics
var (
	externalLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "entraguard",
			Name:      "external_lookups_total",
			Help:      "Total number of external lookups",
		},
		[]string{"target", "outcome"}, // target: geo, reputation, graph; outcome: hit, miss, error, unavailable
	)

	externalLookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "entraguard",
			Name:      "external_lookup_duration_seconds",
			Help:      "External lookup latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 2.5, 5},
		},
		[]string{"target"},
	)
)

// Middleware returns a Gin middleware that records HTTP metrics.
// serviceName is used as the "service" label on all metrics.
func Middleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		// Skip metrics endpoint itself to avoid recursion
		if path == "/metrics" {
			c.Next()
			return
		}

		httpRequestsInFlight.WithLabelValues(serviceName).Inc()
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method

		httpRequestsTotal.WithLabelValues(serviceName, method, path, status).Inc()
		httpRequestDuration.WithLabelValues(serviceName, method, path).Observe(duration)
		httpRequestsInFlight.WithLabelValues(serviceName).Dec()
	}
}

// Handler returns a gin.HandlerFunc that serves Prometheus metrics.
// Register this on the "/metrics" route.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordAnalysis records a completed (or failed) account analysis
func RecordAnalysis(outcome string, duration time.Duration) {
	analysesTotal.WithLabelValues(outcome).Inc()
	if outcome == AnalysisCompleted {
		analysisDuration.Observe(duration.Seconds())
	}
}

// RecordIndicator records an applicable indicator outcome
func RecordIndicator(indicatorID string) {
	indicatorsFiredTotal.WithLabelValues(indicatorID).Inc()
}

// RecordBreachProbability records a final breach probability percentage
func RecordBreachProbability(percent float64) {
	breachProbabilityHistogram.Observe(percent)
}

// RecordRiskLevel records a risk level classification
func RecordRiskLevel(kind, level string) {
	riskLevelsTotal.WithLabelValues(kind, level).Inc()
}

// RecordExternalLookup records the outcome and latency of an external lookup
func RecordExternalLookup(target, outcome string, duration time.Duration) {
	externalLookupsTotal.WithLabelValues(target, outcome).Inc()
	externalLookupDuration.WithLabelValues(target).Observe(duration.Seconds())
}
