// Package telemetry holds Prometheus metrics, circuit breakers and tracing setup.
package telemetry

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

var (
	reqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "parcelclaims",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	reqTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "parcelclaims", Name: "http_requests_total", Help: "Total HTTP requests"},
		[]string{"method", "path", "status"},
	)
	// External ops (eligibility API, bank directory, SMTP)
	externalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "parcelclaims", Name: "external_op_duration_seconds", Help: "Duration of external operations"},
		[]string{"op", "outcome"},
	)
	externalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "parcelclaims", Name: "external_op_total", Help: "Total external operations"},
		[]string{"op", "outcome"},
	)
	breakerOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "parcelclaims", Name: "circuit_breaker_open", Help: "Circuit breaker state: 1=open, 0=closed"},
		[]string{"breaker"},
	)
	claimsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "parcelclaims", Name: "claims_created_total", Help: "Claims persisted"},
	)
	claimsConflict = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "parcelclaims", Name: "claims_conflict_total", Help: "Create requests rejected as duplicates"},
	)
	stageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "parcelclaims", Name: "claim_stage_failures_total", Help: "Intake stage failures, fatal or degraded"},
		[]string{"stage"},
	)
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "parcelclaims", Name: "notifications_total", Help: "Claim notifications by outcome"},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(reqDuration, reqTotal, externalDuration, externalTotal, breakerOpen, claimsCreated, claimsConflict, stageFailures, notificationsTotal)
}

// MetricsMiddleware records basic HTTP metrics
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		dur := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		observer := reqDuration.WithLabelValues(c.Request.Method, path, status)
		// attach exemplar with trace_id if present
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.IsValid() {
			if eo, ok := observer.(prometheus.ExemplarObserver); ok {
				eo.ObserveWithExemplar(dur, prometheus.Labels{"trace_id": sc.TraceID().String()})
			} else {
				observer.Observe(dur)
			}
		} else {
			observer.Observe(dur)
		}
		reqTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

// RecordExternalOp records an external operation metric with duration and outcome
func RecordExternalOp(op string, dur time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	externalDuration.WithLabelValues(op, outcome).Observe(dur.Seconds())
	externalTotal.WithLabelValues(op, outcome).Inc()
}

// SetBreakerState updates the breaker state gauge (1=open, 0=closed)
func SetBreakerState(name string, open bool) {
	if open {
		breakerOpen.WithLabelValues(name).Set(1)
	} else {
		breakerOpen.WithLabelValues(name).Set(0)
	}
}

func RecordClaimCreated()  { claimsCreated.Inc() }
func RecordClaimConflict() { claimsConflict.Inc() }

// RecordStageFailure counts a failed intake stage (compose, archive, notify...).
func RecordStageFailure(stage string) { stageFailures.WithLabelValues(stage).Inc() }

// RecordNotification counts a finished notification attempt.
func RecordNotification(success bool) {
	if success {
		notificationsTotal.WithLabelValues("success").Inc()
		return
	}
	notificationsTotal.WithLabelValues("error").Inc()
}
