package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/socialmedia/internal/node"
	"github.com/jmerrifield20/socialmedia/internal/social"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	socialRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "social_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	socialRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "social_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	socialCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "social_calls_total",
		Help: "Total ledger calls by method and outcome.",
	}, []string{"method", "outcome"})

	socialEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "social_events_total",
		Help: "Total ledger notifications by kind.",
	}, []string{"kind"})

	socialPosts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "social_posts",
		Help: "Number of posts in the ledger.",
	})

	socialUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "social_users",
		Help: "Number of registered users.",
	})

	socialJournalEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "social_journal_entries",
		Help: "Number of entries in the call journal, genesis included.",
	})

	socialJournalHealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "social_journal_healthy",
		Help: "1 when the latest journal integrity audit passed, 0 when degraded.",
	})

	socialWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "social_webhook_deliveries_total",
		Help: "Total webhook deliveries by success status.",
	}, []string{"status"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		socialRequestsTotal.WithLabelValues(method, path, status).Inc()
		socialRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordCall records one ledger call. It matches node.CallRecorder.
func RecordCall(method node.Method, outcome string) {
	socialCallsTotal.WithLabelValues(string(method), outcome).Inc()
}

// RecordEvent counts a ledger notification and keeps the post and user
// gauges in step with the ledger.
func RecordEvent(ev social.Event) {
	socialEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	switch ev.Kind {
	case social.EventPostCreated:
		socialPosts.Inc()
	case social.EventUserRegistered:
		socialUsers.Inc()
	}
}

// SetLedgerGauges sets the post, user and journal gauges, typically once
// after replay.
func SetLedgerGauges(s node.Stats, journalEntries int) {
	socialPosts.Set(float64(s.PostCount))
	socialUsers.Set(float64(s.UserCount))
	socialJournalEntries.Set(float64(journalEntries))
}

// RecordJournalAppend counts one journal append.
func RecordJournalAppend() {
	socialJournalEntries.Inc()
}

// RecordJournalHealth records the outcome of a journal audit.
func RecordJournalHealth(healthy bool) {
	if healthy {
		socialJournalHealthy.Set(1)
	} else {
		socialJournalHealthy.Set(0)
	}
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		socialWebhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		socialWebhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}
