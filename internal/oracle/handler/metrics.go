package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	aegisRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_http_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	aegisRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aegis_http_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	aegisTransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_ledger_transactions_total",
		Help: "Total ledger transactions submitted, by final outcome.",
	}, []string{"result"})

	aegisDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_deliveries_total",
		Help: "Total scheduled delivery tasks, by outcome.",
	}, []string{"result"})

	aegisActivityEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aegis_activity_events_total",
		Help: "Total activity events appended to the feed.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request
// metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		aegisRequestsTotal.WithLabelValues(method, path, status).Inc()
		aegisRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordTransaction records a submitter outcome.
func RecordTransaction(success bool) {
	if success {
		aegisTransactionsTotal.WithLabelValues("confirmed").Inc()
	} else {
		aegisTransactionsTotal.WithLabelValues("failed").Inc()
	}
}

// RecordDelivery records a delivery-stage outcome.
func RecordDelivery(success bool) {
	if success {
		aegisDeliveriesTotal.WithLabelValues("complete").Inc()
	} else {
		aegisDeliveriesTotal.WithLabelValues("failed").Inc()
	}
}

// RecordActivityEvent records an activity feed append.
func RecordActivityEvent() {
	aegisActivityEventsTotal.Inc()
}
