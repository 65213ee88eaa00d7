package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/starnotary/internal/mempool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "starnotary_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "starnotary_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	blocksAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "starnotary_blocks_appended_total",
		Help: "Total blocks appended to the ledger.",
	})

	ledgerHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "starnotary_ledger_height",
		Help: "Height of the newest ledger block.",
	})

	mempoolEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "starnotary_mempool_entries",
		Help: "Mempool entries by state.",
	}, []string{"state"})

	mempoolEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "starnotary_mempool_events_total",
		Help: "Mempool admission events by kind.",
	}, []string{"event"})

	integrityFailedHeights = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "starnotary_integrity_failed_heights",
		Help: "Failing heights found by the last integrity sweep.",
	})

	integritySweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "starnotary_integrity_sweeps_total",
		Help: "Total integrity sweeps run.",
	})
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

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordBlockAppended records a ledger append at height.
func RecordBlockAppended(height int64) {
	blocksAppendedTotal.Inc()
	ledgerHeight.Set(float64(height))
}

// SetLedgerHeight sets the ledger height gauge.
func SetLedgerHeight(height int64) {
	ledgerHeight.Set(float64(height))
}

// RecordMempoolEvent counts an admission event.
func RecordMempoolEvent(event string) {
	mempoolEventsTotal.WithLabelValues(event).Inc()
}

// SetMempoolGauges publishes the current mempool size.
func SetMempoolGauges(s mempool.Stats) {
	mempoolEntries.WithLabelValues("pending").Set(float64(s.Pending))
	mempoolEntries.WithLabelValues("validated").Set(float64(s.Validated))
}

// RecordIntegritySweep records the outcome of one chain sweep.
func RecordIntegritySweep(failed int) {
	integritySweepsTotal.Inc()
	integrityFailedHeights.Set(float64(failed))
}
