package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tradiehub",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradiehub",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tradiehub",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	quoteTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradiehub",
			Subsystem: "quotes",
			Name:      "transitions_total",
			Help:      "Quote status transitions applied.",
		},
		[]string{"from", "to"},
	)

	paymentOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradiehub",
			Subsystem: "payments",
			Name:      "operations_total",
			Help:      "Payment gateway operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	applicationOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradiehub",
			Subsystem: "marketplace",
			Name:      "applications_total",
			Help:      "Job application attempts by outcome.",
		},
		[]string{"outcome"},
	)

	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradiehub",
			Subsystem: "notifications",
			Name:      "deliveries_total",
			Help:      "Quote deliveries by channel and outcome.",
		},
		[]string{"method", "success"},
	)

	sweptRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradiehub",
			Subsystem: "sweeper",
			Name:      "expired_total",
			Help:      "Records expired by the background sweep.",
		},
		[]string{"entity"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		quoteTransitions,
		paymentOperations,
		applicationOutcomes,
		deliveries,
		sweptRecords,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latencies by route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func RecordQuoteTransition(from, to string) {
	quoteTransitions.WithLabelValues(from, to).Inc()
}

func RecordPayment(operation, outcome string) {
	paymentOperations.WithLabelValues(operation, outcome).Inc()
}

func RecordApplication(outcome string) {
	applicationOutcomes.WithLabelValues(outcome).Inc()
}

func RecordDelivery(method string, success bool) {
	deliveries.WithLabelValues(method, strconv.FormatBool(success)).Inc()
}

func RecordSweep(entity string, count int64) {
	if count <= 0 {
		return
	}
	sweptRecords.WithLabelValues(entity).Add(float64(count))
}
