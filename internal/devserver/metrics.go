package devserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's collectors on a private registry.
type Metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	messages      *prometheus.CounterVec
	replies       *prometheus.CounterVec
	replyDuration prometheus.Histogram
	streams       prometheus.Gauge
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_messages_created_total",
			Help: "Stored messages by role.",
		}, []string{"role"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_replies_total",
			Help: "Completed assistant replies by final state.",
		}, []string{"state"}),
		replyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "parley_reply_duration_seconds",
			Help:    "Time from accepting a message to its final state.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parley_sse_streams",
			Help: "Open push streams.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.messages,
		m.replies,
		m.replyDuration,
		m.streams,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the registry for tests and embedding.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) messageCreated(role string) {
	m.messages.WithLabelValues(role).Inc()
}

func (m *Metrics) replyFinished(state string, elapsed time.Duration) {
	m.replies.WithLabelValues(state).Inc()
	m.replyDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
