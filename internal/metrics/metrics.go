// Package metrics provides Prometheus instrumentation for the ledger.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// UsersCreated counts users created.
	UsersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minimarbles_users_created_total",
		Help: "Total number of users created",
	})

	// TradesOpened counts trades opened, partitioned by kind.
	TradesOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minimarbles_trades_opened_total",
		Help: "Total number of trades opened",
	}, []string{"kind"})

	// Settlements counts settlement attempts by kind and result.
	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minimarbles_settlements_total",
		Help: "Settlement attempts by trade kind and result",
	}, []string{"kind", "result"})

	// Transferred tracks minimarbles moved from losers to winners.
	Transferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minimarbles_transferred_total",
		Help: "Minimarbles transferred between counterparties by settlement",
	}, []string{"kind"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minimarbles_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "minimarbles_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Settlement results
const (
	ResultSettled  = "settled"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Handler returns the Prometheus exposition handler for gin.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// Middleware records request counts and latency, labelled by route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
