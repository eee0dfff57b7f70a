package cbtools

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// gatewayMetrics instruments gateway traffic. A nil receiver is valid
// and does nothing, so metrics stay opt-in via Config.Metrics.
type gatewayMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newGatewayMetrics(reg prometheus.Registerer) *gatewayMetrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &gatewayMetrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cbtools",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Gateway HTTP requests by operation and status code.",
		}, []string{"op", "code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cbtools",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Gateway HTTP request latency by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
}

func (m *gatewayMetrics) observe(op string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}
