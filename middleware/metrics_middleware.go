package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gamewire/message"
)

// Metrics holds the per-message Prometheus collectors.
type Metrics struct {
	handled  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
}

// NewMetrics registers the collectors on reg. A nil reg uses the default
// Prometheus registerer.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "gamewire"
	}
	factory := promauto.With(reg)
	return &Metrics{
		handled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_handled_total",
			Help:      "Messages handled, by message name and outcome.",
		}, []string{"message", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_duration_seconds",
			Help:      "Handler latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"message"}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "messages_inflight",
			Help:      "Messages currently inside a handler.",
		}),
	}
}

func (m *Metrics) Middleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			m.inflight.Inc()
			start := time.Now()
			resp := next(ctx, req)
			m.inflight.Dec()

			status := "ok"
			if resp.Failed() {
				status = "error"
			}
			m.handled.WithLabelValues(req.Name, status).Inc()
			m.duration.WithLabelValues(req.Name).Observe(time.Since(start).Seconds())
			return resp
		}
	}
}
