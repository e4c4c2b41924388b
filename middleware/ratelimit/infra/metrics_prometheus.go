package infra

import (
	"math"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
)

// PrometheusRecorder exporta as decisões como métricas Prometheus.
type PrometheusRecorder struct {
	decisions  *prometheus.CounterVec
	retryAfter *prometheus.HistogramVec
}

// NewPrometheusRecorder registra os coletores em reg (nil = prometheus.DefaultRegisterer).
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusRecorder{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Rate limit decisions by bucket, action and shadow mode.",
		}, []string{"bucket", "action", "shadow"}),
		retryAfter: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ratelimit_retry_after_seconds",
			Help:    "Retry-After reported on denied requests.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		}, []string{"bucket", "shadow"}),
	}
	if err := reg.Register(r.decisions); err != nil {
		return nil, err
	}
	if err := reg.Register(r.retryAfter); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PrometheusRecorder) RecordDecision(bucket string, action domain.Action, shadow bool) {
	r.decisions.WithLabelValues(bucket, string(action), strconv.FormatBool(shadow)).Inc()
}

// RecordRetryAfter ignora valores infinitos (buckets de taxa zero).
func (r *PrometheusRecorder) RecordRetryAfter(bucket string, shadow bool, seconds float64) {
	if math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		return
	}
	r.retryAfter.WithLabelValues(bucket, strconv.FormatBool(shadow)).Observe(seconds)
}
