package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	accessChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "iam",
		Subsystem: "access",
		Name:      "checks_total",
		Help:      "Total number of effective-permission checks broken down by result.",
	}, []string{"result"})

	accessLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "iam",
		Subsystem: "access",
		Name:      "check_latency_seconds",
		Help:      "Latency distribution for effective-permission checks.",
		Buckets: []float64{
			0.0005, 0.001, 0.002, 0.005,
			0.01, 0.02, 0.05, 0.1,
			0.2, 0.5, 1, 2,
		},
	}, []string{"result"})
)

func recordAccessCheck(allowed bool, latency time.Duration) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	labels := prometheus.Labels{"result": result}
	accessChecks.With(labels).Inc()
	accessLatency.With(labels).Observe(latency.Seconds())
}
