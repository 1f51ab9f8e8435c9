package ttn

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	optimizeTensorSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ttn_optimize_tensor_seconds",
		Help:    "Time spent updating a single node tensor.",
		Buckets: prometheus.ExponentialBuckets(1e-4, 4, 10),
	})
	sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ttn_sweeps_total",
		Help: "Number of completed sweeps.",
	})
	contractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ttn_contractions_total",
		Help: "Number of executed network contractions.",
	}, []string{"mode"})
)
