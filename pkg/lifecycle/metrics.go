package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for worker lifecycle events.
var (
	installAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletsw_install_attempts_total",
		Help: "Total worker install attempts",
	})

	installFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletsw_install_failures_total",
		Help: "Total worker installs that failed after all retries",
	})

	activationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletsw_activations_total",
		Help: "Total worker activations by result",
	}, []string{"result"}) // "ok", "error"

	installRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletsw_install_retries_total",
		Help: "Total number of install retry attempts",
	})

	installRetryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "walletsw_install_retry_backoff_seconds",
		Help:    "Backoff duration before install retries",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletsw_dispatch_total",
		Help: "Requests dispatched by the registration by target",
	}, []string{"target"}) // "worker", "network"
)
