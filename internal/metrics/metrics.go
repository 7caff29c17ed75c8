// Package metrics exposes Prometheus instrumentation for the box pool and
// request volume, the way tombee-conductor wires client_golang gauges and
// counters straight into its server rather than through a middleware
// framework.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// BoxesInUse tracks the number of sandbox ids currently checked out.
	BoxesInUse = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "judge",
		Subsystem: "sandbox",
		Name:      "boxes_in_use",
		Help:      "Number of sandbox box ids currently leased.",
	})

	// BoxesTotal is the configured size of the box pool.
	BoxesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "judge",
		Subsystem: "sandbox",
		Name:      "boxes_total",
		Help:      "Configured size of the sandbox box pool.",
	})

	// RequestsTotal counts completed API requests by endpoint and outcome.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "judge",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total API requests handled, by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	// TestsShortCircuited counts test-loop entries reported as
	// SHORT_CIRCUIT rather than actually executed.
	TestsShortCircuited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "judge",
		Subsystem: "pipeline",
		Name:      "tests_short_circuited_total",
		Help:      "Test cases skipped because an earlier stage already decided the outcome.",
	})
)

func init() {
	prometheus.MustRegister(BoxesInUse, BoxesTotal, RequestsTotal, TestsShortCircuited)
}

// ObservePoolSize sets BoxesTotal once at startup from the configured pool
// capacity.
func ObservePoolSize(n int) {
	BoxesTotal.Set(float64(n))
}
