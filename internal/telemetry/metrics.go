package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for ticket runs.
type Metrics struct {
	RunsTotal     *prometheus.CounterVec
	RunFailures   *prometheus.CounterVec
	Attempts      prometheus.Histogram
	StageDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ticketflow",
			Name:      "runs_total",
			Help:      "Completed ticket runs by terminal status.",
		}, []string{"status"}),
		RunFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ticketflow",
			Name:      "run_failures_total",
			Help:      "Ticket runs that ended in an error, by failing stage.",
		}, []string{"stage"}),
		Attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ticketflow",
			Name:      "review_attempts",
			Help:      "Review passes per completed run.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ticketflow",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each workflow stage.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"stage"}),
	}
	reg.MustRegister(m.RunsTotal, m.RunFailures, m.Attempts, m.StageDuration)
	return m
}
