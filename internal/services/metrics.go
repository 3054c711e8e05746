package services

import "github.com/prometheus/client_golang/prometheus"

var (
	stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reelgen_stage_duration_seconds",
		Help:    "Time spent in each pipeline stage.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	processOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reelgen_process_outcomes_total",
		Help: "Finished pipeline runs by outcome kind.",
	}, []string{"kind"})

	vendorPolls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reelgen_vendor_polls_total",
		Help: "Vendor poll calls by vendor and result.",
	}, []string{"vendor", "result"})

	creditsDebited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reelgen_credits_debited_total",
		Help: "Credits debited for finished videos.",
	})

	anomalies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reelgen_pipeline_anomalies_total",
		Help: "Degraded paths taken by the pipeline.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(stageDuration, processOutcomes, vendorPolls, creditsDebited, anomalies)
}
