package worker

import "github.com/prometheus/client_golang/prometheus"

var (
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reelgen_queue_depth",
		Help: "Generation jobs waiting for a worker.",
	})
	jobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reelgen_jobs_in_flight",
		Help: "Generation jobs currently running.",
	})
	jobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reelgen_jobs_finished_total",
		Help: "Generation jobs by terminal state.",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(queueDepth, jobsInFlight, jobsFinished)
}
