package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsSubmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "comfyrelay_jobs_submitted_total",
		Help: "Total number of jobs accepted by the gateway",
	})
	JobsProcessing = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "comfyrelay_jobs_processing",
		Help: "Number of jobs currently running against the remote endpoint",
	})
	JobsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "comfyrelay_jobs_completed_total",
		Help: "Total number of jobs completed successfully",
	})
	JobsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "comfyrelay_jobs_failed_total",
		Help: "Total number of jobs that ended in failure or timeout",
	})
	JobsTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "comfyrelay_jobs_tracked",
		Help: "Number of job records held in memory (not yet swept)",
	})
	ColdStartsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "comfyrelay_cold_starts_total",
		Help: "Times a job sat in queue long enough to flag a cold start",
	})
)

func init() {
	prometheus.MustRegister(JobsSubmittedTotal, JobsProcessing, JobsCompletedTotal, JobsFailedTotal, JobsTracked, ColdStartsTotal)
}
