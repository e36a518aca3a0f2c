package jobpool

import "github.com/prometheus/client_golang/prometheus"

var (
	submittedGaugeVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bankmirror",
		Subsystem: "jobpool",
		Name:      "submitted_total",
		Help:      "Jobs submitted to a pool so far.",
	}, []string{"pool"})

	startedGaugeVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bankmirror",
		Subsystem: "jobpool",
		Name:      "started_total",
		Help:      "Jobs dispatched to a goroutine so far.",
	}, []string{"pool"})

	completedGaugeVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bankmirror",
		Subsystem: "jobpool",
		Name:      "completed_total",
		Help:      "Jobs that have returned (success or error) so far.",
	}, []string{"pool"})
)

func init() {
	prometheus.MustRegister(submittedGaugeVec, startedGaugeVec, completedGaugeVec)
}

func PoolSubmittedGauge(pool string) prometheus.Gauge { return submittedGaugeVec.WithLabelValues(pool) }
func PoolStartedGauge(pool string) prometheus.Gauge    { return startedGaugeVec.WithLabelValues(pool) }
func PoolCompletedGauge(pool string) prometheus.Gauge  { return completedGaugeVec.WithLabelValues(pool) }
