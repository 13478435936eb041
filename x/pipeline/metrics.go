package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/saya/metrics"
)

// Metrics holds pipeline metrics.
type Metrics struct {
	JobsSubmitted     prometheus.Counter
	Transitions       *prometheus.CounterVec
	ItemErrors        *prometheus.CounterVec
	BackpressureSkips prometheus.Counter
	Settlements       *prometheus.CounterVec
	LastSettledBlock  prometheus.Gauge
	LastSentBlock     prometheus.Gauge
	TickDuration      *prometheus.HistogramVec
	JobsPerTick       prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := metrics.NewComponentRegistry(metrics.Namespace, "pipeline")

	return &Metrics{
		JobsSubmitted: reg.NewCounter(prometheus.CounterOpts{
			Name: "jobs_submitted_total",
			Help: "Blocks submitted for step-1 proving",
		}),
		Transitions: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "transitions_total",
			Help: "Job status transitions by target status",
		}, []string{"status"}),
		ItemErrors: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "item_errors_total",
			Help: "Per-job errors by task",
		}, []string{"task"}),
		BackpressureSkips: reg.NewCounter(prometheus.CounterOpts{
			Name: "backpressure_skips_total",
			Help: "Stage-1 ticks skipped because too many jobs are in flight",
		}),
		Settlements: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "update_state submissions by result",
		}, []string{"result"}),
		LastSettledBlock: reg.NewGauge(prometheus.GaugeOpts{
			Name: "last_settled_block",
			Help: "Highest block settled on chain",
		}),
		LastSentBlock: reg.NewGauge(prometheus.GaugeOpts{
			Name: "last_sent_block",
			Help: "Highest block submitted for proving",
		}),
		TickDuration: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tick_duration_seconds",
			Help:    "Duration of one task tick",
			Buckets: metrics.DurationBuckets,
		}, []string{"task"}),
		JobsPerTick: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobs_per_tick",
			Help:    "Jobs examined by one stage-2 tick",
			Buckets: metrics.CountBuckets,
		}),
	}
}
