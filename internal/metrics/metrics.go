package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EvalRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evald_eval_runs_total",
			Help: "Total number of finalized evaluation runs by status.",
		},
		[]string{"worker_id", "status"},
	)

	EvalRunDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evald_eval_run_duration_seconds",
			Help:    "Wall-clock duration of harness invocations in seconds.",
			Buckets: []float64{30, 60, 300, 900, 1800, 3600, 7200, 14400},
		},
		[]string{"worker_id", "status"},
	)

	WorkerClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evald_worker_claims_total",
			Help: "Total number of queued runs claimed.",
		},
		[]string{"worker_id"},
	)

	WorkerClaimContentionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evald_worker_claim_contention_total",
			Help: "Claims lost to another worker or to store contention.",
		},
		[]string{"worker_id"},
	)

	WorkerEmptyPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evald_worker_empty_polls_total",
			Help: "Polls that found the queue empty.",
		},
		[]string{"worker_id"},
	)

	StaleRunsRequeuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evald_stale_runs_requeued_total",
			Help: "RUNNING rows requeued after exceeding the reclaim threshold.",
		},
		[]string{"worker_id"},
	)

	BackfillInsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evald_backfill_inserts_total",
			Help: "Completed runs inserted by the reconciliation pass.",
		},
		[]string{"model"},
	)

	BackfillSkipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evald_backfill_skips_total",
			Help: "Reconciliation candidates skipped as already present.",
		},
		[]string{"model"},
	)
)

func init() {
	prometheus.MustRegister(
		EvalRunsTotal,
		EvalRunDurationSeconds,
		WorkerClaimsTotal,
		WorkerClaimContentionTotal,
		WorkerEmptyPollsTotal,
		StaleRunsRequeuedTotal,
		BackfillInsertsTotal,
		BackfillSkipsTotal,
	)
}
