package engine

// Prometheus metrics the engine updates during reconciliation:
//   • runwatch_updates_total{source,result}  – merges por productor y resultado
//   • runwatch_runs_resolved_total{status}   – runs que llegaron a terminal
//   • runwatch_poll_failures_total           – polls tragados (reintento al tick)
//   • runwatch_stream_drops_total            – streams push caídos
//   • runwatch_fill_watches_total{outcome}   – sesiones de fill-watch por desenlace
//
// Registered in init() and served at /metrics when the flag is set in cmd.

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runwatch_updates_total",
			Help: "State updates merged, by producer and result",
		},
		[]string{"source", "result"}, // result: first|applied|discarded|duplicate
	)

	mtxRunsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runwatch_runs_resolved_total",
			Help: "Runs that reached a terminal status",
		},
		[]string{"status"},
	)

	mtxPollFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "runwatch_poll_failures_total",
			Help: "Status polls that failed and were retried on the next tick",
		},
	)

	mtxStreamDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "runwatch_stream_drops_total",
			Help: "Push subscriptions that ended before the run resolved",
		},
	)

	mtxFillWatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runwatch_fill_watches_total",
			Help: "Fill watch sessions by outcome",
		},
		[]string{"outcome"}, // filled|timed_out|late_confirm
	)
)

func init() {
	prometheus.MustRegister(mtxUpdates, mtxRunsResolved, mtxPollFailures, mtxStreamDrops, mtxFillWatches)
}
