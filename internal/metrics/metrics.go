package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Runs
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetsync_runs_total",
		Help: "The total number of unit runs by outcome",
	}, []string{"unit", "trigger", "outcome"})

	RunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sheetsync_run_duration_seconds",
		Help:    "The duration of unit runs",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"unit"})

	RowsWritten = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sheetsync_rows_written",
		Help: "The row count of the last successful run",
	}, []string{"unit"})

	RunsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetsync_runs_rejected_total",
		Help: "The total number of triggers rejected because the unit was already running",
	}, []string{"unit"})

	// Transform
	TransformWarnings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetsync_transform_warnings_total",
		Help: "The total number of non-fatal transform evaluation failures",
	}, []string{"unit"})

	// Events
	EventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetsync_events_received_total",
		Help: "The total number of ledger events received",
	}, []string{"source"})

	DebounceArmed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetsync_debounce_armed_total",
		Help: "The total number of debounce timers armed or re-armed",
	}, []string{"unit"})

	// Ledger client
	LedgerRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetsync_ledger_requests_total",
		Help: "The total number of ledger API requests by status",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(RowsWritten)
	prometheus.MustRegister(RunsRejected)
	prometheus.MustRegister(TransformWarnings)
	prometheus.MustRegister(EventsReceived)
	prometheus.MustRegister(DebounceArmed)
	prometheus.MustRegister(LedgerRequests)
}
