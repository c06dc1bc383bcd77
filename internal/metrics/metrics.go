// Package metrics holds the run counters for a data-quality job. The job is a
// batch process, so metrics are dumped once at exit in the node_exporter
// textfile format instead of being scraped.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rotisserie/eris"
)

// Metrics provides observability for one job run. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Rows written by the round-1 loader, by namespace
	RowsLoaded *prometheus.CounterVec

	// Issues accepted by the dedup buffer, by category
	IssuesRecorded *prometheus.CounterVec

	// Verification and deferral actions, by type
	ActionsRecorded *prometheus.CounterVec

	// Rows examined and rows changed per propagation round
	RowsProcessed *prometheus.CounterVec
	RowsUpdated   *prometheus.CounterVec

	// Failed batches by table; the batch is dropped and the run continues
	BatchFailures *prometheus.CounterVec

	RoundDuration *prometheus.HistogramVec
}

// New creates a Metrics instance on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RowsLoaded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dq_rows_loaded_total",
			Help: "Analysis rows written by the round-1 loader",
		}, []string{"namespace"}),

		IssuesRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dq_issues_recorded_total",
			Help: "Distinct issues captured for the job by category",
		}, []string{"category"}),

		ActionsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dq_actions_recorded_total",
			Help: "Verification and deferral actions captured by type",
		}, []string{"type"}),

		RowsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dq_round_rows_processed_total",
			Help: "Person rows examined by the propagation engine per round",
		}, []string{"round"}),

		RowsUpdated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dq_round_rows_updated_total",
			Help: "Person rows whose birth bracket narrowed per round",
		}, []string{"round"}),

		BatchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dq_batch_failures_total",
			Help: "Store batches rolled back and dropped by table",
		}, []string{"table"}),

		RoundDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dq_round_duration_seconds",
			Help:    "Wall time of each job phase",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"round"}),
	}
}

// Registry exposes the underlying registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) AddRowsLoaded(namespace string, n int) {
	if m != nil {
		m.RowsLoaded.WithLabelValues(namespace).Add(float64(n))
	}
}

func (m *Metrics) AddIssue(category string) {
	if m != nil {
		m.IssuesRecorded.WithLabelValues(category).Inc()
	}
}

func (m *Metrics) AddActions(actionType string, n int) {
	if m != nil {
		m.ActionsRecorded.WithLabelValues(actionType).Add(float64(n))
	}
}

// ObserveRound records the outcome of one propagation round.
func (m *Metrics) ObserveRound(round string, processed, updated int, d time.Duration) {
	if m != nil {
		m.RowsProcessed.WithLabelValues(round).Add(float64(processed))
		m.RowsUpdated.WithLabelValues(round).Add(float64(updated))
		m.RoundDuration.WithLabelValues(round).Observe(d.Seconds())
	}
}

// ObservePhase records the duration of a non-propagation phase such as
// "load" or "publish".
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m != nil {
		m.RoundDuration.WithLabelValues(phase).Observe(d.Seconds())
	}
}

func (m *Metrics) BatchFailed(table string) {
	if m != nil {
		m.BatchFailures.WithLabelValues(table).Inc()
	}
}

// WriteTextfile writes every metric to path in the text exposition format.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return eris.Wrapf(prometheus.WriteToTextfile(path, m.registry), "metrics: write textfile %s", path)
}
