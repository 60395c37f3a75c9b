package metrics

import (
	"errors"

	"github.com/newthinker/tradesim/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Backtest outcome labels
const (
	StatusSuccess = "success"
	StatusInvalid = "invalid" // rejected before simulation
	StatusAborted = "aborted" // invariant violated mid-run
)

// StatusFor maps a backtest error to its status label
func StatusFor(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, core.ErrInvariantViolated):
		return StatusAborted
	default:
		return StatusInvalid
	}
}

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	backtestsTotal   *prometheus.CounterVec
	backtestDuration *prometheus.HistogramVec
	barsSimulated    *prometheus.CounterVec
	fillsTotal       *prometheus.CounterVec
	quartersClosed   *prometheus.CounterVec
	finalReturn      *prometheus.HistogramVec
	sweepRunsActive  prometheus.Gauge
	sweepsTotal      prometheus.Counter
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{Registry: reg}

	r.backtestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesim_backtests_total",
			Help: "Total number of backtests",
		},
		[]string{"strategy", "status"},
	)
	r.backtestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradesim_backtest_duration_seconds",
			Help:    "Backtest duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"strategy"},
	)
	r.barsSimulated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesim_bars_simulated_total",
			Help: "Total number of price bars replayed",
		},
		[]string{"strategy"},
	)
	r.fillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesim_fills_total",
			Help: "Total number of executed orders",
		},
		[]string{"strategy", "side"},
	)
	r.quartersClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesim_quarters_closed_total",
			Help: "Total number of quarter snapshots emitted",
		},
		[]string{"strategy"},
	)
	r.finalReturn = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradesim_final_return_rate",
			Help:    "Distribution of final strategy return rates",
			Buckets: []float64{-0.5, -0.25, 0, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"strategy"},
	)
	r.sweepRunsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradesim_sweep_runs_active",
			Help: "Number of sweep runs currently executing",
		},
	)
	r.sweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradesim_sweeps_total",
			Help: "Total number of completed parameter sweeps",
		},
	)

	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)
	reg.MustRegister(r.barsSimulated)
	reg.MustRegister(r.fillsTotal)
	reg.MustRegister(r.quartersClosed)
	reg.MustRegister(r.finalReturn)
	reg.MustRegister(r.sweepRunsActive)
	reg.MustRegister(r.sweepsTotal)

	return r
}

// RecordBacktest records a backtest completion.
func (r *Registry) RecordBacktest(strategy, status string, duration float64) {
	r.backtestsTotal.WithLabelValues(strategy, status).Inc()
	r.backtestDuration.WithLabelValues(strategy).Observe(duration)
}

// RecordOutcome records what a successful run produced.
func (r *Registry) RecordOutcome(strategy string, bars, quarters int, finalReturn float64) {
	r.barsSimulated.WithLabelValues(strategy).Add(float64(bars))
	r.quartersClosed.WithLabelValues(strategy).Add(float64(quarters))
	r.finalReturn.WithLabelValues(strategy).Observe(finalReturn)
}

// RecordFill records one executed order.
func (r *Registry) RecordFill(strategy, side string) {
	r.fillsTotal.WithLabelValues(strategy, side).Inc()
}

// SweepRunStarted increments active sweep runs.
func (r *Registry) SweepRunStarted() {
	r.sweepRunsActive.Inc()
}

// SweepRunFinished decrements active sweep runs.
func (r *Registry) SweepRunFinished() {
	r.sweepRunsActive.Dec()
}

// RecordSweep records a completed sweep.
func (r *Registry) RecordSweep() {
	r.sweepsTotal.Inc()
}

// WriteTextfile writes all metrics in the node_exporter textfile format.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.Registry)
}
