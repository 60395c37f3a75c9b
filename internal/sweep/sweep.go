// Package sweep runs many independent backtests with randomized
// parameters on a bounded pool of goroutines.
package sweep

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/tradesim/internal/backtest"
	"github.com/newthinker/tradesim/internal/core"
	"github.com/newthinker/tradesim/internal/metrics"
	"github.com/newthinker/tradesim/internal/storage/results"
	"github.com/newthinker/tradesim/internal/strategy"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Config describes one sweep
type Config struct {
	Strategy    string
	Runs        int
	Workers     int // 0 means runtime.NumCPU()
	Seed        int64
	MinMALength int
	MaxMALength int
	Options     backtest.Options
}

// Row is the summary of one sweep run
type Row struct {
	RunID                    string         `json:"run_id"`
	Params                   map[string]any `json:"params"`
	CumulativeReturn         float64        `json:"cumulative_return"`
	CumulativeBaselineReturn float64        `json:"cumulative_baseline_return"`
	ProfitableQuarters       int            `json:"profitable_quarters"`
	TotalTrades              int            `json:"total_trades"`
	QuartersBeatingBaseline  core.Metric    `json:"quarters_beating_baseline"`
	StrategyQuarterlyStdDev  core.Metric    `json:"strategy_quarterly_stdev"`
	BaselineQuarterlyStdDev  core.Metric    `json:"baseline_quarterly_stdev"`
	Err                      string         `json:"error,omitempty"`
}

// Summary is the outcome of a sweep, rows in draw order
type Summary struct {
	ID       string        `json:"id"`
	Strategy string        `json:"strategy"`
	Rows     []Row         `json:"rows"`
	Failed   int           `json:"failed"`
	Best     *Row          `json:"best,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Metrics receives run counters; *metrics.Registry implements it
type Metrics interface {
	RecordBacktest(strategy, status string, duration float64)
	RecordOutcome(strategy string, bars, quarters int, finalReturn float64)
	RecordFill(strategy, side string)
	SweepRunStarted()
	SweepRunFinished()
	RecordSweep()
}

// Sweeper executes sweeps against one price series
type Sweeper struct {
	registry *strategy.Registry
	logger   *zap.Logger
	metrics  Metrics
	recorder results.Recorder
}

// Option configures a Sweeper
type Option func(*Sweeper)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// WithRecorder records every successful run
func WithRecorder(r results.Recorder) Option {
	return func(s *Sweeper) { s.recorder = r }
}

// New creates a Sweeper
func New(registry *strategy.Registry, opts ...Option) *Sweeper {
	s := &Sweeper{
		registry: registry,
		logger:   zap.NewNop(),
		recorder: results.NopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (c Config) validate() error {
	if c.Runs <= 0 {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("runs must be positive, got %d", c.Runs))
	}
	if c.Workers < 0 {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("workers cannot be negative, got %d", c.Workers))
	}
	if c.MinMALength < 1 || c.MaxMALength < c.MinMALength {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("ma length range [%d, %d] is invalid", c.MinMALength, c.MaxMALength))
	}
	return c.Options.Validate()
}

// Run draws cfg.Runs parameter sets up front and backtests each one. Runs
// share only the read-only price series. A failed run becomes a Row with
// Err set; cancelling ctx stops dispatch and returns ctx.Err() with the
// rows finished so far.
func (s *Sweeper) Run(ctx context.Context, bars []core.PriceBar, cfg Config) (*Summary, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, core.ErrNoData
	}

	sampler := NewSampler(cfg.Seed, cfg.MinMALength, cfg.MaxMALength)
	params := make([]map[string]any, cfg.Runs)
	for i := range params {
		params[i] = sampler.Draw(cfg.Strategy)
		if params[i] == nil {
			return nil, core.WrapError(core.ErrUnknownStrategy, fmt.Errorf("no sampling rule for %q", cfg.Strategy))
		}
	}

	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, cfg.Runs)

	summary := &Summary{ID: uuid.NewString(), Strategy: cfg.Strategy}
	rows := make([]Row, cfg.Runs)
	done := make([]bool, cfg.Runs)
	start := time.Now()

	s.logger.Info("starting sweep",
		zap.String("id", summary.ID),
		zap.String("strategy", cfg.Strategy),
		zap.Int("runs", cfg.Runs),
		zap.Int("workers", workers),
		zap.Int64("seed", cfg.Seed),
	)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rows[i] = s.runOne(ctx, summary.ID, bars, cfg, params[i])
				done[i] = true
			}
		}()
	}

dispatch:
	for i := range params {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	summary.Rows = lo.Filter(rows, func(_ Row, i int) bool { return done[i] })
	summary.Failed = lo.CountBy(summary.Rows, func(r Row) bool { return r.Err != "" })
	if ok := lo.Filter(summary.Rows, func(r Row, _ int) bool { return r.Err == "" }); len(ok) > 0 {
		best := lo.MaxBy(ok, func(a, b Row) bool { return a.CumulativeReturn > b.CumulativeReturn })
		summary.Best = &best
	}
	summary.Elapsed = time.Since(start)

	if s.metrics != nil {
		s.metrics.RecordSweep()
	}
	s.logger.Info("sweep complete",
		zap.String("id", summary.ID),
		zap.Int("completed", len(summary.Rows)),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.Elapsed),
	)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (s *Sweeper) runOne(ctx context.Context, sweepID string, bars []core.PriceBar, cfg Config, params map[string]any) Row {
	row := Row{RunID: uuid.NewString(), Params: params}

	if s.metrics != nil {
		s.metrics.SweepRunStarted()
		defer s.metrics.SweepRunFinished()
	}

	started := time.Now()
	result, err := s.execute(bars, cfg, params)
	if s.metrics != nil {
		s.metrics.RecordBacktest(cfg.Strategy, metrics.StatusFor(err), time.Since(started).Seconds())
	}
	if err != nil {
		s.logger.Debug("sweep run failed",
			zap.String("run_id", row.RunID),
			zap.Any("params", params),
			zap.Error(err),
		)
		row.Err = err.Error()
		return row
	}

	if s.metrics != nil {
		s.metrics.RecordOutcome(cfg.Strategy, result.Bars, len(result.Quarters), result.FinalReturnRate)
		for _, f := range result.Fills {
			s.metrics.RecordFill(cfg.Strategy, string(f.Side))
		}
	}

	if err := s.recorder.Record(ctx, results.Run{
		ID:      row.RunID,
		SweepID: sweepID,
		Params:  params,
		Result:  result,
	}); err != nil {
		s.logger.Warn("failed to record sweep run", zap.String("run_id", row.RunID), zap.Error(err))
	}

	return summarize(row, result)
}

func (s *Sweeper) execute(bars []core.PriceBar, cfg Config, params map[string]any) (*backtest.Result, error) {
	sig, err := s.registry.Build(cfg.Strategy, strategy.Config{Params: params})
	if err != nil {
		return nil, err
	}
	return backtest.New(cfg.Options, s.logger).Run(bars, sig)
}

func summarize(row Row, r *backtest.Result) Row {
	row.CumulativeReturn = r.FinalReturnRate
	row.CumulativeBaselineReturn = r.BaselineReturnRate
	row.ProfitableQuarters = r.ProfitableQuarters()
	row.TotalTrades = r.TotalTrades
	row.QuartersBeatingBaseline = r.QuartersBeatingBaseline
	row.StrategyQuarterlyStdDev = r.StrategyQuarterlyStdDev
	row.BaselineQuarterlyStdDev = r.BaselineQuarterlyStdDev
	return row
}
