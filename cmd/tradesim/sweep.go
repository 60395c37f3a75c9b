package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/newthinker/tradesim/internal/strategy/builtin"
	"github.com/newthinker/tradesim/internal/sweep"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	sweepData     string
	sweepStrategy string
	sweepRuns     int
	sweepWorkers  int
	sweepSeed     int64
	sweepTop      int
	sweepOut      string
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Backtest many random parameter sets",
	Long: `Draw random strategy parameters from a seeded generator and backtest each
set in parallel against the same price series. The same seed always draws
the same parameter sets.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().StringVar(&sweepData, "data", "", "price CSV (overrides data.path)")
	sweepCmd.Flags().StringVar(&sweepStrategy, "strategy", "", strategyUsage)
	sweepCmd.Flags().IntVar(&sweepRuns, "runs", 0, "number of runs (overrides sweep.runs)")
	sweepCmd.Flags().IntVar(&sweepWorkers, "workers", 0, "concurrent runs (overrides sweep.workers)")
	sweepCmd.Flags().Int64Var(&sweepSeed, "seed", 0, "random seed (overrides sweep.seed)")
	sweepCmd.Flags().IntVar(&sweepTop, "top", 10, "number of best runs to print")
	sweepCmd.Flags().StringVar(&sweepOut, "out", "", "write every row as JSON to this file")

	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, fromFile, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	if !fromFile {
		log.Warn("no config file specified, using defaults")
	}

	flags := cmd.Flags()
	if sweepStrategy != "" {
		cfg.Backtest.Strategy = sweepStrategy
	}
	if flags.Changed("runs") {
		cfg.Sweep.Runs = sweepRuns
	}
	if flags.Changed("workers") {
		cfg.Sweep.Workers = sweepWorkers
	}
	if flags.Changed("seed") {
		cfg.Sweep.Seed = sweepSeed
	}

	bars, err := loadBars(cfg, sweepData, log)
	if err != nil {
		return err
	}
	opts, err := backtestOptions(cfg, log)
	if err != nil {
		return err
	}

	rec, err := openRecorder(cfg, log)
	if err != nil {
		return err
	}
	defer rec.Close()

	sweepOpts := []sweep.Option{sweep.WithLogger(log), sweep.WithRecorder(rec)}
	reg := newMetrics(cfg)
	if reg != nil {
		sweepOpts = append(sweepOpts, sweep.WithMetrics(reg))
		defer flushMetrics(cfg, reg, log)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := sweep.New(builtin.Registry(), sweepOpts...).Run(ctx, bars, sweep.Config{
		Strategy:    cfg.Backtest.Strategy,
		Runs:        cfg.Sweep.Runs,
		Workers:     cfg.Sweep.Workers,
		Seed:        cfg.Sweep.Seed,
		MinMALength: cfg.Sweep.MinMALength,
		MaxMALength: cfg.Sweep.MaxMALength,
		Options:     opts,
	})
	if summary == nil {
		return err
	}
	if err != nil {
		log.Warn("sweep interrupted", zap.Int("completed", len(summary.Rows)), zap.Error(err))
	}

	printSummary(cmd.OutOrStdout(), summary, sweepTop)

	if sweepOut != "" {
		if werr := writeSummary(sweepOut, summary); werr != nil {
			return werr
		}
		log.Info("wrote sweep rows", zap.String("path", sweepOut))
	}
	return err
}

func writeSummary(path string, summary *sweep.Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func printSummary(out io.Writer, s *sweep.Summary, top int) {
	fmt.Fprintf(out, "=== tradesim sweep %s ===\n", s.ID)
	fmt.Fprintf(out, "Strategy: %s\n", s.Strategy)
	fmt.Fprintf(out, "Runs:     %d (%d failed) in %s\n", len(s.Rows), s.Failed, s.Elapsed.Round(time.Millisecond))
	if s.Best == nil {
		return
	}

	ranked := slices.Clone(s.Rows)
	slices.SortStableFunc(ranked, func(a, b sweep.Row) int {
		// failed rows last
		if (a.Err == "") != (b.Err == "") {
			if a.Err == "" {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.CumulativeReturn, a.CumulativeReturn)
	})
	if top > 0 && top < len(ranked) {
		ranked = ranked[:top]
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Return\tBuy & hold\tProfitable Q\tBeat B&H\tTrades\tStdev\tParams")
	for _, r := range ranked {
		if r.Err != "" {
			break
		}
		params, _ := json.Marshal(r.Params)
		fmt.Fprintf(w, "%.2f%%\t%.2f%%\t%d\t%s\t%d\t%s\t%s\n",
			r.CumulativeReturn*100, r.CumulativeBaselineReturn*100, r.ProfitableQuarters,
			r.QuartersBeatingBaseline, r.TotalTrades, r.StrategyQuarterlyStdDev, params)
	}
	w.Flush()
}

