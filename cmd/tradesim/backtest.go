package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/tradesim/internal/backtest"
	"github.com/newthinker/tradesim/internal/config"
	"github.com/newthinker/tradesim/internal/metrics"
	"github.com/newthinker/tradesim/internal/storage/archive"
	"github.com/newthinker/tradesim/internal/storage/results"
	"github.com/newthinker/tradesim/internal/strategy"
	"github.com/newthinker/tradesim/internal/strategy/builtin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	backtestData     string
	backtestStrategy string
	backtestFills    string
	backtestJSON     bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run one backtest",
	Long:  "Replay the configured price series through one strategy and show quarterly performance",
	Args:  cobra.NoArgs,
	RunE:  runBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&backtestData, "data", "", "price CSV (overrides data.path)")
	backtestCmd.Flags().StringVar(&backtestStrategy, "strategy", "", strategyUsage)
	backtestCmd.Flags().StringVar(&backtestFills, "fills", "", "write executed orders to this CSV file")
	backtestCmd.Flags().BoolVar(&backtestJSON, "json", false, "print the full result as JSON")

	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
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
	if backtestStrategy != "" {
		cfg.Backtest.Strategy = backtestStrategy
	}

	bars, err := loadBars(cfg, backtestData, log)
	if err != nil {
		return err
	}
	opts, err := backtestOptions(cfg, log)
	if err != nil {
		return err
	}

	params := cfg.Backtest.StrategyParams()
	sig, err := builtin.Registry().Build(cfg.Backtest.Strategy, strategy.Config{Params: params})
	if err != nil {
		return err
	}

	reg := newMetrics(cfg)
	defer flushMetrics(cfg, reg, log)

	started := time.Now()
	result, err := backtest.New(opts, log).Run(bars, sig)
	if reg != nil {
		reg.RecordBacktest(cfg.Backtest.Strategy, metrics.StatusFor(err), time.Since(started).Seconds())
	}
	if err != nil {
		return err
	}
	if reg != nil {
		reg.RecordOutcome(cfg.Backtest.Strategy, result.Bars, len(result.Quarters), result.FinalReturnRate)
		for _, f := range result.Fills {
			reg.RecordFill(cfg.Backtest.Strategy, string(f.Side))
		}
	}

	log.Info("backtest complete",
		zap.String("strategy", result.Strategy),
		zap.Int("bars", result.Bars),
		zap.Float64("final_return_rate", result.FinalReturnRate),
		zap.Float64("baseline_return_rate", result.BaselineReturnRate),
		zap.Duration("elapsed", time.Since(started)),
	)

	if backtestJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printResult(cmd.OutOrStdout(), result)
	}

	if backtestFills != "" {
		if err := backtest.WriteFillsCSV(result.Fills, backtestFills); err != nil {
			return err
		}
		log.Info("wrote fills", zap.String("path", backtestFills), zap.Int("count", len(result.Fills)))
	}

	persist(cmd.Context(), cfg, params, result, log)
	return nil
}

// persist archives the result and records it in the results database.
// Failures are logged, the run itself already succeeded.
func persist(ctx context.Context, cfg *config.Config, params map[string]any, result *backtest.Result, log *zap.Logger) {
	id := uuid.NewString()

	store, err := openArchive(cfg, log)
	if err != nil {
		log.Warn("archive unavailable", zap.Error(err))
	} else if store != nil {
		path, err := store.Save(ctx, &archive.Record{
			ID:     id,
			Source: dataSource(cfg.Data.Path),
			Params: params,
			Result: result,
		})
		if err != nil {
			log.Warn("failed to archive result", zap.Error(err))
		} else {
			log.Info("archived result", zap.String("path", path))
		}
	}

	rec, err := openRecorder(cfg, log)
	if err != nil {
		log.Warn("results database unavailable", zap.Error(err))
		return
	}
	defer rec.Close()
	if err := rec.Record(ctx, results.Run{ID: id, Params: params, Result: result}); err != nil {
		log.Warn("failed to record result", zap.String("id", id), zap.Error(err))
	}
}

func dataSource(configured string) string {
	if backtestData != "" {
		return backtestData
	}
	return configured
}

func printResult(out io.Writer, r *backtest.Result) {
	fmt.Fprintf(out, "=== tradesim backtest ===\n")
	fmt.Fprintf(out, "Strategy:  %s\n", r.Description)
	fmt.Fprintf(out, "Period:    %s to %s (%d bars)\n",
		r.StartDate.Format(time.DateTime), r.EndDate.Format(time.DateTime), r.Bars)
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Final return\t%.2f%%\n", r.FinalReturnRate*100)
	fmt.Fprintf(w, "Buy & hold return\t%.2f%%\n", r.BaselineReturnRate*100)
	fmt.Fprintf(w, "Hit rate\t%s\n", r.HitRate)
	fmt.Fprintf(w, "Trades\t%d (%d won, %d lost)\n", r.TotalTrades, r.Wins, r.Losses)
	fmt.Fprintf(w, "Fees paid\t%.2f\n", r.FeesPaid)
	fmt.Fprintf(w, "Taxes paid\t%.2f\n", r.TaxesPaid)
	fmt.Fprintf(w, "Quarters beating buy & hold\t%s\n", r.QuartersBeatingBaseline)
	fmt.Fprintf(w, "Quarterly stdev (strategy / buy & hold)\t%s / %s\n",
		r.StrategyQuarterlyStdDev, r.BaselineQuarterlyStdDev)
	fmt.Fprintf(w, "Sharpe ratio\t%s\n", r.SharpeRatio)
	fmt.Fprintf(w, "Max drawdown\t%s\n", r.MaxDrawdown)
	w.Flush()

	if len(r.Quarters) == 0 {
		return
	}
	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Quarter\tStrategy\tBuy & hold\tTrades\tHit rate\t")
	for _, q := range r.Quarters {
		fmt.Fprintf(w, "%d\t%.2f%%\t%.2f%%\t%d\t%s\t\n",
			q.Quarter, q.StrategyReturnRate*100, q.BaselineReturnRate*100, q.TradeCount, q.HitRate)
	}
	w.Flush()
}
