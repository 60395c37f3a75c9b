package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/newthinker/tradesim/internal/core"
	"github.com/newthinker/tradesim/internal/storage/results"
	"github.com/spf13/cobra"
)

var (
	resultsSweep string
	resultsLimit int
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Rank recorded runs by final return",
	Long:  "Query the results database for the best recorded runs, optionally within one sweep",
	Args:  cobra.NoArgs,
	RunE:  runResults,
}

func init() {
	resultsCmd.Flags().StringVar(&resultsSweep, "sweep", "", "only runs of this sweep id")
	resultsCmd.Flags().IntVar(&resultsLimit, "limit", 20, "number of runs to show")

	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Results.Path == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("storage.results.path is not set"))
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	rec, err := results.NewSQLiteRecorder(cfg.Storage.Results.Path, log)
	if err != nil {
		return err
	}
	defer rec.Close()

	rows, err := rec.Top(cmd.Context(), resultsSweep, resultsLimit)
	if err != nil {
		return err
	}
	printRows(cmd.OutOrStdout(), rows)
	return nil
}

func printRows(out io.Writer, rows []results.Row) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Recorded\tStrategy\tReturn\tBuy & hold\tHit rate\tTrades\tQuarters\tParams")
	for _, r := range rows {
		params, _ := json.Marshal(r.Params)
		fmt.Fprintf(w, "%s\t%s\t%.2f%%\t%.2f%%\t%s\t%d\t%d\t%s\n",
			r.RecordedAt.Format(time.DateTime), r.Strategy,
			r.FinalReturnRate*100, r.BaselineReturnRate*100, optional(r.HitRate),
			r.TotalTrades, r.Quarters, params)
	}
	w.Flush()
}

func optional(v *float64) string {
	if v == nil {
		return core.NotApplicable
	}
	return fmt.Sprintf("%.4f", *v)
}
