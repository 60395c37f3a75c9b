package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/newthinker/tradesim/internal/core"
	"github.com/newthinker/tradesim/internal/storage/archive"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var archiveDay string

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect archived backtest results",
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var day time.Time
		if archiveDay != "" {
			var err error
			day, err = time.Parse(time.DateOnly, archiveDay)
			if err != nil {
				return fmt.Errorf("invalid day format (expected YYYY-MM-DD): %w", err)
			}
		}
		return withArchive(func(a *archive.Archive) error {
			paths, err := a.List(cmd.Context(), day)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		})
	},
}

var archiveShowCmd = &cobra.Command{
	Use:   "show <path>",
	Short: "Print one archived result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(func(a *archive.Archive) error {
			rec, err := a.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		})
	},
}

var archiveRmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Delete one archived result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(func(a *archive.Archive) error {
			return a.Delete(cmd.Context(), args[0])
		})
	},
}

func init() {
	archiveListCmd.Flags().StringVar(&archiveDay, "day", "", "only results archived on this UTC day (YYYY-MM-DD)")

	archiveCmd.AddCommand(archiveListCmd, archiveShowCmd, archiveRmCmd)
	rootCmd.AddCommand(archiveCmd)
}

func withArchive(fn func(a *archive.Archive) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := openArchive(cfg, log)
	if err != nil {
		return err
	}
	if a == nil {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("storage.archive.type is not set"))
	}
	if err := fn(a); err != nil {
		log.Debug("archive command failed", zap.Error(err))
		return err
	}
	return nil
}
