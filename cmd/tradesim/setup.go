package main

import (
	"fmt"
	"strings"

	"github.com/newthinker/tradesim/internal/backtest"
	"github.com/newthinker/tradesim/internal/collector/csvfeed"
	"github.com/newthinker/tradesim/internal/config"
	"github.com/newthinker/tradesim/internal/core"
	"github.com/newthinker/tradesim/internal/logger"
	"github.com/newthinker/tradesim/internal/metrics"
	"github.com/newthinker/tradesim/internal/storage/archive"
	"github.com/newthinker/tradesim/internal/storage/results"
	"github.com/newthinker/tradesim/internal/strategy/builtin"
	"go.uber.org/zap"
)

var strategyUsage = fmt.Sprintf("strategy, one of %s (overrides backtest.strategy)",
	strings.Join(builtin.Registry().Names(), ", "))

// loadConfig reads --config or falls back to defaults, then validates
func loadConfig() (*config.Config, bool, error) {
	if cfgFile == "" {
		cfg := config.Defaults()
		return cfg, false, cfg.Validate()
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, true, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, true, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, true, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if debug {
		return logger.New(true)
	}
	return logger.NewWithLevel(cfg.Log.Development, cfg.Log.Level)
}

func backtestOptions(cfg *config.Config, log *zap.Logger) (backtest.Options, error) {
	schedule, err := cfg.Fees.Schedule()
	if err != nil {
		return backtest.Options{}, err
	}
	if !cfg.Backtest.FixedFee {
		log.Debug("fee schedule", zap.Any("tiers", schedule.Tiers()))
	}
	b := cfg.Backtest
	return backtest.Options{
		StartingCapital: b.StartingCapital,
		OrderSizing:     b.OrderSizing,
		ShortingAllowed: b.ShortingAllowed,
		FixedFee:        b.FixedFee,
		Fee:             b.Fee,
		FeeSchedule:     schedule,
		RecordBalance:   b.RecordBalance,
		AnnualTaxes:     b.AnnualTaxes,
		TaxRate:         b.TaxPercentage,
	}, nil
}

func loadBars(cfg *config.Config, path string, log *zap.Logger) ([]core.PriceBar, error) {
	if path == "" {
		path = cfg.Data.Path
	}
	if path == "" {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("no price data path; set data.path or --data"))
	}
	feed := csvfeed.New(csvfeed.Config{
		TimeLayout:  cfg.Data.TimeLayout,
		PriceColumn: cfg.Data.PriceColumn,
		Years:       cfg.Data.Years,
	}, log)
	return feed.LoadFile(path)
}

// openArchive returns nil when archiving is disabled
func openArchive(cfg *config.Config, log *zap.Logger) (*archive.Archive, error) {
	a := cfg.Storage.Archive
	if a.Type == "" {
		return nil, nil
	}
	store, err := archive.Open(a.Type, a.Path, archive.S3Config{
		Bucket:    a.S3.Bucket,
		Endpoint:  a.S3.Endpoint,
		Region:    a.S3.Region,
		AccessKey: a.S3.AccessKey,
		SecretKey: a.S3.SecretKey,
		Prefix:    a.S3.Prefix,
	})
	if err != nil {
		return nil, err
	}
	return archive.New(store, log), nil
}

func openRecorder(cfg *config.Config, log *zap.Logger) (results.Recorder, error) {
	if cfg.Storage.Results.Path == "" {
		return results.NopRecorder{}, nil
	}
	return results.NewSQLiteRecorder(cfg.Storage.Results.Path, log)
}

// newMetrics returns nil when metrics are disabled
func newMetrics(cfg *config.Config) *metrics.Registry {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.NewRegistry()
}

func flushMetrics(cfg *config.Config, reg *metrics.Registry, log *zap.Logger) {
	if reg == nil || cfg.Metrics.Textfile == "" {
		return
	}
	if err := reg.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		log.Warn("failed to write metrics textfile", zap.String("path", cfg.Metrics.Textfile), zap.Error(err))
		return
	}
	log.Debug("wrote metrics textfile", zap.String("path", cfg.Metrics.Textfile))
}
