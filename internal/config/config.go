package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/newthinker/tradesim/internal/core"
	"github.com/newthinker/tradesim/internal/fee"
	"github.com/spf13/viper"
)

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Fees     FeesConfig     `mapstructure:"fees"`
	Data     DataConfig     `mapstructure:"data"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// BacktestConfig holds the parameters of a single run.
type BacktestConfig struct {
	Strategy        string              `mapstructure:"strategy"`
	StartingCapital float64             `mapstructure:"starting_capital"`
	OrderSizing     float64             `mapstructure:"order_sizing"`
	ShortingAllowed bool                `mapstructure:"shorting_allowed"`
	FixedFee        bool                `mapstructure:"fixed_fee"`
	Fee             float64             `mapstructure:"fee"`
	RecordBalance   bool                `mapstructure:"record_balance"`
	AnnualTaxes     bool                `mapstructure:"annual_taxes"`
	TaxPercentage   float64             `mapstructure:"tax_percentage"`
	MeanReversion   MeanReversionConfig `mapstructure:"mean_reversion"`
	MACrossover     MACrossoverConfig   `mapstructure:"ma_crossover"`
}

type MeanReversionConfig struct {
	MALength     int     `mapstructure:"ma_length"`
	BuyThreshold float64 `mapstructure:"buy_threshold"`
	TakeProfit   float64 `mapstructure:"take_profit"`
	StopLoss     float64 `mapstructure:"stop_loss"`
}

// Params returns the strategy parameter map
func (m MeanReversionConfig) Params() map[string]any {
	return map[string]any{
		"ma_length":     m.MALength,
		"buy_threshold": m.BuyThreshold,
		"take_profit":   m.TakeProfit,
		"stop_loss":     m.StopLoss,
	}
}

type MACrossoverConfig struct {
	FastPeriod int `mapstructure:"fast_period"`
	SlowPeriod int `mapstructure:"slow_period"`
}

// Params returns the strategy parameter map
func (m MACrossoverConfig) Params() map[string]any {
	return map[string]any{
		"fast_period": m.FastPeriod,
		"slow_period": m.SlowPeriod,
	}
}

// StrategyParams returns the parameters of the configured strategy
func (b BacktestConfig) StrategyParams() map[string]any {
	switch b.Strategy {
	case "mean_reversion":
		return b.MeanReversion.Params()
	case "ma_crossover":
		return b.MACrossover.Params()
	default:
		return map[string]any{}
	}
}

// FeesConfig overrides the default volume tiers when Tiers is non-empty.
type FeesConfig struct {
	Tiers []fee.Tier `mapstructure:"tiers"`
}

// Schedule builds the tier table, falling back to fee.Default().
func (f FeesConfig) Schedule() (*fee.Schedule, error) {
	if len(f.Tiers) == 0 {
		return fee.Default(), nil
	}
	return fee.NewSchedule(f.Tiers)
}

type DataConfig struct {
	Path        string `mapstructure:"path"`
	TimeLayout  string `mapstructure:"time_layout"`
	PriceColumn string `mapstructure:"price_column"`
	Years       []int  `mapstructure:"years"`
}

// SweepConfig bounds the randomized parameter search.
type SweepConfig struct {
	Runs        int   `mapstructure:"runs"`
	Workers     int   `mapstructure:"workers"` // 0 means runtime.NumCPU()
	Seed        int64 `mapstructure:"seed"`
	MinMALength int   `mapstructure:"min_ma_length"`
	MaxMALength int   `mapstructure:"max_ma_length"`
}

type StorageConfig struct {
	Archive ArchiveConfig `mapstructure:"archive"`
	Results ResultsConfig `mapstructure:"results"`
}

type ArchiveConfig struct {
	Type string   `mapstructure:"type"` // "localfs", "s3" or empty to disable
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// ResultsConfig points at the SQLite results database; empty disables it.
type ResultsConfig struct {
	Path string `mapstructure:"path"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Textfile string `mapstructure:"textfile"`
}

// Load reads configuration from file on top of Defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Backtest: BacktestConfig{
			Strategy:        "mean_reversion",
			StartingCapital: 10000,
			OrderSizing:     1,
			TaxPercentage:   0.3,
			MeanReversion: MeanReversionConfig{
				MALength:     24,
				BuyThreshold: 0.05,
				TakeProfit:   0.10,
				StopLoss:     0.20,
			},
			MACrossover: MACrossoverConfig{
				FastPeriod: 50,
				SlowPeriod: 200,
			},
		},
		Data: DataConfig{
			TimeLayout: "2006-01-02 15:04:05",
		},
		Sweep: SweepConfig{
			Runs:        100,
			Seed:        1,
			MinMALength: 1,
			MaxMALength: 1095,
		},
		Storage: StorageConfig{
			Archive: ArchiveConfig{
				Type: "localfs",
				Path: "results",
			},
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	b := c.Backtest
	if b.StartingCapital <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("starting_capital must be greater than zero, got %f", b.StartingCapital))
	}
	if b.OrderSizing <= 0 || b.OrderSizing > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("order_sizing must be between 0 (exclusive) and 1, got %f", b.OrderSizing))
	}
	if b.Fee < 0 || b.Fee > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("fee must be between 0 and 1, got %f", b.Fee))
	}
	if b.TaxPercentage < 0 || b.TaxPercentage > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("tax_percentage must be between 0 and 1, got %f", b.TaxPercentage))
	}
	if b.MACrossover.FastPeriod > b.MACrossover.SlowPeriod {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("fast_period %d is larger than slow_period %d",
				b.MACrossover.FastPeriod, b.MACrossover.SlowPeriod))
	}

	if _, err := c.Fees.Schedule(); err != nil {
		return err
	}

	// Sweep validation
	if c.Sweep.Runs < 0 || c.Sweep.Workers < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("sweep runs and workers cannot be negative"))
	}
	if c.Sweep.MinMALength < 1 || c.Sweep.MaxMALength < c.Sweep.MinMALength {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("sweep ma length range [%d, %d] is invalid", c.Sweep.MinMALength, c.Sweep.MaxMALength))
	}

	// Storage validation - if s3 is selected, a bucket must exist
	switch c.Storage.Archive.Type {
	case "", "localfs":
		if c.Storage.Archive.Type == "localfs" && c.Storage.Archive.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("archive path required when type is localfs"))
		}
	case "s3":
		if c.Storage.Archive.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("s3 bucket required when archive type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown archive type %q", c.Storage.Archive.Type))
	}

	return nil
}
