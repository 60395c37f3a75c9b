package backtest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/newthinker/tradesim/internal/core"
	"github.com/newthinker/tradesim/internal/strategy"
	"github.com/newthinker/tradesim/internal/strategy/ma_crossover"
	"github.com/newthinker/tradesim/internal/strategy/mean_reversion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// scriptedSignal emits fixed actions at fixed bars
type scriptedSignal struct {
	warmup  int
	actions map[int]core.Action
}

func (s *scriptedSignal) Name() string                             { return "scripted" }
func (s *scriptedSignal) Description() string                      { return "Scripted signal for testing" }
func (s *scriptedSignal) Warmup() int                              { return s.warmup }
func (s *scriptedSignal) Init(cfg strategy.Config) error           { return nil }
func (s *scriptedSignal) Bind([]float64) (strategy.Decider, error) { return s, nil }

func (s *scriptedSignal) Decide(ctx strategy.DecisionContext) core.Action {
	if a, ok := s.actions[ctx.Bar]; ok {
		return a
	}
	return core.ActionHold
}

var testStart = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// hourlyBars builds a series starting at testStart; quarters default to 1
func hourlyBars(prices []float64, quarters ...int) []core.PriceBar {
	bars := make([]core.PriceBar, len(prices))
	for i, p := range prices {
		q := 1
		if i < len(quarters) {
			q = quarters[i]
		}
		bars[i] = core.PriceBar{Time: testStart.Add(time.Duration(i) * time.Hour), Price: p, Quarter: q}
	}
	return bars
}

func noFeeOptions() Options {
	return Options{
		StartingCapital: 10000,
		OrderSizing:     1,
		FixedFee:        true,
		Fee:             0,
	}
}

var scenarioPrices = []float64{100, 95, 90, 85, 80, 100, 120, 140, 160, 180}

func TestBacktester_MeanReversionScenario(t *testing.T) {
	sig := mean_reversion.New(3, 0.05, 0.10, 0.20)
	bt := New(noFeeOptions())

	result, err := bt.Run(hourlyBars(scenarioPrices), sig)
	require.NoError(t, err)

	require.Len(t, result.Fills, 2)
	assert.Equal(t, SideBuy, result.Fills[0].Side)
	assert.Equal(t, 4, result.Fills[0].Bar)
	assert.Equal(t, 80.0, result.Fills[0].Price)
	assert.Equal(t, 125.0, result.Fills[0].Units)
	assert.Equal(t, SideSell, result.Fills[1].Side)
	assert.Equal(t, 5, result.Fills[1].Bar)
	assert.Equal(t, 100.0, result.Fills[1].Price)

	assert.Equal(t, 0.25, result.FinalReturnRate)
	assert.InDelta(t, 0.8, result.BaselineReturnRate, 1e-12)
	assert.Equal(t, core.Some(1), result.HitRate)
	assert.Equal(t, 2, result.TotalTrades)
	assert.Equal(t, 1, result.Wins)
	assert.Equal(t, 12500.0, result.FinalState.Cash)
	assert.Equal(t, core.PositionFlat, result.FinalState.Position)
	assert.Equal(t, 7, result.Bars)

	assert.Empty(t, result.Quarters)
	assert.False(t, result.QuartersBeatingBaseline.Valid)
	assert.False(t, result.StrategyQuarterlyStdDev.Valid)
	assert.False(t, result.MaxDrawdown.Valid)
}

func TestBacktester_SelfConsistentWhenFlat(t *testing.T) {
	signals := []strategy.Signal{
		mean_reversion.New(3, 0.05, 0.10, 0.20),
		ma_crossover.New(2, 3),
	}
	prices := []float64{100, 98, 96, 99, 103, 106, 104, 99, 95, 97, 102, 108, 104, 98}

	for _, sig := range signals {
		t.Run(sig.Name(), func(t *testing.T) {
			result, err := New(noFeeOptions()).Run(hourlyBars(prices), sig)
			require.NoError(t, err)

			// replay fills against starting cash
			cash := 10000.0
			for _, f := range result.Fills {
				switch f.Side {
				case SideBuy:
					cash -= f.Notional
				case SideSell:
					cash += f.Notional
				}
			}
			assert.InDelta(t, result.FinalState.Cash, cash, 1e-9)

			last := prices[len(prices)-1]
			want := (result.FinalState.Cash+result.FinalState.Units*last)/10000 - 1
			assert.Equal(t, want, result.FinalReturnRate)
		})
	}
}

func TestBacktester_BaselineWithoutTrading(t *testing.T) {
	prices := []float64{100, 101, 99, 104, 110, 107}
	result, err := New(noFeeOptions()).Run(hourlyBars(prices), &scriptedSignal{})
	require.NoError(t, err)

	assert.Equal(t, prices[len(prices)-1]/prices[0]-1, result.BaselineReturnRate)
	assert.Zero(t, result.FinalReturnRate)
	assert.Zero(t, result.TotalTrades)
	assert.False(t, result.HitRate.Valid)
}

func TestBacktester_QuarterSnapshots(t *testing.T) {
	prices := []float64{100, 100, 110, 110, 121, 121, 130, 125, 120}
	quarters := []int{1, 1, 2, 2, 3, 3, 4, 4, 4}
	sig := &scriptedSignal{actions: map[int]core.Action{1: core.ActionBuy}}

	result, err := New(noFeeOptions()).Run(hourlyBars(prices, quarters...), sig)
	require.NoError(t, err)

	require.Len(t, result.Quarters, 3)
	for i, q := range result.Quarters {
		assert.Equal(t, i+1, q.Quarter)
	}

	first := result.Quarters[0]
	assert.InDelta(t, 0.1, first.StrategyReturnRate, 1e-12)
	assert.InDelta(t, 0.1, first.BaselineReturnRate, 1e-12)
	assert.Equal(t, 1, first.TradeCount)
	assert.False(t, first.HitRate.Valid)
	assert.Equal(t, 0, result.Quarters[1].TradeCount)
	assert.Equal(t, 0, result.Quarters[2].TradeCount)

	assert.True(t, result.StrategyQuarterlyStdDev.Valid)
	assert.True(t, result.QuartersBeatingBaseline.Valid)
	assert.Equal(t, 0.0, result.QuartersBeatingBaseline.Value)
}

func TestBacktester_Idempotent(t *testing.T) {
	prices := []float64{100, 98, 96, 99, 103, 106, 104, 99, 95, 97, 102, 108, 104, 98}
	quarters := []int{1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 4, 4}
	opts := Options{StartingCapital: 10000, OrderSizing: 0.5, ShortingAllowed: true, RecordBalance: true}

	first, err := New(opts).Run(hourlyBars(prices, quarters...), ma_crossover.New(2, 3))
	require.NoError(t, err)
	second, err := New(opts).Run(hourlyBars(prices, quarters...), ma_crossover.New(2, 3))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBacktester_MissingPrice(t *testing.T) {
	signals := []strategy.Signal{
		mean_reversion.New(3, 0.05, 0.10, 0.20),
		ma_crossover.New(2, 3),
	}
	bars := hourlyBars(scenarioPrices)
	bars[5].Price = 0

	for _, sig := range signals {
		t.Run(sig.Name(), func(t *testing.T) {
			result, err := New(noFeeOptions()).Run(bars, sig)
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, core.ErrConfigMissing), "got %v", err)
		})
	}
}

func TestBacktester_NonFinitePrice(t *testing.T) {
	tests := []struct {
		name  string
		bar   int
		price float64
	}{
		{"nan mid series", 6, math.NaN()},
		{"positive infinity last", 9, math.Inf(1)},
		{"negative infinity", 2, math.Inf(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars := hourlyBars(scenarioPrices)
			bars[tt.bar].Price = tt.price

			result, err := New(noFeeOptions()).Run(bars, mean_reversion.New(3, 0.05, 0.10, 0.20))
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, core.ErrConfigInvalid), "got %v", err)
		})
	}
}

func TestBacktester_InvalidInput(t *testing.T) {
	sig := mean_reversion.New(3, 0.05, 0.10, 0.20)

	_, err := New(noFeeOptions()).Run(nil, sig)
	assert.True(t, errors.Is(err, core.ErrNoData))

	bars := hourlyBars(scenarioPrices)
	bars[3].Time = bars[2].Time
	_, err = New(noFeeOptions()).Run(bars, sig)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))

	opts := noFeeOptions()
	opts.OrderSizing = 1.5
	_, err = New(opts).Run(hourlyBars(scenarioPrices), sig)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))

	_, err = New(noFeeOptions()).Run(hourlyBars(scenarioPrices), ma_crossover.New(5, 3))
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))

	_, err = New(noFeeOptions()).Run(hourlyBars([]float64{1, 2, 3}), &scriptedSignal{warmup: 3})
	assert.True(t, errors.Is(err, core.ErrInsufficientData))
}

func TestBacktester_AnnualTax(t *testing.T) {
	start := time.Date(2023, 12, 31, 21, 0, 0, 0, time.UTC)
	prices := []float64{100, 100, 150, 200, 200}
	bars := make([]core.PriceBar, len(prices))
	for i, p := range prices {
		bars[i] = core.PriceBar{Time: start.Add(time.Duration(i) * time.Hour), Price: p, Quarter: 1}
	}

	opts := noFeeOptions()
	opts.AnnualTaxes = true
	opts.TaxRate = 0.25
	sig := &scriptedSignal{actions: map[int]core.Action{1: core.ActionBuy}}

	result, err := New(opts).Run(bars, sig)
	require.NoError(t, err)

	assert.Equal(t, 2500.0, result.TaxesPaid)
	assert.Equal(t, 87.5, result.FinalState.Units)
	assert.Equal(t, 0.75, result.FinalReturnRate)
}

func TestBacktester_ShortPath(t *testing.T) {
	opts := noFeeOptions()
	opts.ShortingAllowed = true
	sig := &scriptedSignal{actions: map[int]core.Action{1: core.ActionSell, 3: core.ActionBuy}}

	result, err := New(opts).Run(hourlyBars([]float64{100, 100, 90, 80, 80}), sig)
	require.NoError(t, err)

	require.Len(t, result.Fills, 3)
	assert.Equal(t, []Side{SideShort, SideCover, SideBuy},
		[]Side{result.Fills[0].Side, result.Fills[1].Side, result.Fills[2].Side})
	assert.Equal(t, 1, result.Wins)
	assert.Equal(t, 2, result.TotalTrades)
	assert.InDelta(t, 0.2, result.FinalReturnRate, 1e-12)
	assert.Equal(t, core.PositionLong, result.FinalState.Position)
}

func TestBacktester_TieredFee(t *testing.T) {
	opts := Options{StartingCapital: 10000, OrderSizing: 1}
	sig := &scriptedSignal{actions: map[int]core.Action{1: core.ActionBuy}}

	result, err := New(opts).Run(hourlyBars([]float64{100, 100, 100}), sig)
	require.NoError(t, err)

	require.Len(t, result.Fills, 1)
	assert.InDelta(t, 50, result.Fills[0].Fee, 1e-9)
	assert.InDelta(t, 99.5, result.Fills[0].Units, 1e-9)
	assert.InDelta(t, 50, result.FeesPaid, 1e-9)
}

func TestBacktester_AbortsOnZeroValue(t *testing.T) {
	obs, logs := observer.New(zapcore.WarnLevel)
	opts := noFeeOptions()
	opts.ShortingAllowed = true
	sig := &scriptedSignal{actions: map[int]core.Action{1: core.ActionSell}}

	result, err := New(opts, zap.New(obs)).Run(hourlyBars([]float64{100, 100, 150, 250, 250}), sig)
	assert.Nil(t, result)

	var stateErr *StateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, 3, stateErr.Bar)
	assert.Equal(t, 250.0, stateErr.Price)
	assert.True(t, errors.Is(err, core.ErrInvariantViolated))

	entries := logs.FilterMessage("backtest aborted").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestBacktester_RecordBalance(t *testing.T) {
	opts := noFeeOptions()
	opts.RecordBalance = true
	sig := mean_reversion.New(3, 0.05, 0.10, 0.20)

	result, err := New(opts).Run(hourlyBars(scenarioPrices), sig)
	require.NoError(t, err)

	require.Len(t, result.Balances, 7)
	assert.Equal(t, 12500.0, result.Balances[len(result.Balances)-1].Portfolio)
	assert.InDelta(t, 18000, result.Balances[len(result.Balances)-1].Baseline, 1e-9)
	assert.True(t, result.MaxDrawdown.Valid)
}

func TestWriteFills(t *testing.T) {
	fills := []Fill{
		{Time: testStart, Bar: 4, Side: SideBuy, Price: 80, Units: 125, Notional: 10000, Fee: 0},
		{Time: testStart.Add(time.Hour), Bar: 5, Side: SideSell, Price: 100, Units: 125, Notional: 12500, Fee: 0},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteFills(&buf, fills))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, fillHeader, rows[0])
	assert.Equal(t, []string{"2023-01-01T00:00:00Z", "4", "buy", "80", "125", "10000", "0"}, rows[1])
}

func TestWriteFillsCSV(t *testing.T) {
	fills := []Fill{{Time: testStart, Bar: 4, Side: SideBuy, Price: 80, Units: 125, Notional: 10000}}
	path := filepath.Join(t.TempDir(), "fills.csv")
	require.NoError(t, WriteFillsCSV(fills, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "buy", rows[1][2])

	err = WriteFillsCSV(fills, filepath.Join(t.TempDir(), "missing", "fills.csv"))
	assert.Error(t, err)
}
