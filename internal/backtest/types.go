package backtest

import (
	"time"

	"github.com/newthinker/tradesim/internal/core"
)

// Side is the direction of an executed order
type Side string

const (
	SideBuy   Side = "buy"   // open or add to a long
	SideSell  Side = "sell"  // close a long
	SideShort Side = "short" // open a short
	SideCover Side = "cover" // close a short
)

// Fill is one executed order
type Fill struct {
	Time     time.Time `json:"time"`
	Bar      int       `json:"bar"`
	Side     Side      `json:"side"`
	Price    float64   `json:"price"`
	Units    float64   `json:"units"`
	Notional float64   `json:"notional"` // gross fiat value before fees
	Fee      float64   `json:"fee"`
}

// QuarterSnapshot is emitted once per quarter boundary and never revised
type QuarterSnapshot struct {
	Quarter            int         `json:"quarter"`
	ClosedAt           time.Time   `json:"closed_at"`
	StrategyReturnRate float64     `json:"strategy_return_rate"`
	BaselineReturnRate float64     `json:"baseline_return_rate"`
	TradeCount         int         `json:"trade_count"`
	HitRate            core.Metric `json:"hit_rate"`
}

// BalancePoint is the portfolio and baseline value after one bar
type BalancePoint struct {
	Time      time.Time `json:"time"`
	Portfolio float64   `json:"portfolio"`
	Baseline  float64   `json:"baseline"`
}

// Result holds the complete backtest output
type Result struct {
	Strategy    string    `json:"strategy"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Bars        int       `json:"bars"`

	FinalReturnRate    float64     `json:"final_return_rate"`
	HitRate            core.Metric `json:"hit_rate"`
	BaselineReturnRate float64     `json:"baseline_return_rate"`

	Quarters                []QuarterSnapshot `json:"quarters"`
	QuartersBeatingBaseline core.Metric       `json:"quarters_beating_baseline"`
	StrategyQuarterlyStdDev core.Metric       `json:"strategy_quarterly_stdev"`
	BaselineQuarterlyStdDev core.Metric       `json:"baseline_quarterly_stdev"`
	SharpeRatio             core.Metric       `json:"sharpe_ratio"`
	MaxDrawdown             core.Metric       `json:"max_drawdown"`

	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	FeesPaid    float64 `json:"fees_paid"`
	TaxesPaid   float64 `json:"taxes_paid"`

	FinalState StateSnapshot  `json:"final_state"`
	Fills      []Fill         `json:"fills,omitempty"`
	Balances   []BalancePoint `json:"balances,omitempty"`
}

// QuarterReturnRates returns the strategy return of every closed quarter
func (r *Result) QuarterReturnRates() []float64 {
	out := make([]float64, len(r.Quarters))
	for i, q := range r.Quarters {
		out[i] = q.StrategyReturnRate
	}
	return out
}

// BaselineReturnRates returns the baseline return of every closed quarter
func (r *Result) BaselineReturnRates() []float64 {
	out := make([]float64, len(r.Quarters))
	for i, q := range r.Quarters {
		out[i] = q.BaselineReturnRate
	}
	return out
}

// ProfitableQuarters counts quarters with a positive strategy return
func (r *Result) ProfitableQuarters() int {
	n := 0
	for _, q := range r.Quarters {
		if q.StrategyReturnRate > 0 {
			n++
		}
	}
	return n
}
