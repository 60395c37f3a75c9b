package backtest

import (
	"math"

	"github.com/newthinker/tradesim/internal/core"
	"gonum.org/v1/gonum/stat"
)

// quartersPerYear annualizes quarterly statistics
const quartersPerYear = 4

// round2 rounds to two decimals so float noise cannot decide a comparison
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// quartersBeatingBaseline is the fraction of quarters whose rounded return
// strictly beats the rounded baseline, itself rounded to two decimals.
func quartersBeatingBaseline(strategy, baseline []float64) core.Metric {
	if len(strategy) == 0 || len(strategy) != len(baseline) {
		return core.NA()
	}

	count := 0
	for i := range strategy {
		if round2(strategy[i]) > round2(baseline[i]) {
			count++
		}
	}
	return core.Some(round2(float64(count) / float64(len(strategy))))
}

// sampleStdDev is the n-1 standard deviation, undefined below two samples
func sampleStdDev(values []float64) core.Metric {
	if len(values) < 2 {
		return core.NA()
	}
	return core.Some(stat.StdDev(values, nil))
}

// calculateSharpeRatio computes risk-adjusted return from quarterly returns
// Assumes risk-free rate of 0
func calculateSharpeRatio(returns []float64) core.Metric {
	if len(returns) < 2 {
		return core.NA()
	}

	mean, stdDev := stat.MeanStdDev(returns, nil)
	if stdDev == 0 {
		return core.NA()
	}

	annualizedReturn := mean * quartersPerYear
	annualizedStdDev := stdDev * math.Sqrt(quartersPerYear)

	return core.Some(annualizedReturn / annualizedStdDev)
}

// calculateMaxDrawdown finds the largest peak-to-trough decline of the
// recorded portfolio value
func calculateMaxDrawdown(balances []BalancePoint) core.Metric {
	if len(balances) == 0 {
		return core.NA()
	}

	var maxDD float64
	var peak float64

	for _, b := range balances {
		if b.Portfolio > peak {
			peak = b.Portfolio
		}
		if peak > 0 {
			dd := (peak - b.Portfolio) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}

	return core.Some(maxDD)
}

// finalize fills the summary statistics of a result from its quarters
func finalize(r *Result) {
	strategy := r.QuarterReturnRates()
	baseline := r.BaselineReturnRates()

	r.QuartersBeatingBaseline = quartersBeatingBaseline(strategy, baseline)
	r.StrategyQuarterlyStdDev = sampleStdDev(strategy)
	r.BaselineQuarterlyStdDev = sampleStdDev(baseline)
	r.SharpeRatio = calculateSharpeRatio(strategy)
	r.MaxDrawdown = calculateMaxDrawdown(r.Balances)

	if closed := r.Wins + r.Losses; closed > 0 {
		r.HitRate = core.Some(float64(r.Wins) / float64(closed))
	} else {
		r.HitRate = core.NA()
	}
}
