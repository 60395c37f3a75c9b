package backtest

import (
	"time"

	"github.com/newthinker/tradesim/internal/core"
)

// quarterBook emits a QuarterSnapshot whenever the quarter ordinal changes
type quarterBook struct {
	current       int
	startBalance  float64
	baselineStart float64
	snapshots     []QuarterSnapshot
}

func newQuarterBook(capital float64) *quarterBook {
	return &quarterBook{
		current:       1,
		startBalance:  capital,
		baselineStart: capital,
	}
}

// Observe closes the running quarter when quarter differs from it. It must
// run before the bar's trading decision so the snapshot reflects the state
// carried into the boundary.
func (q *quarterBook) Observe(l *ledger, ts time.Time, quarter int, price, baselineUnits float64) (QuarterSnapshot, bool) {
	if quarter == q.current {
		return QuarterSnapshot{}, false
	}

	value := l.Value(price)
	baseline := baselineUnits * price

	hitRate := core.NA()
	if closed := l.quarterWins + l.quarterLosses; closed > 0 {
		hitRate = core.Some(float64(l.quarterWins) / float64(closed))
	}

	snap := QuarterSnapshot{
		Quarter:            q.current,
		ClosedAt:           ts,
		StrategyReturnRate: value/q.startBalance - 1,
		BaselineReturnRate: baseline/q.baselineStart - 1,
		TradeCount:         l.quarterTrades,
		HitRate:            hitRate,
	}
	q.snapshots = append(q.snapshots, snap)

	l.resetQuarter()
	q.startBalance = value
	q.baselineStart = baseline
	q.current = quarter

	return snap, true
}

// Snapshots returns the closed quarters in order
func (q *quarterBook) Snapshots() []QuarterSnapshot {
	return q.snapshots
}
