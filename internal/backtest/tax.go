package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/newthinker/tradesim/internal/core"
)

// taxTolerance absorbs float residue left after liquidating units.
const taxTolerance = 1e-9

// taxAccrual settles the prior year's gains whenever a bar opens a new
// calendar year.
type taxAccrual struct {
	enabled   bool
	rate      float64
	year      int
	yearStart float64
}

func newTaxAccrual(enabled bool, rate float64, first time.Time, capital float64) *taxAccrual {
	return &taxAccrual{
		enabled:   enabled,
		rate:      rate,
		year:      first.Year(),
		yearStart: capital,
	}
}

// Settle pays tax on the gain since the last year boundary. The liability
// is taken from cash first, then by liquidating units at their mark value;
// neither is allowed to go negative. It returns the amount paid.
func (t *taxAccrual) Settle(l *ledger, ts time.Time, price float64) (float64, error) {
	if !t.enabled {
		return 0, nil
	}
	year := ts.Year()
	if year == t.year {
		return 0, nil
	}
	t.year = year

	balance := l.Value(price)
	change := balance - t.yearStart

	var paid float64
	if change > 0 {
		due := change * t.rate

		fromCash := math.Min(due, math.Max(l.cash, 0))
		l.cash -= fromCash
		due -= fromCash

		if due > 0 && l.units > 0 {
			perUnit := l.unitValue(price)
			if perUnit > 0 {
				sold := math.Min(due/perUnit, l.units)
				l.units -= sold
				due -= sold * perUnit
				if l.units <= 0 {
					l.units = 0
					l.entry = 0
					l.state = core.PositionFlat
				}
			}
		}

		if due > taxTolerance*math.Max(1, balance) {
			return 0, fmt.Errorf("unpaid tax liability %.2f after exhausting cash and position", due)
		}
		paid = change*t.rate - math.Max(due, 0)
		l.taxesPaid += paid
	}

	t.yearStart = l.Value(price)
	return paid, nil
}
