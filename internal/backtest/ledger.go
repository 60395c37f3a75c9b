package backtest

import (
	"time"

	"github.com/newthinker/tradesim/internal/core"
)

// StateSnapshot is a read-only copy of the account at one bar
type StateSnapshot struct {
	Cash       float64            `json:"cash"`
	Units      float64            `json:"units"`
	EntryPrice float64            `json:"entry_price"`
	Position   core.PositionState `json:"position"`
	LastSignal core.Action        `json:"last_signal"`
}

// ledger is the mutable account of one run: cash, position and the
// trade counters of the current quarter.
type ledger struct {
	cash  float64
	units float64
	entry float64 // entry price of the open position, unit-weighted for longs
	state core.PositionState
	last  core.Action

	quarterTrades int
	quarterWins   int
	quarterLosses int

	totalTrades int
	totalWins   int
	totalLosses int
	feesPaid    float64
	taxesPaid   float64
}

func newLedger(capital float64) *ledger {
	return &ledger{
		cash:  capital,
		state: core.PositionFlat,
		last:  core.ActionNone,
	}
}

// unitValue is what one held unit is worth at price. A short unit is
// collateral committed at entry plus the short's profit.
func (l *ledger) unitValue(price float64) float64 {
	switch l.state {
	case core.PositionLong:
		return price
	case core.PositionShort:
		return 2*l.entry - price
	default:
		return 0
	}
}

// Value marks the account to market
func (l *ledger) Value(price float64) float64 {
	if l.state == core.PositionShort {
		delta := l.entry*l.units - price*l.units
		return l.entry*l.units + delta + l.cash
	}
	return l.cash + l.units*price
}

func (l *ledger) snapshot() StateSnapshot {
	return StateSnapshot{
		Cash:       l.cash,
		Units:      l.units,
		EntryPrice: l.entry,
		Position:   l.state,
		LastSignal: l.last,
	}
}

func (l *ledger) classify(win bool) {
	if win {
		l.quarterWins++
		l.totalWins++
	} else {
		l.quarterLosses++
		l.totalLosses++
	}
}

func (l *ledger) countTrade() {
	l.quarterTrades++
	l.totalTrades++
}

// resetQuarter zeroes the counters scoped to one quarter
func (l *ledger) resetQuarter() {
	l.quarterTrades = 0
	l.quarterWins = 0
	l.quarterLosses = 0
}

// coverShort closes an open short into cash.
func (l *ledger) coverShort(t time.Time, bar int, price, feeRate float64) Fill {
	gross := l.units * l.unitValue(price)
	fee := gross * feeRate
	l.cash += gross * (1 - feeRate)
	l.feesPaid += fee
	l.classify(price < l.entry)

	fill := Fill{Time: t, Bar: bar, Side: SideCover, Price: price, Units: l.units, Notional: gross, Fee: fee}
	l.units = 0
	l.entry = 0
	l.state = core.PositionFlat
	return fill
}

// closeLong liquidates an open long into cash. The win/loss reference is
// the entry of the position being closed.
func (l *ledger) closeLong(t time.Time, bar int, price, feeRate float64) Fill {
	gross := l.units * price
	fee := gross * feeRate
	l.cash += gross * (1 - feeRate)
	l.feesPaid += fee
	l.classify(price > l.entry)

	fill := Fill{Time: t, Bar: bar, Side: SideSell, Price: price, Units: l.units, Notional: gross, Fee: fee}
	l.units = 0
	l.entry = 0
	l.state = core.PositionFlat
	return fill
}

// Buy closes any open short, then spends sizing of the remaining cash on
// a long position.
func (l *ledger) Buy(t time.Time, bar int, price, feeRate, sizing float64) []Fill {
	var fills []Fill

	if l.state == core.PositionShort {
		fills = append(fills, l.coverShort(t, bar, price, feeRate))
	}

	spend := sizing * l.cash
	if spend > 0 {
		bought := spend * (1 - feeRate) / price
		fee := spend * feeRate

		if l.state == core.PositionLong && l.units+bought > 0 {
			l.entry = (l.units*l.entry + bought*price) / (l.units + bought)
		} else {
			l.entry = price
		}
		l.units += bought
		l.cash -= spend
		l.feesPaid += fee
		l.state = core.PositionLong

		fills = append(fills, Fill{Time: t, Bar: bar, Side: SideBuy, Price: price, Units: bought, Notional: spend, Fee: fee})
	}

	l.last = core.ActionBuy
	if len(fills) > 0 {
		l.countTrade()
	}
	return fills
}

// Sell liquidates an open long. With shorting allowed it then commits
// sizing of cash to a short at the same price.
func (l *ledger) Sell(t time.Time, bar int, price, feeRate, sizing float64, shorting bool) []Fill {
	if l.state == core.PositionShort {
		// already short, nothing to do
		return nil
	}

	var fills []Fill

	if l.state == core.PositionLong {
		fills = append(fills, l.closeLong(t, bar, price, feeRate))
	}

	l.last = core.ActionSell
	if shorting {
		commit := sizing * l.cash
		if commit > 0 {
			shorted := commit * (1 - feeRate) / price
			fee := commit * feeRate

			l.units = shorted
			l.cash -= commit
			l.entry = price
			l.feesPaid += fee
			l.state = core.PositionShort

			fills = append(fills, Fill{Time: t, Bar: bar, Side: SideShort, Price: price, Units: shorted, Notional: commit, Fee: fee})
			l.last = core.ActionShortSell
		}
	}

	if len(fills) > 0 {
		l.countTrade()
	}
	return fills
}
