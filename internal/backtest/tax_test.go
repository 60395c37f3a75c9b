package backtest

import (
	"testing"
	"time"

	"github.com/newthinker/tradesim/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaxAccrual_PaysFromCash(t *testing.T) {
	start := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	tax := newTaxAccrual(true, 0.25, start, 10000)
	l := newLedger(10000)
	l.cash = 12000

	paid, err := tax.Settle(l, start.AddDate(0, 1, 0), 100)
	require.NoError(t, err)
	assert.Zero(t, paid, "same year must not settle")

	paid, err = tax.Settle(l, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), 100)
	require.NoError(t, err)
	assert.Equal(t, 500.0, paid)
	assert.Equal(t, 11500.0, l.cash)
	assert.Equal(t, 500.0, l.taxesPaid)
	assert.Equal(t, 11500.0, tax.yearStart)
}

func TestTaxAccrual_LiquidatesUnits(t *testing.T) {
	start := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	tax := newTaxAccrual(true, 0.25, start, 10000)
	l := newLedger(12000)
	l.Buy(start, 1, 100, 0, 1) // 120 units, no cash

	paid, err := tax.Settle(l, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), 100)
	require.NoError(t, err)
	assert.Equal(t, 500.0, paid)
	assert.Equal(t, 115.0, l.units)
	assert.Zero(t, l.cash)
	assert.Equal(t, 11500.0, l.Value(100))
}

func TestTaxAccrual_NoTaxOnLoss(t *testing.T) {
	start := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	tax := newTaxAccrual(true, 0.25, start, 10000)
	l := newLedger(8000)

	paid, err := tax.Settle(l, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), 100)
	require.NoError(t, err)
	assert.Zero(t, paid)
	assert.Equal(t, 8000.0, l.cash)
	assert.Equal(t, 8000.0, tax.yearStart)
}

func TestTaxAccrual_Disabled(t *testing.T) {
	start := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	tax := newTaxAccrual(false, 0.25, start, 10000)
	l := newLedger(20000)

	paid, err := tax.Settle(l, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), 100)
	require.NoError(t, err)
	assert.Zero(t, paid)
	assert.Equal(t, 20000.0, l.cash)
}

func TestTaxAccrual_LiquidatesShortUnits(t *testing.T) {
	start := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	tax := newTaxAccrual(true, 0.5, start, 10000)
	l := newLedger(10000)
	l.Sell(start, 1, 100, 0, 1, true) // short 100 units at 100, no cash left
	require.Equal(t, core.PositionShort, l.state)

	// short gained 20 per unit: value 12000, tax 1000 paid at 120 per unit
	paid, err := tax.Settle(l, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), 80)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, paid, 1e-9)
	assert.InDelta(t, 100-1000.0/120, l.units, 1e-9)
	assert.Zero(t, l.cash)
	assert.Equal(t, core.PositionShort, l.state)
	assert.Equal(t, 100.0, l.entry)
	assert.InDelta(t, 11000.0, l.Value(80), 1e-9)
	assert.InDelta(t, 11000.0, tax.yearStart, 1e-9)
}
