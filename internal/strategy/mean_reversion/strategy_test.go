package mean_reversion

import (
	"errors"
	"testing"

	"github.com/newthinker/tradesim/internal/core"
	"github.com/newthinker/tradesim/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanReversion_ImplementsSignal(t *testing.T) {
	var _ strategy.Signal = (*MeanReversion)(nil)
}

func TestMeanReversion_Decide(t *testing.T) {
	prices := []float64{100, 95, 90, 85, 80, 100, 120, 140, 160, 180}
	s := New(3, 0.05, 0.10, 0.20)

	d, err := s.Bind(prices)
	require.NoError(t, err)

	tests := []struct {
		name string
		bar  int
		last core.Action
		want core.Action
	}{
		// ma(4) = 85, 80 <= 80.75
		{"dip below band buys", 4, core.ActionNone, core.ActionBuy},
		{"no second buy while long", 4, core.ActionBuy, core.ActionHold},
		// ma(5) = 88.33, 100 >= 97.17
		{"take profit sells", 5, core.ActionBuy, core.ActionSell},
		{"sell needs open buy", 5, core.ActionNone, core.ActionHold},
		// ma(6) = 100, 120 is inside the band for a fresh entry
		{"inside band holds", 6, core.ActionSell, core.ActionHold},
		{"buy allowed after short sell", 4, core.ActionShortSell, core.ActionBuy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Decide(strategy.DecisionContext{Bar: tt.bar, Price: prices[tt.bar], Last: tt.last})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMeanReversion_StopLoss(t *testing.T) {
	prices := []float64{100, 100, 100, 70}
	s := New(3, 0.05, 0.50, 0.10)

	d, err := s.Bind(prices)
	require.NoError(t, err)

	// ma(3) = 90, 70 <= 81
	got := d.Decide(strategy.DecisionContext{Bar: 3, Price: 70, Last: core.ActionBuy})
	assert.Equal(t, core.ActionSell, got)
}

func TestMeanReversion_Init(t *testing.T) {
	s := New(0, 0, 0, 0)
	err := s.Init(strategy.Config{Params: map[string]any{
		"ma_length":     24,
		"buy_threshold": 0.05,
		"take_profit":   0.1,
		"stop_loss":     0.2,
	}})
	require.NoError(t, err)
	assert.Equal(t, 24, s.Warmup())
	assert.Contains(t, s.Description(), "MA24")
}

func TestMeanReversion_InitInvalid(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
	}{
		{"zero length", map[string]any{"ma_length": 0}},
		{"threshold above one", map[string]any{"ma_length": 3, "buy_threshold": 1.5}},
		{"negative stop loss", map[string]any{"ma_length": 3, "stop_loss": -0.1}},
		{"non numeric", map[string]any{"ma_length": "ten"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(0, 0, 0, 0).Init(strategy.Config{Params: tt.params})
			assert.True(t, errors.Is(err, core.ErrConfigInvalid), "got %v", err)
		})
	}
}

func TestMeanReversion_NotEnoughData(t *testing.T) {
	_, err := New(5, 0.05, 0.1, 0.1).Bind([]float64{1, 2, 3, 4, 5})
	assert.True(t, errors.Is(err, core.ErrInsufficientData))
}
