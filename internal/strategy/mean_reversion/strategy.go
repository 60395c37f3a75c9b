package mean_reversion

import (
	"fmt"

	"github.com/newthinker/tradesim/internal/core"
	"github.com/newthinker/tradesim/internal/indicator"
	"github.com/newthinker/tradesim/internal/strategy"
)

// Name is the registry key of this strategy.
const Name = "mean_reversion"

// MeanReversion buys when price dips below its moving average and exits on
// a take-profit or stop-loss band around the same average.
type MeanReversion struct {
	period       int
	buyThreshold float64
	takeProfit   float64
	stopLoss     float64
}

// New creates a mean reversion strategy
func New(period int, buyThreshold, takeProfit, stopLoss float64) *MeanReversion {
	return &MeanReversion{
		period:       period,
		buyThreshold: buyThreshold,
		takeProfit:   takeProfit,
		stopLoss:     stopLoss,
	}
}

func (m *MeanReversion) Name() string {
	return Name
}

func (m *MeanReversion) Description() string {
	return fmt.Sprintf("Mean Reversion (MA%d, buy -%.0f%%, tp +%.0f%%, sl -%.0f%%)",
		m.period, m.buyThreshold*100, m.takeProfit*100, m.stopLoss*100)
}

func (m *MeanReversion) Warmup() int {
	return m.period
}

func (m *MeanReversion) Init(cfg strategy.Config) error {
	if p, ok, err := strategy.ParamInt(cfg.Params, "ma_length"); err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	} else if ok {
		m.period = p
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"buy_threshold", &m.buyThreshold},
		{"take_profit", &m.takeProfit},
		{"stop_loss", &m.stopLoss},
	}
	for _, f := range floats {
		v, ok, err := strategy.ParamFloat(cfg.Params, f.key)
		if err != nil {
			return core.WrapError(core.ErrConfigInvalid, err)
		}
		if ok {
			*f.dst = v
		}
	}

	return m.validate()
}

func (m *MeanReversion) validate() error {
	if m.period <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("ma_length must be positive, got %d", m.period))
	}
	for name, v := range map[string]float64{
		"buy_threshold": m.buyThreshold,
		"take_profit":   m.takeProfit,
		"stop_loss":     m.stopLoss,
	} {
		if v < 0 || v > 1 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("%s must be between 0 and 1, got %f", name, v))
		}
	}
	return nil
}

func (m *MeanReversion) Bind(prices []float64) (strategy.Decider, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	if len(prices) <= m.period {
		return nil, core.WrapError(core.ErrInsufficientData,
			fmt.Errorf("need more than %d bars, got %d", m.period, len(prices)))
	}

	return &decider{
		ma:           indicator.TrailingSMA(prices, m.period),
		buyThreshold: m.buyThreshold,
		takeProfit:   m.takeProfit,
		stopLoss:     m.stopLoss,
	}, nil
}

type decider struct {
	ma           []float64
	buyThreshold float64
	takeProfit   float64
	stopLoss     float64
}

func (d *decider) Decide(ctx strategy.DecisionContext) core.Action {
	ma := d.ma[ctx.Bar]

	if ctx.Last != core.ActionBuy && ctx.Price <= ma*(1-d.buyThreshold) {
		return core.ActionBuy
	}
	if ctx.Last == core.ActionBuy &&
		(ctx.Price >= ma*(1+d.takeProfit) || ctx.Price <= ma*(1-d.stopLoss)) {
		return core.ActionSell
	}
	return core.ActionHold
}
