package ma_crossover

import (
	"fmt"

	"github.com/newthinker/tradesim/internal/core"
	"github.com/newthinker/tradesim/internal/indicator"
	"github.com/newthinker/tradesim/internal/strategy"
)

// Name is the registry key of this strategy.
const Name = "ma_crossover"

// Relation describes which average is on top at a bar.
type Relation int

const (
	RelationEqual Relation = iota
	RelationFastAbove
	RelationSlowAbove
)

// MACrossover implements a moving average crossover strategy
type MACrossover struct {
	fastPeriod int
	slowPeriod int
}

// New creates a new MA Crossover strategy
func New(fastPeriod, slowPeriod int) *MACrossover {
	return &MACrossover{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
	}
}

func (m *MACrossover) Name() string {
	return Name
}

func (m *MACrossover) Description() string {
	return fmt.Sprintf("MA Crossover (%d/%d)", m.fastPeriod, m.slowPeriod)
}

// Warmup is the slow period: both averages are truncated to it.
func (m *MACrossover) Warmup() int {
	return m.slowPeriod
}

func (m *MACrossover) Init(cfg strategy.Config) error {
	if fast, ok, err := strategy.ParamInt(cfg.Params, "fast_period"); err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	} else if ok {
		m.fastPeriod = fast
	}
	if slow, ok, err := strategy.ParamInt(cfg.Params, "slow_period"); err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	} else if ok {
		m.slowPeriod = slow
	}
	return m.validate()
}

func (m *MACrossover) validate() error {
	if m.fastPeriod <= 0 || m.slowPeriod <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("moving average lengths must be positive, got %d/%d", m.fastPeriod, m.slowPeriod))
	}
	if m.fastPeriod > m.slowPeriod {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("fast_period %d is larger than slow_period %d", m.fastPeriod, m.slowPeriod))
	}
	return nil
}

func (m *MACrossover) Bind(prices []float64) (strategy.Decider, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	if len(prices) <= m.slowPeriod {
		return nil, core.WrapError(core.ErrInsufficientData,
			fmt.Errorf("need more than %d bars, got %d", m.slowPeriod, len(prices)))
	}

	return &decider{
		fast: indicator.TrailingSMA(prices, m.fastPeriod),
		slow: indicator.TrailingSMA(prices, m.slowPeriod),
	}, nil
}

type decider struct {
	fast []float64
	slow []float64
}

// RelationAt compares the two averages at bar i.
func (d *decider) RelationAt(i int) Relation {
	switch {
	case d.fast[i] > d.slow[i]:
		return RelationFastAbove
	case d.fast[i] < d.slow[i]:
		return RelationSlowAbove
	default:
		return RelationEqual
	}
}

// Decide buys on an upward cross and sells on a downward cross. A bar where
// the averages are equal breaks the cross: equal -> above is not a cross.
func (d *decider) Decide(ctx strategy.DecisionContext) core.Action {
	if ctx.Bar < 1 {
		return core.ActionHold
	}

	prev := d.RelationAt(ctx.Bar - 1)
	curr := d.RelationAt(ctx.Bar)

	switch {
	case prev == RelationSlowAbove && curr == RelationFastAbove:
		return core.ActionBuy
	case prev == RelationFastAbove && curr == RelationSlowAbove:
		return core.ActionSell
	default:
		return core.ActionHold
	}
}
