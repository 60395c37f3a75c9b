// Package builtin registers the strategies shipped with tradesim.
package builtin

import (
	"github.com/newthinker/tradesim/internal/strategy"
	"github.com/newthinker/tradesim/internal/strategy/ma_crossover"
	"github.com/newthinker/tradesim/internal/strategy/mean_reversion"
)

// Registry returns a registry holding every built-in signal.
func Registry() *strategy.Registry {
	reg := strategy.NewRegistry()
	reg.Register(mean_reversion.Name, func() strategy.Signal {
		return mean_reversion.New(0, 0, 0, 0)
	})
	reg.Register(ma_crossover.Name, func() strategy.Signal {
		return ma_crossover.New(0, 0)
	})
	return reg
}
