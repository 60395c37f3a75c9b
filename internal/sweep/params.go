package sweep

import (
	"math/rand/v2"

	"github.com/newthinker/tradesim/internal/strategy/ma_crossover"
	"github.com/newthinker/tradesim/internal/strategy/mean_reversion"
)

// Sampler draws random parameter sets for a strategy
type Sampler struct {
	rng    *rand.Rand
	minLen int
	maxLen int
}

// NewSampler seeds a sampler drawing moving average lengths from
// [minLen, maxLen]
func NewSampler(seed int64, minLen, maxLen int) *Sampler {
	return &Sampler{
		rng:    rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
		minLen: minLen,
		maxLen: maxLen,
	}
}

func (s *Sampler) length() int {
	return s.minLen + s.rng.IntN(s.maxLen-s.minLen+1)
}

// hundredth draws a threshold in [0, 0.99] with two-decimal resolution
func (s *Sampler) hundredth() float64 {
	return float64(s.rng.IntN(100)) / 100
}

// Draw returns one parameter set for the named strategy, or nil when the
// strategy has no sampling rule.
func (s *Sampler) Draw(strategyName string) map[string]any {
	switch strategyName {
	case mean_reversion.Name:
		return map[string]any{
			"stop_loss":     s.hundredth(),
			"buy_threshold": s.hundredth(),
			"take_profit":   s.hundredth(),
			"ma_length":     s.length(),
		}
	case ma_crossover.Name:
		fast := s.length()
		slow := s.length()
		for slow < fast {
			slow = s.length()
		}
		return map[string]any{
			"fast_period": fast,
			"slow_period": slow,
		}
	default:
		return nil
	}
}
