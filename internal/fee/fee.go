// Package fee maps trailing trade volume to a per-trade fee rate.
package fee

import (
	"fmt"
	"sort"

	"github.com/newthinker/tradesim/internal/core"
)

// Tier is one row of a volume-based fee table: trades whose trailing
// 30-day volume is at most Threshold pay Rate.
type Tier struct {
	Threshold float64 `mapstructure:"threshold"`
	Rate      float64 `mapstructure:"rate"`
}

// Schedule is an ordered tier table.
type Schedule struct {
	tiers []Tier
}

// DefaultTiers is the averaged maker/taker exchange table.
func DefaultTiers() []Tier {
	return []Tier{
		{Threshold: 10_000, Rate: 0.005},
		{Threshold: 50_000, Rate: 0.00325},
		{Threshold: 100_000, Rate: 0.002},
		{Threshold: 1_000_000, Rate: 0.0015},
		{Threshold: 15_000_000, Rate: 0.0013},
		{Threshold: 75_000_000, Rate: 0.0011},
		{Threshold: 250_000_000, Rate: 0.00075},
		{Threshold: 400_000_000, Rate: 0.0004},
	}
}

var defaultSchedule = Schedule{tiers: DefaultTiers()}

// Default returns the schedule built from DefaultTiers.
func Default() *Schedule {
	s := defaultSchedule
	return &s
}

// NewSchedule validates and sorts tiers by threshold.
func NewSchedule(tiers []Tier) (*Schedule, error) {
	if len(tiers) == 0 {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("fee schedule needs at least one tier"))
	}

	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })

	for i, t := range sorted {
		if t.Rate < 0 || t.Rate > 1 {
			return nil, core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("fee rate must be between 0 and 1, got %f", t.Rate))
		}
		if i > 0 && t.Threshold == sorted[i-1].Threshold {
			return nil, core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("duplicate fee tier threshold %f", t.Threshold))
		}
	}

	return &Schedule{tiers: sorted}, nil
}

// Rate returns the rate of the smallest tier whose threshold is >= volume.
// Volume above every threshold pays the rate of the largest tier.
func (s *Schedule) Rate(volume float64) float64 {
	for _, t := range s.tiers {
		if volume <= t.Threshold {
			return t.Rate
		}
	}
	return s.tiers[len(s.tiers)-1].Rate
}

// Tiers returns a copy of the table.
func (s *Schedule) Tiers() []Tier {
	out := make([]Tier, len(s.tiers))
	copy(out, s.tiers)
	return out
}

// Rate is the package-level fee lookup against the default table.
func Rate(trailingVolume float64, fixed bool, fixedRate float64) float64 {
	if fixed {
		return fixedRate
	}
	return defaultSchedule.Rate(trailingVolume)
}

// Model resolves the fee rate for a trade, either fixed or tiered.
type Model struct {
	Fixed     bool
	FixedRate float64
	Schedule  *Schedule
}

// Rate returns the fee for the given trailing volume.
func (m Model) Rate(trailingVolume float64) float64 {
	if m.Fixed {
		return m.FixedRate
	}
	if m.Schedule == nil {
		return defaultSchedule.Rate(trailingVolume)
	}
	return m.Schedule.Rate(trailingVolume)
}
