package fee

import (
	"errors"
	"testing"

	"github.com/newthinker/tradesim/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRate_Tiers(t *testing.T) {
	tests := []struct {
		name   string
		volume float64
		want   float64
	}{
		{"no volume", 0, 0.005},
		{"first threshold inclusive", 10_000, 0.005},
		{"just above first", 10_000.01, 0.00325},
		{"mid table", 10_000_000, 0.0013},
		{"top threshold", 400_000_000, 0.0004},
		{"above every threshold", 1_000_000_000, 0.0004},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rate(tt.volume, false, 0))
		})
	}
}

func TestRate_Fixed(t *testing.T) {
	assert.Equal(t, 0.001, Rate(1_000_000_000, true, 0.001))
	assert.Equal(t, 0.0, Rate(0, true, 0))
}

func TestNewSchedule_SortsTiers(t *testing.T) {
	s, err := NewSchedule([]Tier{
		{Threshold: 1000, Rate: 0.001},
		{Threshold: 100, Rate: 0.01},
	})
	require.NoError(t, err)

	assert.Equal(t, 0.01, s.Rate(50))
	assert.Equal(t, 0.001, s.Rate(500))
	assert.Equal(t, 0.001, s.Rate(5000))
	assert.Equal(t, 100.0, s.Tiers()[0].Threshold)
}

func TestNewSchedule_Invalid(t *testing.T) {
	_, err := NewSchedule(nil)
	assert.True(t, errors.Is(err, core.ErrConfigMissing))

	_, err = NewSchedule([]Tier{{Threshold: 1, Rate: 2}})
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))

	_, err = NewSchedule([]Tier{{Threshold: 1, Rate: 0.1}, {Threshold: 1, Rate: 0.2}})
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestModel_Rate(t *testing.T) {
	fixed := Model{Fixed: true, FixedRate: 0.002}
	assert.Equal(t, 0.002, fixed.Rate(1e12))

	tiered := Model{}
	assert.Equal(t, 0.0015, tiered.Rate(500_000))

	custom, err := NewSchedule([]Tier{{Threshold: 10, Rate: 0.1}})
	require.NoError(t, err)
	assert.Equal(t, 0.1, Model{Schedule: custom}.Rate(1e6))
}
