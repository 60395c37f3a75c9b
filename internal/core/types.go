package core

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// PriceBar is one sampled price observation.
// Quarter is a 1-based ordinal counted from the start of the dataset.
type PriceBar struct {
	Time    time.Time `json:"timestamp"`
	Price   float64   `json:"price"`
	Quarter int       `json:"quarter"`
}

// IsValid checks if the bar has required fields
func (b PriceBar) IsValid() bool {
	return !b.Time.IsZero() && b.Price > 0
}

// Prices extracts the price column from a series of bars
func Prices(bars []PriceBar) []float64 {
	prices := make([]float64, len(bars))
	for i, b := range bars {
		prices[i] = b.Price
	}
	return prices
}

// Action represents a trading signal action
type Action string

const (
	ActionNone      Action = "none"
	ActionBuy       Action = "buy"
	ActionSell      Action = "sell"
	ActionShortSell Action = "short_sell"
	ActionHold      Action = "hold"
)

// PositionState describes what the simulated account holds.
type PositionState string

const (
	PositionFlat  PositionState = "flat"
	PositionLong  PositionState = "long"
	PositionShort PositionState = "short"
)

// NotApplicable is how an undefined Metric is rendered.
const NotApplicable = "N/A"

// Metric is a statistic that may be undefined, e.g. a hit rate for a
// quarter without closed trades.
type Metric struct {
	Value float64
	Valid bool
}

// Some wraps a defined value.
func Some(v float64) Metric {
	return Metric{Value: v, Valid: true}
}

// NA returns an undefined metric.
func NA() Metric {
	return Metric{}
}

func (m Metric) String() string {
	if !m.Valid {
		return NotApplicable
	}
	return strconv.FormatFloat(m.Value, 'f', 4, 64)
}

// MarshalJSON writes the value as a number, or "N/A" when undefined.
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return json.Marshal(NotApplicable)
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON accepts a number or the "N/A" sentinel.
func (m *Metric) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`"`+NotApplicable+`"`)) {
		*m = NA()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Some(v)
	return nil
}
