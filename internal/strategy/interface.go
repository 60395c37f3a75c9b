package strategy

import (
	"fmt"

	"github.com/newthinker/tradesim/internal/core"
)

// Config holds strategy configuration
type Config struct {
	Params map[string]any
}

// DecisionContext is what a Decider sees at one bar.
type DecisionContext struct {
	Bar   int         // index into the full price series
	Price float64     // price at Bar
	Last  core.Action // last executed signal
}

// Decider evaluates a bound price series one bar at a time.
// Implementations must be pure functions of the bound series and ctx.
type Decider interface {
	Decide(ctx DecisionContext) core.Action
}

// Signal defines the interface for trading-signal rules
type Signal interface {
	Name() string
	Description() string
	// Warmup is the number of leading bars excluded from the simulation.
	Warmup() int
	Init(cfg Config) error
	// Bind precomputes indicators over the full price series.
	Bind(prices []float64) (Decider, error)
}

// ParamInt reads an integer parameter, accepting the numeric types viper
// and YAML decoding produce.
func ParamInt(params map[string]any, key string) (int, bool, error) {
	v, ok := params[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case float64:
		if n != float64(int(n)) {
			return 0, true, fmt.Errorf("%s must be an integer, got %v", key, n)
		}
		return int(n), true, nil
	default:
		return 0, true, fmt.Errorf("%s must be a number, got %T", key, v)
	}
}

// ParamFloat reads a float parameter.
func ParamFloat(params map[string]any, key string) (float64, bool, error) {
	v, ok := params[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	default:
		return 0, true, fmt.Errorf("%s must be a number, got %T", key, v)
	}
}
