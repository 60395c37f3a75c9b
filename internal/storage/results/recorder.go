// Package results records backtest summaries in a queryable database.
package results

import (
	"context"
	"time"

	"github.com/newthinker/tradesim/internal/backtest"
)

// Run is one backtest to record
type Run struct {
	ID      string
	SweepID string // empty for a standalone backtest
	Params  map[string]any
	Result  *backtest.Result
}

// Row is a recorded run summary
type Row struct {
	ID                      string
	SweepID                 string
	Strategy                string
	Params                  map[string]any
	RecordedAt              time.Time
	FinalReturnRate         float64
	BaselineReturnRate      float64
	HitRate                 *float64 // nil when N/A
	QuartersBeatingBaseline *float64
	TotalTrades             int
	Quarters                int
}

// Recorder persists run summaries
type Recorder interface {
	Record(ctx context.Context, run Run) error
	Close() error
}

// NopRecorder discards everything
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Run) error { return nil }
func (NopRecorder) Close() error                      { return nil }
