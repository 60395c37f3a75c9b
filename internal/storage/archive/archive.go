package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/tradesim/internal/backtest"
	"github.com/newthinker/tradesim/internal/core"
	"go.uber.org/zap"
)

const runsPrefix = "runs"

// Record is one archived backtest
type Record struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Source    string           `json:"source,omitempty"` // price data the run replayed
	Params    map[string]any   `json:"params"`
	Result    *backtest.Result `json:"result"`
}

// Archive stores Records as JSON under runs/<yyyy-mm-dd>/<id>.json
type Archive struct {
	store  Storage
	logger *zap.Logger
	now    func() time.Time
}

// New wraps a Storage backend
func New(store Storage, logger ...*zap.Logger) *Archive {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Archive{store: store, logger: l, now: time.Now}
}

// Save assigns an ID and timestamp when missing and writes the record. It
// returns the storage path.
func (a *Archive) Save(ctx context.Context, rec *Record) (string, error) {
	if rec.Result == nil {
		return "", core.WrapError(core.ErrConfigMissing, fmt.Errorf("record has no result"))
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = a.now().UTC()
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", core.WrapError(core.ErrStorageFailed, err)
	}

	p := recordPath(rec.CreatedAt, rec.ID)
	if err := a.store.Write(ctx, p, data); err != nil {
		return "", err
	}

	a.logger.Info("archived backtest",
		zap.String("id", rec.ID),
		zap.String("path", p),
		zap.String("strategy", rec.Result.Strategy),
	)
	return p, nil
}

// Load reads the record stored at p
func (a *Archive) Load(ctx context.Context, p string) (*Record, error) {
	data, err := a.store.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("decoding %s: %w", p, err))
	}
	return &rec, nil
}

// List returns record paths, optionally limited to one UTC day
func (a *Archive) List(ctx context.Context, day time.Time) ([]string, error) {
	prefix := runsPrefix
	if !day.IsZero() {
		prefix = path.Join(runsPrefix, day.UTC().Format("2006-01-02"))
	}
	paths, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	out := paths[:0]
	for _, p := range paths {
		if strings.HasSuffix(p, ".json") {
			out = append(out, p)
		}
	}
	return out, nil
}

// Delete removes the record stored at p
func (a *Archive) Delete(ctx context.Context, p string) error {
	ok, err := a.store.Exists(ctx, p)
	if err != nil {
		return err
	}
	if !ok {
		return core.WrapError(core.ErrNotFound, fmt.Errorf("%s", p))
	}
	return a.store.Delete(ctx, p)
}

func recordPath(createdAt time.Time, id string) string {
	return path.Join(runsPrefix, createdAt.UTC().Format("2006-01-02"), id+".json")
}
