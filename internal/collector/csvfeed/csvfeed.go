// Package csvfeed loads hourly price series from CSV files.
package csvfeed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/tradesim/internal/core"
	"go.uber.org/zap"
)

// DefaultTimeLayout matches "2019-01-01 13:00:00"
const DefaultTimeLayout = "2006-01-02 15:04:05"

// Config holds feed configuration
type Config struct {
	TimeLayout  string // empty means DefaultTimeLayout; RFC3339 is always accepted
	PriceColumn string // empty means "price", falling back to "close"
	Years       []int  // keep only bars in these calendar years; empty keeps all
}

// Feed reads timestamp,price[,quarter] rows into PriceBars
type Feed struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a new CSV feed
func New(cfg Config, logger ...*zap.Logger) *Feed {
	if cfg.TimeLayout == "" {
		cfg.TimeLayout = DefaultTimeLayout
	}
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Feed{cfg: cfg, logger: l}
}

func (f *Feed) Name() string {
	return "csvfeed"
}

// LoadFile opens path and reads it with Load
func (f *Feed) LoadFile(path string) ([]core.PriceBar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, core.WrapError(core.ErrNoData, err)
	}
	defer file.Close()

	bars, err := f.Load(file)
	if err != nil {
		return nil, err
	}
	f.logger.Info("loaded price series",
		zap.String("path", path),
		zap.Int("bars", len(bars)),
	)
	return bars, nil
}

// Load parses a CSV stream with a header row. The timestamp and price
// columns are required. When there is no quarter column the quarters are
// computed with AnnotateQuarters after year filtering.
func (f *Feed) Load(r io.Reader) ([]core.PriceBar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, core.ErrNoData
	}
	if err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, err)
	}

	cols := indexColumns(header)
	tsCol, ok := cols["timestamp"]
	if !ok {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("missing timestamp column"))
	}
	priceCol, ok := f.priceColumn(cols)
	if !ok {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("missing price column"))
	}
	quarterCol, hasQuarter := cols["quarter"]

	var bars []core.PriceBar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("line %d: %w", line, err))
		}

		ts, err := f.parseTime(rec[tsCol])
		if err != nil {
			return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("line %d: %w", line, err))
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(rec[priceCol]), 64)
		if err != nil {
			return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("line %d: invalid price %q", line, rec[priceCol]))
		}
		if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
			return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("line %d: price must be positive and finite, got %q", line, rec[priceCol]))
		}

		bar := core.PriceBar{Time: ts, Price: price}
		if hasQuarter {
			q, err := strconv.Atoi(strings.TrimSpace(rec[quarterCol]))
			if err != nil {
				return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("line %d: invalid quarter %q", line, rec[quarterCol]))
			}
			bar.Quarter = q
		}

		if len(f.cfg.Years) > 0 && !slices.Contains(f.cfg.Years, ts.Year()) {
			continue
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, core.ErrNoData
	}
	if !hasQuarter {
		AnnotateQuarters(bars)
	}
	return bars, nil
}

func (f *Feed) priceColumn(cols map[string]int) (int, bool) {
	if f.cfg.PriceColumn != "" {
		i, ok := cols[strings.ToLower(f.cfg.PriceColumn)]
		return i, ok
	}
	if i, ok := cols["price"]; ok {
		return i, true
	}
	i, ok := cols["close"]
	return i, ok
}

func (f *Feed) parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(f.cfg.TimeLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return cols
}

// AnnotateQuarters numbers each bar's quarter as whole calendar months
// since the first bar divided by three, plus one.
func AnnotateQuarters(bars []core.PriceBar) {
	if len(bars) == 0 {
		return
	}
	start := bars[0].Time
	for _, b := range bars[1:] {
		if b.Time.Before(start) {
			start = b.Time
		}
	}

	for i := range bars {
		t := bars[i].Time
		months := (t.Year()-start.Year())*12 + int(t.Month()) - int(start.Month())
		bars[i].Quarter = months/3 + 1
	}
}
