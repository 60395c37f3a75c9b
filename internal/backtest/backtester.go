package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/newthinker/tradesim/internal/core"
	"github.com/newthinker/tradesim/internal/fee"
	"github.com/newthinker/tradesim/internal/strategy"
	"go.uber.org/zap"
)

// Options configures one backtest run
type Options struct {
	StartingCapital float64
	OrderSizing     float64 // fraction of cash committed per order, (0, 1]
	ShortingAllowed bool
	FixedFee        bool
	Fee             float64       // used when FixedFee is set
	FeeSchedule     *fee.Schedule // nil means fee.Default()
	RecordBalance   bool
	AnnualTaxes     bool
	TaxRate         float64
}

// Validate checks option ranges
func (o Options) Validate() error {
	if o.StartingCapital <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("starting_capital must be greater than zero, got %f", o.StartingCapital))
	}
	if o.OrderSizing <= 0 || o.OrderSizing > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("order_sizing must be between 0 (exclusive) and 1, got %f", o.OrderSizing))
	}
	if o.Fee < 0 || o.Fee > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("fee must be between 0 and 1, got %f", o.Fee))
	}
	if o.TaxRate < 0 || o.TaxRate > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("tax_percentage must be between 0 and 1, got %f", o.TaxRate))
	}
	return nil
}

// StateError aborts a run whose account reached an impossible state
type StateError struct {
	Bar    int
	Time   time.Time
	Price  float64
	State  StateSnapshot
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("bar %d (%s, price %.4f): %s [cash=%.4f units=%.8f position=%s last=%s]",
		e.Bar, e.Time.Format(time.RFC3339), e.Price, e.Reason,
		e.State.Cash, e.State.Units, e.State.Position, e.State.LastSignal)
}

// Unwrap lets errors.Is match core.ErrInvariantViolated.
func (e *StateError) Unwrap() error {
	return core.ErrInvariantViolated
}

// Backtester replays a price series bar by bar against one signal
type Backtester struct {
	opts   Options
	fees   fee.Model
	logger *zap.Logger
}

// New creates a new Backtester
func New(opts Options, logger ...*zap.Logger) *Backtester {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Backtester{
		opts: opts,
		fees: fee.Model{
			Fixed:     opts.FixedFee,
			FixedRate: opts.Fee,
			Schedule:  opts.FeeSchedule,
		},
		logger: l,
	}
}

func validateBars(bars []core.PriceBar) error {
	if len(bars) == 0 {
		return core.ErrNoData
	}
	for i, bar := range bars {
		if bar.Time.IsZero() {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("bar %d has no timestamp", i))
		}
		if math.IsNaN(bar.Price) || math.IsInf(bar.Price, 0) {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("bar %d has non-finite price %v", i, bar.Price))
		}
		if bar.Price <= 0 {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("bar %d has no positive price", i))
		}
		if bar.Quarter < 1 {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("bar %d has no quarter ordinal", i))
		}
		if i > 0 && !bar.Time.After(bars[i-1].Time) {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("timestamps must be strictly increasing at bar %d", i))
		}
	}
	return nil
}

// Run executes one full pass over bars. Configuration problems are
// reported before any state is created; a run that reaches an impossible
// account state returns a *StateError.
func (b *Backtester) Run(bars []core.PriceBar, sig strategy.Signal) (*Result, error) {
	if err := b.opts.Validate(); err != nil {
		return nil, err
	}
	if err := validateBars(bars); err != nil {
		return nil, err
	}

	decider, err := sig.Bind(core.Prices(bars))
	if err != nil {
		return nil, err
	}

	warmup := sig.Warmup()
	if warmup < 0 || warmup >= len(bars) {
		return nil, core.WrapError(core.ErrInsufficientData,
			fmt.Errorf("warmup %d leaves no bars out of %d", warmup, len(bars)))
	}
	capital := b.opts.StartingCapital
	baselineUnits := capital / bars[0].Price

	acct := newLedger(capital)
	quarters := newQuarterBook(capital)
	taxes := newTaxAccrual(b.opts.AnnualTaxes, b.opts.TaxRate, bars[warmup].Time, capital)
	var window volumeWindow

	result := &Result{
		Strategy:    sig.Name(),
		Description: sig.Description(),
		StartDate:   bars[warmup].Time,
		EndDate:     bars[len(bars)-1].Time,
		Bars:        len(bars) - warmup,
	}

	fail := func(i int, reason string) error {
		err := &StateError{
			Bar:    i,
			Time:   bars[i].Time,
			Price:  bars[i].Price,
			State:  acct.snapshot(),
			Reason: reason,
		}
		b.logger.Warn("backtest aborted",
			zap.String("strategy", sig.Name()),
			zap.Error(err),
		)
		return err
	}

	for i := warmup; i < len(bars); i++ {
		bar := bars[i]
		price := bar.Price

		if acct.Value(price) <= 0 {
			return nil, fail(i, "portfolio value reached zero")
		}

		feeRate := b.fees.Rate(window.Total())

		paid, err := taxes.Settle(acct, bar.Time, price)
		if err != nil {
			return nil, fail(i, err.Error())
		}
		if paid > 0 {
			b.logger.Info("annual tax settled",
				zap.Int("year", bar.Time.Year()-1),
				zap.Float64("paid", paid),
			)
		}

		if snap, closed := quarters.Observe(acct, bar.Time, bar.Quarter, price, baselineUnits); closed {
			b.logger.Info("quarter closed",
				zap.Int("quarter", snap.Quarter),
				zap.Float64("return", snap.StrategyReturnRate),
				zap.Float64("baseline", snap.BaselineReturnRate),
				zap.Int("trades", snap.TradeCount),
			)
		}

		// the first simulated bar only seeds state
		if i > warmup {
			action := decider.Decide(strategy.DecisionContext{Bar: i, Price: price, Last: acct.last})

			var fills []Fill
			switch action {
			case core.ActionBuy:
				fills = acct.Buy(bar.Time, i, price, feeRate, b.opts.OrderSizing)
			case core.ActionSell:
				fills = acct.Sell(bar.Time, i, price, feeRate, b.opts.OrderSizing, b.opts.ShortingAllowed)
			}

			for _, f := range fills {
				window.Add(f.Notional)
				b.logger.Debug("order filled",
					zap.Time("time", f.Time),
					zap.String("side", string(f.Side)),
					zap.Float64("price", f.Price),
					zap.Float64("units", f.Units),
					zap.Float64("fee", f.Fee),
				)
			}
			result.Fills = append(result.Fills, fills...)
		}

		if b.opts.RecordBalance {
			result.Balances = append(result.Balances, BalancePoint{
				Time:      bar.Time,
				Portfolio: acct.Value(price),
				Baseline:  baselineUnits * price,
			})
		}

		window.Advance()
	}

	last := bars[len(bars)-1].Price
	result.FinalReturnRate = acct.Value(last)/capital - 1
	result.BaselineReturnRate = last/bars[0].Price - 1
	result.Quarters = quarters.Snapshots()
	result.TotalTrades = acct.totalTrades
	result.Wins = acct.totalWins
	result.Losses = acct.totalLosses
	result.FeesPaid = acct.feesPaid
	result.TaxesPaid = acct.taxesPaid
	result.FinalState = acct.snapshot()
	finalize(result)

	b.logger.Debug("backtest complete",
		zap.String("strategy", sig.Name()),
		zap.Float64("return", result.FinalReturnRate),
		zap.Float64("baseline", result.BaselineReturnRate),
		zap.Int("quarters", len(result.Quarters)),
		zap.Int("trades", result.TotalTrades),
	)

	return result, nil
}
