package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/tradesim/internal/core"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists run summaries and their quarters to SQLite.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
	now    func() time.Time
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger ...*zap.Logger) (*SQLiteRecorder, error) {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("open sqlite: %w", err))
	}

	// WAL lets sweep workers write while reports read
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("set WAL mode: %w", err))
	}

	r := &SQLiteRecorder{db: db, logger: l, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("migrate: %w", err))
	}

	l.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id                        TEXT PRIMARY KEY,
			sweep_id                  TEXT,
			recorded_at               INTEGER NOT NULL,
			strategy                  TEXT NOT NULL,
			params                    TEXT,
			start_date                INTEGER,
			end_date                  INTEGER,
			bars                      INTEGER,
			final_return_rate         REAL,
			baseline_return_rate      REAL,
			hit_rate                  REAL,
			quarters_beating_baseline REAL,
			strategy_quarterly_stdev  REAL,
			baseline_quarterly_stdev  REAL,
			sharpe_ratio              REAL,
			max_drawdown              REAL,
			total_trades              INTEGER,
			wins                      INTEGER,
			losses                    INTEGER,
			fees_paid                 REAL,
			taxes_paid                REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_sweep ON backtest_runs(sweep_id)`,

		`CREATE TABLE IF NOT EXISTS quarter_snapshots (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id               TEXT NOT NULL REFERENCES backtest_runs(id),
			quarter              INTEGER NOT NULL,
			closed_at            INTEGER,
			strategy_return_rate REAL,
			baseline_return_rate REAL,
			trade_count          INTEGER,
			hit_rate             REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quarters_run ON quarter_snapshots(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// nullable maps an N/A metric to SQL NULL
func nullable(m core.Metric) sql.NullFloat64 {
	return sql.NullFloat64{Float64: m.Value, Valid: m.Valid}
}

func (r *SQLiteRecorder) Record(ctx context.Context, run Run) error {
	if run.Result == nil || run.ID == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("run needs an id and a result"))
	}

	params, err := json.Marshal(run.Params)
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}
	defer tx.Rollback()

	res := run.Result
	_, err = tx.ExecContext(ctx, `INSERT INTO backtest_runs
		(id, sweep_id, recorded_at, strategy, params, start_date, end_date, bars,
		 final_return_rate, baseline_return_rate, hit_rate, quarters_beating_baseline,
		 strategy_quarterly_stdev, baseline_quarterly_stdev, sharpe_ratio, max_drawdown,
		 total_trades, wins, losses, fees_paid, taxes_paid)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.SweepID, r.now().Unix(), res.Strategy, string(params),
		res.StartDate.Unix(), res.EndDate.Unix(), res.Bars,
		res.FinalReturnRate, res.BaselineReturnRate,
		nullable(res.HitRate), nullable(res.QuartersBeatingBaseline),
		nullable(res.StrategyQuarterlyStdDev), nullable(res.BaselineQuarterlyStdDev),
		nullable(res.SharpeRatio), nullable(res.MaxDrawdown),
		res.TotalTrades, res.Wins, res.Losses, res.FeesPaid, res.TaxesPaid,
	)
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}

	for _, q := range res.Quarters {
		_, err := tx.ExecContext(ctx, `INSERT INTO quarter_snapshots
			(run_id, quarter, closed_at, strategy_return_rate, baseline_return_rate, trade_count, hit_rate)
			VALUES (?,?,?,?,?,?,?)`,
			run.ID, q.Quarter, q.ClosedAt.Unix(), q.StrategyReturnRate, q.BaselineReturnRate,
			q.TradeCount, nullable(q.HitRate),
		)
		if err != nil {
			return core.WrapError(core.ErrStorageFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}
	return nil
}

// Top returns up to limit runs of a sweep ordered by final return, best first.
// An empty sweepID ranks every recorded run.
func (r *SQLiteRecorder) Top(ctx context.Context, sweepID string, limit int) ([]Row, error) {
	query := `SELECT r.id, COALESCE(r.sweep_id, ''), r.strategy, r.params, r.recorded_at,
			r.final_return_rate, r.baseline_return_rate, r.hit_rate, r.quarters_beating_baseline,
			r.total_trades, (SELECT COUNT(*) FROM quarter_snapshots q WHERE q.run_id = r.id)
		FROM backtest_runs r`
	args := []any{}
	if sweepID != "" {
		query += ` WHERE r.sweep_id = ?`
		args = append(args, sweepID)
	}
	query += ` ORDER BY r.final_return_rate DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			row        Row
			params     string
			recordedAt int64
			hitRate    sql.NullFloat64
			beating    sql.NullFloat64
		)
		if err := rows.Scan(&row.ID, &row.SweepID, &row.Strategy, &params, &recordedAt,
			&row.FinalReturnRate, &row.BaselineReturnRate, &hitRate, &beating,
			&row.TotalTrades, &row.Quarters); err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, err)
		}
		if err := json.Unmarshal([]byte(params), &row.Params); err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, err)
		}
		row.RecordedAt = time.Unix(recordedAt, 0).UTC()
		if hitRate.Valid {
			row.HitRate = &hitRate.Float64
		}
		if beating.Valid {
			row.QuartersBeatingBaseline = &beating.Float64
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	return out, nil
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}
