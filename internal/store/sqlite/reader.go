package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"signalperf/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to bars and stored reports.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// ReadSeries loads bars for symbol/tf strictly after afterTS, ordered by
// timestamp. A zero afterTS reads everything.
func (r *Reader) ReadSeries(symbol string, tf int, point float64, afterTS time.Time) (*model.PriceSeries, error) {
	after := int64(-1 << 62)
	if !afterTS.IsZero() {
		after = afterTS.Unix()
	}
	rows, err := r.db.Query(`
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND tf = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, tf, after)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsUnix int64
		var vol sql.NullFloat64
		if err := rows.Scan(&tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &vol); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.Unix(tsUnix, 0).UTC()
		b.Volume = vol.Float64
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return model.NewPriceSeries(symbol, tf, point, bars)
}

// Symbols lists the symbols that have bars at tf.
func (r *Reader) Symbols(tf int) ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol FROM bars WHERE tf = ? ORDER BY symbol`, tf)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestReport loads the most recent report for symbol/tf/rule with its
// trades. Returns nil, nil when none is stored.
func (r *Reader) LatestReport(ctx context.Context, symbol string, tf int, rule string) (*model.RunRecord, error) {
	var (
		id             int64
		rec            model.RunRecord
		params, report string
		errText        sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, run_id, symbol, tf, name, params, report, error
		FROM backtest_reports
		WHERE symbol = ? AND tf = ? AND rule = ?
		ORDER BY id DESC
		LIMIT 1
	`, symbol, tf, rule).Scan(&id, &rec.RunID, &rec.Symbol, &rec.TF, &rec.Rule.Name, &params, &report, &errText)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read report: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &rec.Rule.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	if err := json.Unmarshal([]byte(report), &rec.Report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	rec.Err = errText.String

	rec.Trades, err = r.readTrades(ctx, id)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Reader) readTrades(ctx context.Context, reportID int64) ([]model.Trade, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entry_index, exit_index, entry_ts, exit_ts, entry_price, exit_price, return_pct, reason
		FROM trades
		WHERE report_id = ?
		ORDER BY seq ASC
	`, reportID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var entryTS, exitTS sql.NullInt64
		var reason string
		if err := rows.Scan(&t.EntryIndex, &t.ExitIndex, &entryTS, &exitTS,
			&t.EntryPrice, &t.ExitPrice, &t.ReturnPct, &reason); err != nil {
			return nil, fmt.Errorf("sqlite scan trades: %w", err)
		}
		if entryTS.Valid {
			t.EntryTime = time.Unix(entryTS.Int64, 0).UTC()
		}
		if exitTS.Valid {
			t.ExitTime = time.Unix(exitTS.Int64, 0).UTC()
		}
		t.Reason = model.ExitReason(reason)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
