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

const (
	defaultBatchSize  = 50
	defaultFlushDelay = 500 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/signalperf.db"
}

// Writer is a single-connection SQLite writer for bars and backtest reports.
type Writer struct {
	db *sql.DB

	// OnCommit is called with the duration of every committed transaction.
	OnCommit func(d time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT    NOT NULL,
			tf     INTEGER NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume REAL,
			PRIMARY KEY (symbol, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS backtest_reports (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT    NOT NULL,
			symbol     TEXT    NOT NULL,
			tf         INTEGER NOT NULL,
			rule       TEXT    NOT NULL,
			name       TEXT    NOT NULL,
			params     TEXT    NOT NULL,
			report     TEXT    NOT NULL,
			error      TEXT,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_reports_lookup ON backtest_reports (symbol, tf, rule, id);

		CREATE TABLE IF NOT EXISTS trades (
			report_id   INTEGER NOT NULL REFERENCES backtest_reports(id) ON DELETE CASCADE,
			seq         INTEGER NOT NULL,
			entry_index INTEGER NOT NULL,
			exit_index  INTEGER NOT NULL,
			entry_ts    INTEGER,
			exit_ts     INTEGER,
			entry_price REAL    NOT NULL,
			exit_price  REAL    NOT NULL,
			return_pct  REAL    NOT NULL,
			reason      TEXT    NOT NULL,
			PRIMARY KEY (report_id, seq)
		);
	`)
	return err
}

// WriteBars upserts bars for symbol/tf in a single transaction.
func (w *Writer) WriteBars(symbol string, tf int, bars []model.Bar) error {
	start := time.Now()
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars (symbol, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.Exec(symbol, tf, b.TS.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert bar %s: %w", b.TS.Format(time.RFC3339), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	w.observe(time.Since(start))
	return nil
}

// SaveRun persists one run record and its trades.
func (w *Writer) SaveRun(ctx context.Context, rec *model.RunRecord) error {
	return w.saveBatch(ctx, []*model.RunRecord{rec})
}

// Run reads run records from recCh and persists them in batched transactions.
// Flushes every batchSize records OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or recCh is closed.
func (w *Writer) Run(ctx context.Context, recCh <-chan *model.RunRecord) {
	batch := make([]*model.RunRecord, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		// ctx may already be done; the final flush still has to land.
		if err := w.saveBatch(context.Background(), batch); err != nil {
			log.Printf("[sqlite] report batch: %v", err)
		} else {
			log.Printf("[sqlite] committed %d reports in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case rec, ok := <-recCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// saveBatch inserts run records and their trades in a single transaction.
// A record that cannot be encoded (NaN or Inf in its report) is skipped; the
// rest of the batch is committed and the skipped records come back as errors.
func (w *Writer) saveBatch(ctx context.Context, recs []*model.RunRecord) error {
	start := time.Now()

	var skipped []error
	rows := make([]encodedRun, 0, len(recs))
	for _, rec := range recs {
		row, err := encodeRun(rec)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return errors.Join(skipped...)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	reportStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_reports (run_id, symbol, tf, rule, name, params, report, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer reportStmt.Close()

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (report_id, seq, entry_index, exit_index, entry_ts, exit_ts, entry_price, exit_price, return_pct, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer tradeStmt.Close()

	now := time.Now().Unix()
	for _, row := range rows {
		rec, params, report := row.rec, row.params, row.report
		var errText sql.NullString
		if rec.Err != "" {
			errText = sql.NullString{String: rec.Err, Valid: true}
		}

		res, err := reportStmt.ExecContext(ctx, rec.RunID, rec.Symbol, rec.TF, rec.Rule.String(),
			rec.Rule.Name, string(params), string(report), errText, now)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert report %s: %w", rec.Rule, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			tx.Rollback()
			return err
		}

		for seq, t := range rec.Trades {
			_, err := tradeStmt.ExecContext(ctx, id, seq, t.EntryIndex, t.ExitIndex,
				unixOrNull(t.EntryTime), unixOrNull(t.ExitTime),
				t.EntryPrice, t.ExitPrice, t.ReturnPct, string(t.Reason))
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("insert trade %d of %s: %w", seq, rec.Rule, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	w.observe(time.Since(start))
	return errors.Join(skipped...)
}

type encodedRun struct {
	rec            *model.RunRecord
	params, report []byte
}

func encodeRun(rec *model.RunRecord) (encodedRun, error) {
	params, err := json.Marshal(rec.Rule.Params)
	if err != nil {
		return encodedRun{}, fmt.Errorf("marshal params %s: %w", rec.Rule, err)
	}
	report, err := json.Marshal(rec.Report)
	if err != nil {
		return encodedRun{}, fmt.Errorf("marshal report %s/%ds %s: %w", rec.Symbol, rec.TF, rec.Rule, err)
	}
	return encodedRun{rec: rec, params: params, report: report}, nil
}

// PruneReports keeps the newest keep reports per (symbol, tf, rule).
func (w *Writer) PruneReports(ctx context.Context, keep int) (int64, error) {
	res, err := w.db.ExecContext(ctx, `
		DELETE FROM backtest_reports WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY symbol, tf, rule ORDER BY id DESC) AS rn
				FROM backtest_reports
			) WHERE rn > ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("sqlite prune reports: %w", err)
	}
	n, _ := res.RowsAffected()
	if _, err := w.db.ExecContext(ctx,
		`DELETE FROM trades WHERE report_id NOT IN (SELECT id FROM backtest_reports)`); err != nil {
		log.Printf("[sqlite] prune trades warning: %v", err)
	}
	return n, nil
}

func (w *Writer) observe(d time.Duration) {
	if w.OnCommit != nil {
		w.OnCommit(d)
	}
}

func unixOrNull(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
