package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the pipeline from concrete storage (SQLite, Redis).

// BarReader loads price series for backtesting.
type BarReader interface {
	// ReadSeries loads bars for symbol/tf with timestamps after afterTS.
	ReadSeries(symbol string, tf int, point float64, afterTS time.Time) (*PriceSeries, error)

	// Close releases underlying resources.
	Close() error
}

// BarWriter stores bars (used by the CSV importer).
type BarWriter interface {
	WriteBars(symbol string, tf int, bars []Bar) error
	Close() error
}

// ReportWriter persists finished run records.
type ReportWriter interface {
	SaveRun(ctx context.Context, rec *RunRecord) error
}

// ReportCache keeps the latest report per run key for fast lookup.
type ReportCache interface {
	Put(ctx context.Context, rec *RunRecord) error
	Get(ctx context.Context, key string) (Report, error)
}

// ReportPublisher pushes finished run records to live subscribers.
type ReportPublisher interface {
	Publish(rec *RunRecord)
}
