// Package store persists bar history and sweep results: Parquet files for
// bar data, SQLite for optimization runs.
package store

import (
	"context"
	"time"

	"quantflow/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end].
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols with stored bars.
	ListSymbols(ctx context.Context) ([]string, error)
}

// SweepRecord describes one completed parameter sweep.
type SweepRecord struct {
	ID          int64
	Strategy    string
	Metric      string
	Method      string
	StartedAt   time.Time
	Elapsed     time.Duration
	Evaluations int
	Failures    int
}

// SweepResultRecord is one evaluated candidate within a sweep. Error is empty
// for successful evaluations.
type SweepResultRecord struct {
	Rank   int
	Params string // canonical parameter key
	Score  float64
	Error  string
}

// SweepStore persists parameter sweeps and their ranked results.
type SweepStore interface {
	// SaveSweep stores a sweep and its results atomically, returning the
	// assigned sweep ID.
	SaveSweep(ctx context.Context, rec SweepRecord, results []SweepResultRecord) (int64, error)

	// ListSweeps returns the most recent sweeps, newest first, up to limit.
	ListSweeps(ctx context.Context, limit int) ([]SweepRecord, error)

	// GetResults returns the ranked results of a sweep.
	GetResults(ctx context.Context, sweepID int64) ([]SweepResultRecord, error)
}
