package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ SweepStore = (*SQLiteStore)(nil)

// SQLiteStore implements SweepStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sweeps (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy    TEXT    NOT NULL,
	metric      TEXT    NOT NULL,
	method      TEXT    NOT NULL,
	started_at  TEXT    NOT NULL,
	elapsed_ms  INTEGER NOT NULL,
	evaluations INTEGER NOT NULL,
	failures    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sweep_results (
	sweep_id INTEGER NOT NULL REFERENCES sweeps(id) ON DELETE CASCADE,
	rank     INTEGER NOT NULL,
	params   TEXT    NOT NULL,
	score    REAL    NOT NULL,
	error    TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (sweep_id, rank)
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSweep stores the sweep header and all results in one transaction.
func (s *SQLiteStore) SaveSweep(ctx context.Context, rec SweepRecord, results []SweepResultRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sweeps (strategy, metric, method, started_at, elapsed_ms, evaluations, failures)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Strategy, rec.Metric, rec.Method,
		rec.StartedAt.UTC().Format(time.RFC3339),
		rec.Elapsed.Milliseconds(), rec.Evaluations, rec.Failures)
	if err != nil {
		return 0, fmt.Errorf("inserting sweep: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sweep_results (sweep_id, rank, params, score, error) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, id, r.Rank, r.Params, r.Score, r.Error); err != nil {
			return 0, fmt.Errorf("inserting result rank %d: %w", r.Rank, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// ListSweeps returns the most recent sweeps, newest first.
func (s *SQLiteStore) ListSweeps(ctx context.Context, limit int) ([]SweepRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, strategy, metric, method, started_at, elapsed_ms, evaluations, failures
		 FROM sweeps ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SweepRecord
	for rows.Next() {
		var rec SweepRecord
		var startedAt string
		var elapsedMS int64
		if err := rows.Scan(&rec.ID, &rec.Strategy, &rec.Metric, &rec.Method,
			&startedAt, &elapsedMS, &rec.Evaluations, &rec.Failures); err != nil {
			return nil, err
		}
		rec.StartedAt, err = time.Parse(time.RFC3339, startedAt)
		if err != nil {
			return nil, fmt.Errorf("sweep %d: bad started_at %q: %w", rec.ID, startedAt, err)
		}
		rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetResults returns the ranked results of a sweep, best first.
func (s *SQLiteStore) GetResults(ctx context.Context, sweepID int64) ([]SweepResultRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rank, params, score, error FROM sweep_results WHERE sweep_id = ? ORDER BY rank`, sweepID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SweepResultRecord
	for rows.Next() {
		var r SweepResultRecord
		if err := rows.Scan(&r.Rank, &r.Params, &r.Score, &r.Error); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
