// Package archive persists completed runs to a SQLite database so past
// tests can be queried without re-parsing their CSV logs.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/relabs-tech/rate_table/internal/poslog"
)

const sqliteDriverName = "sqlite"

const schemaRuns = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at TIMESTAMP NOT NULL,
    amplitude_deg REAL NOT NULL,
    frequency_hz REAL NOT NULL,
    duration_s REAL NOT NULL,
    cycle_count INTEGER NOT NULL,
    sample_rate_hz REAL NOT NULL,
    samples INTEGER NOT NULL,
    substituted INTEGER NOT NULL
);
`

const schemaSamples = `
CREATE TABLE IF NOT EXISTS samples (
    run_id INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL,
    t_rel_sec REAL NOT NULL,
    position_deg REAL NOT NULL,
    PRIMARY KEY (run_id, seq),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`

// Run is the metadata row stored alongside a run's samples.
type Run struct {
	StartedAt    time.Time
	AmplitudeDeg float64
	FrequencyHz  float64
	DurationSec  float64
	CycleCount   int
	SampleRateHz float64
	Samples      int
	Substituted  int
}

// Store wraps the archive database.
type Store struct {
	db *sql.DB
}

// Open opens/creates the archive file and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open archive at %q: %w", path, err)
	}

	// Single writer; SQLite does not like more.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{schemaRuns, schemaSamples} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}

// SaveRun inserts the run row and all its records in one transaction and
// returns the new run id.
func (s *Store) SaveRun(ctx context.Context, run Run, records []poslog.Record) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin run transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (started_at, amplitude_deg, frequency_hz, duration_s,
			cycle_count, sample_rate_hz, samples, substituted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.StartedAt.UTC().Format("2006-01-02 15:04:05"),
		run.AmplitudeDeg,
		run.FrequencyHz,
		run.DurationSec,
		run.CycleCount,
		run.SampleRateHz,
		run.Samples,
		run.Substituted,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (run_id, seq, recorded_at, t_rel_sec, position_deg)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for seq, r := range records {
		if _, err := stmt.ExecContext(ctx, runID, seq,
			r.Timestamp.UTC().Format("2006-01-02 15:04:05.000"),
			r.Relative, r.Position); err != nil {
			return 0, fmt.Errorf("insert sample %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit run transaction: %w", err)
	}
	return runID, nil
}

// LoadRun reads back a run row.
func (s *Store) LoadRun(ctx context.Context, runID int64) (Run, error) {
	var run Run
	var startedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT started_at, amplitude_deg, frequency_hz, duration_s,
			cycle_count, sample_rate_hz, samples, substituted
		FROM runs WHERE id = ?
	`, runID).Scan(&startedAt, &run.AmplitudeDeg, &run.FrequencyHz,
		&run.DurationSec, &run.CycleCount, &run.SampleRateHz,
		&run.Samples, &run.Substituted)
	if err != nil {
		return Run{}, fmt.Errorf("load run %d: %w", runID, err)
	}

	run.StartedAt, err = time.ParseInLocation("2006-01-02 15:04:05", startedAt, time.UTC)
	if err != nil {
		return Run{}, fmt.Errorf("parse run %d start time: %w", runID, err)
	}
	return run, nil
}

// SampleCount returns how many records a run holds.
func (s *Store) SampleCount(ctx context.Context, runID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM samples WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count samples for run %d: %w", runID, err)
	}
	return n, nil
}

// LoadPositions returns a run's positions in emission order.
func (s *Store) LoadPositions(ctx context.Context, runID int64) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position_deg FROM samples WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query samples for run %d: %w", runID, err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
