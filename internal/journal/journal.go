// Package journal keeps a local SQLite history of migrate runs and the
// outcome of every item they processed.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lockplane/ownershift/internal/orchestrator"
	"github.com/lockplane/ownershift/internal/planner"
)

// ErrRunNotFound is returned when a run id has no journal entry.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	plan_path   TEXT NOT NULL,
	environment TEXT NOT NULL,
	dry_run     INTEGER NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	output_path TEXT,
	pending     INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	error       TEXT
);
CREATE TABLE IF NOT EXISTS item_results (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	artifact_id TEXT NOT NULL,
	status      TEXT NOT NULL,
	stage       TEXT NOT NULL,
	reason      TEXT,
	elapsed_ms  INTEGER NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_item_results_run ON item_results(run_id);
`

var pragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

// Run is one journaled migrate run.
type Run struct {
	ID          string
	PlanPath    string
	Environment string
	DryRun      bool
	StartedAt   time.Time
	FinishedAt  time.Time
	OutputPath  string
	Pending     int
	Succeeded   int
	Failed      int
	Skipped     int
	// Error is set when the run aborted.
	Error string
}

// ItemResult is the recorded outcome of one item.
type ItemResult struct {
	ArtifactID string
	Status     planner.Status
	Stage      planner.Stage
	Reason     string
	Elapsed    time.Duration
	RecordedAt time.Time
}

// Journal is a run history stored in SQLite.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the journal at path. ":memory:" gives a
// private in-memory journal.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}
	if err := addErrorColumn(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db, now: time.Now}, nil
}

// addErrorColumn upgrades journals created before runs recorded abort errors.
func addErrorColumn(db *sql.DB) error {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('runs') WHERE name = 'error'`).Scan(&n); err != nil {
		return fmt.Errorf("failed to inspect journal schema: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec(`ALTER TABLE runs ADD COLUMN error TEXT`); err != nil {
		return fmt.Errorf("failed to upgrade journal schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RunStarted inserts the run row.
func (j *Journal) RunStarted(ctx context.Context, s orchestrator.RunSummary) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, plan_path, environment, dry_run, started_at, pending) VALUES (?, ?, ?, ?, ?, ?)`,
		s.RunID, s.PlanFilePath, s.Environment, s.DryRun, formatTime(s.StartedAt), s.Pending)
	if err != nil {
		return fmt.Errorf("journal run %s: %w", s.RunID, err)
	}
	return nil
}

// ItemFinished appends an item result.
func (j *Journal) ItemFinished(ctx context.Context, runID string, item planner.Item, elapsed time.Duration) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO item_results (run_id, artifact_id, status, stage, reason, elapsed_ms, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, item.ArtifactID, string(item.Status), string(item.Stage), item.Reason, elapsed.Milliseconds(), formatTime(j.now()))
	if err != nil {
		return fmt.Errorf("journal item %s: %w", item.ArtifactID, err)
	}
	return nil
}

// RunFinished stores the final counts and, for an aborted run, its error.
func (j *Journal) RunFinished(ctx context.Context, s orchestrator.RunSummary) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, output_path = ?, succeeded = ?, failed = ?, skipped = ?, error = NULLIF(?, '') WHERE id = ?`,
		formatTime(s.FinishedAt), s.OutputPath, s.Succeeded, s.Failed, s.Skipped, s.Error, s.RunID)
	if err != nil {
		return fmt.Errorf("journal run %s: %w", s.RunID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("journal run %s: %w", s.RunID, ErrRunNotFound)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, plan_path, environment, dry_run, started_at, COALESCE(finished_at, ''), COALESCE(output_path, ''),
		        pending, succeeded, failed, skipped, COALESCE(error, '')
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.PlanPath, &r.Environment, &r.DryRun, &started, &finished, &r.OutputPath,
			&r.Pending, &r.Succeeded, &r.Failed, &r.Skipped, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Items returns the item results of a run in the order they were recorded.
func (j *Journal) Items(ctx context.Context, runID string) ([]ItemResult, error) {
	var exists int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT artifact_id, status, stage, COALESCE(reason, ''), elapsed_ms, recorded_at
		 FROM item_results WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []ItemResult
	for rows.Next() {
		var (
			it       ItemResult
			status   string
			stage    string
			elapsed  int64
			recorded string
		)
		if err := rows.Scan(&it.ArtifactID, &status, &stage, &it.Reason, &elapsed, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		it.Status = planner.Status(status)
		it.Stage = planner.Stage(stage)
		it.Elapsed = time.Duration(elapsed) * time.Millisecond
		it.RecordedAt = parseTime(recorded)
		items = append(items, it)
	}
	return items, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
