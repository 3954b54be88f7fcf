package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"podscribe/internal/transcribe"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; existing ledger databases must then be deleted.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Run is one pipeline invocation with its aggregated episode outcomes.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Finished   bool
	Error      string
	Episodes   int
	Documents  int
	Failures   int
}

// EpisodeOutcome is one episode's recorded result within a run.
type EpisodeOutcome struct {
	RunID      string
	PodcastID  string
	EpisodeID  string
	Title      string
	State      string
	Document   bool
	Reason     string
	RecordedAt time.Time
}

// Ledger records pipeline runs and per-episode outcomes in SQLite so an
// operator can inspect what recent runs did.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database under dataDir.
func Open(dataDir string) (*Ledger, error) {
	dbPath := filepath.Join(dataDir, "ledger.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	ledger := &Ledger{db: db, path: dbPath}
	if err := ledger.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return ledger, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Path returns the ledger database location.
func (l *Ledger) Path() string {
	return l.path
}

func (l *Ledger) initSchema(ctx context.Context) error {
	var tableExists int
	err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	if err := l.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, l.path)
	}
	return nil
}

// BeginRun records the start of a pipeline run.
func (l *Ledger) BeginRun(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO runs (id, started_at) VALUES (?, ?)",
		runID, startedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// FinishRun records the end of a run, with an error message when the run
// aborted.
func (l *Ledger) FinishRun(ctx context.Context, runID string, finishedAt time.Time, runErr string) error {
	_, err := l.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, error = ? WHERE id = ?",
		finishedAt.UTC().Format(time.RFC3339Nano), runErr, runID)
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	return nil
}

// RecordOutcomes stores the per-episode outcomes of one podcast's run
// summary.
func (l *Ledger) RecordOutcomes(ctx context.Context, runID string, summary *transcribe.Summary) error {
	if summary == nil || len(summary.Outcomes) == 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outcomes tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, outcome := range summary.Outcomes {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO episode_outcomes
 (run_id, podcast_id, episode_id, title, state, document, reason, recorded_at)
 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, summary.PodcastID, outcome.EpisodeID, outcome.Title,
			string(outcome.State), boolToInt(outcome.Document), outcome.Reason, now)
		if err != nil {
			return fmt.Errorf("record outcome for %s: %w", outcome.EpisodeID, err)
		}
	}
	return tx.Commit()
}

// RecentRuns returns the most recent runs, newest first, with episode and
// document counts aggregated.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT r.id, r.started_at, COALESCE(r.finished_at, ''), r.error,
        COUNT(o.id),
        COALESCE(SUM(o.document), 0),
        COALESCE(SUM(CASE WHEN o.state = 'failed' THEN 1 ELSE 0 END), 0)
   FROM runs r
   LEFT JOIN episode_outcomes o ON o.run_id = r.id
  GROUP BY r.id
  ORDER BY r.started_at DESC
  LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started, finished string
		if err := rows.Scan(&run.ID, &started, &finished, &run.Error,
			&run.Episodes, &run.Documents, &run.Failures); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse run start time: %w", err)
		}
		if finished != "" {
			if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
				return nil, fmt.Errorf("parse run finish time: %w", err)
			}
			run.Finished = true
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunOutcomes returns every recorded episode outcome for a run.
func (l *Ledger) RunOutcomes(ctx context.Context, runID string) ([]EpisodeOutcome, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, podcast_id, episode_id, title, state, document, reason, recorded_at
   FROM episode_outcomes
  WHERE run_id = ?
  ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []EpisodeOutcome
	for rows.Next() {
		var outcome EpisodeOutcome
		var document int
		var recorded string
		if err := rows.Scan(&outcome.RunID, &outcome.PodcastID, &outcome.EpisodeID,
			&outcome.Title, &outcome.State, &document, &outcome.Reason, &recorded); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		outcome.Document = document != 0
		if outcome.RecordedAt, err = time.Parse(time.RFC3339Nano, recorded); err != nil {
			return nil, fmt.Errorf("parse outcome time: %w", err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
