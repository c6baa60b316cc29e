package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"mediaflow/internal/engine"
)

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  pipeline TEXT NOT NULL,
  completed INTEGER NOT NULL DEFAULT 0,
  started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  finished_at DATETIME
);
CREATE TABLE IF NOT EXISTS attempts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT NOT NULL,
  job TEXT NOT NULL,
  proxy TEXT NOT NULL,
  outcome TEXT NOT NULL,
  duration_ms INTEGER NOT NULL DEFAULT 0,
  error TEXT,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(run_id) REFERENCES runs(id)
);
CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id, created_at);
`
	_, err := db.Exec(schema)
	return err
}

type Run struct {
	ID         string     `json:"id"`
	Pipeline   string     `json:"pipeline"`
	Completed  bool       `json:"completed"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type Attempt struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Job       string    `json:"job"`
	Proxy     string    `json:"proxy"`
	Outcome   string    `json:"outcome"`
	Duration  int64     `json:"duration_ms"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary aggregates the attempts of one run by outcome.
type Summary struct {
	RunID       string `json:"run_id"`
	Attempts    int    `json:"attempts"`
	Successes   int    `json:"successes"`
	Connection  int    `json:"connection_errors"`
	Generic     int    `json:"generic_errors"`
	JobsTouched int    `json:"jobs_touched"`
}

type Repository interface {
	BeginRun(ctx context.Context, pipeline string) (string, error)
	FinishRun(ctx context.Context, id string, completed bool) error
	Recorder(runID string) engine.Recorder
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	RunAttempts(ctx context.Context, runID string, limit int) ([]Attempt, error)
	RunSummary(ctx context.Context, runID string) (Summary, error)
}

type sqliteRepo struct{ db *sql.DB }

func NewSQLiteRepo(db *sql.DB) Repository { return &sqliteRepo{db: db} }

func (r *sqliteRepo) BeginRun(ctx context.Context, pipeline string) (string, error) {
	id := "run_" + uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO runs (id, pipeline, completed, started_at) VALUES (?,?,0,CURRENT_TIMESTAMP)`, id, pipeline)
	return id, err
}

func (r *sqliteRepo) FinishRun(ctx context.Context, id string, completed bool) error {
	done := 0
	if completed {
		done = 1
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE runs SET completed=?, finished_at=CURRENT_TIMESTAMP WHERE id=?`, done, id)
	return err
}

// Recorder returns an engine.Recorder bound to one run.
func (r *sqliteRepo) Recorder(runID string) engine.Recorder {
	return runRecorder{repo: r, runID: runID}
}

type runRecorder struct {
	repo  *sqliteRepo
	runID string
}

func (rr runRecorder) RecordAttempt(ctx context.Context, a engine.AttemptRecord) error {
	_, err := rr.repo.db.ExecContext(ctx, `
INSERT INTO attempts (run_id, job, proxy, outcome, duration_ms, error)
VALUES (?,?,?,?,?,?)`,
		rr.runID, a.Job, a.Proxy, a.Outcome.String(), a.Duration.Milliseconds(), a.Error)
	return err
}

func (r *sqliteRepo) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, pipeline, completed, started_at, finished_at
FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var completed int
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.Pipeline, &completed, &run.StartedAt, &finished); err != nil {
			return nil, err
		}
		run.Completed = completed != 0
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *sqliteRepo) RunAttempts(ctx context.Context, runID string, limit int) ([]Attempt, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, run_id, job, proxy, outcome, duration_ms, error, created_at
FROM attempts WHERE run_id=? ORDER BY created_at DESC, id DESC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var errStr sql.NullString
		if err := rows.Scan(&a.ID, &a.RunID, &a.Job, &a.Proxy, &a.Outcome, &a.Duration, &errStr, &a.CreatedAt); err != nil {
			return nil, err
		}
		if errStr.Valid {
			a.Error = errStr.String
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (r *sqliteRepo) RunSummary(ctx context.Context, runID string) (Summary, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(SUM(outcome='success'),0),
       COALESCE(SUM(outcome='connection_error'),0),
       COALESCE(SUM(outcome='generic_error'),0),
       COUNT(DISTINCT job)
FROM attempts WHERE run_id=?`, runID)
	s := Summary{RunID: runID}
	if err := row.Scan(&s.Attempts, &s.Successes, &s.Connection, &s.Generic, &s.JobsTouched); err != nil {
		return Summary{}, err
	}
	return s, nil
}
