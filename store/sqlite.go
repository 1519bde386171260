// Package store persists schedule job definitions and mirrors terminal
// execution records to SQLite. Schedule jobs must survive restarts; the
// execution mirror is best-effort history for operators, the in-memory
// registry remains the registry of record.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/clayforge/trigger/registry"
	"github.com/clayforge/trigger/schedule"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS schedule_jobs (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	recurrence    TEXT NOT NULL,
	workflow_type TEXT NOT NULL,
	template      TEXT NOT NULL DEFAULT '{}',
	status        TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	next_fire_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS executions (
	execution_id     TEXT PRIMARY KEY,
	trigger_event_id TEXT NOT NULL,
	source           TEXT NOT NULL,
	workflow_type    TEXT NOT NULL,
	status           TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	started_at       TEXT,
	finished_at      TEXT,
	result_summary   TEXT NOT NULL DEFAULT '',
	error            TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_executions_created ON executions(created_at);
`

// SQLiteStore is a single-file persistence layer. Use ":memory:" as the
// dsn for tests.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (and migrates) the database at dsn.
func Open(dsn string) (*SQLiteStore, error) {
	if dsn != ":memory:" {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection serializes writes and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// SaveJob implements schedule.Store.
func (s *SQLiteStore) SaveJob(ctx context.Context, job *schedule.Job) error {
	rec, err := json.Marshal(job.Recurrence)
	if err != nil {
		return fmt.Errorf("marshal recurrence: %w", err)
	}
	tmpl, err := json.Marshal(job.ConfigTemplate)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedule_jobs (id, name, recurrence, workflow_type, template, status, created_at, next_fire_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			recurrence = excluded.recurrence,
			workflow_type = excluded.workflow_type,
			template = excluded.template,
			status = excluded.status,
			next_fire_at = excluded.next_fire_at
	`, job.ID, job.Name, string(rec), job.WorkflowType, string(tmpl),
		string(job.Status), job.CreatedAt.UTC().Format(time.RFC3339Nano),
		job.NextFireAt.UTC().Format(time.RFC3339Nano))
	return err
}

// DeleteJob implements schedule.Store.
func (s *SQLiteStore) DeleteJob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM schedule_jobs WHERE id = ?`, id)
	return err
}

// LoadJobs implements schedule.Store.
func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*schedule.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, recurrence, workflow_type, template, status, created_at, next_fire_at
		FROM schedule_jobs
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*schedule.Job
	for rows.Next() {
		var (
			job      schedule.Job
			recJSON  string
			tmplJSON string
			status   string
			created  string
			next     string
		)
		if err := rows.Scan(&job.ID, &job.Name, &recJSON, &job.WorkflowType,
			&tmplJSON, &status, &created, &next); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(recJSON), &job.Recurrence); err != nil {
			return nil, fmt.Errorf("unmarshal recurrence for job %s: %w", job.ID, err)
		}
		if err := json.Unmarshal([]byte(tmplJSON), &job.ConfigTemplate); err != nil {
			return nil, fmt.Errorf("unmarshal template for job %s: %w", job.ID, err)
		}
		job.Status = schedule.JobStatus(status)
		if job.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at for job %s: %w", job.ID, err)
		}
		if job.NextFireAt, err = time.Parse(time.RFC3339Nano, next); err != nil {
			return nil, fmt.Errorf("parse next_fire_at for job %s: %w", job.ID, err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// RecordExecution upserts a terminal execution record into history.
// Wired as the registry mirror; failures are the caller's to log.
func (s *SQLiteStore) RecordExecution(ctx context.Context, rec *registry.Record) error {
	var started, finished any
	if rec.StartedAt != nil {
		started = rec.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if rec.FinishedAt != nil {
		finished = rec.FinishedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (execution_id, trigger_event_id, source, workflow_type, status, created_at, started_at, finished_at, result_summary, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (execution_id) DO UPDATE SET
			status = excluded.status,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			result_summary = excluded.result_summary,
			error = excluded.error
	`, rec.ExecutionID, rec.TriggerEventID, string(rec.Source), rec.WorkflowType,
		string(rec.Status), rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		started, finished, rec.ResultSummary, rec.Error)
	return err
}

// PruneExecutions deletes history rows created before the cutoff and
// returns how many were removed.
func (s *SQLiteStore) PruneExecutions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM executions WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
