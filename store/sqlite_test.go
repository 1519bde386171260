package store

import (
	"context"
	"testing"
	"time"

	"github.com/clayforge/trigger/registry"
	"github.com/clayforge/trigger/schedule"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestJobRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := &schedule.Job{
		ID:             "job-1",
		Name:           "daily-content",
		Recurrence:     schedule.Recurrence{Kind: schedule.Daily, At: "09:00"},
		WorkflowType:   "viral_content_factory",
		ConfigTemplate: map[string]string{"platforms": "tiktok,linkedin"},
		Status:         schedule.JobActive,
		CreatedAt:      time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		NextFireAt:     time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC),
	}
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	jobs, err := s.LoadJobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("loaded %d jobs", len(jobs))
	}
	got := jobs[0]
	if got.ID != job.ID || got.Name != job.Name || got.WorkflowType != job.WorkflowType {
		t.Errorf("got %+v", got)
	}
	if got.Recurrence != job.Recurrence {
		t.Errorf("recurrence = %+v", got.Recurrence)
	}
	if got.ConfigTemplate["platforms"] != "tiktok,linkedin" {
		t.Errorf("template = %v", got.ConfigTemplate)
	}
	if !got.NextFireAt.Equal(job.NextFireAt) || !got.CreatedAt.Equal(job.CreatedAt) {
		t.Errorf("times = %v / %v", got.CreatedAt, got.NextFireAt)
	}
}

func TestSaveJobUpserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := &schedule.Job{
		ID:         "job-1",
		Name:       "original",
		Recurrence: schedule.Recurrence{Kind: schedule.Hourly},
		Status:     schedule.JobActive,
		CreatedAt:  time.Now(),
		NextFireAt: time.Now().Add(time.Hour),
	}
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	job.Status = schedule.JobPaused
	job.NextFireAt = job.NextFireAt.Add(time.Hour)
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	jobs, err := s.LoadJobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].Status != schedule.JobPaused {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestDeleteJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := &schedule.Job{
		ID:         "job-1",
		Name:       "doomed",
		Recurrence: schedule.Recurrence{Kind: schedule.Hourly},
		Status:     schedule.JobActive,
		CreatedAt:  time.Now(),
		NextFireAt: time.Now().Add(time.Hour),
	}
	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	jobs, err := s.LoadJobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 0 {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestRecordExecutionUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 9, 2, 9, 0, 1, 0, time.UTC)
	finished := started.Add(90 * time.Second)
	rec := &registry.Record{
		ExecutionID:    "exec-1",
		TriggerEventID: "evt-1",
		Source:         "mailbox",
		WorkflowType:   "viral_content_factory",
		Status:         registry.StatusFailed,
		CreatedAt:      started.Add(-time.Second),
		StartedAt:      &started,
		FinishedAt:     &finished,
		Error:          "builder unreachable",
	}
	if err := s.RecordExecution(ctx, rec); err != nil {
		t.Fatal(err)
	}

	// A retry of the mirror with updated state overwrites, never duplicates.
	rec.Status = registry.StatusCompleted
	rec.Error = ""
	rec.ResultSummary = "recovered"
	if err := s.RecordExecution(ctx, rec); err != nil {
		t.Fatal(err)
	}

	var count int
	var status, summary string
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(status), MAX(result_summary) FROM executions WHERE execution_id = ?`,
		rec.ExecutionID).Scan(&count, &status, &summary)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 || status != "completed" || summary != "recovered" {
		t.Errorf("count=%d status=%s summary=%s", count, status, summary)
	}
}

func TestPruneExecutions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := &registry.Record{
		ExecutionID: "exec-old", TriggerEventID: "e1", Source: "clock",
		WorkflowType: "viral_content_factory", Status: registry.StatusCompleted,
		CreatedAt: time.Now().Add(-10 * 24 * time.Hour),
	}
	fresh := &registry.Record{
		ExecutionID: "exec-new", TriggerEventID: "e2", Source: "clock",
		WorkflowType: "viral_content_factory", Status: registry.StatusCompleted,
		CreatedAt: time.Now(),
	}
	if err := s.RecordExecution(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordExecution(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	n, err := s.PruneExecutions(ctx, time.Now().Add(-7*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}

	var remaining string
	if err := s.db.QueryRowContext(ctx, `SELECT execution_id FROM executions`).Scan(&remaining); err != nil {
		t.Fatal(err)
	}
	if remaining != "exec-new" {
		t.Errorf("remaining = %s", remaining)
	}
}
