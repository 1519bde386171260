// Package registry tracks the lifecycle of dispatched workflow
// executions. The registry is the single owner of record mutation: the
// executor never writes here, the dispatcher performs transitions from
// the result it returns.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/clayforge/trigger/event"
	"github.com/google/uuid"
)

// Status is the lifecycle state of one execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether a status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrNotFound is returned when no record exists for an execution ID.
	ErrNotFound = errors.New("execution not found")
	// ErrIllegalTransition is returned for transitions outside the legal
	// set. It indicates a programmer error in the caller.
	ErrIllegalTransition = errors.New("illegal status transition")
)

// DefaultRetention bounds how long terminal records are kept.
const DefaultRetention = 7 * 24 * time.Hour

// Record is the tracked state of one dispatched workflow run.
type Record struct {
	ExecutionID    string           `json:"executionId"`
	TriggerEventID string           `json:"triggerEventId"`
	Source         event.SourceKind `json:"source"`
	WorkflowType   string           `json:"workflowType"`
	Status         Status           `json:"status"`
	CreatedAt      time.Time        `json:"createdAt"`
	StartedAt      *time.Time       `json:"startedAt,omitempty"`
	FinishedAt     *time.Time       `json:"finishedAt,omitempty"`
	ResultSummary  string           `json:"resultSummary,omitempty"`
	Error          string           `json:"error,omitempty"`
}

func (r *Record) clone() *Record {
	c := *r
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Filter selects records for List. Zero values match everything.
type Filter struct {
	Status Status
	Source event.SourceKind
	Since  time.Time
	Limit  int
}

// Mirror receives a copy of every record that reaches a terminal state.
// The engine wires this to the persistence layer; calls are best-effort.
type Mirror func(rec *Record)

// Registry is a mutex-protected in-memory execution record store.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
	mirror  Mirror
	nowFn   func() time.Time
}

// New creates an empty registry. mirror may be nil.
func New(mirror Mirror) *Registry {
	return &Registry{
		records: make(map[string]*Record),
		mirror:  mirror,
		nowFn:   time.Now,
	}
}

// Create registers a new Pending record for an event and returns the
// generated execution ID.
func (r *Registry) Create(e *event.TriggerEvent, workflowType string) *Record {
	rec := &Record{
		ExecutionID:    uuid.New().String(),
		TriggerEventID: e.ID,
		Source:         e.Source,
		WorkflowType:   workflowType,
		Status:         StatusPending,
		CreatedAt:      r.nowFn(),
	}
	r.mu.Lock()
	r.records[rec.ExecutionID] = rec
	r.mu.Unlock()
	return rec.clone()
}

// legal transitions: Pending→Executing, Executing→Completed,
// Executing→Failed. Everything else is rejected.
func legal(from, to Status) bool {
	switch {
	case from == StatusPending && to == StatusExecuting:
		return true
	case from == StatusExecuting && (to == StatusCompleted || to == StatusFailed):
		return true
	}
	return false
}

// Transition moves a record to a new status. detail populates the result
// summary on Completed and the error message on Failed.
func (r *Registry) Transition(executionID string, to Status, detail string) error {
	r.mu.Lock()
	rec, ok := r.records[executionID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, executionID)
	}
	if !legal(rec.Status, to) {
		from := rec.Status
		r.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	now := r.nowFn()
	rec.Status = to
	switch to {
	case StatusExecuting:
		rec.StartedAt = &now
	case StatusCompleted:
		rec.FinishedAt = &now
		rec.ResultSummary = detail
	case StatusFailed:
		rec.FinishedAt = &now
		rec.Error = detail
	}

	var mirrored *Record
	if to.Terminal() && r.mirror != nil {
		mirrored = rec.clone()
	}
	r.mu.Unlock()

	if mirrored != nil {
		r.mirror(mirrored)
	}
	return nil
}

// Get returns a copy of the record for an execution ID.
func (r *Registry) Get(executionID string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, executionID)
	}
	return rec.clone(), nil
}

// List returns matching records, newest first.
func (r *Registry) List(f Filter) []*Record {
	r.mu.RLock()
	result := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if f.Source != "" && rec.Source != f.Source {
			continue
		}
		if !f.Since.IsZero() && rec.CreatedAt.Before(f.Since) {
			continue
		}
		result = append(result, rec.clone())
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result
}

// EvictBefore removes terminal records finished before the cutoff and
// returns how many were evicted. Pending and Executing records are never
// evicted.
func (r *Registry) EvictBefore(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, rec := range r.records {
		if rec.Status.Terminal() && rec.FinishedAt != nil && rec.FinishedAt.Before(cutoff) {
			delete(r.records, id)
			n++
		}
	}
	return n
}
