package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/clayforge/trigger/event"
	"github.com/clayforge/trigger/metrics"
	"github.com/google/uuid"
)

// JobStatus is the state of a schedule job.
type JobStatus string

const (
	JobActive JobStatus = "active"
	JobPaused JobStatus = "paused"
)

// ErrJobNotFound is returned when a job ID is unknown.
var ErrJobNotFound = errors.New("schedule job not found")

// DefaultTickInterval is how often active jobs are evaluated. Due jobs
// fire within one interval of their scheduled time.
const DefaultTickInterval = 30 * time.Second

// Job is a recurring trigger definition. ConfigTemplate is merged into
// the synthesized event's fields so scheduled workflows carry their
// parameters.
type Job struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Recurrence     Recurrence        `json:"recurrence"`
	WorkflowType   string            `json:"workflowType"`
	ConfigTemplate map[string]string `json:"configTemplate,omitempty"`
	Status         JobStatus         `json:"status"`
	CreatedAt      time.Time         `json:"createdAt"`
	NextFireAt     time.Time         `json:"nextFireAt"`
	LastFiredAt    *time.Time        `json:"lastFiredAt,omitempty"`
}

func (j *Job) clone() *Job {
	c := *j
	if j.LastFiredAt != nil {
		t := *j.LastFiredAt
		c.LastFiredAt = &t
	}
	if j.ConfigTemplate != nil {
		c.ConfigTemplate = make(map[string]string, len(j.ConfigTemplate))
		for k, v := range j.ConfigTemplate {
			c.ConfigTemplate[k] = v
		}
	}
	return &c
}

// Handler receives synthesized clock events. It must not block on the
// downstream execution; the dispatcher runs executions asynchronously.
type Handler func(ctx context.Context, e *event.TriggerEvent)

// Store persists job definitions across restarts. Implementations may be
// nil-safe no-ops; errors are logged, never fatal to the tick loop.
type Store interface {
	SaveJob(ctx context.Context, job *Job) error
	DeleteJob(ctx context.Context, id string) error
	LoadJobs(ctx context.Context) ([]*Job, error)
}

// Registry owns the job table and the background tick loop. Job mutation
// is serialized against the loop by the registry mutex.
type Registry struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	handler Handler
	store   Store
	logger  *slog.Logger

	tick  time.Duration
	nowFn func() time.Time

	// Sink receives tick measurements. Nil means no-op.
	Sink metrics.Sink

	// Ticked is signalled after every evaluation pass; tests use it to
	// synchronize without sleeping. May be nil.
	Ticked chan struct{}
}

// NewRegistry creates a schedule registry. store and logger may be nil.
func NewRegistry(handler Handler, store Store, tick time.Duration, logger *slog.Logger) *Registry {
	if tick <= 0 || tick > time.Minute {
		tick = DefaultTickInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		jobs:    make(map[string]*Job),
		handler: handler,
		store:   store,
		logger:  logger,
		tick:    tick,
		nowFn:   time.Now,
	}
}

// Load restores persisted jobs. Jobs whose next fire time has passed are
// recomputed from now rather than fired retroactively.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	jobs, err := r.store.LoadJobs(ctx)
	if err != nil {
		return fmt.Errorf("load schedule jobs: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.nowFn()
	for _, job := range jobs {
		if !job.NextFireAt.After(now) {
			if next, err := job.Recurrence.Next(now); err == nil {
				job.NextFireAt = next
			}
		}
		r.jobs[job.ID] = job
	}
	r.logger.Info("schedule jobs loaded", "count", len(jobs))
	return nil
}

// Add registers a new job and computes its first fire time.
func (r *Registry) Add(ctx context.Context, name string, rec Recurrence, workflowType string, template map[string]string) (*Job, error) {
	if name == "" {
		return nil, errors.New("job name is required")
	}
	if workflowType == "" {
		workflowType = event.WorkflowContentFactory
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	now := r.nowFn()
	next, err := rec.Next(now)
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:             uuid.New().String(),
		Name:           name,
		Recurrence:     rec,
		WorkflowType:   workflowType,
		ConfigTemplate: template,
		Status:         JobActive,
		CreatedAt:      now,
		NextFireAt:     next,
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	r.persist(ctx, job)
	return job.clone(), nil
}

// Pause removes a job from evaluation without deleting it.
func (r *Registry) Pause(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, JobPaused)
}

// Resume reactivates a paused job, recomputing the next fire time from
// now so missed slots are not fired retroactively.
func (r *Registry) Resume(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, JobActive)
}

func (r *Registry) setStatus(ctx context.Context, id string, status JobStatus) error {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	job.Status = status
	if status == JobActive {
		if next, err := job.Recurrence.Next(r.nowFn()); err == nil {
			job.NextFireAt = next
		}
	}
	snapshot := job.clone()
	r.mu.Unlock()

	r.persist(ctx, snapshot)
	return nil
}

// Remove deletes a job definition.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.jobs[id]
	delete(r.jobs, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if r.store != nil {
		if err := r.store.DeleteJob(ctx, id); err != nil {
			r.logger.Warn("delete schedule job from store failed", "job_id", id, "error", err)
		}
	}
	return nil
}

// Get returns a job by ID.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job.clone(), nil
}

// List returns all jobs sorted by creation time.
func (r *Registry) List() []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		result = append(result, job.clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Run evaluates active jobs on the tick interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fired := r.Evaluate(ctx)
			if r.Sink != nil {
				r.Sink.SchedulerTick(fired)
			}
			if r.Ticked != nil {
				select {
				case r.Ticked <- struct{}{}:
				default:
				}
			}
		}
	}
}

// Evaluate fires every active job whose next fire time has arrived and
// advances it by exactly one recurrence step per fire. The synthesized
// event's signature covers the scheduled slot, so a loop that wakes
// early or late and re-evaluates the same slot cannot double-fire.
func (r *Registry) Evaluate(ctx context.Context) int {
	now := r.nowFn()

	type firing struct {
		job *Job
		at  time.Time
	}
	var due []firing

	r.mu.Lock()
	for _, job := range r.jobs {
		if job.Status != JobActive || job.NextFireAt.After(now) {
			continue
		}
		scheduled := job.NextFireAt
		fired := now
		job.LastFiredAt = &fired
		if next, err := job.Recurrence.Next(scheduled); err == nil {
			job.NextFireAt = next
		} else {
			// Broken recurrence: park the job instead of spinning.
			job.Status = JobPaused
			r.logger.Error("pausing job with invalid recurrence", "job_id", job.ID, "error", err)
		}
		due = append(due, firing{job: job.clone(), at: scheduled})
	}
	r.mu.Unlock()

	for _, f := range due {
		e := r.synthesize(f.job, f.at)
		r.logger.Info("schedule job fired",
			"job_id", f.job.ID, "job_name", f.job.Name, "scheduled_for", f.at)
		if r.handler != nil {
			r.handler(ctx, e)
		}
		r.persist(ctx, f.job)
	}
	return len(due)
}

// synthesize builds the clock trigger event for one fire.
func (r *Registry) synthesize(job *Job, scheduledFor time.Time) *event.TriggerEvent {
	fields := map[string]string{
		"job_id":        job.ID,
		"job_name":      job.Name,
		"workflow_type": job.WorkflowType,
		"scheduled_for": scheduledFor.UTC().Format(time.RFC3339),
	}
	for k, v := range job.ConfigTemplate {
		fields[k] = v
	}
	return event.New(event.SourceClock, scheduledFor, "", fields)
}

func (r *Registry) persist(ctx context.Context, job *Job) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveJob(ctx, job); err != nil {
		r.logger.Warn("persist schedule job failed", "job_id", job.ID, "error", err)
	}
}
