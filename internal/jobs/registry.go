package jobs

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrNotFound           = errors.New("job not found")
	ErrDuplicate          = errors.New("job already exists")
	ErrTerminal           = errors.New("job is in a terminal state")
	ErrProgressRegression = errors.New("progress may not decrease")
	ErrStageRegression    = errors.New("stage may not move backwards")
	ErrInvalidProgress    = errors.New("progress must be between 0 and 100")
	ErrInvalidStage       = errors.New("invalid stage for update")
)

// Observer receives a snapshot after every successful mutation. Observers run
// on the writer's goroutine while the job's write lock is held, so they see a
// job's snapshots in order and must not block or call back into the registry
// for the same job.
type Observer func(Job)

// Option customizes a Registry.
type Option func(*Registry)

// WithObserver registers an observer.
func WithObserver(fn Observer) Option {
	return func(r *Registry) {
		if fn != nil {
			r.observers = append(r.observers, fn)
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

type entry struct {
	write sync.Mutex
	snap  atomic.Pointer[Job]
}

// Registry holds the authoritative in-memory state of every submitted job.
//
// Writes to one job are serialized by that job's own lock; readers load the
// latest published snapshot without taking it, so polling never waits on a
// running job. The map lock only guards membership. State is not persisted:
// a restart forgets every job.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	observers []Observer
	now       func() time.Time
}

// New constructs an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new pending job.
func (r *Registry) Create(id, source string) (Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Job{}, errors.New("create job: empty id")
	}
	now := r.now().UTC()
	job := &Job{
		ID:        id,
		Source:    source,
		Status:    StatusPending,
		Stage:     StageStarting,
		Message:   "Queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	e := &entry{}
	e.snap.Store(job)

	r.mu.Lock()
	if _, exists := r.entries[id]; exists {
		r.mu.Unlock()
		return Job{}, fmt.Errorf("create job %s: %w", id, ErrDuplicate)
	}
	r.entries[id] = e
	r.mu.Unlock()

	e.write.Lock()
	r.notify(*job)
	e.write.Unlock()
	return job.clone(), nil
}

// Get returns a snapshot of the job.
func (r *Registry) Get(id string) (Job, error) {
	e := r.lookup(id)
	if e == nil {
		return Job{}, ErrNotFound
	}
	return e.snap.Load().clone(), nil
}

// List returns snapshots of all jobs ordered by creation time.
func (r *Registry) List() []Job {
	r.mu.RLock()
	out := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.snap.Load().clone())
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Counts returns the number of jobs per status.
func (r *Registry) Counts() map[Status]int {
	counts := map[Status]int{}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		counts[e.snap.Load().Status]++
	}
	return counts
}

// Update atomically sets the stage, progress, and message of a running job.
// A pending job becomes running. An empty stage keeps the current one.
// Updating an unknown id is a no-op.
func (r *Registry) Update(id string, stage Stage, progress int, message string) error {
	if stage == StageCompleted || stage == StageError || (stage != "" && stage.Rank() < 0) {
		return fmt.Errorf("update job %s to %q: %w", id, stage, ErrInvalidStage)
	}
	if progress < 0 || progress > 100 {
		return fmt.Errorf("update job %s: %w", id, ErrInvalidProgress)
	}
	return r.mutate(id, func(job *Job) error {
		if job.Status.Terminal() {
			return ErrTerminal
		}
		if progress < job.Progress {
			return fmt.Errorf("%w: %d < %d", ErrProgressRegression, progress, job.Progress)
		}
		if stage != "" {
			if stage.Rank() < job.Stage.Rank() {
				return fmt.Errorf("%w: %s after %s", ErrStageRegression, stage, job.Stage)
			}
			job.Stage = stage
		}
		job.Status = StatusRunning
		job.Progress = progress
		job.Message = message
		return nil
	})
}

// RecordError appends a non-fatal diagnostic error without changing status.
func (r *Registry) RecordError(id string, jobErr Error) error {
	return r.mutate(id, func(job *Job) error {
		if job.Status.Terminal() {
			return ErrTerminal
		}
		jobErr.Fatal = false
		job.Errors = append(job.Errors, r.stamp(jobErr, job.Stage))
		return nil
	})
}

// Fail transitions the job to failed, appends errs, and freezes progress and
// stage at their last recorded values. A job that never started is moved to
// StageError.
func (r *Registry) Fail(id string, errs ...Error) error {
	return r.mutateKnown(id, func(job *Job) error {
		if job.Status.Terminal() {
			return ErrTerminal
		}
		if job.Status == StatusPending {
			job.Stage = StageError
		}
		for _, jobErr := range errs {
			job.Errors = append(job.Errors, r.stamp(jobErr, job.Stage))
		}
		job.Status = StatusFailed
		if fatal, ok := job.FatalError(); ok {
			job.Message = fatal.Message
		} else {
			job.Message = "Failed"
		}
		return nil
	})
}

// Complete transitions the job to completed with progress 100.
func (r *Registry) Complete(id string) error {
	return r.mutateKnown(id, func(job *Job) error {
		if job.Status.Terminal() {
			return ErrTerminal
		}
		job.Status = StatusCompleted
		job.Stage = StageCompleted
		job.Progress = 100
		job.Message = "Note ready"
		return nil
	})
}

// Prune removes terminal jobs last updated before the cutoff and returns the
// number removed.
func (r *Registry) Prune(before time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, e := range r.entries {
		snap := e.snap.Load()
		if snap.Status.Terminal() && snap.UpdatedAt.Before(before) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

func (r *Registry) lookup(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}

// mutate applies fn to a copy of the job and publishes the result. Unknown
// ids are ignored.
func (r *Registry) mutate(id string, fn func(*Job) error) error {
	e := r.lookup(id)
	if e == nil {
		return nil
	}
	return r.apply(e, id, fn)
}

// mutateKnown is mutate for transitions that must reach an existing job.
func (r *Registry) mutateKnown(id string, fn func(*Job) error) error {
	e := r.lookup(id)
	if e == nil {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return r.apply(e, id, fn)
}

func (r *Registry) apply(e *entry, id string, fn func(*Job) error) error {
	e.write.Lock()
	defer e.write.Unlock()
	next := e.snap.Load().clone()
	if err := fn(&next); err != nil {
		return fmt.Errorf("job %s: %w", id, err)
	}
	next.UpdatedAt = r.now().UTC()
	e.snap.Store(&next)
	r.notify(next)
	return nil
}

func (r *Registry) stamp(jobErr Error, stage Stage) Error {
	if jobErr.Stage == "" {
		jobErr.Stage = stage
	}
	if jobErr.At.IsZero() {
		jobErr.At = r.now().UTC()
	}
	return jobErr
}

func (r *Registry) notify(job Job) {
	for _, observer := range r.observers {
		observer(job.clone())
	}
}
