package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"vidnotes/internal/jobs"
	"vidnotes/internal/logging"
	"vidnotes/internal/services"
)

type task struct {
	id     string
	sub    Submission
	ctx    context.Context
	cancel context.CancelFunc
}

// Executor schedules jobs onto a bounded worker pool.
type Executor struct {
	registry *jobs.Registry
	deps     Deps
	settings Settings
	logger   *slog.Logger

	queue chan *task

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	running bool
	stopped bool
	stop    context.CancelFunc
	wg      sync.WaitGroup

	active atomic.Int64
}

// NewExecutor constructs an executor. Start must be called before queued
// jobs are processed; Run works without it.
func NewExecutor(registry *jobs.Registry, deps Deps, settings Settings, logger *slog.Logger) *Executor {
	settings = settings.withDefaults()
	return &Executor{
		registry: registry,
		deps:     deps,
		settings: settings,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		queue:    make(chan *task, settings.QueueSize),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Registry returns the job registry the executor writes to.
func (e *Executor) Registry() *jobs.Registry {
	return e.registry
}

// Settings returns the effective settings.
func (e *Executor) Settings() Settings {
	return e.settings
}

// Start launches the worker pool. Workers stop when ctx is canceled or Stop
// is called.
func (e *Executor) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	if e.running {
		return errors.New("executor already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.stop = cancel
	e.running = true
	e.wg.Add(e.settings.Workers)
	for range e.settings.Workers {
		go e.worker(runCtx)
	}
	e.logger.Info("pipeline executor started",
		logging.String(logging.FieldEventType, "executor_started"),
		logging.Int("workers", e.settings.Workers),
		logging.Int("queue_size", e.settings.QueueSize),
	)
	return nil
}

// Stop cancels running jobs, waits for workers to exit, and fails every job
// still waiting in the queue.
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	stop := e.stop
	e.mu.Unlock()

	if stop != nil {
		stop()
	}
	e.wg.Wait()

	for {
		select {
		case t := <-e.queue:
			t.cancel()
			e.failCanceled(t.id, jobs.StageStarting, context.Canceled)
			e.forget(t.id)
		default:
			return
		}
	}
}

// Submit registers a pending job and queues it. The job id is returned even
// when the queue is full; that job is failed immediately.
func (e *Executor) Submit(sub Submission) (string, error) {
	sub = sub.normalized()
	if err := sub.Validate(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return "", ErrStopped
	}

	id := uuid.NewString()
	if _, err := e.registry.Create(id, sub.Source()); err != nil {
		return "", err
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{id: id, sub: sub, ctx: ctx, cancel: cancel}

	select {
	case e.queue <- t:
		e.cancels[id] = cancel
		e.logger.Info("job queued",
			logging.String(logging.FieldJobID, id),
			logging.String(logging.FieldEventType, "job_queued"),
			logging.String("source", sub.Source()),
			logging.Int("queue_depth", len(e.queue)),
		)
		return id, nil
	default:
		cancel()
		err := services.Wrap(ErrQueueFull, string(jobs.StageStarting), "enqueue",
			fmt.Sprintf("queue is at capacity (%d)", cap(e.queue)), nil)
		_ = e.registry.Fail(id, jobError(err, jobs.StageStarting))
		logging.WarnWithContext(e.logger, "submission rejected", "job_rejected",
			logging.String(logging.FieldJobID, id),
			logging.String(logging.FieldErrorHint, "raise pipeline.queue_size or retry later"),
		)
		return id, err
	}
}

// Run executes one submission synchronously on the caller's goroutine.
func (e *Executor) Run(ctx context.Context, sub Submission) (Outcome, error) {
	sub = sub.normalized()
	if err := sub.Validate(); err != nil {
		return Outcome{}, err
	}
	id := uuid.NewString()
	if _, err := e.registry.Create(id, sub.Source()); err != nil {
		return Outcome{}, err
	}
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.track(id, cancel)
	defer e.forget(id)
	return e.execute(jobCtx, id, sub)
}

// Cancel requests cancellation of a queued or running job. It reports
// whether the job was known to the executor.
func (e *Executor) Cancel(id string) bool {
	e.mu.Lock()
	cancel, ok := e.cancels[id]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// QueueDepth returns the number of jobs waiting for a worker.
func (e *Executor) QueueDepth() int {
	return len(e.queue)
}

// Active returns the number of jobs currently executing.
func (e *Executor) Active() int {
	return int(e.active.Load())
}

func (e *Executor) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-e.queue:
			e.runTask(ctx, t)
		}
	}
}

func (e *Executor) runTask(runCtx context.Context, t *task) {
	defer e.forget(t.id)
	defer t.cancel()
	jobCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stopAfter := context.AfterFunc(runCtx, cancel)
	defer stopAfter()
	_, _ = e.execute(jobCtx, t.id, t.sub)
}

func (e *Executor) track(id string, cancel context.CancelFunc) {
	e.mu.Lock()
	e.cancels[id] = cancel
	e.mu.Unlock()
}

func (e *Executor) forget(id string) {
	e.mu.Lock()
	delete(e.cancels, id)
	e.mu.Unlock()
}

func (e *Executor) failCanceled(id string, stage jobs.Stage, cause error) {
	err := services.Wrap(services.ErrCanceled, string(stage), "cancel", "job canceled", cause)
	_ = e.registry.Fail(id, jobError(err, stage))
}

func jobError(err error, stage jobs.Stage) jobs.Error {
	return jobs.Error{
		Kind:    string(services.KindOf(err)),
		Stage:   stage,
		Message: err.Error(),
		Fatal:   true,
	}
}

func newRequestID() string {
	return uuid.NewString()
}
