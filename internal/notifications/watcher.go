package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vidnotes/internal/jobs"
	"vidnotes/internal/logging"
	"vidnotes/internal/services"
)

const sendTimeout = 30 * time.Second

// Watcher sends one notification for each job that completes or fails.
// The registry publishes a terminal snapshot exactly once, so no dedupe is
// needed. Canceled jobs are not announced.
type Watcher struct {
	svc    Service
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewWatcher wraps svc for use as a registry observer.
func NewWatcher(svc Service, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		svc:    svc,
		logger: logging.NewComponentLogger(logger, "notifications"),
	}
}

// Observe is a jobs.Observer. Sends run on their own goroutine.
func (w *Watcher) Observe(job jobs.Job) {
	if job.Status != jobs.StatusCompleted && job.Status != jobs.StatusFailed {
		return
	}
	if fatal, ok := job.FatalError(); ok && fatal.Kind == string(services.KindCanceled) {
		return
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		var err error
		if job.Status == jobs.StatusCompleted {
			err = w.svc.NotifyJobCompleted(ctx, job)
		} else {
			err = w.svc.NotifyJobFailed(ctx, job)
		}
		if err != nil {
			logging.WarnWithContext(w.logger, "job notification failed", "notification_failed",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "job outcome was not pushed"),
			)
		}
	}()
}

// Close waits for in-flight notifications. Later observations are ignored.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.wg.Wait()
	return nil
}
