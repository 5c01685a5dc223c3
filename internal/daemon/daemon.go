package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"vidnotes/internal/config"
	"vidnotes/internal/deps"
	"vidnotes/internal/jobs"
	"vidnotes/internal/logging"
	"vidnotes/internal/notestore"
	"vidnotes/internal/preflight"
	"vidnotes/internal/workflow"
)

// uploadsDirName holds multipart uploads until their job runs.
const uploadsDirName = "uploads"

// janitorInterval is how often terminal jobs and stale files are pruned.
var janitorInterval = 10 * time.Minute

// NoteReader is the read side of the note store the API serves from.
type NoteReader interface {
	Get(ctx context.Context, jobID string) (notestore.Note, error)
	List(ctx context.Context) ([]notestore.Summary, error)
	Ping(ctx context.Context) error
}

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	executor *workflow.Executor
	notes    NoteReader

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	// depsCheck is replaceable so tests avoid probing the host.
	depsCheck func(*config.Config) []deps.Status

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	Workers       int
	QueueDepth    int
	QueueCapacity int
	ActiveJobs    int
	JobCounts     map[jobs.Status]int
	NotesDBPath   string
	LockFilePath  string
	Dependencies  []deps.Status
	Checks        []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, executor *workflow.Executor, notes NoteReader, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || executor == nil || notes == nil {
		return nil, errors.New("daemon requires config, executor, and note store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		executor:  executor,
		notes:     notes,
		lockPath:  cfg.LockPath(),
		lock:      flock.New(cfg.LockPath()),
		depsCheck: preflight.CheckSystemDeps,
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and launches the executor, the API server,
// and the janitor. A stopped daemon cannot be restarted.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("ensure lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vidnotes daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.executor.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start executor: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.executor.Stop()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.wg.Add(1)
	go d.janitor(runCtx)

	d.running.Store(true)
	d.logger.Info("vidnotes daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api_bind", d.api.address()),
	)
	return nil
}

// Stop shuts down the API server, cancels running jobs, and releases the
// daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Swap(false) {
		return
	}
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.executor.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "next daemon start may report a running instance"),
		)
	}
	d.logger.Info("vidnotes daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Address returns the API listen address once started.
func (d *Daemon) Address() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	settings := d.executor.Settings()
	status := Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		Workers:       settings.Workers,
		QueueDepth:    d.executor.QueueDepth(),
		QueueCapacity: settings.QueueSize,
		ActiveJobs:    d.executor.Active(),
		JobCounts:     d.executor.Registry().Counts(),
		NotesDBPath:   d.cfg.NotesDBPath(),
		LockFilePath:  d.lockPath,
	}
	if d.depsCheck != nil {
		status.Dependencies = d.depsCheck(d.cfg)
	}
	status.Checks = append(status.Checks, d.checkNoteStore(ctx))
	if d.cfg.RedisEnabled() {
		status.Checks = append(status.Checks, preflight.CheckRedis(ctx, d.cfg.Redis))
	}
	return status
}

func (d *Daemon) checkNoteStore(ctx context.Context) preflight.Result {
	const name = "Note store"
	if err := d.notes.Ping(ctx); err != nil {
		return preflight.Result{Name: name, Detail: err.Error()}
	}
	return preflight.Result{Name: name, Passed: true, Detail: d.cfg.NotesDBPath()}
}

func (d *Daemon) uploadsDir() string {
	return filepath.Join(d.cfg.Paths.WorkDir, uploadsDirName)
}

func (d *Daemon) janitor(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.prune(time.Now())
		}
	}
}

// prune drops terminal jobs and uploads older than the retention window and
// rotates old log files.
func (d *Daemon) prune(now time.Time) {
	if hours := d.cfg.Pipeline.JobRetentionHours; hours > 0 {
		cutoff := now.Add(-time.Duration(hours) * time.Hour)
		if removed := d.executor.Registry().Prune(cutoff); removed > 0 {
			d.logger.Info("pruned finished jobs",
				logging.String(logging.FieldEventType, "jobs_pruned"),
				logging.Int("removed", removed),
			)
		}
		d.pruneUploads(cutoff)
	}
	logging.PruneLogs(d.logger, d.cfg.Paths.LogDir, "*.log", d.cfg.Logging.RetentionDays,
		filepath.Join(d.cfg.Paths.LogDir, logging.LogFileName))
}

func (d *Daemon) pruneUploads(cutoff time.Time) {
	entries, err := os.ReadDir(d.uploadsDir())
	if err != nil {
		return
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(d.uploadsDir(), entry.Name())
		if err := os.RemoveAll(path); err != nil {
			logging.WarnWithContext(d.logger, "failed to remove stale upload", "upload_prune_failed",
				logging.String("path", path),
				logging.Error(err),
			)
		}
	}
}
