package jobmirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"vidnotes/internal/api"
	"vidnotes/internal/config"
	"vidnotes/internal/jobs"
	"vidnotes/internal/logging"
)

const (
	defaultBuffer = 256
	writeTimeout  = 5 * time.Second
	dialTimeout   = 5 * time.Second
)

// writeFunc stores one serialized snapshot.
type writeFunc func(ctx context.Context, key, channel string, payload []byte, ttl time.Duration) error

// Mirror forwards registry snapshots to Redis.
type Mirror struct {
	prefix string
	ttl    time.Duration
	write  writeFunc
	client *redis.Client
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	updates chan jobs.Job
	done    chan struct{}

	dropped atomic.Int64
}

// Options converts the config section into client options. Addr may be a
// host:port or a redis:// URL.
func Options(cfg config.Redis) (*redis.Options, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis address not configured")
	}
	if strings.Contains(addr, "://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		if cfg.Password != "" {
			opts.Password = cfg.Password
		}
		if cfg.DB > 0 {
			opts.DB = cfg.DB
		}
		return opts, nil
	}
	return &redis.Options{Addr: addr, Password: cfg.Password, DB: cfg.DB}, nil
}

// New connects to Redis and starts the background writer.
func New(ctx context.Context, cfg config.Redis, logger *slog.Logger) (*Mirror, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	write := func(ctx context.Context, key, channel string, payload []byte, ttl time.Duration) error {
		_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			pipe.Publish(ctx, channel, payload)
			return nil
		})
		return err
	}
	m := newMirror(write, cfg.KeyPrefix, time.Duration(cfg.TTLSeconds)*time.Second, logger, defaultBuffer)
	m.client = client
	return m, nil
}

func newMirror(write writeFunc, prefix string, ttl time.Duration, logger *slog.Logger, buffer int) *Mirror {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Mirror{
		prefix:  prefix,
		ttl:     ttl,
		write:   write,
		logger:  logging.NewComponentLogger(logger, "jobmirror"),
		updates: make(chan jobs.Job, buffer),
		done:    make(chan struct{}),
	}
	go m.run()
	return m
}

// JobKey returns the key holding the latest snapshot of a job.
func JobKey(prefix, jobID string) string {
	return prefix + ":job:" + jobID
}

// Channel returns the pub/sub channel snapshots are published on.
func Channel(prefix string) string {
	return prefix + ":jobs"
}

// Observe queues a snapshot for mirroring. It never blocks.
func (m *Mirror) Observe(job jobs.Job) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.updates <- job:
	default:
		if m.dropped.Add(1) == 1 {
			logging.WarnWithContext(m.logger, "job mirror is falling behind", "mirror_backpressure",
				logging.String(logging.FieldJobID, job.ID),
				logging.String(logging.FieldImpact, "some progress updates will not reach Redis"),
			)
		}
	}
}

// Dropped returns the number of snapshots discarded because the buffer was full.
func (m *Mirror) Dropped() int64 {
	return m.dropped.Load()
}

// Close flushes queued snapshots and disconnects.
func (m *Mirror) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.updates)
	m.mu.Unlock()

	<-m.done
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

func (m *Mirror) run() {
	defer close(m.done)
	failures := 0
	for job := range m.updates {
		if err := m.push(job); err != nil {
			failures++
			if failures == 1 {
				logging.WarnWithContext(m.logger, "job snapshot not mirrored", "mirror_write_failed",
					logging.String(logging.FieldJobID, job.ID),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check that redis.addr is reachable"),
				)
			}
			continue
		}
		if failures > 0 {
			m.logger.Info("job mirror recovered", logging.Int("failed_writes", failures))
			failures = 0
		}
	}
}

func (m *Mirror) push(job jobs.Job) error {
	payload, err := json.Marshal(api.FromJob(job))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return m.write(ctx, JobKey(m.prefix, job.ID), Channel(m.prefix), payload, m.ttl)
}
