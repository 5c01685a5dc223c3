package jobmirror

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"vidnotes/internal/api"
	"vidnotes/internal/config"
	"vidnotes/internal/jobs"
)

type write struct {
	key     string
	channel string
	payload []byte
	ttl     time.Duration
}

type recordingWriter struct {
	mu      sync.Mutex
	writes  []write
	release chan struct{}
	fail    bool
}

func (w *recordingWriter) fn(_ context.Context, key, channel string, payload []byte, ttl time.Duration) error {
	if w.release != nil {
		<-w.release
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("connection refused")
	}
	w.writes = append(w.writes, write{key: key, channel: channel, payload: payload, ttl: ttl})
	return nil
}

func (w *recordingWriter) snapshot() []write {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]write(nil), w.writes...)
}

func TestMirrorWritesSnapshotsInOrder(t *testing.T) {
	rec := &recordingWriter{}
	m := newMirror(rec.fn, "vidnotes", time.Hour, nil, 8)

	registry := jobs.New(jobs.WithObserver(m.Observe))
	if _, err := registry.Create("job-1", "/videos/a.mp4"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := registry.Update("job-1", jobs.StageExtracting, 20, "Sampling frames"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := registry.Complete("job-1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	writes := rec.snapshot()
	if len(writes) != 3 {
		t.Fatalf("expected 3 writes, got %d", len(writes))
	}
	progress := []int{0, 20, 100}
	for i, w := range writes {
		if w.key != "vidnotes:job:job-1" || w.channel != "vidnotes:jobs" || w.ttl != time.Hour {
			t.Fatalf("unexpected write target %+v", w)
		}
		var status api.JobStatus
		if err := json.Unmarshal(w.payload, &status); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if status.Progress != progress[i] {
			t.Fatalf("write %d: expected progress %d, got %d", i, progress[i], status.Progress)
		}
	}
}

func TestMirrorDropsWhenBufferFull(t *testing.T) {
	rec := &recordingWriter{release: make(chan struct{})}
	m := newMirror(rec.fn, "vn", 0, nil, 1)

	// The writer holds the first snapshot; the buffer takes one more.
	m.Observe(jobs.Job{ID: "a"})
	deadline := time.Now().Add(2 * time.Second)
	for len(m.updates) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Observe(jobs.Job{ID: "b"})
	m.Observe(jobs.Job{ID: "c"})
	m.Observe(jobs.Job{ID: "d"})

	if m.Dropped() != 2 {
		t.Fatalf("expected 2 dropped snapshots, got %d", m.Dropped())
	}
	close(rec.release)
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := len(rec.snapshot()); got != 2 {
		t.Fatalf("expected 2 writes after drain, got %d", got)
	}
}

func TestMirrorSurvivesWriteFailures(t *testing.T) {
	rec := &recordingWriter{fail: true}
	m := newMirror(rec.fn, "vn", 0, nil, 4)
	m.Observe(jobs.Job{ID: "a"})
	m.Observe(jobs.Job{ID: "b"})
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	m.Observe(jobs.Job{ID: "after-close"})
	if len(rec.snapshot()) != 0 {
		t.Fatal("expected no successful writes")
	}
}

func TestOptionsAcceptsAddressOrURL(t *testing.T) {
	opts, err := Options(config.Redis{Addr: "localhost:6379", DB: 2})
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 2 {
		t.Fatalf("unexpected options %+v", opts)
	}

	opts, err = Options(config.Redis{Addr: "redis://:pw@cache.internal:6380/3"})
	if err != nil {
		t.Fatalf("Options url: %v", err)
	}
	if opts.Addr != "cache.internal:6380" || opts.Password != "pw" || opts.DB != 3 {
		t.Fatalf("unexpected url options %+v", opts)
	}

	if _, err := Options(config.Redis{}); err == nil {
		t.Fatal("expected error for empty address")
	}
}
