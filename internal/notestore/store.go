package notestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"vidnotes/internal/frames"
)

// ErrNotFound is returned when no note exists for a job.
var ErrNotFound = errors.New("note not found")

// Note is one persisted markdown note.
type Note struct {
	JobID            string          `json:"job_id"`
	Source           string          `json:"source"`
	TranscriptSource string          `json:"transcript_source"`
	Language         string          `json:"language"`
	Markdown         string          `json:"markdown"`
	Frames           []frames.Record `json:"frames"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Summary is a note without its body, for listings.
type Summary struct {
	JobID            string    `json:"job_id"`
	Source           string    `json:"source"`
	TranscriptSource string    `json:"transcript_source"`
	FrameCount       int       `json:"frame_count"`
	CreatedAt        time.Time `json:"created_at"`
}

// Store manages note persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
	timeLayout              = time.RFC3339Nano
)

// Open initializes or connects to the note database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create note store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Save inserts or replaces the note for note.JobID.
func (s *Store) Save(ctx context.Context, note Note) error {
	note.JobID = strings.TrimSpace(note.JobID)
	if note.JobID == "" {
		return errors.New("save note: empty job id")
	}
	framesJSON, err := json.Marshal(nonNilFrames(note.Frames))
	if err != nil {
		return fmt.Errorf("save note %s: encode frames: %w", note.JobID, err)
	}
	now := s.now().UTC()
	created := note.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err = s.execWithRetry(ctx, `
INSERT INTO notes (job_id, source, transcript_source, language, markdown, frames_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(job_id) DO UPDATE SET
    source = excluded.source,
    transcript_source = excluded.transcript_source,
    language = excluded.language,
    markdown = excluded.markdown,
    frames_json = excluded.frames_json,
    updated_at = excluded.updated_at`,
		note.JobID, note.Source, note.TranscriptSource, note.Language, note.Markdown, string(framesJSON),
		created.UTC().Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("save note %s: %w", note.JobID, err)
	}
	return nil
}

// Get returns the note for jobID or ErrNotFound.
func (s *Store) Get(ctx context.Context, jobID string) (Note, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT job_id, source, transcript_source, language, markdown, frames_json, created_at, updated_at
FROM notes WHERE job_id = ?`, jobID)
	var (
		note             Note
		framesJSON       string
		created, updated string
	)
	err := row.Scan(&note.JobID, &note.Source, &note.TranscriptSource, &note.Language, &note.Markdown, &framesJSON, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, fmt.Errorf("note %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return Note{}, fmt.Errorf("get note %s: %w", jobID, err)
	}
	if err := json.Unmarshal([]byte(framesJSON), &note.Frames); err != nil {
		return Note{}, fmt.Errorf("get note %s: decode frames: %w", jobID, err)
	}
	note.CreatedAt = parseTime(created)
	note.UpdatedAt = parseTime(updated)
	return note, nil
}

// List returns summaries of every note, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT job_id, source, transcript_source, frames_json, created_at
FROM notes ORDER BY created_at DESC, job_id`)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			summary    Summary
			framesJSON string
			created    string
		)
		if err := rows.Scan(&summary.JobID, &summary.Source, &summary.TranscriptSource, &framesJSON, &created); err != nil {
			return nil, fmt.Errorf("list notes: scan: %w", err)
		}
		var records []frames.Record
		if err := json.Unmarshal([]byte(framesJSON), &records); err == nil {
			summary.FrameCount = len(records)
		}
		summary.CreatedAt = parseTime(created)
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return out, nil
}

// Delete removes the note for jobID. Deleting a missing note returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	res, err := s.execWithRetry(ctx, "DELETE FROM notes WHERE job_id = ?", jobID)
	if err != nil {
		return fmt.Errorf("delete note %s: %w", jobID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("note %s: %w", jobID, ErrNotFound)
	}
	return nil
}

func nonNilFrames(records []frames.Record) []frames.Record {
	if records == nil {
		return []frames.Record{}
	}
	return records
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}
