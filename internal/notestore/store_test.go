package notestore_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"vidnotes/internal/frames"
	"vidnotes/internal/notestore"
)

func openStore(t *testing.T) (*notestore.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "notes.db")
	store, err := notestore.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestSaveAndGet(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	note := notestore.Note{
		JobID:            "job1",
		Source:           "https://example.com/v",
		TranscriptSource: "manual_captions",
		Language:         "en",
		Markdown:         "# Notes",
		Frames: []frames.Record{
			{FrameIndex: 30, TimestampSeconds: 1, MatchedConcept: "a slide", Confidence: 0.8, FileRef: "frame_30.jpg"},
		},
	}
	if err := store.Save(ctx, note); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Get(ctx, "job1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Markdown != "# Notes" || got.Language != "en" || len(got.Frames) != 1 || got.Frames[0].FileRef != "frame_30.jpg" {
		t.Fatalf("unexpected note %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be stamped")
	}
}

func TestSaveReplacesExisting(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	if err := store.Save(ctx, notestore.Note{JobID: "job1", Source: "a", Markdown: "v1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, notestore.Note{JobID: "job1", Source: "a", Markdown: "v2"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Get(ctx, "job1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Markdown != "v2" {
		t.Fatalf("expected replacement, got %q", got.Markdown)
	}
	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one note, got %d", len(list))
	}
}

func TestGetMissing(t *testing.T) {
	store, _ := openStore(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, notestore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()
	if err := store.Save(ctx, notestore.Note{JobID: "job1", Markdown: "x"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(ctx, "job1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "job1"); !errors.Is(err, notestore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestNotesSurviveReopen(t *testing.T) {
	store, path := openStore(t)
	ctx := context.Background()
	if err := store.Save(ctx, notestore.Note{JobID: "job1", Markdown: "persisted"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	reopened, err := notestore.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get(ctx, "job1")
	if err != nil || got.Markdown != "persisted" {
		t.Fatalf("expected note after reopen, got %+v err=%v", got, err)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	_, path := openStore(t)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := notestore.Open(path); !errors.Is(err, notestore.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
