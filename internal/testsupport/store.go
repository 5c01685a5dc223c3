package testsupport

import (
	"context"
	"testing"
	"time"

	"vidnotes/internal/config"
	"vidnotes/internal/frames"
	"vidnotes/internal/notestore"
)

// MustOpenStore opens the note store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *notestore.Store {
	t.Helper()

	store, err := notestore.Open(cfg.NotesDBPath())
	if err != nil {
		t.Fatalf("notestore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SaveNote persists a note with the given markdown and frames.
func SaveNote(t testing.TB, store *notestore.Store, jobID, markdown string, records ...frames.Record) notestore.Note {
	t.Helper()

	note := notestore.Note{
		JobID:            jobID,
		Source:           "/videos/" + jobID + ".mp4",
		TranscriptSource: "manual_captions",
		Language:         "en",
		Markdown:         markdown,
		Frames:           records,
		CreatedAt:        time.Now().UTC(),
	}
	if err := store.Save(context.Background(), note); err != nil {
		t.Fatalf("store.Save: %v", err)
	}
	return note
}
