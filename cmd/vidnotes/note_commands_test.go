package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidnotes/internal/api"
	"vidnotes/internal/frames"
	"vidnotes/internal/testsupport"
)

func TestNoteCommandPrintsMarkdown(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.SaveNote(t, env.store, "job-note", "# Lecture\n\n- point\n",
		frames.Record{FrameIndex: 60, TimestampSeconds: 2, MatchedConcept: "a diagram", Confidence: 0.7, FileRef: "frame_60.jpg"})

	out, _, err := runCLI(t, []string{"note", "job-note"}, env.daemon.Address(), env.configPath)
	if err != nil {
		t.Fatalf("note: %v", err)
	}
	if out != "# Lecture\n\n- point\n" {
		t.Fatalf("unexpected markdown %q", out)
	}

	out, _, err = runCLI(t, []string{"note", "--json", "job-note"}, env.daemon.Address(), env.configPath)
	if err != nil {
		t.Fatalf("note --json: %v", err)
	}
	var note api.NoteResponse
	if err := json.Unmarshal([]byte(out), &note); err != nil {
		t.Fatalf("decode note: %v", err)
	}
	if len(note.Frames) != 1 || !strings.HasSuffix(note.Frames[0].URL, "/frame_60.jpg") {
		t.Fatalf("unexpected frames %+v", note.Frames)
	}

	target := filepath.Join(t.TempDir(), "note.md")
	if _, _, err := runCLI(t, []string{"note", "-o", target, "job-note"}, env.daemon.Address(), env.configPath); err != nil {
		t.Fatalf("note -o: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil || !strings.HasPrefix(string(data), "# Lecture") {
		t.Fatalf("expected note file, got %q (%v)", data, err)
	}
}

func TestNoteCommandUnknownJob(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"note", "nope"}, env.daemon.Address(), env.configPath)
	if err == nil || !strings.Contains(err.Error(), "no note for job nope") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestNotesCommandListsStoredNotes(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"notes"}, env.daemon.Address(), env.configPath)
	if err != nil {
		t.Fatalf("notes: %v", err)
	}
	requireContains(t, out, "No notes")

	testsupport.SaveNote(t, env.store, "job-a", "# A\n")
	out, _, err = runCLI(t, []string{"notes"}, env.daemon.Address(), env.configPath)
	if err != nil {
		t.Fatalf("notes: %v", err)
	}
	requireContains(t, out, "job-a")
	requireContains(t, out, "manual_captions")
}
