package api

import (
	"testing"
	"time"

	"vidnotes/internal/frames"
	"vidnotes/internal/jobs"
	"vidnotes/internal/notestore"
)

func TestFromJobCopiesErrors(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job := jobs.Job{
		ID:       "job-1",
		Source:   "https://videos.example.com/v",
		Status:   jobs.StatusFailed,
		Stage:    jobs.StageTranscribing,
		Progress: 40,
		Message:  "no transcript",
		Errors: []jobs.Error{
			{Kind: "AcquisitionFailed", Stage: jobs.StageTranscribing, Message: "every strategy skipped", Fatal: true, At: at},
		},
		CreatedAt: at,
		UpdatedAt: at,
	}

	got := FromJob(job)
	if got.Status != "failed" || got.Stage != "transcribing" || got.Progress != 40 {
		t.Fatalf("unexpected status view %+v", got)
	}
	if len(got.Errors) != 1 || got.Errors[0].Kind != "AcquisitionFailed" || !got.Errors[0].Fatal {
		t.Fatalf("unexpected errors %+v", got.Errors)
	}
	if got.CreatedAt != "2026-03-01T12:00:00.000Z" {
		t.Fatalf("unexpected timestamp %q", got.CreatedAt)
	}
}

func TestFromJobEmptyErrorsIsNotNil(t *testing.T) {
	got := FromJob(jobs.Job{ID: "job-2", Status: jobs.StatusCompleted})
	if got.Errors == nil {
		t.Fatal("expected empty slice so JSON renders []")
	}
	if got.CreatedAt != "" {
		t.Fatalf("expected zero time omitted, got %q", got.CreatedAt)
	}
}

func TestFromNoteExpandsFrameURLs(t *testing.T) {
	note := notestore.Note{
		JobID:    "job-3",
		Markdown: "# Notes",
		Frames: []frames.Record{
			{FrameIndex: 30, TimestampSeconds: 1, MatchedConcept: "a diagram", Confidence: 0.8, FileRef: "frame_30.jpg"},
		},
	}
	got := FromNote(note, "")
	if len(got.Frames) != 1 || got.Frames[0].URL != "/api/jobs/job-3/frames/frame_30.jpg" {
		t.Fatalf("unexpected frames %+v", got.Frames)
	}
	custom := FromNote(note, "https://cdn.example.com/{job_id}/{file_ref}")
	if custom.Frames[0].URL != "https://cdn.example.com/job-3/frame_30.jpg" {
		t.Fatalf("unexpected templated URL %q", custom.Frames[0].URL)
	}
}
