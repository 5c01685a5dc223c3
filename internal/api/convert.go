package api

import (
	"time"

	"vidnotes/internal/jobs"
	"vidnotes/internal/notes"
	"vidnotes/internal/notestore"
)

// FromJob converts a registry snapshot into its transport representation.
func FromJob(job jobs.Job) JobStatus {
	errs := make([]JobError, 0, len(job.Errors))
	for _, e := range job.Errors {
		errs = append(errs, JobError{
			Kind:    e.Kind,
			Stage:   string(e.Stage),
			Message: e.Message,
			Fatal:   e.Fatal,
			At:      formatTime(e.At),
		})
	}
	return JobStatus{
		ID:        job.ID,
		Source:    job.Source,
		Status:    string(job.Status),
		Stage:     string(job.Stage),
		Progress:  job.Progress,
		Message:   job.Message,
		Errors:    errs,
		CreatedAt: formatTime(job.CreatedAt),
		UpdatedAt: formatTime(job.UpdatedAt),
	}
}

// FromJobs converts a list of snapshots.
func FromJobs(list []jobs.Job) []JobStatus {
	out := make([]JobStatus, 0, len(list))
	for _, job := range list {
		out = append(out, FromJob(job))
	}
	return out
}

// FromNote converts a persisted note, expanding frame URLs with template.
func FromNote(note notestore.Note, urlTemplate string) NoteResponse {
	frames := make([]NoteFrame, 0, len(note.Frames))
	for _, r := range note.Frames {
		frames = append(frames, NoteFrame{
			FrameIndex:       r.FrameIndex,
			TimestampSeconds: r.TimestampSeconds,
			MatchedConcept:   r.MatchedConcept,
			Confidence:       r.Confidence,
			FileRef:          r.FileRef,
			URL:              notes.FrameURL(urlTemplate, note.JobID, r.FileRef),
		})
	}
	return NoteResponse{
		JobID:            note.JobID,
		Source:           note.Source,
		TranscriptSource: note.TranscriptSource,
		Language:         note.Language,
		Markdown:         note.Markdown,
		Frames:           frames,
		CreatedAt:        formatTime(note.CreatedAt),
	}
}

// FromNoteSummaries converts a persisted note listing.
func FromNoteSummaries(list []notestore.Summary) []NoteSummary {
	out := make([]NoteSummary, 0, len(list))
	for _, s := range list {
		out = append(out, NoteSummary{
			JobID:            s.JobID,
			Source:           s.Source,
			TranscriptSource: s.TranscriptSource,
			FrameCount:       s.FrameCount,
			CreatedAt:        formatTime(s.CreatedAt),
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
