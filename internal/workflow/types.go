package workflow

import (
	"context"
	"errors"
	"iter"
	"net/url"
	"strings"

	"vidnotes/internal/frames"
	"vidnotes/internal/media/ffprobe"
	"vidnotes/internal/notes"
	"vidnotes/internal/notestore"
	"vidnotes/internal/services"
	"vidnotes/internal/transcript"
)

var (
	// ErrQueueFull is returned by Submit when the submission queue is at capacity.
	ErrQueueFull = services.ErrQueueFull
	// ErrInvalidSubmission is returned for malformed submissions.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrStopped is returned by Submit after the executor has shut down.
	ErrStopped = errors.New("executor stopped")
)

// Submission is one request to turn a video into a note. Exactly one of
// FilePath and URL must be set.
type Submission struct {
	FilePath              string   `json:"file_path,omitempty"`
	URL                   string   `json:"url,omitempty"`
	SampleIntervalSeconds float64  `json:"sample_interval_seconds,omitempty"`
	SmartMode             *bool    `json:"smart_mode,omitempty"`
	LanguagePriority      []string `json:"languages,omitempty"`
}

// Source returns the file path or URL being processed.
func (s Submission) Source() string {
	if s.URL != "" {
		return s.URL
	}
	return s.FilePath
}

// Validate checks the submission shape.
func (s Submission) Validate() error {
	path := strings.TrimSpace(s.FilePath)
	link := strings.TrimSpace(s.URL)
	switch {
	case path == "" && link == "":
		return errors.Join(ErrInvalidSubmission, errors.New("one of file_path or url is required"))
	case path != "" && link != "":
		return errors.Join(ErrInvalidSubmission, errors.New("file_path and url are mutually exclusive"))
	case s.SampleIntervalSeconds < 0:
		return errors.Join(ErrInvalidSubmission, errors.New("sample_interval_seconds must not be negative"))
	}
	if link != "" {
		parsed, err := url.Parse(link)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return errors.Join(ErrInvalidSubmission, errors.New("url must be an absolute http(s) link"))
		}
	}
	return nil
}

func (s Submission) normalized() Submission {
	s.FilePath = strings.TrimSpace(s.FilePath)
	s.URL = strings.TrimSpace(s.URL)
	return s
}

// Downloader fetches a remote video into dir and returns the local path.
type Downloader interface {
	Download(ctx context.Context, url, dir string) (string, error)
}

// Prober inspects a media file.
type Prober func(ctx context.Context, path string) (ffprobe.Result, error)

// FrameSelector yields relevant frames from a video.
type FrameSelector interface {
	Select(ctx context.Context, videoPath string, cfg frames.Config, outDir string) iter.Seq2[frames.Record, error]
}

// TranscriptAcquirer produces a transcript for a video.
type TranscriptAcquirer interface {
	Acquire(ctx context.Context, req transcript.Request) (transcript.Result, error)
}

// NoteSynthesizer turns a transcript and frames into markdown.
type NoteSynthesizer interface {
	Synthesize(ctx context.Context, in notes.Input) (notes.Document, error)
}

// NoteStore persists finished notes.
type NoteStore interface {
	Save(ctx context.Context, note notestore.Note) error
}

// Deps are the collaborators the pipeline calls. Downloader and Store may be
// nil: URL submissions then fail at source resolution and notes are only
// written to the job directory.
type Deps struct {
	Downloader  Downloader
	Probe       Prober
	Frames      FrameSelector
	Transcripts TranscriptAcquirer
	Notes       NoteSynthesizer
	Store       NoteStore
}

// Outcome is the result of a synchronous Run.
type Outcome struct {
	JobID      string
	Document   notes.Document
	Transcript transcript.Result
	NotePath   string
}
