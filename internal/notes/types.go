package notes

import (
	"context"
	"strings"

	"vidnotes/internal/frames"
	"vidnotes/internal/transcript"
)

// DefaultURLTemplate addresses frame images through the daemon API.
const DefaultURLTemplate = "/api/jobs/{job_id}/frames/{file_ref}"

// Document is the finished note.
type Document struct {
	Body              string          `json:"body"`
	EmbeddedFrameRefs []frames.Record `json:"embedded_frame_refs"`
}

// Options tune synthesis.
type Options struct {
	BucketSeconds       float64
	TopK                int
	SecondaryThreshold  float64
	URLTemplate         string
	MaxTranscriptTokens int
}

// DefaultOptions returns the standard synthesis settings.
func DefaultOptions() Options {
	return Options{
		BucketSeconds:       120,
		TopK:                3,
		SecondaryThreshold:  0.5,
		URLTemplate:         DefaultURLTemplate,
		MaxTranscriptTokens: 24000,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.BucketSeconds <= 0 {
		o.BucketSeconds = def.BucketSeconds
	}
	if o.TopK <= 0 {
		o.TopK = def.TopK
	}
	if strings.TrimSpace(o.URLTemplate) == "" {
		o.URLTemplate = def.URLTemplate
	}
	if o.MaxTranscriptTokens <= 0 {
		o.MaxTranscriptTokens = def.MaxTranscriptTokens
	}
	return o
}

// Generator produces markdown from a system and user prompt.
type Generator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// TokenCounter measures and trims prompt text.
type TokenCounter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// Input is everything one note is built from. Captions maps frame file
// references to aligned transcript text and may be nil.
type Input struct {
	JobID      string
	Transcript transcript.Result
	Frames     []frames.Record
	Captions   map[string]string
}

// FrameURL expands the URL template for one frame.
func FrameURL(template, jobID, fileRef string) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultURLTemplate
	}
	return strings.NewReplacer("{job_id}", jobID, "{file_ref}", fileRef).Replace(template)
}
