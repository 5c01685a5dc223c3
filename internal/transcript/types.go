package transcript

import (
	"context"
	"strings"
	"sync"
)

// Source records which acquisition path produced a transcript.
type Source string

const (
	SourceManualCaptions     Source = "manual_captions"
	SourceAutoCaptions       Source = "auto_captions"
	SourceAudioTranscription Source = "audio_transcription"
)

// Label returns a human-readable attribution for the source.
func (s Source) Label() string {
	switch s {
	case SourceManualCaptions:
		return "manual captions"
	case SourceAutoCaptions:
		return "automatic captions"
	case SourceAudioTranscription:
		return "audio transcription"
	default:
		return string(s)
	}
}

// Segment is one timed span of transcript text. Start < End.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the outcome of a successful acquisition.
type Result struct {
	Text        string    `json:"text"`
	Source      Source    `json:"source"`
	Language    string    `json:"language,omitempty"`
	Segments    []Segment `json:"segments,omitempty"`
	CaptionPath string    `json:"caption_path,omitempty"`
	Attempts    []Attempt `json:"attempts,omitempty"`
}

// HasTimings reports whether the transcript carries usable segment timings.
func (r Result) HasTimings() bool {
	return len(r.Segments) > 0
}

// Attempt records one strategy's verdict during acquisition.
type Attempt struct {
	Strategy string  `json:"strategy"`
	Outcome  Outcome `json:"outcome"`
	Reason   string  `json:"reason,omitempty"`
	Language string  `json:"language,omitempty"`
}

// Request describes one acquisition. Path is a local media file; URL is set
// when the job was submitted as a link and enables caption strategies.
type Request struct {
	Path             string
	URL              string
	LanguagePriority []string
	WorkDir          string

	tracks *trackMemo
}

// Outcome tags a strategy result.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkip    Outcome = "skip"
	OutcomeFatal   Outcome = "fatal"
	// OutcomeNotApplicable means the strategy does not apply to this source,
	// such as captions for a local file. It is not a failed fallback.
	OutcomeNotApplicable Outcome = "not_applicable"
)

// StepResult is what a Strategy returns.
type StepResult struct {
	Outcome Outcome
	Result  Result
	Err     error
	Reason  string
	// Language is the caption language tried, when one was.
	Language string
}

// Success builds a winning step.
func Success(result Result) StepResult {
	return StepResult{Outcome: OutcomeSuccess, Result: result}
}

// Skip builds a non-fatal step that hands over to the next strategy.
func Skip(reason string, err error) StepResult {
	return StepResult{Outcome: OutcomeSkip, Reason: reason, Err: err}
}

// NotApplicable builds a step for a strategy that cannot serve the request.
func NotApplicable(reason string) StepResult {
	return StepResult{Outcome: OutcomeNotApplicable, Reason: reason}
}

// WithLanguage records the language the step tried.
func (s StepResult) WithLanguage(lang string) StepResult {
	s.Language = lang
	return s
}

// Fatal builds a step that ends the chain.
func Fatal(reason string, err error) StepResult {
	return StepResult{Outcome: OutcomeFatal, Reason: reason, Err: err}
}

func (s StepResult) describe() string {
	reason := strings.TrimSpace(s.Reason)
	if s.Err == nil {
		return reason
	}
	if reason == "" {
		return s.Err.Error()
	}
	return reason + ": " + s.Err.Error()
}

// Strategy is one way of obtaining a transcript.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, req *Request) StepResult
}

// CaptionKind distinguishes human-authored from generated caption tracks.
type CaptionKind string

const (
	CaptionManual    CaptionKind = "manual"
	CaptionAutomatic CaptionKind = "automatic"
)

// Tracks lists the caption languages a remote video offers.
type Tracks struct {
	Manual    []string
	Automatic []string
}

// Languages returns the track languages for kind.
func (t Tracks) Languages(kind CaptionKind) []string {
	if kind == CaptionAutomatic {
		return t.Automatic
	}
	return t.Manual
}

// CaptionFetcher lists and downloads caption tracks for a URL.
type CaptionFetcher interface {
	Tracks(ctx context.Context, url string) (Tracks, error)
	// Fetch downloads one WebVTT track into dir and returns its path.
	Fetch(ctx context.Context, url, lang string, kind CaptionKind, dir string) (string, error)
}

// SpeechToText transcribes the audio of a media file.
type SpeechToText interface {
	Transcribe(ctx context.Context, mediaPath, workDir, language string) ([]Segment, error)
}

// trackMemo caches the caption listing so both caption strategies share one
// lookup per acquisition.
type trackMemo struct {
	once   sync.Once
	tracks Tracks
	err    error
}

func (r *Request) captionTracks(ctx context.Context, fetcher CaptionFetcher) (Tracks, error) {
	if r.tracks == nil {
		r.tracks = &trackMemo{}
	}
	m := r.tracks
	m.once.Do(func() {
		m.tracks, m.err = fetcher.Tracks(ctx, r.URL)
	})
	return m.tracks, m.err
}
