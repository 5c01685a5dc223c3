package transcript

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyTranscript reports that speech-to-text produced no text.
var ErrEmptyTranscript = errors.New("speech-to-text produced an empty transcript")

// AudioStrategy transcribes the decoded audio track. It is the last resort:
// every failure is fatal.
type AudioStrategy struct {
	stt SpeechToText
}

// NewAudioStrategy wraps a speech-to-text collaborator.
func NewAudioStrategy(stt SpeechToText) *AudioStrategy {
	return &AudioStrategy{stt: stt}
}

func (s *AudioStrategy) Name() string {
	return string(SourceAudioTranscription)
}

func (s *AudioStrategy) Attempt(ctx context.Context, req *Request) StepResult {
	if s.stt == nil {
		return Fatal("speech-to-text unavailable", nil)
	}
	if strings.TrimSpace(req.Path) == "" {
		return Fatal("no local media to transcribe", nil)
	}
	lang := ""
	if len(req.LanguagePriority) > 0 {
		lang = req.LanguagePriority[0]
	}
	segments, err := s.stt.Transcribe(ctx, req.Path, req.WorkDir, lang)
	if err != nil {
		return Fatal("transcribe audio", err)
	}
	text := joinSegments(segments)
	segments = normalizeSegments(segments)
	if text == "" {
		return Fatal("transcribe audio", ErrEmptyTranscript)
	}
	return Success(Result{
		Text:     text,
		Source:   SourceAudioTranscription,
		Language: lang,
		Segments: segments,
	})
}

// normalizeSegments trims text, drops empty or inverted spans, and keeps
// start order.
func normalizeSegments(in []Segment) []Segment {
	out := make([]Segment, 0, len(in))
	for _, seg := range in {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" || seg.End <= seg.Start {
			continue
		}
		out = append(out, seg)
	}
	sortSegments(out)
	return out
}

func joinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
