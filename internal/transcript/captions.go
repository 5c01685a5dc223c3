package transcript

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vidnotes/internal/language"
)

// ErrNoCaptions reports that no caption track matched the priority list.
var ErrNoCaptions = errors.New("no caption track in any priority language")

// CaptionStrategy downloads and parses one kind of caption track.
type CaptionStrategy struct {
	fetcher CaptionFetcher
	kind    CaptionKind
}

// NewCaptionStrategy returns a strategy for manual or automatic captions.
func NewCaptionStrategy(fetcher CaptionFetcher, kind CaptionKind) *CaptionStrategy {
	return &CaptionStrategy{fetcher: fetcher, kind: kind}
}

func (s *CaptionStrategy) Name() string {
	return string(s.source())
}

func (s *CaptionStrategy) source() Source {
	if s.kind == CaptionAutomatic {
		return SourceAutoCaptions
	}
	return SourceManualCaptions
}

// Attempt never fails the chain: every problem is a skip. Local files are
// not applicable rather than skipped.
func (s *CaptionStrategy) Attempt(ctx context.Context, req *Request) StepResult {
	if strings.TrimSpace(req.URL) == "" {
		return NotApplicable("source is not a URL")
	}
	if s.fetcher == nil {
		return Skip("caption fetcher unavailable", nil)
	}
	tracks, err := req.captionTracks(ctx, s.fetcher)
	if err != nil {
		return Skip("list caption tracks", err)
	}
	lang, ok := language.Match(req.LanguagePriority, tracks.Languages(s.kind))
	if !ok {
		return Skip(fmt.Sprintf("%s captions", s.kind), ErrNoCaptions).
			WithLanguage(strings.Join(req.LanguagePriority, ","))
	}

	dir := filepath.Join(req.WorkDir, "captions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Skip("create caption dir", err).WithLanguage(lang)
	}
	path, err := s.fetcher.Fetch(ctx, req.URL, lang, s.kind, dir)
	if err != nil {
		return Skip(fmt.Sprintf("fetch %s captions", s.kind), err).WithLanguage(lang)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Skip("read caption file", err).WithLanguage(lang)
	}
	text, segments := ParseVTT(string(data))
	if strings.TrimSpace(text) == "" {
		return Skip(fmt.Sprintf("%s captions contained no text", s.kind), nil).WithLanguage(lang)
	}
	return Success(Result{
		Text:        text,
		Source:      s.source(),
		Language:    lang,
		Segments:    segments,
		CaptionPath: path,
	})
}
