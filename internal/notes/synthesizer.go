package notes

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"vidnotes/internal/logging"
	"vidnotes/internal/services"
)

const stageName = "generating"

// Synthesizer turns a transcript and selected frames into a markdown note.
type Synthesizer struct {
	generator Generator
	counter   TokenCounter
	opts      Options
	logger    *slog.Logger
}

// NewSynthesizer constructs a synthesizer. A nil counter uses the character
// heuristic.
func NewSynthesizer(generator Generator, counter TokenCounter, opts Options, logger *slog.Logger) *Synthesizer {
	if counter == nil {
		counter = HeuristicCounter{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Synthesizer{
		generator: generator,
		counter:   counter,
		opts:      opts.withDefaults(),
		logger:    logging.NewComponentLogger(logger, "notes"),
	}
}

// Synthesize generates the note. Generator failures and empty bodies are
// reported as services.ErrGenerationFailed.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (Document, error) {
	if s.generator == nil {
		return Document{}, services.Wrap(services.ErrGenerationFailed, stageName, "generate", "no text generator configured", services.ErrConfiguration)
	}
	if err := ctx.Err(); err != nil {
		return Document{}, services.Wrap(services.ErrCanceled, stageName, "generate", "canceled before generation", err)
	}

	buckets := Bucketize(in.Frames, s.opts.BucketSeconds, s.opts.TopK)
	prompt := BuildPrompt(in, buckets, s.opts, s.counter)
	logger := logging.WithContext(ctx, s.logger)
	logger.Debug("note prompt built",
		logging.Int("prompt_tokens", s.counter.Count(prompt)),
		logging.Int("bucket_count", len(buckets)),
		logging.Int("frame_count", len(in.Frames)),
	)

	started := time.Now()
	body, err := s.generator.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Document{}, services.Wrap(services.ErrCanceled, stageName, "generate", "generation canceled", err)
		}
		return Document{}, services.Wrap(services.ErrGenerationFailed, stageName, "generate", "text generation failed", err)
	}
	body = strings.TrimSpace(stripOuterFence(strings.TrimSpace(body)))
	if body == "" {
		return Document{}, services.Wrap(services.ErrGenerationFailed, stageName, "generate", "generator returned an empty body", nil)
	}

	doc := s.finish(body, in)
	logger.Info("note generated",
		logging.String(logging.FieldEventType, "note_generated"),
		logging.Duration("generation_duration", time.Since(started)),
		logging.Int("embedded_frames", len(doc.EmbeddedFrameRefs)),
		logging.Int("note_chars", len(doc.Body)),
	)
	return doc, nil
}

func (s *Synthesizer) finish(body string, in Input) Document {
	idx := newFrameIndex(in.Frames, s.opts.URLTemplate, in.JobID)
	body, referenced := rewriteImageRefs(body, idx)
	body = appendVisualContent(body, in, idx, referenced, s.opts.SecondaryThreshold)
	return Document{
		Body:              sourceHeader(in.Transcript) + strings.TrimRight(body, "\n") + "\n",
		EmbeddedFrameRefs: embeddedRefs(in.Frames, referenced),
	}
}
