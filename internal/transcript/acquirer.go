package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"vidnotes/internal/logging"
	"vidnotes/internal/services"
)

const stageName = "transcribing"

// Acquirer folds an ordered list of strategies into one transcript.
type Acquirer struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewAcquirer builds an acquirer over strategies, tried in order.
func NewAcquirer(logger *slog.Logger, strategies ...Strategy) *Acquirer {
	return &Acquirer{
		strategies: strategies,
		logger:     logging.NewComponentLogger(logger, "transcript"),
	}
}

// DefaultStrategies returns the standard chain: manual captions, automatic
// captions, then audio transcription. A nil fetcher drops the caption steps.
func DefaultStrategies(captions CaptionFetcher, stt SpeechToText) []Strategy {
	out := make([]Strategy, 0, 3)
	if captions != nil {
		out = append(out,
			NewCaptionStrategy(captions, CaptionManual),
			NewCaptionStrategy(captions, CaptionAutomatic),
		)
	}
	out = append(out, NewAudioStrategy(stt))
	return out
}

// Strategies returns the configured strategy names in order.
func (a *Acquirer) Strategies() []string {
	names := make([]string, 0, len(a.strategies))
	for _, s := range a.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Acquire runs the chain. The returned Result always carries the attempts
// made, including when an error is returned, so callers can record the
// skipped fallbacks.
func (a *Acquirer) Acquire(ctx context.Context, req Request) (Result, error) {
	logger := logging.WithContext(ctx, a.logger)
	var (
		attempts []Attempt
		skipped  []string
	)
	if len(a.strategies) == 0 {
		return Result{}, services.Wrap(services.ErrAcquisitionFailed, stageName, "acquire", "no transcript strategies configured", nil)
	}
	for _, strategy := range a.strategies {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempts}, services.Wrap(services.ErrCanceled, stageName, "acquire", "acquisition canceled", err)
		}
		name := strategy.Name()
		step := strategy.Attempt(ctx, &req)
		attempt := Attempt{Strategy: name, Outcome: step.Outcome, Reason: step.describe(), Language: step.Language}
		attempts = append(attempts, attempt)

		switch step.Outcome {
		case OutcomeSuccess:
			result := step.Result
			result.Attempts = attempts
			logger.Info("transcript acquired",
				logging.String(logging.FieldEventType, "transcript_acquired"),
				logging.String("strategy", name),
				logging.String("transcript_source", string(result.Source)),
				logging.String("language", result.Language),
				logging.Int("segments", len(result.Segments)),
				logging.Int("transcript_chars", len(result.Text)),
			)
			return result, nil
		case OutcomeNotApplicable:
			logger.Debug("transcript strategy not applicable",
				logging.String(logging.FieldEventType, "transcript_strategy_not_applicable"),
				logging.String("strategy", name),
				logging.String("reason", attempt.Reason),
			)
		case OutcomeSkip:
			skipped = append(skipped, name+": "+attempt.Reason)
			logger.Info("transcript strategy skipped",
				logging.String(logging.FieldEventType, "transcript_strategy_skipped"),
				logging.String("strategy", name),
				logging.String("reason", attempt.Reason),
			)
		default:
			if errors.Is(step.Err, context.Canceled) || errors.Is(step.Err, context.DeadlineExceeded) {
				return Result{Attempts: attempts}, services.Wrap(services.ErrCanceled, stageName, name, "acquisition canceled", step.Err)
			}
			return Result{Attempts: attempts}, services.Wrap(services.ErrAcquisitionFailed, stageName, name, step.Reason, step.Err)
		}
	}
	message := "no strategy applies to this source"
	if len(skipped) > 0 {
		message = fmt.Sprintf("every strategy skipped (%s)", strings.Join(skipped, "; "))
	}
	return Result{Attempts: attempts}, services.Wrap(services.ErrAcquisitionFailed, stageName, "acquire", message, nil)
}
