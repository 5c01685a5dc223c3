package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vidnotes/internal/align"
	"vidnotes/internal/fileutil"
	"vidnotes/internal/frames"
	"vidnotes/internal/jobs"
	"vidnotes/internal/logging"
	"vidnotes/internal/notes"
	"vidnotes/internal/notestore"
	"vidnotes/internal/services"
	"vidnotes/internal/transcript"
)

// Stage milestones recorded when each stage starts.
const (
	progressStarting     = 0
	progressUploading    = 10
	progressExtracting   = 20
	progressTranscribing = 40
	progressAligning     = 60
	progressGenerating   = 80
)

// run is the state of one job moving through the pipeline.
type run struct {
	e      *Executor
	id     string
	sub    Submission
	dir    string
	logger *slog.Logger

	stage      jobs.Stage
	videoPath  string
	frames     []frames.Record
	transcript transcript.Result
	captions   map[string]string
	document   notes.Document
	notePath   string
}

// execute drives one job to a terminal state and returns its outcome.
func (e *Executor) execute(ctx context.Context, id string, sub Submission) (Outcome, error) {
	e.active.Add(1)
	defer e.active.Add(-1)

	ctx = services.WithJobID(ctx, id)
	dir := JobDir(e.settings.WorkDir, id)
	base := e.logger.With(logging.String(logging.FieldJobID, id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		err = services.Wrap(services.ErrSourceUnavailable, string(jobs.StageStarting), "prepare", "create job directory", err)
		_ = e.registry.Fail(id, jobError(err, jobs.StageStarting))
		logging.ErrorWithContext(base, "job failed", "job_failed", logging.Error(err))
		return Outcome{JobID: id}, err
	}
	logger, jobLog, err := logging.OpenJobLog(base, filepath.Join(dir, JobLogFileName))
	if err != nil {
		base.Warn("job log unavailable", logging.Error(err))
	}
	defer jobLog.Close()

	r := &run{e: e, id: id, sub: sub, dir: dir, logger: logger, stage: jobs.StageStarting}
	started := time.Now()
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("source", sub.Source()),
	)

	if err := r.pipeline(ctx); err != nil {
		if regErr := e.registry.Fail(id, jobError(err, r.stage)); regErr != nil {
			logger.Warn("failed to record job failure", logging.Error(regErr))
		}
		details := services.Details(err)
		logging.ErrorWithContext(logger, "job failed", "job_failed",
			logging.String(logging.FieldStage, string(r.stage)),
			logging.String(logging.FieldErrorKind, string(details.Kind)),
			logging.String(logging.FieldErrorOperation, details.Operation),
			logging.String(logging.FieldErrorHint, details.Hint),
			logging.Error(err),
			logging.Duration("job_duration", time.Since(started)),
		)
		return r.outcome(), err
	}

	if err := e.registry.Complete(id); err != nil {
		logger.Warn("failed to record job completion", logging.Error(err))
	}
	logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String("note_path", r.notePath),
		logging.Int("embedded_frames", len(r.document.EmbeddedFrameRefs)),
		logging.String("transcript_source", string(r.transcript.Source)),
		logging.Duration("job_duration", time.Since(started)),
	)
	return r.outcome(), nil
}

func (r *run) outcome() Outcome {
	return Outcome{
		JobID:      r.id,
		Document:   r.document,
		Transcript: r.transcript,
		NotePath:   r.notePath,
	}
}

func (r *run) pipeline(ctx context.Context) error {
	if err := r.step(ctx, jobs.StageStarting, progressStarting, "Resolving source", services.ErrSourceUnavailable, r.resolveSource); err != nil {
		return err
	}
	if err := r.step(ctx, jobs.StageExtracting, progressExtracting, r.extractMessage(), services.ErrExtractionFailed, r.extractFrames); err != nil {
		return err
	}
	if err := r.step(ctx, jobs.StageTranscribing, progressTranscribing, "Acquiring transcript", services.ErrAcquisitionFailed, r.acquireTranscript); err != nil {
		return err
	}
	if len(r.transcript.Segments) > 0 && len(r.frames) > 0 {
		if err := r.step(ctx, jobs.StageAligning, progressAligning, "Aligning frames with transcript", services.ErrAlignmentFailed, r.alignFrames); err != nil {
			if !errors.Is(err, services.ErrAlignmentFailed) {
				return err
			}
			r.recordOptional(err)
		}
	}
	return r.step(ctx, jobs.StageGenerating, progressGenerating, "Generating note", services.ErrGenerationFailed, r.generateNote)
}

// step records the stage milestone, runs fn with panic recovery, and tags any
// error with marker unless it already carries a taxonomy kind.
func (r *run) step(ctx context.Context, stage jobs.Stage, progress int, message string, marker error, fn func(context.Context, *slog.Logger) error) (err error) {
	if cerr := ctx.Err(); cerr != nil {
		return services.Wrap(services.ErrCanceled, string(r.stage), "cancel", "job canceled", cerr)
	}
	if err := r.e.registry.Update(r.id, stage, progress, message); err != nil {
		return services.Wrap(marker, string(stage), "record progress", "registry rejected update", err)
	}
	r.stage = stage

	ctx = services.WithStage(ctx, string(stage))
	ctx = services.WithRequestID(ctx, newRequestID())
	logger := logging.ForStage(logging.WithContext(ctx, r.logger), r.e.settings.StageOverrides, string(stage))
	started := time.Now()
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int(logging.FieldProgressPercent, progress),
		logging.String(logging.FieldProgressMessage, message),
	)

	defer func() {
		if rec := recover(); rec != nil {
			err = services.Wrap(marker, string(stage), "panic", fmt.Sprintf("recovered panic: %v", rec), nil)
		}
		if err != nil {
			err = classify(ctx, err, marker, stage)
			logger.Warn("stage failed",
				logging.String(logging.FieldEventType, "stage_failure"),
				logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
				logging.Error(err),
				logging.Duration("stage_duration", time.Since(started)),
			)
			return
		}
		logger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("stage_duration", time.Since(started)),
		)
	}()
	return fn(ctx, logger)
}

// classify ensures err carries exactly one taxonomy kind.
func classify(ctx context.Context, err error, marker error, stage jobs.Stage) error {
	if errors.Is(err, services.ErrCanceled) {
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return services.Wrap(services.ErrCanceled, string(stage), "cancel", "job canceled", err)
	}
	if services.KindOf(err) != services.KindUnknown {
		return err
	}
	return services.Wrap(marker, string(stage), "", "", err)
}

func (r *run) recordOptional(err error) {
	jobErr := jobError(err, r.stage)
	jobErr.Fatal = false
	if regErr := r.e.registry.RecordError(r.id, jobErr); regErr != nil {
		r.logger.Warn("failed to record optional stage error", logging.Error(regErr))
	}
	logging.WarnWithContext(r.logger, "optional stage failed; continuing", "optional_stage_failed",
		logging.String(logging.FieldStage, string(r.stage)),
		logging.Error(err),
		logging.String(logging.FieldImpact, "frames are captioned without transcript context"),
	)
}

func (r *run) resolveSource(ctx context.Context, logger *slog.Logger) error {
	const stage = string(jobs.StageStarting)
	if r.sub.URL != "" {
		if r.e.deps.Downloader == nil {
			return services.Wrap(services.ErrSourceUnavailable, stage, "download", "no downloader configured for URL sources", services.ErrConfiguration)
		}
		if err := r.e.registry.Update(r.id, jobs.StageUploading, progressUploading, "Downloading source"); err != nil {
			return services.Wrap(services.ErrSourceUnavailable, stage, "record progress", "registry rejected update", err)
		}
		r.stage = jobs.StageUploading
		path, err := r.e.deps.Downloader.Download(ctx, r.sub.URL, filepath.Join(r.dir, SourceDirName))
		if err != nil {
			return services.Wrap(services.ErrSourceUnavailable, string(jobs.StageUploading), "download", "could not download source", err)
		}
		r.videoPath = path
		logger.Info("source downloaded", logging.String("video_path", path))
	} else {
		info, err := os.Stat(r.sub.FilePath)
		if err != nil {
			return services.Wrap(services.ErrSourceUnavailable, stage, "stat", "source file is not accessible", err)
		}
		if !info.Mode().IsRegular() {
			return services.Wrap(services.ErrSourceUnavailable, stage, "stat", "source is not a regular file", nil)
		}
		r.videoPath = r.sub.FilePath
	}

	if r.e.deps.Probe == nil {
		return nil
	}
	probe, err := r.e.deps.Probe(ctx, r.videoPath)
	if err != nil {
		return services.Wrap(services.ErrSourceUnavailable, string(r.stage), "probe", "source is not readable media", err)
	}
	if _, ok := probe.VideoStream(); !ok {
		return services.Wrap(services.ErrSourceUnavailable, string(r.stage), "probe", "source has no video stream", nil)
	}
	logger.Debug("source probed",
		logging.Float64("duration_seconds", probe.DurationSeconds()),
		logging.Int("audio_streams", probe.AudioStreamCount()),
	)
	return nil
}

func (r *run) smartMode() bool {
	if r.sub.SmartMode != nil {
		return *r.sub.SmartMode
	}
	return r.e.settings.SmartDefault
}

func (r *run) extractMessage() string {
	if r.smartMode() {
		return "Selecting relevant frames"
	}
	return "Smart mode off; skipping frame selection"
}

func (r *run) extractFrames(ctx context.Context, logger *slog.Logger) error {
	if !r.smartMode() {
		logger.Info("frame selection skipped", logging.String("reason", "smart mode disabled"))
		return nil
	}
	if r.e.deps.Frames == nil {
		return services.Wrap(services.ErrExtractionFailed, string(jobs.StageExtracting), "select", "no frame selector configured", services.ErrConfiguration)
	}
	cfg := r.e.settings.Frames
	if r.sub.SampleIntervalSeconds > 0 {
		cfg.SampleIntervalSeconds = r.sub.SampleIntervalSeconds
	}
	records, err := frames.Collect(r.e.deps.Frames.Select(ctx, r.videoPath, cfg, FramesDir(r.e.settings.WorkDir, r.id)))
	if err != nil {
		return err
	}
	r.frames = records
	if err := writeJSON(filepath.Join(r.dir, FramesFileName), records); err != nil {
		logger.Warn("frame manifest not written", logging.Error(err))
	}
	logger.Info("frames selected", logging.Int("frame_count", len(records)))
	return nil
}

func (r *run) acquireTranscript(ctx context.Context, logger *slog.Logger) error {
	if r.e.deps.Transcripts == nil {
		return services.Wrap(services.ErrAcquisitionFailed, string(jobs.StageTranscribing), "acquire", "no transcript acquirer configured", services.ErrConfiguration)
	}
	priority := r.sub.LanguagePriority
	if len(priority) == 0 {
		priority = r.e.settings.LanguagePriority
	}
	result, err := r.e.deps.Transcripts.Acquire(ctx, transcript.Request{
		Path:             r.videoPath,
		URL:              r.sub.URL,
		LanguagePriority: priority,
		WorkDir:          r.dir,
	})
	if err != nil {
		return err
	}
	r.recordFallbacks(result.Attempts)
	r.transcript = result
	logger.Info("transcript acquired",
		logging.String("transcript_source", string(result.Source)),
		logging.String("language", result.Language),
		logging.Int("segment_count", len(result.Segments)),
	)
	return nil
}

// recordFallbacks stores each strategy skipped before the winning one as a
// non-fatal CaptionsUnavailable error. Strategies that did not apply to the
// source are not failures and are left out. A failed acquisition already
// summarizes its skips in the fatal error.
func (r *run) recordFallbacks(attempts []transcript.Attempt) {
	for _, attempt := range attempts {
		if attempt.Outcome != transcript.OutcomeSkip {
			continue
		}
		if err := r.e.registry.RecordError(r.id, jobs.Error{
			Kind:    string(services.KindCaptionsUnavailable),
			Stage:   jobs.StageTranscribing,
			Message: fallbackMessage(attempt),
		}); err != nil {
			r.logger.Warn("failed to record fallback", logging.Error(err))
		}
	}
}

// fallbackMessage reads like "manual_captions unavailable (tried en,de): no
// caption track in any priority language".
func fallbackMessage(attempt transcript.Attempt) string {
	message := attempt.Strategy + " unavailable"
	if lang := strings.TrimSpace(attempt.Language); lang != "" {
		message += " (tried " + lang + ")"
	}
	if reason := strings.TrimSpace(attempt.Reason); reason != "" {
		message += ": " + reason
	}
	return message
}

func (r *run) alignFrames(ctx context.Context, logger *slog.Logger) error {
	alignments, err := align.Align(r.transcript.Segments, r.frames, r.e.settings.AlignWindow)
	if err != nil {
		return services.Wrap(services.ErrAlignmentFailed, string(jobs.StageAligning), "align", "could not align frames", err)
	}
	if err := align.Write(filepath.Join(r.dir, align.FileName), alignments); err != nil {
		return services.Wrap(services.ErrAlignmentFailed, string(jobs.StageAligning), "write", "could not write alignment", err)
	}
	r.captions = align.Captions(alignments)
	logger.Info("frames aligned",
		logging.Int("frame_count", len(alignments)),
		logging.Int("captioned_frames", len(r.captions)),
	)
	return nil
}

func (r *run) generateNote(ctx context.Context, logger *slog.Logger) error {
	const stage = string(jobs.StageGenerating)
	if r.e.deps.Notes == nil {
		return services.Wrap(services.ErrGenerationFailed, stage, "generate", "no note synthesizer configured", services.ErrConfiguration)
	}
	doc, err := r.e.deps.Notes.Synthesize(ctx, notes.Input{
		JobID:      r.id,
		Transcript: r.transcript,
		Frames:     r.frames,
		Captions:   r.captions,
	})
	if err != nil {
		return err
	}
	path := filepath.Join(r.dir, NoteFileName)
	if err := fileutil.WriteFileAtomic(path, []byte(doc.Body), 0o644); err != nil {
		return services.Wrap(services.ErrGenerationFailed, stage, "write note", "could not write notes.md", err)
	}
	if r.e.deps.Store != nil {
		if err := r.e.deps.Store.Save(ctx, notestore.Note{
			JobID:            r.id,
			Source:           r.sub.Source(),
			TranscriptSource: string(r.transcript.Source),
			Language:         r.transcript.Language,
			Markdown:         doc.Body,
			Frames:           doc.EmbeddedFrameRefs,
		}); err != nil {
			return services.Wrap(services.ErrGenerationFailed, stage, "persist note", "could not save note", err)
		}
	}
	r.document = doc
	r.notePath = path
	logger.Info("note written",
		logging.String("note_path", path),
		logging.Int("embedded_frames", len(doc.EmbeddedFrameRefs)),
	)
	return nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, data, 0o644)
}
