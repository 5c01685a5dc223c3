package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"vidnotes/internal/config"
	"vidnotes/internal/frames"
	"vidnotes/internal/frames/clip"
	"vidnotes/internal/jobmirror"
	"vidnotes/internal/jobs"
	"vidnotes/internal/logging"
	"vidnotes/internal/media/ffprobe"
	"vidnotes/internal/notes"
	"vidnotes/internal/notestore"
	"vidnotes/internal/notifications"
	"vidnotes/internal/services/llm"
	"vidnotes/internal/services/openaichat"
	"vidnotes/internal/services/whisperx"
	"vidnotes/internal/services/ytdlp"
	"vidnotes/internal/transcript"
	"vidnotes/internal/workflow"
)

// Runtime is the assembled pipeline plus the resources it owns.
type Runtime struct {
	Registry *jobs.Registry
	Deps     workflow.Deps
	Store    *notestore.Store
	Mirror   *jobmirror.Mirror
	Notifier *notifications.Watcher

	closers []io.Closer
}

// Build wires every pipeline collaborator from configuration. The note store
// is always opened; the Redis mirror only when redis.addr is set and the ntfy
// watcher only when notifications.ntfy_topic is set. The CLIP
// scorer is loaded when smart mode is on by default or its model files are
// configured; a load failure is fatal only in the first case.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	rt := &Runtime{}

	store, err := notestore.Open(cfg.NotesDBPath())
	if err != nil {
		return nil, fmt.Errorf("open note store: %w", err)
	}
	rt.Store = store
	rt.closers = append(rt.closers, store)

	var registryOpts []jobs.Option
	if cfg.RedisEnabled() {
		mirror, err := jobmirror.New(ctx, cfg.Redis, logger)
		if err != nil {
			logging.WarnWithContext(logger, "redis job mirror disabled", "mirror_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check redis.addr or unset it"),
				logging.String(logging.FieldImpact, "job progress is only visible through the HTTP API"),
			)
		} else {
			rt.Mirror = mirror
			rt.closers = append(rt.closers, mirror)
			registryOpts = append(registryOpts, jobs.WithObserver(mirror.Observe))
		}
	}
	if cfg.NotificationsEnabled() {
		watcher := notifications.NewWatcher(notifications.NewService(cfg), logger)
		rt.Notifier = watcher
		rt.closers = append(rt.closers, watcher)
		registryOpts = append(registryOpts, jobs.WithObserver(watcher.Observe))
	}
	rt.Registry = jobs.New(registryOpts...)

	selector, scorer, err := buildSelector(cfg, logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if selector != nil {
		rt.Deps.Frames = selector
		rt.closers = append(rt.closers, scorer)
	}

	downloader := ytdlp.New(cfg.YTDLPBinary())
	stt := whisperx.NewService(whisperx.Config{
		Model:       cfg.WhisperX.Model,
		CUDAEnabled: cfg.WhisperX.CUDAEnabled,
		VADMethod:   cfg.WhisperX.VADMethod,
		HFToken:     cfg.WhisperX.HFToken,
		CacheDir:    cfg.WhisperX.CacheDir,
	}, cfg.FFmpegBinary(), cfg.FFprobeBinary())

	var captions transcript.CaptionFetcher
	if cfg.Transcript.CaptionsEnabled {
		captions = downloader
	}

	generator, err := buildGenerator(cfg.GetLLM())
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	ffprobeBinary := cfg.FFprobeBinary()
	rt.Deps.Downloader = downloader
	rt.Deps.Probe = func(ctx context.Context, path string) (ffprobe.Result, error) {
		return ffprobe.Inspect(ctx, ffprobeBinary, path)
	}
	rt.Deps.Transcripts = transcript.NewAcquirer(logger, transcript.DefaultStrategies(captions, stt)...)
	rt.Deps.Notes = notes.NewSynthesizer(generator, notes.NewTokenCounter(cfg.Notes.TokenEncoding, logger), notes.Options{
		BucketSeconds:       cfg.Notes.BucketSeconds,
		TopK:                cfg.Notes.TopK,
		SecondaryThreshold:  cfg.Notes.SecondaryThreshold,
		URLTemplate:         cfg.Notes.URLTemplate,
		MaxTranscriptTokens: cfg.Notes.MaxTranscriptTokens,
	}, logger)
	rt.Deps.Store = store
	return rt, nil
}

// Executor builds the pipeline executor over this runtime.
func (rt *Runtime) Executor(cfg *config.Config, logger *slog.Logger) *workflow.Executor {
	return workflow.NewExecutor(rt.Registry, rt.Deps, workflow.SettingsFromConfig(cfg), logger)
}

// Close releases owned resources in reverse order of acquisition.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func buildSelector(cfg *config.Config, logger *slog.Logger) (*frames.Selector, io.Closer, error) {
	models := cfg.Frames.CLIP
	configured := strings.TrimSpace(models.ImageModel) != "" &&
		strings.TrimSpace(models.TextModel) != "" &&
		strings.TrimSpace(models.Tokenizer) != ""
	if !cfg.Frames.Enabled && !configured {
		return nil, nil, nil
	}
	scorer, err := clip.New(clip.Config{
		ImageModel:    models.ImageModel,
		TextModel:     models.TextModel,
		Tokenizer:     models.Tokenizer,
		SharedLibrary: models.SharedLibrary,
	})
	if err != nil {
		if cfg.Frames.Enabled {
			return nil, nil, fmt.Errorf("load CLIP models: %w", err)
		}
		logging.WarnWithContext(logger, "frame scorer unavailable", "clip_load_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "submissions with smart_mode=true will fail at extracting"),
		)
		return nil, nil, nil
	}
	return frames.NewSelector(frames.NewFFmpegDecoder(cfg.FFmpegBinary(), cfg.FFprobeBinary()), scorer, logger), scorer, nil
}

func buildGenerator(cfg config.LLMConfig) (notes.Generator, error) {
	if strings.EqualFold(cfg.Provider, config.ProviderOpenAI) {
		client, err := openaichat.New(openaichat.Config{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			TimeoutSeconds: cfg.TimeoutSeconds,
			Temperature:    cfg.Temperature,
			MaxTokens:      cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("configure openai generator: %w", err)
		}
		return client, nil
	}
	return llm.NewClient(llm.Config{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		Referer:        cfg.Referer,
		Title:          cfg.Title,
		TimeoutSeconds: cfg.TimeoutSeconds,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
	}), nil
}
