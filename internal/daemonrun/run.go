package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"vidnotes/internal/config"
	"vidnotes/internal/daemon"
	"vidnotes/internal/logging"
	"vidnotes/internal/services/whisperx"
	"vidnotes/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the vidnotes daemon and blocks until SIGINT, SIGTERM, or ctx
// cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := newLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	logPath := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	logging.PruneLogs(logger, cfg.Paths.LogDir, "*.log", cfg.Logging.RetentionDays, logPath)

	pidPath := filepath.Join(cfg.Paths.DataDir, "vidnotesd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := Build(signalCtx, cfg, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "pipeline setup failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run 'vidnotes check' to diagnose"),
		)
		return err
	}
	defer rt.Close()

	d, err := daemon.New(cfg, rt.Executor(cfg, logger), rt.Store, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check api.bind and that no other daemon holds the lock"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("vidnotes daemon shutting down")
	d.Stop()
	return nil
}

// Process runs one submission to completion in the calling process without a
// daemon. SIGINT cancels the job.
func Process(cmdCtx context.Context, cfg *config.Config, opts Options, sub workflow.Submission) (workflow.Outcome, error) {
	if cfg == nil {
		return workflow.Outcome{}, fmt.Errorf("config is required")
	}
	ctx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return workflow.Outcome{}, err
	}
	logger, err := newLogger(cfg, opts)
	if err != nil {
		return workflow.Outcome{}, fmt.Errorf("init logger: %w", err)
	}
	rt, err := Build(ctx, cfg, logger)
	if err != nil {
		return workflow.Outcome{}, err
	}
	defer rt.Close()
	return rt.Executor(cfg, logger).Run(ctx, sub)
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		copyCfg := *cfg
		copyCfg.Logging.Level = level
		return logging.NewFromConfig(&copyCfg)
	}
	return logging.NewFromConfig(cfg)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	llmCfg := cfg.GetLLM()
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("ffmpeg_available", binaryAvailable(cfg.FFmpegBinary())),
		logging.Bool("ffprobe_available", binaryAvailable(cfg.FFprobeBinary())),
		logging.Bool("ytdlp_available", binaryAvailable(cfg.YTDLPBinary())),
		logging.Bool("uvx_available", binaryAvailable(whisperx.UVXCommand)),
		logging.Bool("smart_mode_default", cfg.Frames.Enabled),
		logging.Bool("captions_enabled", cfg.Transcript.CaptionsEnabled),
		logging.String("llm_provider", llmCfg.Provider),
		logging.String("llm_model", llmCfg.Model),
		logging.Bool("llm_key_present", strings.TrimSpace(llmCfg.APIKey) != ""),
		logging.Bool("redis_mirror", cfg.RedisEnabled()),
		logging.String("whisperx_model", strings.TrimSpace(cfg.WhisperX.Model)),
		logging.Bool("whisperx_cuda", cfg.WhisperX.CUDAEnabled),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
