package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sys/unix"

	"vidnotes/internal/config"
	"vidnotes/internal/deps"
	"vidnotes/internal/jobmirror"
	"vidnotes/internal/services/llm"
	"vidnotes/internal/services/openaichat"
	"vidnotes/internal/services/whisperx"
)

// CheckLLM verifies that the note generation API is reachable and the key is
// valid. It uses a 30-second timeout and a single attempt (no retries).
func CheckLLM(ctx context.Context, name string, cfg config.LLMConfig) Result {
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var err error
	if strings.EqualFold(cfg.Provider, config.ProviderOpenAI) {
		client, newErr := openaichat.New(openaichat.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if newErr != nil {
			return Result{Name: name, Detail: newErr.Error()}
		}
		err = client.HealthCheck(checkCtx)
	} else {
		client := llm.NewClient(llm.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Referer: cfg.Referer,
			Title:   cfg.Title,
		}, llm.WithRetryMaxAttempts(1))
		err = client.HealthCheck(checkCtx)
	}
	if err != nil {
		return Result{Name: name, Detail: summarizeLLMError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckRedis pings the job status mirror.
func CheckRedis(ctx context.Context, cfg config.Redis) Result {
	const name = "Redis"
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts, err := jobmirror.Options(cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	client := redis.NewClient(opts)
	defer client.Close()
	if err := client.Ping(checkCtx).Err(); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (ping failed: %v)", opts.Addr, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", opts.Addr)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCLIPModels verifies the frame scorer's model files. Nothing is
// checked when smart mode is off by default.
func CheckCLIPModels(cfg *config.Config) []deps.Status {
	if !cfg.Frames.Enabled {
		return nil
	}
	clip := cfg.Frames.CLIP
	return deps.CheckFiles([]deps.Requirement{
		{Name: "CLIP image model", Command: clip.ImageModel, Description: "Scores sampled frames"},
		{Name: "CLIP text model", Command: clip.TextModel, Description: "Embeds the concept vocabulary"},
		{Name: "CLIP tokenizer", Command: clip.Tokenizer, Description: "Tokenizes concept prompts"},
		{Name: "ONNX Runtime", Command: clip.SharedLibrary, Description: "Runs the CLIP models; defaults to the system library", Optional: true},
	})
}

// CheckSystemDeps evaluates all system-level dependencies for the given config.
// Both the daemon status endpoint and the CLI check command use this. LLM
// checks are not included because they cost an API call.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for frame sampling and audio extraction",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Required for media inspection",
		},
		{
			Name:        "yt-dlp",
			Command:     cfg.YTDLPBinary(),
			Description: "Required for URL downloads and captions",
		},
		{
			Name:        "uvx",
			Command:     whisperx.UVXCommand,
			Description: "Required for WhisperX audio transcription",
		},
	}
	statuses := deps.CheckBinaries(requirements)
	return append(statuses, CheckCLIPModels(cfg)...)
}

// summarizeLLMError produces a human-readable summary for LLM health check failures.
func summarizeLLMError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (LLM API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (LLM API unreachable)"
	}
	return err.Error()
}
