package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir string `toml:"work_dir"`
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	EnvFile string `toml:"env_file"`
}

// API contains the daemon HTTP listener settings.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
	// MaxUploadMB caps multipart upload size accepted by POST /api/jobs.
	MaxUploadMB int `toml:"max_upload_mb"`
	// LocalRoots lists directories a JSON file_path submission may read from.
	// When empty, file_path submissions require a configured token.
	LocalRoots []string `toml:"local_roots"`
}

// Pipeline contains executor scheduling settings.
type Pipeline struct {
	Workers           int `toml:"workers"`
	QueueSize         int `toml:"queue_size"`
	JobRetentionHours int `toml:"job_retention_hours"`
}

// CLIP points at the ONNX image/text encoders and tokenizer used for frame scoring.
type CLIP struct {
	ImageModel    string `toml:"image_model"`
	TextModel     string `toml:"text_model"`
	Tokenizer     string `toml:"tokenizer"`
	SharedLibrary string `toml:"shared_library"`
}

// Frames contains frame relevance selection settings.
type Frames struct {
	// Enabled is the default smart mode; submissions may override it.
	Enabled               bool     `toml:"enabled"`
	SampleIntervalSeconds float64  `toml:"sample_interval_seconds"`
	Concepts              []string `toml:"concepts"`
	Threshold             float64  `toml:"threshold"`
	JPEGQuality           int      `toml:"jpeg_quality"`
	CLIP                  CLIP     `toml:"clip"`
}

// Transcript contains transcript acquisition settings.
type Transcript struct {
	LanguagePriority []string `toml:"language_priority"`
	CaptionsEnabled  bool     `toml:"captions_enabled"`
	AlignWindow      float64  `toml:"align_window_seconds"`
}

// WhisperX contains local speech-to-text settings.
type WhisperX struct {
	Model       string `toml:"model"`
	CUDAEnabled bool   `toml:"cuda_enabled"`
	VADMethod   string `toml:"vad_method"`
	HFToken     string `toml:"hf_token"`
	CacheDir    string `toml:"cache_dir"`
}

// LLM contains text generation connection settings.
type LLM struct {
	// Provider selects the client: "openrouter" or "openai".
	Provider       string  `toml:"provider"`
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	Referer        string  `toml:"referer"`
	Title          string  `toml:"title"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Temperature    float64 `toml:"temperature"`
	MaxTokens      int     `toml:"max_tokens"`
}

// Notes contains note synthesis settings.
type Notes struct {
	BucketSeconds       float64 `toml:"bucket_seconds"`
	TopK                int     `toml:"top_k"`
	SecondaryThreshold  float64 `toml:"secondary_threshold"`
	URLTemplate         string  `toml:"url_template"`
	MaxTranscriptTokens int     `toml:"max_transcript_tokens"`
	TokenEncoding       string  `toml:"token_encoding"`
}

// Redis contains the optional job status mirror settings.
type Redis struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	KeyPrefix  string `toml:"key_prefix"`
	TTLSeconds int    `toml:"ttl_seconds"`
}

// Notifications contains the ntfy push settings for finished jobs.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	RetentionDays  int               `toml:"retention_days"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// Config encapsulates all configuration values for vidnotes.
//
// Configuration sections by subsystem:
//   - Paths: working, data, and log directories
//   - API: daemon listener and bearer token
//   - Pipeline: worker pool and job retention
//   - Frames: frame sampling and CLIP scoring
//   - Transcript: caption language priority
//   - WhisperX: audio transcription fallback
//   - LLM: note generation backend
//   - Notes: bucketing and prompt budget
//   - Redis: optional job status mirror
//   - Notifications: optional ntfy push on job completion
//   - Logging: log format, level, and retention
type Config struct {
	Paths      Paths      `toml:"paths"`
	API        API        `toml:"api"`
	Pipeline   Pipeline   `toml:"pipeline"`
	Frames     Frames     `toml:"frames"`
	Transcript Transcript `toml:"transcript"`
	WhisperX   WhisperX   `toml:"whisperx"`
	LLM        LLM        `toml:"llm"`
	Notes      Notes      `toml:"notes"`
	Redis         Redis         `toml:"redis"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.loadEnvFile(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vidnotes.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// loadEnvFile populates the process environment from the configured .env file.
// Variables already present in the environment are left untouched.
func (c *Config) loadEnvFile() error {
	envPath, err := expandPath(strings.TrimSpace(c.Paths.EnvFile))
	if err != nil {
		return fmt.Errorf("paths.env_file: %w", err)
	}
	c.Paths.EnvFile = envPath
	if envPath == "" {
		return nil
	}
	if _, err := os.Stat(envPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("load env file %s: %w", envPath, err)
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JobDir returns the working directory owned by a single job.
func (c *Config) JobDir(jobID string) string {
	return filepath.Join(c.Paths.WorkDir, jobID)
}

// NotesDBPath returns the sqlite database holding persisted notes.
func (c *Config) NotesDBPath() string {
	return filepath.Join(c.Paths.DataDir, "notes.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "vidnotesd.lock")
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media validation.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// YTDLPBinary returns the yt-dlp executable name used for captions and downloads.
func (c *Config) YTDLPBinary() string {
	return "yt-dlp"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the resolved text generation settings.
type LLMConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
	Temperature    float64
	MaxTokens      int
}

// GetLLM returns the note generation connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider:       strings.TrimSpace(c.LLM.Provider),
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
		Temperature:    c.LLM.Temperature,
		MaxTokens:      c.LLM.MaxTokens,
	}
}

// NotificationsEnabled reports whether finished jobs are pushed to ntfy.
func (c *Config) NotificationsEnabled() bool {
	return strings.TrimSpace(c.Notifications.NtfyTopic) != ""
}

// RedisEnabled reports whether the job status mirror should run.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}
