package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"vidnotes/internal/config"
)

func TestLoadDefaultConfigUsesEnvKeyAndExpandsPaths(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWork := filepath.Join(tempHome, ".local", "share", "vidnotes", "jobs")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.API.Bind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if cfg.LLM.APIKey != "test-key" {
		t.Fatalf("expected LLM key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.BaseURL != "https://openrouter.ai/api/v1/chat/completions" {
		t.Fatalf("unexpected LLM base url: %q", cfg.LLM.BaseURL)
	}
	if !cfg.Frames.Enabled {
		t.Fatal("expected frame selection enabled by default")
	}
	if cfg.Notes.BucketSeconds != 120 || cfg.Notes.TopK != 3 {
		t.Fatalf("unexpected notes defaults: %+v", cfg.Notes)
	}
	if cfg.WhisperX.VADMethod != "silero" {
		t.Fatalf("expected WhisperX VAD default to silero, got %q", cfg.WhisperX.VADMethod)
	}
	if cfg.RedisEnabled() {
		t.Fatal("expected redis mirror disabled by default")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENROUTER_API_KEY", "")
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "vidnotes.toml")

	type payload struct {
		LLM struct {
			APIKey string `toml:"api_key"`
			Model  string `toml:"model"`
		} `toml:"llm"`
		Pipeline struct {
			Workers int `toml:"workers"`
		} `toml:"pipeline"`
		Frames struct {
			Concepts []string `toml:"concepts"`
		} `toml:"frames"`
	}
	custom := payload{}
	custom.LLM.APIKey = "abc123"
	custom.LLM.Model = "custom/model"
	custom.Pipeline.Workers = 4
	custom.Frames.Concepts = []string{" a whiteboard ", "a whiteboard", "code on screen"}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.LLM.APIKey != "abc123" {
		t.Fatalf("expected LLM key from file, got %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.Model != "custom/model" {
		t.Fatalf("expected model override, got %q", cfg.LLM.Model)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.Pipeline.Workers)
	}
	if len(cfg.Frames.Concepts) != 2 || cfg.Frames.Concepts[0] != "a whiteboard" {
		t.Fatalf("expected deduplicated concepts, got %v", cfg.Frames.Concepts)
	}
}

func TestOpenAIProviderDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-env")
	configPath := filepath.Join(t.TempDir(), "vidnotes.toml")
	if err := os.WriteFile(configPath, []byte("[llm]\nprovider = \"OpenAI\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.Provider != config.ProviderOpenAI {
		t.Fatalf("expected openai provider, got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.APIKey != "sk-env" {
		t.Fatalf("expected key from OPENAI_API_KEY, got %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.BaseURL != "https://api.openai.com/v1" {
		t.Fatalf("unexpected base url: %q", cfg.LLM.BaseURL)
	}
}

func TestLoadExpandsLocalRoots(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	configPath := filepath.Join(t.TempDir(), "vidnotes.toml")
	body := "[api]\nlocal_roots = [\"~/videos\", \" \", \"/srv/media/../media\"]\n"
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.API.LocalRoots) != 2 {
		t.Fatalf("expected blank root dropped, got %v", cfg.API.LocalRoots)
	}
	if cfg.API.LocalRoots[0] != filepath.Join(home, "videos") || cfg.API.LocalRoots[1] != "/srv/media" {
		t.Fatalf("unexpected roots %v", cfg.API.LocalRoots)
	}
}

func TestEnvVarOverridesConfigFileForSecrets(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "vidnotes.toml")
	contents := "[llm]\napi_key = \"file-key\"\n[whisperx]\nhf_token = \"file-hf\"\n[api]\ntoken = \"file-token\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("OPENROUTER_API_KEY", "env-key")
	t.Setenv("HF_TOKEN", "env-hf")
	t.Setenv("VIDNOTES_API_TOKEN", "env-token")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("expected LLM key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.WhisperX.HFToken != "env-hf" {
		t.Errorf("expected HuggingFace token from env, got %q", cfg.WhisperX.HFToken)
	}
	if cfg.API.Token != "env-token" {
		t.Errorf("expected API token from env, got %q", cfg.API.Token)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	envPath := filepath.Join(dir, "vidnotes.env")
	if err := os.WriteFile(envPath, []byte("VIDNOTES_TEST_ENVFILE_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	configPath := filepath.Join(dir, "vidnotes.toml")
	contents := "[paths]\nenv_file = \"" + filepath.ToSlash(envPath) + "\"\n[llm]\napi_key = \"k\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("VIDNOTES_TEST_ENVFILE_KEY") })

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.EnvFile != envPath {
		t.Fatalf("unexpected env file path: %q", cfg.Paths.EnvFile)
	}
	if got := os.Getenv("VIDNOTES_TEST_ENVFILE_KEY"); got != "from-dotenv" {
		t.Fatalf("expected env file to populate environment, got %q", got)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENROUTER_API_KEY", "")
	_, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatal("expected error when no API key is available")
	}
	if !strings.Contains(err.Error(), "llm.api_key") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "your_llm_api_key_here") {
		t.Fatalf("sample config missing placeholder key: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.WorkDir, "vidnotes") {
		t.Fatalf("expected work dir to contain vidnotes, got %q", cfg.Paths.WorkDir)
	}
	if cfg.Notes.URLTemplate != "/api/jobs/{job_id}/frames/{file_ref}" {
		t.Fatalf("unexpected url template: %q", cfg.Notes.URLTemplate)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	base := func() config.Config {
		cfg := config.Default()
		cfg.LLM.APIKey = "key"
		return cfg
	}

	cases := map[string]func(*config.Config){
		"workers":            func(c *config.Config) { c.Pipeline.Workers = 0 },
		"queue size":         func(c *config.Config) { c.Pipeline.QueueSize = -1 },
		"threshold":          func(c *config.Config) { c.Frames.Threshold = 1.5 },
		"sample interval":    func(c *config.Config) { c.Frames.SampleIntervalSeconds = 0 },
		"concepts":           func(c *config.Config) { c.Frames.Concepts = nil },
		"provider":           func(c *config.Config) { c.LLM.Provider = "anthropic" },
		"bucket":             func(c *config.Config) { c.Notes.BucketSeconds = 0 },
		"top k":              func(c *config.Config) { c.Notes.TopK = 0 },
		"url template":       func(c *config.Config) { c.Notes.URLTemplate = "/frames/{file_ref}" },
		"secondary":          func(c *config.Config) { c.Notes.SecondaryThreshold = 2 },
		"secondary below":    func(c *config.Config) { c.Frames.Threshold = 0.6; c.Notes.SecondaryThreshold = 0.4 },
		"stage override":     func(c *config.Config) { c.Logging.StageOverrides = map[string]string{"generating": "loud"} },
		"redis ttl negative": func(c *config.Config) { c.Redis.TTLSeconds = -5 },
		"ntfy topic":         func(c *config.Config) { c.Notifications.NtfyTopic = "my-topic" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			cfg.LLM.Provider = config.ProviderOpenRouter
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", name)
			}
		})
	}

	cfg := base()
	cfg.Frames.Enabled = false
	cfg.Frames.Concepts = nil
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected concepts to be optional when frames disabled: %v", err)
	}
}
