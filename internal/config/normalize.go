package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeAPI(); err != nil {
		return err
	}
	c.normalizePipeline()
	if err := c.normalizeFrames(); err != nil {
		return err
	}
	c.normalizeTranscript()
	if err := c.normalizeWhisperX(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeNotes()
	c.normalizeRedis()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() error {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	if value := lookupEnv("VIDNOTES_API_TOKEN"); value != "" {
		c.API.Token = value
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.MaxUploadMB <= 0 {
		c.API.MaxUploadMB = defaultMaxUploadMB
	}
	roots := make([]string, 0, len(c.API.LocalRoots))
	for _, root := range c.API.LocalRoots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		expanded, err := expandPath(root)
		if err != nil {
			return fmt.Errorf("api.local_roots: %w", err)
		}
		roots = append(roots, expanded)
	}
	c.API.LocalRoots = roots
	return nil
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.JobRetentionHours < 0 {
		c.Pipeline.JobRetentionHours = 0
	}
}

func (c *Config) normalizeFrames() error {
	concepts := make([]string, 0, len(c.Frames.Concepts))
	seen := make(map[string]struct{}, len(c.Frames.Concepts))
	for _, concept := range c.Frames.Concepts {
		trimmed := strings.TrimSpace(concept)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		concepts = append(concepts, trimmed)
	}
	c.Frames.Concepts = concepts
	if c.Frames.JPEGQuality <= 0 || c.Frames.JPEGQuality > 100 {
		c.Frames.JPEGQuality = defaultJPEGQuality
	}

	var err error
	clip := &c.Frames.CLIP
	if clip.ImageModel, err = expandPath(strings.TrimSpace(clip.ImageModel)); err != nil {
		return fmt.Errorf("frames.clip.image_model: %w", err)
	}
	if clip.TextModel, err = expandPath(strings.TrimSpace(clip.TextModel)); err != nil {
		return fmt.Errorf("frames.clip.text_model: %w", err)
	}
	if clip.Tokenizer, err = expandPath(strings.TrimSpace(clip.Tokenizer)); err != nil {
		return fmt.Errorf("frames.clip.tokenizer: %w", err)
	}
	if value := lookupEnv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); value != "" && strings.TrimSpace(clip.SharedLibrary) == "" {
		clip.SharedLibrary = value
	}
	if clip.SharedLibrary, err = expandPath(strings.TrimSpace(clip.SharedLibrary)); err != nil {
		return fmt.Errorf("frames.clip.shared_library: %w", err)
	}
	return nil
}

func (c *Config) normalizeTranscript() {
	langs := make([]string, 0, len(c.Transcript.LanguagePriority))
	seen := make(map[string]struct{}, len(c.Transcript.LanguagePriority))
	for _, lang := range c.Transcript.LanguagePriority {
		trimmed := strings.TrimSpace(lang)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		langs = append(langs, trimmed)
	}
	if len(langs) == 0 {
		langs = append(langs, defaultLanguagePriority...)
	}
	c.Transcript.LanguagePriority = langs
	if c.Transcript.AlignWindow <= 0 {
		c.Transcript.AlignWindow = defaultAlignWindow
	}
}

func (c *Config) normalizeWhisperX() error {
	c.WhisperX.Model = strings.TrimSpace(c.WhisperX.Model)
	if c.WhisperX.Model == "" {
		c.WhisperX.Model = defaultWhisperXModel
	}
	c.WhisperX.VADMethod = strings.ToLower(strings.TrimSpace(c.WhisperX.VADMethod))
	if c.WhisperX.VADMethod == "" {
		c.WhisperX.VADMethod = defaultWhisperXVADMethod
	}
	if value := lookupEnv("HUGGING_FACE_HUB_TOKEN"); value != "" {
		c.WhisperX.HFToken = value
	} else if value := lookupEnv("HF_TOKEN"); value != "" {
		c.WhisperX.HFToken = value
	}
	c.WhisperX.HFToken = strings.TrimSpace(c.WhisperX.HFToken)
	if strings.TrimSpace(c.WhisperX.CacheDir) == "" {
		c.WhisperX.CacheDir = defaultWhisperXCacheDir
	}
	var err error
	if c.WhisperX.CacheDir, err = expandPath(c.WhisperX.CacheDir); err != nil {
		return fmt.Errorf("whisperx.cache_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultLLMProvider
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	switch c.LLM.Provider {
	case ProviderOpenAI:
		if value := lookupEnv("OPENAI_API_KEY"); value != "" {
			c.LLM.APIKey = value
		}
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = defaultOpenAIBaseURL
		}
		if c.LLM.Model == "" {
			c.LLM.Model = defaultOpenAIModel
		}
	default:
		if value := lookupEnv("OPENROUTER_API_KEY"); value != "" {
			c.LLM.APIKey = value
		}
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = defaultOpenRouterBaseURL
		}
		if c.LLM.Model == "" {
			c.LLM.Model = defaultOpenRouterModel
		}
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = defaultLLMMaxTokens
	}
}

func (c *Config) normalizeNotes() {
	c.Notes.URLTemplate = strings.TrimSpace(c.Notes.URLTemplate)
	if c.Notes.URLTemplate == "" {
		c.Notes.URLTemplate = defaultURLTemplate
	}
	c.Notes.TokenEncoding = strings.TrimSpace(c.Notes.TokenEncoding)
	if c.Notes.TokenEncoding == "" {
		c.Notes.TokenEncoding = defaultTokenEncoding
	}
	if c.Notes.MaxTranscriptTokens < 0 {
		c.Notes.MaxTranscriptTokens = 0
	}
}

func (c *Config) normalizeRedis() {
	if value := lookupEnv("REDIS_URL"); value != "" && strings.TrimSpace(c.Redis.Addr) == "" {
		c.Redis.Addr = value
	}
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	c.Redis.KeyPrefix = strings.Trim(strings.TrimSpace(c.Redis.KeyPrefix), ":")
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = defaultRedisKeyPrefix
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if len(c.Logging.StageOverrides) > 0 {
		overrides := make(map[string]string, len(c.Logging.StageOverrides))
		for stage, level := range c.Logging.StageOverrides {
			key := strings.ToLower(strings.TrimSpace(stage))
			if key == "" {
				continue
			}
			overrides[key] = strings.ToLower(strings.TrimSpace(level))
		}
		c.Logging.StageOverrides = overrides
	}
}

func lookupEnv(key string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
