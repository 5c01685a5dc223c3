package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateFrames(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateNotes(); err != nil {
		return err
	}
	if err := c.validateRedis(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	return ensurePositiveMap(map[string]int{
		"pipeline.workers":    c.Pipeline.Workers,
		"pipeline.queue_size": c.Pipeline.QueueSize,
	})
}

func (c *Config) validateFrames() error {
	if c.Frames.SampleIntervalSeconds <= 0 {
		return errors.New("frames.sample_interval_seconds must be positive")
	}
	if c.Frames.Threshold <= 0 || c.Frames.Threshold >= 1 {
		return errors.New("frames.threshold must be between 0 and 1")
	}
	if !c.Frames.Enabled {
		return nil
	}
	if len(c.Frames.Concepts) == 0 {
		return errors.New("frames.concepts must include at least one concept when frames.enabled is true")
	}
	if c.Frames.CLIP.ImageModel == "" || c.Frames.CLIP.TextModel == "" {
		return errors.New("frames.clip.image_model and frames.clip.text_model must be set when frames.enabled is true")
	}
	if c.Frames.CLIP.Tokenizer == "" {
		return errors.New("frames.clip.tokenizer must be set when frames.enabled is true")
	}
	return nil
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case ProviderOpenRouter, ProviderOpenAI:
	default:
		return fmt.Errorf("llm.provider: unsupported value %q (expected %q or %q)", c.LLM.Provider, ProviderOpenRouter, ProviderOpenAI)
	}
	if c.LLM.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		envName := "OPENROUTER_API_KEY"
		if c.LLM.Provider == ProviderOpenAI {
			envName = "OPENAI_API_KEY"
		}
		return fmt.Errorf("llm.api_key is required. Set %s env var or edit %s (create with 'vidnotes config init')", envName, defaultPath)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	return nil
}

func (c *Config) validateNotes() error {
	if c.Notes.BucketSeconds <= 0 {
		return errors.New("notes.bucket_seconds must be positive")
	}
	if c.Notes.TopK <= 0 {
		return errors.New("notes.top_k must be positive")
	}
	if c.Notes.SecondaryThreshold < 0 || c.Notes.SecondaryThreshold > 1 {
		return errors.New("notes.secondary_threshold must be between 0 and 1")
	}
	if c.Notes.SecondaryThreshold < c.Frames.Threshold {
		return fmt.Errorf("notes.secondary_threshold (%.2f) must be at least frames.threshold (%.2f)", c.Notes.SecondaryThreshold, c.Frames.Threshold)
	}
	if !strings.Contains(c.Notes.URLTemplate, "{job_id}") || !strings.Contains(c.Notes.URLTemplate, "{file_ref}") {
		return errors.New("notes.url_template must contain {job_id} and {file_ref}")
	}
	return nil
}

func (c *Config) validateRedis() error {
	if c.Redis.TTLSeconds < 0 {
		return errors.New("redis.ttl_seconds must be >= 0")
	}
	if c.Redis.DB < 0 {
		return errors.New("redis.db must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	parsed, err := url.Parse(topic)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic must be a full http(s) topic URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	for stage, level := range c.Logging.StageOverrides {
		switch level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.stage_overrides.%s: unsupported level %q", stage, level)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
