package config

const (
	defaultConfigPath          = "~/.config/vidnotes/config.toml"
	defaultEnvFile             = "~/.config/vidnotes/.env"
	defaultWorkDir             = "~/.local/share/vidnotes/jobs"
	defaultDataDir             = "~/.local/share/vidnotes"
	defaultLogDir              = "~/.local/share/vidnotes/logs"
	defaultLogRetentionDays    = 30
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultAPIBind             = "127.0.0.1:7488"
	defaultMaxUploadMB         = 2048
	defaultWorkers             = 2
	defaultQueueSize           = 16
	defaultJobRetentionHours   = 24
	defaultSampleInterval      = 1.0
	defaultFrameThreshold      = 0.28
	defaultJPEGQuality         = 85
	defaultCLIPImageModel      = "~/.local/share/vidnotes/models/clip-visual.onnx"
	defaultCLIPTextModel       = "~/.local/share/vidnotes/models/clip-text.onnx"
	defaultCLIPTokenizer       = "~/.local/share/vidnotes/models/tokenizer.json"
	defaultAlignWindow         = 5.0
	defaultWhisperXModel       = "large-v3"
	defaultWhisperXVADMethod   = "silero"
	defaultWhisperXCacheDir    = "~/.local/share/vidnotes/cache/whisperx"
	defaultLLMProvider         = "openrouter"
	defaultOpenRouterBaseURL   = "https://openrouter.ai/api/v1/chat/completions"
	defaultOpenRouterModel     = "google/gemini-3-flash-preview"
	defaultOpenAIBaseURL       = "https://api.openai.com/v1"
	defaultOpenAIModel         = "gpt-4o-mini"
	defaultLLMReferer          = "https://github.com/vidnotes/vidnotes"
	defaultLLMTitle            = "vidnotes"
	defaultLLMTimeoutSeconds   = 120
	defaultLLMTemperature      = 0.2
	defaultLLMMaxTokens        = 4096
	defaultBucketSeconds       = 120
	defaultTopK                = 3
	defaultSecondaryThreshold  = 0.5
	defaultURLTemplate         = "/api/jobs/{job_id}/frames/{file_ref}"
	defaultMaxTranscriptTokens = 24000
	defaultTokenEncoding       = "cl100k_base"
	defaultRedisKeyPrefix      = "vidnotes"
	defaultRedisTTLSeconds     = 86400
	defaultNtfyTimeoutSeconds  = 10

	// ProviderOpenRouter selects the OpenRouter-compatible chat client.
	ProviderOpenRouter = "openrouter"
	// ProviderOpenAI selects the OpenAI SDK client.
	ProviderOpenAI = "openai"
)

var defaultConcepts = []string{"a diagram", "a slide", "a chart", "a graph", "a table"}

var defaultLanguagePriority = []string{"en", "en-US", "en-GB"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			EnvFile: defaultEnvFile,
		},
		API: API{
			Bind:        defaultAPIBind,
			MaxUploadMB: defaultMaxUploadMB,
		},
		Pipeline: Pipeline{
			Workers:           defaultWorkers,
			QueueSize:         defaultQueueSize,
			JobRetentionHours: defaultJobRetentionHours,
		},
		Frames: Frames{
			Enabled:               true,
			SampleIntervalSeconds: defaultSampleInterval,
			Concepts:              append([]string(nil), defaultConcepts...),
			Threshold:             defaultFrameThreshold,
			JPEGQuality:           defaultJPEGQuality,
			CLIP: CLIP{
				ImageModel: defaultCLIPImageModel,
				TextModel:  defaultCLIPTextModel,
				Tokenizer:  defaultCLIPTokenizer,
			},
		},
		Transcript: Transcript{
			LanguagePriority: append([]string(nil), defaultLanguagePriority...),
			CaptionsEnabled:  true,
			AlignWindow:      defaultAlignWindow,
		},
		WhisperX: WhisperX{
			Model:     defaultWhisperXModel,
			VADMethod: defaultWhisperXVADMethod,
			CacheDir:  defaultWhisperXCacheDir,
		},
		LLM: LLM{
			Provider:       defaultLLMProvider,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			Temperature:    defaultLLMTemperature,
			MaxTokens:      defaultLLMMaxTokens,
		},
		Notes: Notes{
			BucketSeconds:       defaultBucketSeconds,
			TopK:                defaultTopK,
			SecondaryThreshold:  defaultSecondaryThreshold,
			URLTemplate:         defaultURLTemplate,
			MaxTranscriptTokens: defaultMaxTranscriptTokens,
			TokenEncoding:       defaultTokenEncoding,
		},
		Redis: Redis{
			KeyPrefix:  defaultRedisKeyPrefix,
			TTLSeconds: defaultRedisTTLSeconds,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
