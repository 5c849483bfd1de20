package config

const (
	defaultStagingDir        = "~/.local/share/dubflow/staging"
	defaultOutputDir         = "~/dubflow/output"
	defaultLogDir            = "~/.local/share/dubflow/logs"
	defaultAPIBind           = "127.0.0.1:7519"
	defaultSourceLanguage    = "ko"
	defaultTargetLanguage    = "en"
	defaultVoiceGender       = "female"
	defaultTranscriberURL    = "http://127.0.0.1:9000"
	defaultSynthesizerURL    = "http://127.0.0.1:9100"
	defaultTranslatorBaseURL = "https://api.openai.com/v1/chat/completions"
	defaultTranslatorModel   = "gpt-4o-mini"

	defaultTranscriberTimeout    = 300
	defaultTranslatorTimeout     = 120
	defaultSynthesizerTimeout    = 300
	defaultMediaTimeout          = 900
	defaultMaxChunkSeconds       = 60
	defaultSilenceSearchSeconds  = 5
	defaultMaxSegmentsPerChunk   = 10
	defaultMaxCharsPerChunk      = 4000
	defaultSynthSegmentsPerChunk = 20

	defaultRetryMaxAttempts       = 5
	defaultRetryBaseDelayMillis   = 1000
	defaultRetryMaxDelayMillis    = 30000
	defaultRetryMaxRateLimitWaits = 10

	defaultNtfyTimeout = 10

	defaultQueuePollInterval = 5
	defaultHeartbeatInterval = 15
	defaultHeartbeatTimeout  = 120
	defaultJobConcurrency    = 2
	defaultChunkConcurrency  = 4

	defaultLogLevel  = "info"
	defaultLogFormat = "console"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Pipeline: Pipeline{
			SourceLanguage: defaultSourceLanguage,
			TargetLanguage: defaultTargetLanguage,
			VoiceGender:    defaultVoiceGender,
			BurnSubtitles:  true,
		},
		Transcriber: Transcriber{
			URL:                  defaultTranscriberURL,
			TimeoutSeconds:       defaultTranscriberTimeout,
			MaxChunkSeconds:      defaultMaxChunkSeconds,
			AlignToSilence:       true,
			SilenceSearchSeconds: defaultSilenceSearchSeconds,
		},
		Translator: Translator{
			BaseURL:               defaultTranslatorBaseURL,
			Model:                 defaultTranslatorModel,
			TimeoutSeconds:        defaultTranslatorTimeout,
			MaxSegmentsPerChunk:   defaultMaxSegmentsPerChunk,
			MaxCharactersPerChunk: defaultMaxCharsPerChunk,
		},
		Synthesizer: Synthesizer{
			URL:                 defaultSynthesizerURL,
			TimeoutSeconds:      defaultSynthesizerTimeout,
			MaxSegmentsPerChunk: defaultSynthSegmentsPerChunk,
			Voices: map[string]Voice{
				"en": {Female: "en_female_1", Male: "en_male_1"},
				"ja": {Female: "ja_female_1", Male: "ja_male_1"},
				"zh": {Female: "zh_female_1", Male: "zh_male_1"},
				"de": {Female: "de_female_1", Male: "de_male_1"},
				"id": {Female: "id_female_1", Male: "id_male_1"},
			},
		},
		Media: Media{
			TimeoutSeconds: defaultMediaTimeout,
		},
		Notify: Notifications{
			TimeoutSeconds: defaultNtfyTimeout,
		},
		Retry: Retry{
			MaxAttempts:       defaultRetryMaxAttempts,
			BaseDelayMillis:   defaultRetryBaseDelayMillis,
			MaxDelayMillis:    defaultRetryMaxDelayMillis,
			MaxRateLimitWaits: defaultRetryMaxRateLimitWaits,
		},
		Workflow: Workflow{
			QueuePollInterval: defaultQueuePollInterval,
			HeartbeatInterval: defaultHeartbeatInterval,
			HeartbeatTimeout:  defaultHeartbeatTimeout,
			JobConcurrency:    defaultJobConcurrency,
			ChunkConcurrency:  defaultChunkConcurrency,
			StageWeights: map[string]int{
				"transcribe": 35,
				"translate":  15,
				"synthesize": 20,
				"compose":    30,
			},
		},
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}
