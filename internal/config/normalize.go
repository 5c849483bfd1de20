package config

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizePipeline(); err != nil {
		return err
	}
	c.normalizeServices()
	c.normalizeRetry()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	return nil
}

func (c *Config) normalizePipeline() error {
	var err error
	if c.Pipeline.SourceLanguage, err = normalizeLanguage(c.Pipeline.SourceLanguage, defaultSourceLanguage); err != nil {
		return fmt.Errorf("pipeline.source_language: %w", err)
	}
	if c.Pipeline.TargetLanguage, err = normalizeLanguage(c.Pipeline.TargetLanguage, defaultTargetLanguage); err != nil {
		return fmt.Errorf("pipeline.target_language: %w", err)
	}
	c.Pipeline.VoiceGender = strings.ToLower(strings.TrimSpace(c.Pipeline.VoiceGender))
	if c.Pipeline.VoiceGender == "" {
		c.Pipeline.VoiceGender = defaultVoiceGender
	}
	return nil
}

func normalizeLanguage(value, fallback string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback, nil
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("unrecognized language %q: %w", trimmed, err)
	}
	base, _ := tag.Base()
	return base.String(), nil
}

func (c *Config) normalizeServices() {
	c.Transcriber.URL = strings.TrimRight(strings.TrimSpace(c.Transcriber.URL), "/")
	if c.Transcriber.TimeoutSeconds <= 0 {
		c.Transcriber.TimeoutSeconds = defaultTranscriberTimeout
	}
	if c.Transcriber.MaxChunkSeconds <= 0 {
		c.Transcriber.MaxChunkSeconds = defaultMaxChunkSeconds
	}
	if c.Transcriber.SilenceSearchSeconds <= 0 {
		c.Transcriber.SilenceSearchSeconds = defaultSilenceSearchSeconds
	}

	c.Translator.APIKey = strings.TrimSpace(c.Translator.APIKey)
	c.Translator.BaseURL = strings.TrimSpace(c.Translator.BaseURL)
	if c.Translator.BaseURL == "" {
		c.Translator.BaseURL = defaultTranslatorBaseURL
	}
	c.Translator.Model = strings.TrimSpace(c.Translator.Model)
	if c.Translator.Model == "" {
		c.Translator.Model = defaultTranslatorModel
	}
	if c.Translator.TimeoutSeconds <= 0 {
		c.Translator.TimeoutSeconds = defaultTranslatorTimeout
	}
	if c.Translator.MaxSegmentsPerChunk <= 0 {
		c.Translator.MaxSegmentsPerChunk = defaultMaxSegmentsPerChunk
	}
	if c.Translator.MaxCharactersPerChunk <= 0 {
		c.Translator.MaxCharactersPerChunk = defaultMaxCharsPerChunk
	}

	c.Synthesizer.URL = strings.TrimRight(strings.TrimSpace(c.Synthesizer.URL), "/")
	if c.Synthesizer.TimeoutSeconds <= 0 {
		c.Synthesizer.TimeoutSeconds = defaultSynthesizerTimeout
	}
	if c.Synthesizer.MaxSegmentsPerChunk <= 0 {
		c.Synthesizer.MaxSegmentsPerChunk = defaultSynthSegmentsPerChunk
	}

	if c.Media.TimeoutSeconds <= 0 {
		c.Media.TimeoutSeconds = defaultMediaTimeout
	}

	c.Notify.NtfyTopic = strings.TrimSpace(c.Notify.NtfyTopic)
	if c.Notify.TimeoutSeconds <= 0 {
		c.Notify.TimeoutSeconds = defaultNtfyTimeout
	}
}

func (c *Config) normalizeRetry() {
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = defaultRetryMaxAttempts
	}
	if c.Retry.BaseDelayMillis <= 0 {
		c.Retry.BaseDelayMillis = defaultRetryBaseDelayMillis
	}
	if c.Retry.MaxDelayMillis <= 0 {
		c.Retry.MaxDelayMillis = defaultRetryMaxDelayMillis
	}
	if c.Retry.MaxRateLimitWaits <= 0 {
		c.Retry.MaxRateLimitWaits = defaultRetryMaxRateLimitWaits
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.Workflow.JobConcurrency <= 0 {
		c.Workflow.JobConcurrency = defaultJobConcurrency
	}
	if c.Workflow.ChunkConcurrency <= 0 {
		c.Workflow.ChunkConcurrency = defaultChunkConcurrency
	}
	if len(c.Workflow.StageWeights) == 0 {
		c.Workflow.StageWeights = Default().Workflow.StageWeights
	}
}

func (c *Config) normalizeLogging() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
}
