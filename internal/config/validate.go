package config

import (
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return fmt.Errorf("paths.staging_dir is required")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return fmt.Errorf("paths.output_dir is required")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return fmt.Errorf("paths.log_dir is required")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	switch c.Pipeline.VoiceGender {
	case "female", "male":
	default:
		return fmt.Errorf("pipeline.voice_gender must be female or male, got %q", c.Pipeline.VoiceGender)
	}
	if c.Pipeline.SourceLanguage == c.Pipeline.TargetLanguage {
		return fmt.Errorf("pipeline.target_language must differ from source language %q", c.Pipeline.SourceLanguage)
	}
	return nil
}

func (c *Config) validateServices() error {
	if c.Transcriber.URL == "" {
		return fmt.Errorf("transcriber.url is required")
	}
	if c.Synthesizer.URL == "" {
		return fmt.Errorf("synthesizer.url is required")
	}
	if c.Translator.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/dubflow/config.toml"
		}
		return fmt.Errorf("translator.api_key is required. Set DUBFLOW_TRANSLATOR_API_KEY env var or edit %s (create with 'dubflow config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return fmt.Errorf("workflow.heartbeat_timeout (%d) must exceed heartbeat_interval (%d)",
			c.Workflow.HeartbeatTimeout, c.Workflow.HeartbeatInterval)
	}
	for stage, weight := range c.Workflow.StageWeights {
		if weight <= 0 {
			return fmt.Errorf("workflow.stage_weights[%s] must be positive, got %d", stage, weight)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json; got %q", c.LogFormat)
	}
	return nil
}
