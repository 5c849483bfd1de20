package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("DUBFLOW_TRANSLATOR_API_KEY", "test-key")

	cfg, path, exists, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file")
	}
	if path == "" {
		t.Fatal("expected resolved path for missing file")
	}
	if cfg.Pipeline.SourceLanguage != "ko" || cfg.Pipeline.TargetLanguage != "en" {
		t.Fatalf("unexpected language defaults: %s -> %s", cfg.Pipeline.SourceLanguage, cfg.Pipeline.TargetLanguage)
	}
	if cfg.Translator.APIKey != "test-key" {
		t.Fatalf("env override not applied: %q", cfg.Translator.APIKey)
	}
	if strings.HasPrefix(cfg.Paths.StagingDir, "~") {
		t.Fatalf("staging dir not expanded: %s", cfg.Paths.StagingDir)
	}
}

func TestLoadCustomFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[paths]
staging_dir = "` + filepath.Join(dir, "staging") + `"
output_dir = "` + filepath.Join(dir, "output") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[pipeline]
source_language = "korean"
target_language = "Japanese"

[translator]
api_key = "file-key"

[retry]
max_attempts = 3
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected %s to resolve, got %s exists=%v", path, resolved, exists)
	}
	if cfg.Pipeline.SourceLanguage != "ko" {
		t.Fatalf("source language not normalized: %s", cfg.Pipeline.SourceLanguage)
	}
	if cfg.Pipeline.TargetLanguage != "ja" {
		t.Fatalf("target language not normalized: %s", cfg.Pipeline.TargetLanguage)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Fatalf("retry override lost: %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelayMillis != defaultRetryBaseDelayMillis {
		t.Fatalf("retry defaults not filled: %d", cfg.Retry.BaseDelayMillis)
	}
}

func TestLoadRejectsMissingAPIKey(t *testing.T) {
	t.Setenv("DUBFLOW_TRANSLATOR_API_KEY", "")

	_, _, _, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatal("expected validation error without api key")
	}
	if !strings.Contains(err.Error(), "translator.api_key") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsSameLanguages(t *testing.T) {
	cfg := Default()
	cfg.Translator.APIKey = "k"
	cfg.Pipeline.SourceLanguage = "en"
	cfg.Pipeline.TargetLanguage = "en"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for matching languages")
	}
}

func TestValidateRejectsBadVoiceGender(t *testing.T) {
	cfg := Default()
	cfg.Translator.APIKey = "k"
	cfg.Pipeline.VoiceGender = "robot"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown voice gender")
	}
}

func TestValidateRejectsHeartbeatTimeoutBelowInterval(t *testing.T) {
	cfg := Default()
	cfg.Translator.APIKey = "k"
	cfg.Workflow.HeartbeatInterval = 60
	cfg.Workflow.HeartbeatTimeout = 30
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected heartbeat validation error")
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	t.Setenv("DUBFLOW_TRANSLATOR_API_KEY", "sample-key")

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if err := CreateSample(path); err == nil {
		t.Fatal("expected error when sample already exists")
	}

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("sample config not found")
	}
	if cfg.Transcriber.MaxChunkSeconds != defaultMaxChunkSeconds {
		t.Fatalf("sample diverges from defaults: %d", cfg.Transcriber.MaxChunkSeconds)
	}
}

func TestStageWeightFallsBack(t *testing.T) {
	cfg := Default()
	if w := cfg.StageWeight("transcribe"); w != 35 {
		t.Fatalf("unexpected transcribe weight %d", w)
	}
	if w := cfg.StageWeight("unknown"); w != 1 {
		t.Fatalf("unknown stage should weigh 1, got %d", w)
	}
}
