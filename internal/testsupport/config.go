package testsupport

import (
	"path/filepath"
	"testing"

	"dubflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test
// and tight retry delays so failure paths run fast.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Translator.APIKey = "test"
	cfg.Workflow.QueuePollInterval = 1
	cfg.Retry.BaseDelayMillis = 1
	cfg.Retry.MaxDelayMillis = 5

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithLanguages overrides the pipeline language pair.
func WithLanguages(source, target string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.SourceLanguage = source
		cfg.Pipeline.TargetLanguage = target
	}
}

// WithTranslatorKey sets the translation API key on the test config.
func WithTranslatorKey(key string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Translator.APIKey = key
	}
}
