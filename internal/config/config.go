package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	OutputDir  string `toml:"output_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
}

// Pipeline contains dubbing pipeline defaults applied to new jobs.
type Pipeline struct {
	SourceLanguage string `toml:"source_language"`
	TargetLanguage string `toml:"target_language"`
	VoiceGender    string `toml:"voice_gender"`
	BurnSubtitles  bool   `toml:"burn_subtitles"`
}

// Transcriber configures the speech-to-text HTTP service.
type Transcriber struct {
	URL                  string `toml:"url"`
	TimeoutSeconds       int    `toml:"timeout_seconds"`
	MaxChunkSeconds      int    `toml:"max_chunk_seconds"`
	AlignToSilence       bool   `toml:"align_to_silence"`
	SilenceSearchSeconds int    `toml:"silence_search_seconds"`
}

// Translator configures the chat-completions translation service.
type Translator struct {
	APIKey                string `toml:"api_key"`
	BaseURL               string `toml:"base_url"`
	Model                 string `toml:"model"`
	TimeoutSeconds        int    `toml:"timeout_seconds"`
	MaxSegmentsPerChunk   int    `toml:"max_segments_per_chunk"`
	MaxCharactersPerChunk int    `toml:"max_characters_per_chunk"`
}

// Synthesizer configures the speech synthesis HTTP service.
type Synthesizer struct {
	URL                 string           `toml:"url"`
	TimeoutSeconds      int              `toml:"timeout_seconds"`
	MaxSegmentsPerChunk int              `toml:"max_segments_per_chunk"`
	Voices              map[string]Voice `toml:"voices"`
}

// Voice names the synthesis speakers for one target language.
type Voice struct {
	Female string `toml:"female"`
	Male   string `toml:"male"`
}

// Notifications configures optional ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Media configures local ffmpeg/ffprobe invocation.
type Media struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	FFprobeBinary  string `toml:"ffprobe_binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Retry configures the chunk retry policy shared by all stages.
type Retry struct {
	MaxAttempts       int `toml:"max_attempts"`
	BaseDelayMillis   int `toml:"base_delay_ms"`
	MaxDelayMillis    int `toml:"max_delay_ms"`
	MaxRateLimitWaits int `toml:"max_rate_limit_waits"`
}

// Workflow contains coordinator tuning knobs.
type Workflow struct {
	QueuePollInterval int            `toml:"queue_poll_interval"`
	HeartbeatInterval int            `toml:"heartbeat_interval"`
	HeartbeatTimeout  int            `toml:"heartbeat_timeout"`
	JobConcurrency    int            `toml:"job_concurrency"`
	ChunkConcurrency  int            `toml:"chunk_concurrency"`
	StageWeights      map[string]int `toml:"stage_weights"`
}

// Config is the root dubflow configuration.
type Config struct {
	Paths       Paths         `toml:"paths"`
	Pipeline    Pipeline      `toml:"pipeline"`
	Transcriber Transcriber   `toml:"transcriber"`
	Translator  Translator    `toml:"translator"`
	Synthesizer Synthesizer   `toml:"synthesizer"`
	Media       Media         `toml:"media"`
	Notify      Notifications `toml:"notifications"`
	Retry       Retry         `toml:"retry"`
	Workflow    Workflow      `toml:"workflow"`
	LogLevel    string        `toml:"log_level"`
	LogFormat   string        `toml:"log_format"`
}

// DefaultConfigPath returns the expanded default config location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/dubflow/config.toml")
}

// Load reads configuration from path (or the default locations when empty),
// applies normalization and validation, and reports the resolved path and
// whether a file was found.
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

	if key := strings.TrimSpace(os.Getenv("DUBFLOW_TRANSLATOR_API_KEY")); key != "" {
		cfg.Translator.APIKey = key
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
		if _, err = os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("dubflow.toml")
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

// EnsureDirectories creates the staging, output, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the configured ffmpeg binary, defaulting to PATH lookup.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Media.FFmpegBinary); bin != "" {
		return bin
	}
	return "ffmpeg"
}

// FFprobeBinary returns the configured ffprobe binary, defaulting to PATH lookup.
func (c *Config) FFprobeBinary() string {
	if bin := strings.TrimSpace(c.Media.FFprobeBinary); bin != "" {
		return bin
	}
	return "ffprobe"
}

// StageWeight returns the relative progress weight for a stage name.
func (c *Config) StageWeight(stage string) int {
	if w, ok := c.Workflow.StageWeights[stage]; ok && w > 0 {
		return w
	}
	return 1
}

// LogDirectory returns the configured log directory.
func (c *Config) LogDirectory() string {
	return c.Paths.LogDir
}

// LogLevelValue returns the configured log level.
func (c *Config) LogLevelValue() string {
	return c.LogLevel
}

// LogFormatValue returns the configured log format.
func (c *Config) LogFormatValue() string {
	return c.LogFormat
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	trimmed := strings.TrimSpace(pathValue)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Abs(trimmed)
}

// ExpandPath expands a user-supplied path (tilde and relative forms).
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
