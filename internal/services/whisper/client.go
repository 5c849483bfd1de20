// Package whisper is the speech-to-text adapter. It submits bounded audio
// chunks to a WhisperX-compatible HTTP service and returns timed segments.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dubflow/internal/services"
	"dubflow/internal/subtitles"
)

const stageName = "transcribe"

// Config captures the runtime settings for the transcription service.
type Config struct {
	URL            string
	TimeoutSeconds int
}

// Client talks to the transcription service. It performs single blocking
// calls; retries belong to the stage executor.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a transcription client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := 5 * time.Minute
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:        Config{URL: strings.TrimRight(strings.TrimSpace(cfg.URL), "/"), TimeoutSeconds: cfg.TimeoutSeconds},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Result is one chunk's transcription.
type Result struct {
	Language string          `json:"language"`
	Segments []ScoredSegment `json:"segments"`
}

// ScoredSegment is a transcribed utterance with the service's confidence.
type ScoredSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// TimedSegments converts the result to the shared segment model. Timestamps
// are chunk-local; callers offset them into the job timeline.
func (r Result) TimedSegments() []subtitles.Segment {
	out := make([]subtitles.Segment, 0, len(r.Segments))
	for i, seg := range r.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		out = append(out, subtitles.Segment{
			Index: i + 1,
			Start: time.Duration(seg.Start * float64(time.Second)),
			End:   time.Duration(seg.End * float64(time.Second)),
			Text:  text,
		})
	}
	return out
}

// Transcribe submits one audio chunk with a language hint.
func (c *Client) Transcribe(ctx context.Context, audioPath, language string) (Result, error) {
	var empty Result
	if c.cfg.URL == "" {
		return empty, services.Wrap(services.ErrFatal, stageName, "transcribe", "transcriber url not configured", nil)
	}

	file, err := os.Open(audioPath)
	if err != nil {
		return empty, services.Wrap(services.ErrInvalidInput, stageName, "transcribe", fmt.Sprintf("open audio %s", audioPath), err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio_file", filepath.Base(audioPath))
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, stageName, "transcribe", "build multipart request", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return empty, services.Wrap(services.ErrTransient, stageName, "transcribe", "copy audio into request", err)
	}
	if err := writer.Close(); err != nil {
		return empty, services.Wrap(services.ErrTransient, stageName, "transcribe", "finalize multipart request", err)
	}

	url := fmt.Sprintf("%s/asr?task=transcribe&language=%s&output=json", c.cfg.URL, language)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, stageName, "transcribe", "build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, stageName, "transcribe", "post audio", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, stageName, "transcribe", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return empty, services.ClassifyHTTPStatus(stageName, "transcribe", resp.StatusCode, string(payload),
			services.ParseRetryAfter(resp.Header.Get("Retry-After")))
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return empty, services.Wrap(services.ErrTransient, stageName, "transcribe", "decode response", err)
	}
	return result, nil
}

// HealthCheck verifies the service answers at all.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.URL == "" {
		return services.Wrap(services.ErrFatal, stageName, "health", "transcriber url not configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/docs", nil)
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "health", "build request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "health", "reach service", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return services.Wrap(services.ErrTransient, stageName, "health", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	return nil
}
