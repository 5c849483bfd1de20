// Package tts is the speech-synthesis adapter. It submits one segment's
// text to an XTTS-compatible HTTP service and stores the returned audio.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"dubflow/internal/services"
)

const stageName = "synthesize"

// Config captures the runtime settings for the synthesis service.
type Config struct {
	URL            string
	TimeoutSeconds int
}

// Client talks to the synthesis service. Single blocking calls only;
// retries belong to the stage executor.
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

// NewClient constructs a synthesis client.
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

type synthesisRequest struct {
	Text     string `json:"text"`
	Speaker  string `json:"speaker_id"`
	Language string `json:"language_id"`
}

// Synthesize renders one segment's text with the given voice and writes
// the WAV payload to dest.
func (c *Client) Synthesize(ctx context.Context, text, voice, language, dest string) error {
	if c.cfg.URL == "" {
		return services.Wrap(services.ErrFatal, stageName, "synthesize", "synthesizer url not configured", nil)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return services.Wrap(services.ErrInvalidInput, stageName, "synthesize", "empty text", nil)
	}

	payload, err := json.Marshal(synthesisRequest{Text: text, Speaker: voice, Language: language})
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "synthesize", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/tts_to_audio/", bytes.NewReader(payload))
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "synthesize", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "synthesize", "post request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return services.ClassifyHTTPStatus(stageName, "synthesize", resp.StatusCode, string(body),
			services.ParseRetryAfter(resp.Header.Get("Retry-After")))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "synthesize", "read audio", err)
	}
	if len(audio) == 0 {
		return services.Wrap(services.ErrTransient, stageName, "synthesize", "empty audio payload", nil)
	}
	if err := os.WriteFile(dest, audio, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "synthesize", fmt.Sprintf("write %s", dest), err)
	}
	return nil
}

// HealthCheck verifies the service answers at all.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.URL == "" {
		return services.Wrap(services.ErrFatal, stageName, "health", "synthesizer url not configured", nil)
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
