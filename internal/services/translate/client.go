// Package translate is the translation adapter. It submits batches of
// numbered segments to a chat-completions API and maps the numbered reply
// lines back onto the segments.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dubflow/internal/services"
	"dubflow/internal/subtitles"
)

const stageName = "translate"

// Config captures the runtime settings for the translation API.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client wraps the chat-completions endpoint. Single blocking calls only;
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

// NewClient constructs a translation client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := 2 * time.Minute
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

const systemPromptTemplate = `You are a professional subtitle translator. Translate each numbered line from %s to %s.
Rules:
- Reply with exactly one line per input line, in the form "N. translation".
- Keep the original numbering. Do not merge, split, add, or drop lines.
- Keep translations concise enough to speak in roughly the same time as the original.
- Output nothing except the numbered translations.`

// TranslateBatch translates segments in order, returning copies carrying
// the translated text. Every input segment must come back: a reply missing
// a line is an invalid-input failure, not retried.
func (c *Client) TranslateBatch(ctx context.Context, segments []subtitles.Segment, sourceLang, targetLang string) ([]subtitles.Segment, error) {
	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrInvalidInput, stageName, "translate", "empty batch", nil)
	}
	if c.cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrFatal, stageName, "translate", "api key required", nil)
	}

	var prompt strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&prompt, "%d. %s\n", i+1, strings.TrimSpace(seg.Text))
	}

	content, err := c.complete(ctx,
		fmt.Sprintf(systemPromptTemplate, languageName(sourceLang), languageName(targetLang)),
		prompt.String(),
	)
	if err != nil {
		return nil, err
	}

	translations, err := parseNumberedLines(content, len(segments))
	if err != nil {
		return nil, err
	}

	out := make([]subtitles.Segment, len(segments))
	for i, seg := range segments {
		seg.Text = translations[i]
		out[i] = seg
	}
	return out, nil
}

// HealthCheck verifies the API key and model with a minimal request.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrFatal, stageName, "health", "api key required", nil)
	}
	_, err := c.complete(ctx, "Reply with the single line \"1. ok\".", "1. ok")
	return err
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "translate", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "translate", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "translate", "post request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "translate", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", services.ClassifyHTTPStatus(stageName, "translate", resp.StatusCode, string(body),
			services.ParseRetryAfter(resp.Header.Get("Retry-After")))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "translate", "decode response", err)
	}
	if parsed.Error != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "translate", parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return "", services.Wrap(services.ErrTransient, stageName, "translate", "empty choices", nil)
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", services.Wrap(services.ErrTransient, stageName, "translate",
			fmt.Sprintf("empty content (finish_reason=%q)", parsed.Choices[0].FinishReason), nil)
	}
	return content, nil
}

// parseNumberedLines maps "N. text" reply lines onto 1..count. A missing or
// duplicate number means the model broke the contract for this input, which
// a retry will not fix.
func parseNumberedLines(content string, count int) ([]string, error) {
	out := make([]string, count)
	seen := make(map[int]bool, count)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		dot := strings.Index(line, ".")
		if dot <= 0 {
			continue
		}
		number := 0
		if _, err := fmt.Sscanf(line[:dot], "%d", &number); err != nil {
			continue
		}
		if number < 1 || number > count {
			return nil, services.Wrap(services.ErrInvalidInput, stageName, "translate",
				fmt.Sprintf("reply line %d outside batch of %d", number, count), nil)
		}
		if seen[number] {
			return nil, services.Wrap(services.ErrInvalidInput, stageName, "translate",
				fmt.Sprintf("duplicate reply line %d", number), nil)
		}
		seen[number] = true
		out[number-1] = strings.TrimSpace(line[dot+1:])
	}
	for i := range out {
		if !seen[i+1] || out[i] == "" {
			return nil, services.Wrap(services.ErrInvalidInput, stageName, "translate",
				fmt.Sprintf("missing translation for line %d", i+1), nil)
		}
	}
	return out, nil
}

var languageNames = map[string]string{
	"ko": "Korean",
	"en": "English",
	"ja": "Japanese",
	"zh": "Chinese",
	"de": "German",
	"id": "Indonesian",
	"es": "Spanish",
	"fr": "French",
}

func languageName(code string) string {
	if name, ok := languageNames[strings.ToLower(strings.TrimSpace(code))]; ok {
		return name
	}
	return code
}
