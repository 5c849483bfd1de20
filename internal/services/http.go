package services

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ClassifyHTTPStatus maps an HTTP response status to the error taxonomy:
// 429 becomes a rate limit carrying any Retry-After value, auth failures
// are fatal, other 4xx reject the input, and everything else is transient.
func ClassifyHTTPStatus(stage, operation string, status int, body string, retryAfter time.Duration) error {
	detail := fmt.Sprintf("http %d: %s", status, summarizeBody(body))
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %s: %w", stage, operation, &RateLimitError{RetryAfter: retryAfter})
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Wrap(ErrFatal, stage, operation, detail, nil)
	case status >= 400 && status < 500:
		return Wrap(ErrInvalidInput, stage, operation, detail, nil)
	default:
		return Wrap(ErrTransient, stage, operation, detail, nil)
	}
}

// ParseRetryAfter reads a Retry-After header, accepting both delta-seconds
// and HTTP-date forms.
func ParseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}

func summarizeBody(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 200 {
		return body[:200] + "..."
	}
	if body == "" {
		return "(empty body)"
	}
	return body
}
