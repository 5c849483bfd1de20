package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTransient marks failures worth retrying with backoff (network
	// errors, timeouts, 5xx responses).
	ErrTransient = errors.New("transient failure")
	// ErrRateLimited marks provider throttling. Retried outside the
	// transient attempt budget, honoring any provider-supplied wait.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidInput marks deterministic rejections of the submitted data.
	// Never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrFatal marks configuration or authentication problems. Never retried.
	ErrFatal = errors.New("fatal failure")
	// ErrPlanning marks a stage whose chunk plan could not be produced.
	// Permanent at stage level, never retried.
	ErrPlanning = errors.New("planning error")
)

// Classification is the failure category an adapter assigns to one failed call.
type Classification string

const (
	ClassTransient    Classification = "transient"
	ClassRateLimited  Classification = "rate_limited"
	ClassInvalidInput Classification = "invalid_input"
	ClassFatal        Classification = "fatal"
)

// RateLimitError carries the provider-supplied wait duration, when any.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to its failure classification. Context deadline
// overruns count as transient unless the adapter tagged them otherwise.
func Classify(err error) Classification {
	switch {
	case err == nil:
		return ClassTransient
	case errors.Is(err, ErrInvalidInput):
		return ClassInvalidInput
	case errors.Is(err, ErrFatal):
		return ClassFatal
	case errors.Is(err, ErrRateLimited):
		return ClassRateLimited
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	default:
		return ClassTransient
	}
}

// IsPermanent reports whether the classification can never succeed on retry.
func (c Classification) IsPermanent() bool {
	return c == ClassInvalidInput || c == ClassFatal
}

// RetryAfter extracts a provider-supplied wait duration, if the error carries one.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter, true
	}
	return 0, false
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
