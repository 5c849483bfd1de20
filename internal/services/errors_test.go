package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Classification
	}{
		{"transient", Wrap(ErrTransient, "transcribe", "asr", "connection reset", nil), ClassTransient},
		{"rate limited", Wrap(ErrRateLimited, "translate", "complete", "429", nil), ClassRateLimited},
		{"invalid input", Wrap(ErrInvalidInput, "translate", "complete", "missing segment id", nil), ClassInvalidInput},
		{"fatal", Wrap(ErrFatal, "synthesize", "tts", "bad api key", nil), ClassFatal},
		{"deadline", context.DeadlineExceeded, ClassTransient},
		{"unknown", errors.New("boom"), ClassTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestRateLimitErrorCarriesWait(t *testing.T) {
	err := Wrap(ErrRateLimited, "translate", "complete", "throttled", &RateLimitError{RetryAfter: 7 * time.Second})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected rate-limited marker")
	}
	wait, ok := RetryAfter(err)
	if !ok || wait != 7*time.Second {
		t.Fatalf("expected 7s retry-after, got %v ok=%v", wait, ok)
	}
}

func TestIsPermanent(t *testing.T) {
	if !ClassInvalidInput.IsPermanent() || !ClassFatal.IsPermanent() {
		t.Fatal("invalid input and fatal must be permanent")
	}
	if ClassTransient.IsPermanent() || ClassRateLimited.IsPermanent() {
		t.Fatal("transient and rate limited must not be permanent")
	}
}

func TestWrapWithoutDetail(t *testing.T) {
	err := Wrap(nil, "", "", "", nil)
	if err.Error() != "transient failure: service failure" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
