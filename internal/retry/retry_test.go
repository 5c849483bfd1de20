package retry

import (
	"errors"
	"testing"
	"time"

	"dubflow/internal/services"
)

func testPolicy() Policy {
	return Policy{
		MaxAttempts:       5,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		MaxRateLimitWaits: 3,
	}
}

func TestDecideTransientRetriesWithGrowingBackoff(t *testing.T) {
	p := testPolicy()
	err := services.Wrap(services.ErrTransient, "transcribe", "post", "connection reset", nil)

	var prev time.Duration
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		d := p.Decide("chunk-key", attempt, 0, err)
		if d.Outcome != OutcomeRetry {
			t.Fatalf("attempt %d: outcome %s, want retry", attempt, d.Outcome)
		}
		if d.RateLimit {
			t.Fatalf("attempt %d: transient marked as rate limit", attempt)
		}
		if d.Wait <= prev && prev < p.MaxDelay {
			t.Fatalf("attempt %d: wait %s did not grow past %s", attempt, d.Wait, prev)
		}
		prev = d.Wait
	}
}

func TestDecideTransientExhaustsBudget(t *testing.T) {
	p := testPolicy()
	err := errors.New("plain network error")
	d := p.Decide("chunk-key", p.MaxAttempts, 0, err)
	if d.Outcome != OutcomeFail {
		t.Fatalf("outcome %s, want fail after budget exhausted", d.Outcome)
	}
}

func TestDecideDeterministicJitter(t *testing.T) {
	p := testPolicy()
	err := services.Wrap(services.ErrTransient, "translate", "post", "timeout", nil)
	a := p.Decide("chunk-key", 2, 0, err)
	b := p.Decide("chunk-key", 2, 0, err)
	if a.Wait != b.Wait {
		t.Fatalf("same inputs gave different waits: %s vs %s", a.Wait, b.Wait)
	}
	c := p.Decide("other-key", 2, 0, err)
	if a.Wait == c.Wait {
		t.Log("different keys happened to share jitter; acceptable but unusual")
	}
}

func TestDecideBackoffCapped(t *testing.T) {
	p := testPolicy()
	err := services.Wrap(services.ErrTransient, "transcribe", "post", "timeout", nil)
	d := p.Decide("chunk-key", 4, 0, err)
	limit := p.MaxDelay + p.MaxDelay/4
	if d.Wait > limit {
		t.Fatalf("wait %s exceeds cap %s", d.Wait, limit)
	}
}

func TestDecideRateLimitHonorsProviderWait(t *testing.T) {
	p := testPolicy()
	err := &services.RateLimitError{RetryAfter: 42 * time.Second}
	d := p.Decide("chunk-key", 1, 0, err)
	if d.Outcome != OutcomeRetry || !d.RateLimit {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if d.Wait != 42*time.Second {
		t.Fatalf("wait %s, want provider-supplied 42s", d.Wait)
	}
}

func TestDecideRateLimitDoesNotConsumeAttempts(t *testing.T) {
	p := testPolicy()
	err := &services.RateLimitError{}
	// Attempts already at the transient cap; rate limits must still retry.
	d := p.Decide("chunk-key", p.MaxAttempts, 1, err)
	if d.Outcome != OutcomeRetry {
		t.Fatalf("rate limit must not count against attempt budget: %+v", d)
	}
}

func TestDecideRateLimitWaveCap(t *testing.T) {
	p := testPolicy()
	err := &services.RateLimitError{}
	d := p.Decide("chunk-key", 0, p.MaxRateLimitWaits, err)
	if d.Outcome != OutcomeFail {
		t.Fatalf("outcome %s, want fail after %d waits", d.Outcome, p.MaxRateLimitWaits)
	}
}

func TestDecidePermanentFailures(t *testing.T) {
	p := testPolicy()
	for _, err := range []error{
		services.Wrap(services.ErrInvalidInput, "translate", "merge", "missing segment id", nil),
		services.Wrap(services.ErrFatal, "translate", "auth", "bad api key", nil),
	} {
		d := p.Decide("chunk-key", 0, 0, err)
		if d.Outcome != OutcomeFail {
			t.Fatalf("error %v: outcome %s, want fail", err, d.Outcome)
		}
	}
}
