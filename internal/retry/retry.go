// Package retry decides what happens after a failed chunk attempt:
// retry with backoff, wait out a rate limit, or fail permanently. Decisions
// are pure functions of the policy, the chunk identity, and the counters,
// so the same failure history always produces the same schedule.
package retry

import (
	"fmt"
	"hash/fnv"
	"time"

	"dubflow/internal/services"
)

// Outcome is the terminal classification of one retry decision.
type Outcome string

const (
	// OutcomeRetry schedules another attempt after Decision.Wait.
	OutcomeRetry Outcome = "retry"
	// OutcomeFail abandons the chunk permanently.
	OutcomeFail Outcome = "fail"
)

// Decision describes what the executor should do with a failed chunk.
type Decision struct {
	Outcome Outcome
	Wait    time.Duration
	// RateLimit reports that the wait is a rate-limit hold, which does not
	// consume the transient attempt budget.
	RateLimit bool
	Reason    string
}

// Policy holds the retry tuning for every stage.
type Policy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	MaxRateLimitWaits int
}

// Decide classifies err and produces the retry decision for a chunk.
// attempts counts completed transient-failure attempts for this chunk;
// rateLimitWaits counts rate-limit holds already taken.
func (p Policy) Decide(key string, attempts, rateLimitWaits int, err error) Decision {
	classification := services.Classify(err)

	if classification.IsPermanent() {
		return Decision{
			Outcome: OutcomeFail,
			Reason:  fmt.Sprintf("%s failure is permanent", classification),
		}
	}

	if classification == services.ClassRateLimited {
		if rateLimitWaits >= p.MaxRateLimitWaits {
			return Decision{
				Outcome: OutcomeFail,
				Reason:  fmt.Sprintf("rate limit persisted through %d waits", rateLimitWaits),
			}
		}
		wait, ok := services.RetryAfter(err)
		if !ok {
			wait = p.backoff(key, rateLimitWaits)
		}
		return Decision{Outcome: OutcomeRetry, Wait: wait, RateLimit: true, Reason: "rate limited"}
	}

	if attempts >= p.MaxAttempts {
		return Decision{
			Outcome: OutcomeFail,
			Reason:  fmt.Sprintf("exhausted %d attempts", attempts),
		}
	}
	return Decision{Outcome: OutcomeRetry, Wait: p.backoff(key, attempts), Reason: "transient"}
}

// backoff computes base*2^n capped at MaxDelay, plus a deterministic
// jitter of up to a quarter of the delay derived from the chunk key.
func (p Policy) backoff(key string, n int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 0; i < n && delay < p.MaxDelay; i++ {
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay + jitter(key, n, delay/4)
}

func jitter(key string, n int, span time.Duration) time.Duration {
	if span <= 0 {
		return 0
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d", key, n)
	return time.Duration(h.Sum64() % uint64(span))
}
