// Package plan produces deterministic chunk plans: ordered, contiguous,
// bounded input windows for every pipeline stage, each carrying a stable
// idempotency key.
package plan
