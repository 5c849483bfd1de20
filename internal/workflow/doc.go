// Package workflow coordinates job processing.
//
// The Manager polls the queue, claims jobs up to the configured
// concurrency, and drives each one through the stage pipeline
// (transcribe, translate, synthesize, compose) via the stage executor.
// While a job runs its heartbeat is refreshed periodically; jobs whose
// heartbeat goes stale are reclaimed into the queue so another worker
// can resume them from their checkpoints.
package workflow
