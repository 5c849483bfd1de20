// Package queue persists dubbing jobs, their per-stage records, and chunk
// checkpoints in SQLite. It is the single durable source of truth the
// workflow coordinator, the API, and the CLI all read from.
package queue
