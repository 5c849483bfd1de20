package stage

import (
	"context"

	"dubflow/internal/plan"
	"dubflow/internal/queue"
)

// Handler describes the contract the stage executor needs from each stage.
// Plan must be deterministic for identical input and configuration, so
// checkpoints from a prior run stay valid after a restart. ExecuteChunk is
// a single blocking call with no internal retries. Merge receives chunk
// results strictly in index order.
type Handler interface {
	Name() string
	Prepare(context.Context, *queue.Job) error
	Plan(context.Context, *queue.Job) ([]plan.Chunk, error)
	ExecuteChunk(context.Context, *queue.Job, plan.Chunk) ([]byte, error)
	Merge(context.Context, *queue.Job, [][]byte) error
	HealthCheck(context.Context) error
}
