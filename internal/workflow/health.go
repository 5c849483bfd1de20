package workflow

import (
	"context"

	"dubflow/internal/queue"
)

// HealthStatus is the outcome of one stage's dependency check.
type HealthStatus struct {
	Stage  string
	OK     bool
	Detail string
}

// Health probes every stage's external dependency. A job submitted while
// a dependency is down will still fail at run time; this is the operator's
// early warning.
func (m *Manager) Health(ctx context.Context) []HealthStatus {
	statuses := make([]HealthStatus, 0, len(queue.StageOrder))
	for _, name := range queue.StageOrder {
		status := HealthStatus{Stage: name, OK: true}
		handler, err := m.factory(name, nil)
		if err == nil {
			err = handler.HealthCheck(ctx)
		}
		if err != nil {
			status.OK = false
			status.Detail = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}
