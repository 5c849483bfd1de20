// Package progress converts chunk-level checkpoint counts into a single
// job-level percentage. The value is derived solely from durable state, so
// it never moves backwards, including across process restarts.
package progress

import (
	"fmt"

	"dubflow/internal/queue"
)

// StageProgress is one stage's contribution to the job percentage.
type StageProgress struct {
	Name            string
	Weight          int
	PlannedChunks   int
	CompletedChunks int
	Succeeded       bool
}

// Percent computes the weighted completion percentage, 0..100. Each stage
// contributes its weight scaled by its chunk completion ratio; stages not
// yet planned contribute nothing. The result is floored so a job only
// reports 100 when everything is checkpointed.
func Percent(stages []StageProgress) int {
	var totalWeight, earned float64
	for _, stage := range stages {
		weight := float64(stage.Weight)
		if weight <= 0 {
			weight = 1
		}
		totalWeight += weight

		switch {
		case stage.Succeeded:
			earned += weight
		case stage.PlannedChunks > 0:
			ratio := float64(stage.CompletedChunks) / float64(stage.PlannedChunks)
			if ratio > 1 {
				ratio = 1
			}
			if ratio < 0 {
				ratio = 0
			}
			earned += weight * ratio
		}
	}
	if totalWeight == 0 {
		return 0
	}
	percent := int(100 * earned / totalWeight)
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}
	return percent
}

// Message renders the human-readable status line for the active stage.
func Message(stage string, completed, planned int) string {
	if planned <= 0 {
		return fmt.Sprintf("Running %s", stage)
	}
	return fmt.Sprintf("Running %s (%d/%d chunks)", stage, completed, planned)
}

// WeightFunc resolves a stage name to its configured weight.
type WeightFunc func(stage string) int

// FromRecords assembles stage progress from persisted stage rows and
// checkpoint counts. Checkpoint counts win over the stage row's cached
// completed count, since checkpoints are the durable truth.
func FromRecords(stages []*queue.StageRecord, checkpointCounts map[string]int, weight WeightFunc) []StageProgress {
	out := make([]StageProgress, 0, len(stages))
	for _, stage := range stages {
		completed := stage.CompletedChunks
		if count, ok := checkpointCounts[stage.Name]; ok && count > completed {
			completed = count
		}
		out = append(out, StageProgress{
			Name:            stage.Name,
			Weight:          weight(stage.Name),
			PlannedChunks:   stage.PlannedChunks,
			CompletedChunks: completed,
			Succeeded:       stage.Status == queue.StageSucceeded,
		})
	}
	return out
}
