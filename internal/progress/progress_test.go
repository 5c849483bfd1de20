package progress

import (
	"testing"

	"dubflow/internal/queue"
)

func pipelineStages() []StageProgress {
	return []StageProgress{
		{Name: "transcribe", Weight: 35},
		{Name: "translate", Weight: 15},
		{Name: "synthesize", Weight: 20},
		{Name: "compose", Weight: 30},
	}
}

func TestPercentEmptyJob(t *testing.T) {
	if got := Percent(pipelineStages()); got != 0 {
		t.Fatalf("Percent = %d, want 0", got)
	}
}

func TestPercentPartialStage(t *testing.T) {
	stages := pipelineStages()
	stages[0].PlannedChunks = 4
	stages[0].CompletedChunks = 2
	// Half of a 35-weight stage over a total weight of 100.
	if got := Percent(stages); got != 17 {
		t.Fatalf("Percent = %d, want 17", got)
	}
}

func TestPercentCompletedStagesAccumulate(t *testing.T) {
	stages := pipelineStages()
	stages[0].Succeeded = true
	stages[1].Succeeded = true
	if got := Percent(stages); got != 50 {
		t.Fatalf("Percent = %d, want 50", got)
	}
}

func TestPercentFullJob(t *testing.T) {
	stages := pipelineStages()
	for i := range stages {
		stages[i].Succeeded = true
	}
	if got := Percent(stages); got != 100 {
		t.Fatalf("Percent = %d, want 100", got)
	}
}

func TestPercentMonotonicAcrossCheckpointGrowth(t *testing.T) {
	stages := pipelineStages()
	stages[0].PlannedChunks = 4

	prev := -1
	for completed := 0; completed <= 4; completed++ {
		stages[0].CompletedChunks = completed
		got := Percent(stages)
		if got < prev {
			t.Fatalf("percent decreased from %d to %d at %d chunks", prev, got, completed)
		}
		prev = got
	}
}

func TestPercentClampsOvercount(t *testing.T) {
	stages := []StageProgress{{Name: "transcribe", Weight: 100, PlannedChunks: 2, CompletedChunks: 5}}
	if got := Percent(stages); got != 100 {
		t.Fatalf("Percent = %d, want clamped 100", got)
	}
}

func TestPercentZeroWeightTreatedAsOne(t *testing.T) {
	stages := []StageProgress{
		{Name: "a", Weight: 0, Succeeded: true},
		{Name: "b", Weight: 0},
	}
	if got := Percent(stages); got != 50 {
		t.Fatalf("Percent = %d, want 50", got)
	}
}

func TestMessage(t *testing.T) {
	if got := Message("transcribe", 2, 4); got != "Running transcribe (2/4 chunks)" {
		t.Fatalf("Message = %q", got)
	}
	if got := Message("compose", 0, 0); got != "Running compose" {
		t.Fatalf("Message = %q", got)
	}
}

func TestFromRecordsPrefersCheckpointCounts(t *testing.T) {
	records := []*queue.StageRecord{
		{Name: "transcribe", Status: queue.StageRunning, PlannedChunks: 4, CompletedChunks: 1},
		{Name: "translate", Status: queue.StagePending},
	}
	counts := map[string]int{"transcribe": 3}
	weight := func(stage string) int { return 50 }

	stages := FromRecords(records, counts, weight)
	if stages[0].CompletedChunks != 3 {
		t.Fatalf("completed %d, want checkpoint-derived 3", stages[0].CompletedChunks)
	}
	if stages[0].Weight != 50 {
		t.Fatalf("weight %d, want 50", stages[0].Weight)
	}
}
