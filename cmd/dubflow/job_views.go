package main

import (
	"fmt"
	"strings"

	"dubflow/internal/api"
)

func shortJobID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func jobDisplayTitle(job api.Job) string {
	if strings.TrimSpace(job.Title) != "" {
		return job.Title
	}
	return job.SourcePath
}

func formatLanguages(job api.Job) string {
	return job.SourceLanguage + " -> " + job.TargetLanguage
}

func formatProgress(progress api.JobProgress) string {
	if progress.Stage == "" {
		return fmt.Sprintf("%d%%", progress.Percent)
	}
	return fmt.Sprintf("%d%% (%s)", progress.Percent, progress.Stage)
}

func buildJobRows(jobs []api.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			shortJobID(job.ID),
			jobDisplayTitle(job),
			formatLanguages(job),
			job.Status,
			formatProgress(job.Progress),
			job.CreatedAt,
		})
	}
	return rows
}

func buildStageRows(stages []api.Stage) [][]string {
	rows := make([][]string, 0, len(stages))
	for _, stage := range stages {
		chunks := fmt.Sprintf("%d/%d", stage.CompletedChunks, stage.PlannedChunks)
		rows = append(rows, []string{stage.Name, stage.Status, chunks, stage.ErrorMessage})
	}
	return rows
}

func buildQueueStatsRows(stats map[string]int) [][]string {
	order := []string{"queued", "running", "completed", "failed", "cancelled"}
	rows := make([][]string, 0, len(order))
	for _, status := range order {
		count, ok := stats[status]
		if !ok {
			continue
		}
		rows = append(rows, []string{status, fmt.Sprintf("%d", count)})
	}
	return rows
}
