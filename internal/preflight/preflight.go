package preflight

import (
	"context"

	"dubflow/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every applicable check for the given config. Directory
// and binary checks always run; service checks run against whatever the
// config points at.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckBinary("FFmpeg", cfg.FFmpegBinary()),
		CheckBinary("FFprobe", cfg.FFprobeBinary()),
		CheckHTTPService(ctx, "Transcription service", cfg.Transcriber.URL+"/docs"),
		CheckHTTPService(ctx, "Synthesis service", cfg.Synthesizer.URL+"/docs"),
		CheckTranslator(ctx, cfg),
	}
	return results
}

// Failed reports whether any check did not pass.
func Failed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return true
		}
	}
	return false
}
