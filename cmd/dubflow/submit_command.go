package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"dubflow/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		title          string
		sourceLanguage string
		targetLanguage string
		voiceGender    string
		burnSubtitles  bool
		trimStart      time.Duration
		trimEnd        time.Duration
		jsonOutput     bool
	)

	cmd := &cobra.Command{
		Use:   "submit <source-file>",
		Short: "Queue a media file for dubbing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve source path: %w", err)
			}

			req := api.SubmitRequest{
				SourcePath:     source,
				Title:          title,
				SourceLanguage: sourceLanguage,
				TargetLanguage: targetLanguage,
				VoiceGender:    voiceGender,
				TrimStartMs:    trimStart.Milliseconds(),
				TrimEndMs:      trimEnd.Milliseconds(),
			}
			if cmd.Flags().Changed("burn-subtitles") {
				req.BurnSubtitles = &burnSubtitles
			}

			var resp api.JobResponse
			if err := ctx.postJSON(cmd.Context(), "/api/jobs", req, &resp); err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, resp.Job)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Queued job %s\n", resp.Job.ID)
			fmt.Fprintf(out, "  Source:    %s\n", resp.Job.SourcePath)
			fmt.Fprintf(out, "  Languages: %s -> %s\n", resp.Job.SourceLanguage, resp.Job.TargetLanguage)
			fmt.Fprintf(out, "  Voice:     %s\n", resp.Job.VoiceGender)
			fmt.Fprintf(out, "  Subtitles: burn-in %s\n", yesNo(resp.Job.BurnSubtitles))
			if resp.Job.TrimStartMs > 0 || resp.Job.TrimEndMs > 0 {
				fmt.Fprintf(out, "  Trim:      %s\n", formatTrimWindow(resp.Job.TrimStartMs, resp.Job.TrimEndMs))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Display title for the job")
	cmd.Flags().StringVar(&sourceLanguage, "from", "", "Source language code (defaults to configuration)")
	cmd.Flags().StringVar(&targetLanguage, "to", "", "Target language code (defaults to configuration)")
	cmd.Flags().StringVar(&voiceGender, "voice", "", "Synthesis voice gender: female or male")
	cmd.Flags().BoolVar(&burnSubtitles, "burn-subtitles", false, "Burn translated subtitles into the output video")
	cmd.Flags().DurationVar(&trimStart, "trim-start", 0, "Skip source material before this offset (e.g. 90s, 2m30s)")
	cmd.Flags().DurationVar(&trimEnd, "trim-end", 0, "Stop processing source material at this offset")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the created job as JSON")
	return cmd
}

// formatTrimWindow renders a trim range, with an open end shown as "end".
func formatTrimWindow(startMs, endMs int64) string {
	end := "end"
	if endMs > 0 {
		end = (time.Duration(endMs) * time.Millisecond).String()
	}
	return fmt.Sprintf("%s -> %s", (time.Duration(startMs) * time.Millisecond).String(), end)
}
