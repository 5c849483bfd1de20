package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dubflow/internal/api"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dubbing jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/jobs"
			for i, status := range statuses {
				sep := "&"
				if i == 0 {
					sep = "?"
				}
				path += sep + "status=" + status
			}

			var resp api.JobListResponse
			if err := ctx.getJSON(cmd.Context(), path, &resp); err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, resp.Jobs)
			}
			if len(resp.Jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}
			tbl := renderTable(
				[]string{"ID", "Title", "Languages", "Status", "Progress", "Created"},
				buildJobRows(resp.Jobs),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), tbl)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by job status (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit jobs as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job with per-stage detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.JobResponse
			if err := ctx.getJSON(cmd.Context(), "/api/jobs/"+args[0], &resp); err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, resp.Job)
			}

			job := resp.Job
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job %s\n", job.ID)
			fmt.Fprintf(out, "  Title:     %s\n", jobDisplayTitle(job))
			fmt.Fprintf(out, "  Source:    %s\n", job.SourcePath)
			fmt.Fprintf(out, "  Languages: %s\n", formatLanguages(job))
			fmt.Fprintf(out, "  Voice:     %s\n", job.VoiceGender)
			if job.TrimStartMs > 0 || job.TrimEndMs > 0 {
				fmt.Fprintf(out, "  Trim:      %s\n", formatTrimWindow(job.TrimStartMs, job.TrimEndMs))
			}
			fmt.Fprintf(out, "  Status:    %s\n", job.Status)
			fmt.Fprintf(out, "  Progress:  %s\n", formatProgress(job.Progress))
			if job.Progress.Message != "" {
				fmt.Fprintf(out, "  Activity:  %s\n", job.Progress.Message)
			}
			if job.ErrorMessage != "" {
				fmt.Fprintf(out, "  Error:     %s\n", job.ErrorMessage)
			}
			if job.FinalFile != "" {
				fmt.Fprintf(out, "  Output:    %s\n", job.FinalFile)
			}
			if len(job.Stages) > 0 {
				tbl := renderTable(
					[]string{"Stage", "Status", "Chunks", "Error"},
					buildStageRows(job.Stages),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(out, tbl)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the job as JSON")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.JobResponse
			if err := ctx.postJSON(cmd.Context(), "/api/jobs/"+args[0]+"/cancel", struct{}{}, &resp); err != nil {
				return err
			}
			if resp.Job.Status == "cancelled" {
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled\n", shortJobID(resp.Job.ID))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for job %s; in-flight work stops at the next chunk boundary\n", shortJobID(resp.Job.ID))
			}
			return nil
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Requeue a failed or cancelled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.JobResponse
			if err := ctx.postJSON(cmd.Context(), "/api/jobs/"+args[0]+"/retry", struct{}{}, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s requeued; completed work resumes from checkpoints\n", shortJobID(resp.Job.ID))
			return nil
		},
	}
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id>",
		Short: "Delete a finished job from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.deleteResource(cmd.Context(), "/api/jobs/"+args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s removed\n", shortJobID(args[0]))
			return nil
		},
	}
}
