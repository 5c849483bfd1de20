package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dubflow/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status api.DaemonStatus
			if err := ctx.getJSON(cmd.Context(), "/api/status", &status); err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			runningKind := statusError
			runningMsg := "stopped"
			if status.Running {
				runningKind = statusOK
				runningMsg = fmt.Sprintf("pid %d", status.PID)
			}
			fmt.Fprintln(out, renderStatusLine("Workflow", runningKind, runningMsg, colorize))
			fmt.Fprintln(out, renderStatusLine("Queue database", statusInfo, status.QueueDBPath, colorize))
			fmt.Fprintln(out, renderStatusLine("Lock file", statusInfo, status.LockFilePath, colorize))

			for _, line := range renderSectionHeader("Queue", colorize) {
				fmt.Fprintln(out, line)
			}
			rows := buildQueueStatsRows(status.QueueStats)
			if len(rows) == 0 {
				fmt.Fprintln(out, statusIndent+"Queue is empty")
			} else {
				fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			}

			for _, line := range renderSectionHeader("Stages", colorize) {
				fmt.Fprintln(out, line)
			}
			printStageHealth(cmd, status.StageHealth, colorize)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit status as JSON")
	return cmd
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check readiness of the pipeline stages",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status api.DaemonStatus
			if err := ctx.getJSON(cmd.Context(), "/api/status", &status); err != nil {
				return err
			}
			colorize := shouldColorize(cmd.OutOrStdout())
			printStageHealth(cmd, status.StageHealth, colorize)
			for _, stage := range status.StageHealth {
				if !stage.Ready {
					return fmt.Errorf("stage %s is not ready", stage.Name)
				}
			}
			return nil
		},
	}
}

func printStageHealth(cmd *cobra.Command, health []api.StageHealth, colorize bool) {
	out := cmd.OutOrStdout()
	if len(health) == 0 {
		fmt.Fprintln(out, statusIndent+"No stage health reported")
		return
	}
	for _, stage := range health {
		kind := statusOK
		message := "ready"
		if !stage.Ready {
			kind = statusError
			message = stage.Detail
			if message == "" {
				message = "not ready"
			}
		}
		fmt.Fprintln(out, renderStatusLine(stage.Name, kind, message, colorize))
	}
}
