package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"vidnotes/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show daemon status, or the status of one job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if len(args) == 1 {
					job, err := client.Job(cmd.Context(), strings.TrimSpace(args[0]))
					if err != nil {
						if api.IsStatus(err, 404) {
							return fmt.Errorf("job %s not found", args[0])
						}
						return err
					}
					if jsonOut {
						return writeJSON(cmd, job)
					}
					out := cmd.OutOrStdout()
					printJobStatus(out, job, shouldColorize(out))
					return nil
				}
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, status)
				}
				out := cmd.OutOrStdout()
				printDaemonStatus(out, status, shouldColorize(out))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func printDaemonStatus(out io.Writer, status api.DaemonStatus, colorize bool) {
	lines := renderSectionHeader("Daemon", colorize)
	running := renderStatusLine("Running", statusError, "no", colorize)
	if status.Running {
		running = renderStatusLine("Running", statusOK, fmt.Sprintf("yes (pid %d)", status.PID), colorize)
	}
	lines = append(lines,
		running,
		renderStatusLine("Workers", statusInfo, fmt.Sprintf("%d busy of %d", status.ActiveJobs, status.Workers), colorize),
		renderStatusLine("Queue", queueKind(status), fmt.Sprintf("%d/%d", status.QueueDepth, status.QueueCapacity), colorize),
		renderStatusLine("Note store", statusInfo, status.NotesDBPath, colorize),
	)

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Jobs", colorize)...)
	if len(status.JobCounts) == 0 {
		lines = append(lines, renderStatusLine("Tracked", statusInfo, "none", colorize))
	}
	names := make([]string, 0, len(status.JobCounts))
	for name := range status.JobCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		kind := statusInfo
		if name == "failed" && status.JobCounts[name] > 0 {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(name, kind, fmt.Sprintf("%d", status.JobCounts[name]), colorize))
	}

	if len(status.Dependencies) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
		lines = append(lines, dependencyLines(status.Dependencies, colorize)...)
	}
	if len(status.Checks) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Checks", colorize)...)
		for _, check := range status.Checks {
			lines = append(lines, checkLine(check.Name, check.Passed, check.Detail, colorize))
		}
	}
	fmt.Fprintln(out, strings.Join(lines, "\n"))
}

func queueKind(status api.DaemonStatus) statusKind {
	if status.QueueCapacity > 0 && status.QueueDepth >= status.QueueCapacity {
		return statusWarn
	}
	return statusInfo
}

func dependencyLines(statuses []api.DependencyStatus, colorize bool) []string {
	lines := make([]string, 0, len(statuses))
	for _, dep := range statuses {
		switch {
		case dep.Available:
			lines = append(lines, renderStatusLine(dep.Name, statusOK, dep.Command, colorize))
		case dep.Optional:
			lines = append(lines, renderStatusLine(dep.Name, statusWarn, "optional: "+dep.Detail, colorize))
		default:
			lines = append(lines, renderStatusLine(dep.Name, statusError, dep.Detail, colorize))
		}
	}
	return lines
}

func checkLine(name string, passed bool, detail string, colorize bool) string {
	if passed {
		return renderStatusLine(name, statusOK, detail, colorize)
	}
	return renderStatusLine(name, statusError, detail, colorize)
}

func printJobStatus(out io.Writer, job api.JobStatus, colorize bool) {
	lines := renderSectionHeader("Job "+job.ID, colorize)
	lines = append(lines,
		renderStatusLine("Status", jobKind(job.Status), job.Status, colorize),
		renderStatusLine("Stage", statusInfo, fmt.Sprintf("%s (%d%%)", job.Stage, job.Progress), colorize),
		renderStatusLine("Source", statusInfo, job.Source, colorize),
	)
	if job.Message != "" {
		lines = append(lines, renderStatusLine("Message", statusInfo, job.Message, colorize))
	}
	lines = append(lines, renderStatusLine("Updated", statusInfo, formatTimestamp(job.UpdatedAt), colorize))
	for _, jobErr := range job.Errors {
		kind := statusWarn
		if jobErr.Fatal {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(jobErr.Kind, kind, fmt.Sprintf("%s: %s", jobErr.Stage, jobErr.Message), colorize))
	}
	fmt.Fprintln(out, strings.Join(lines, "\n"))
}
