package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidnotes/internal/api"
)

// followWait is the long-poll window for each request while following.
var followWait = 10 * time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs <job-id>",
		Short: "Show the log of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				offset := int64(-1)
				wait := time.Duration(0)
				for {
					chunk, err := client.JobLog(cmd.Context(), id, offset, lines, wait)
					if err != nil {
						if api.IsStatus(err, 404) {
							return fmt.Errorf("job %s not found", id)
						}
						return err
					}
					for _, line := range chunk.Lines {
						fmt.Fprintln(out, line)
					}
					offset = chunk.Offset
					if !follow {
						return nil
					}
					if len(chunk.Lines) == 0 && jobFinished(cmd, client, id) {
						return nil
					}
					wait = followWait
				}
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow the log until the job finishes")
	return cmd
}

// jobFinished reports whether following can stop. Jobs the daemon no longer
// tracks are treated as finished.
func jobFinished(cmd *cobra.Command, client *api.Client, id string) bool {
	job, err := client.Job(cmd.Context(), id)
	if err != nil {
		return api.IsStatus(err, 404)
	}
	return isTerminalStatus(job.Status)
}
