package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidnotes/internal/api"
)

// waitPollInterval is how often --wait polls the daemon.
var waitPollInterval = time.Second

type submitOptions struct {
	interval  float64
	smart     string
	languages []string
	local     bool
	wait      bool
	jsonOut   bool
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var opts submitOptions
	cmd := &cobra.Command{
		Use:   "submit <url-or-path>",
		Short: "Queue a video for note generation",
		Long: "Queue a video URL or a local file with the daemon.\n\n" +
			"Local files are uploaded unless --local is set, in which case the daemon\n" +
			"reads the path directly from its own filesystem.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request()
			if err != nil {
				return err
			}
			source := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *api.Client) error {
				resp, err := submitSource(cmd.Context(), client, source, opts.local, req)
				if err != nil {
					return err
				}
				if !opts.wait {
					if opts.jsonOut {
						return writeJSON(cmd, resp)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s\n", resp.JobID)
					return nil
				}
				job, err := waitForJob(cmd.Context(), client, resp.JobID, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return writeJSON(cmd, job)
				}
				if job.Status != "completed" {
					return fmt.Errorf("job %s %s: %s", job.ID, job.Status, job.Message)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s completed\n", job.ID)
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&opts.interval, "interval", 0, "Frame sampling interval in seconds (default from config)")
	cmd.Flags().StringVar(&opts.smart, "smart", "", "Force smart mode on or off (true|false)")
	cmd.Flags().StringSliceVar(&opts.languages, "lang", nil, "Transcript language priority, e.g. --lang en,de")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Treat the path as daemon-local (must be under api.local_roots) instead of uploading it")
	cmd.Flags().BoolVarP(&opts.wait, "wait", "w", false, "Wait for the job to finish")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output as JSON")
	return cmd
}

func (o submitOptions) request() (api.SubmitRequest, error) {
	req := api.SubmitRequest{SampleIntervalSeconds: o.interval}
	if o.interval < 0 {
		return req, errors.New("--interval must be positive")
	}
	if smart := strings.TrimSpace(o.smart); smart != "" {
		value, err := strconv.ParseBool(smart)
		if err != nil {
			return req, fmt.Errorf("--smart: %w", err)
		}
		req.SmartMode = &value
	}
	for _, lang := range o.languages {
		if lang = strings.TrimSpace(lang); lang != "" {
			req.Languages = append(req.Languages, lang)
		}
	}
	return req, nil
}

func submitSource(ctx context.Context, client *api.Client, source string, local bool, req api.SubmitRequest) (api.SubmitResponse, error) {
	if isURL(source) {
		req.URL = source
		return client.Submit(ctx, req)
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return api.SubmitResponse{}, fmt.Errorf("resolve path: %w", err)
	}
	if local {
		req.FilePath = abs
		return client.Submit(ctx, req)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return api.SubmitResponse{}, fmt.Errorf("stat %s: %w", source, err)
	}
	if info.IsDir() {
		return api.SubmitResponse{}, fmt.Errorf("%s is a directory", source)
	}
	return client.Upload(ctx, abs, req)
}

func isURL(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// waitForJob polls until the job is terminal, echoing stage changes to progress.
func waitForJob(ctx context.Context, client *api.Client, id string, progress io.Writer) (api.JobStatus, error) {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	lastStage := ""
	for {
		job, err := client.Job(ctx, id)
		if err != nil {
			return api.JobStatus{}, err
		}
		if isTerminalStatus(job.Status) {
			return job, nil
		}
		if job.Stage != lastStage {
			fmt.Fprintf(progress, "%s %3d%% %s\n", job.Stage, job.Progress, job.Message)
			lastStage = job.Stage
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func isTerminalStatus(status string) bool {
	switch status {
	case "completed", "failed":
		return true
	}
	return false
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs tracked by the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				list, err := client.Jobs(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, list)
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				fmt.Fprintln(out, renderJobTable(list))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderJobTable(list []api.JobStatus) string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		rows = append(rows, []string{
			job.ID,
			job.Status,
			job.Stage,
			fmt.Sprintf("%d%%", job.Progress),
			truncate(job.Source, sourceColumnWidth),
			formatTimestamp(job.UpdatedAt),
		})
	}
	return renderTable(jobTableColumns, rows)
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *api.Client) error {
				if _, err := client.Cancel(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for job %s\n", id)
				return nil
			})
		},
	}
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

func formatTimestamp(value string) string {
	if value == "" {
		return "-"
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}
