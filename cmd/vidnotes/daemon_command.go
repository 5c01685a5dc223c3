package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vidnotes/internal/daemonrun"
	"vidnotes/internal/workflow"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the vidnotes daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr := ctx.apiAddress(); addr != "" {
				cfg.API.Bind = addr
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug|info|warn|error)")
	return cmd
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var opts submitOptions
	var output string
	var logLevel string
	cmd := &cobra.Command{
		Use:   "process <url-or-path>",
		Short: "Run the pipeline once in this process, without a daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			req, err := opts.request()
			if err != nil {
				return err
			}
			sub := workflow.Submission{
				SampleIntervalSeconds: req.SampleIntervalSeconds,
				SmartMode:             req.SmartMode,
				LanguagePriority:      req.Languages,
			}
			source := strings.TrimSpace(args[0])
			if isURL(source) {
				sub.URL = source
			} else {
				abs, err := filepath.Abs(source)
				if err != nil {
					return fmt.Errorf("resolve path: %w", err)
				}
				sub.FilePath = abs
			}

			outcome, err := daemonrun.Process(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel}, sub)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd, outcome.Document)
			}
			if outcome.Document.Body == "" {
				return errors.New("pipeline produced an empty note")
			}
			if err := writeMarkdown(cmd, outcome.Document.Body, output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Job %s finished; note saved at %s\n", outcome.JobID, outcome.NotePath)
			return nil
		},
	}
	cmd.Flags().Float64Var(&opts.interval, "interval", 0, "Frame sampling interval in seconds (default from config)")
	cmd.Flags().StringVar(&opts.smart, "smart", "", "Force smart mode on or off (true|false)")
	cmd.Flags().StringSliceVar(&opts.languages, "lang", nil, "Transcript language priority, e.g. --lang en,de")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output the note document as JSON")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write markdown to a file instead of stdout")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug|info|warn|error)")
	return cmd
}
