package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidnotes/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var skipLLM bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check external tools, models, and services",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			results := preflight.RunAll(cmd.Context(), cfg)
			if !skipLLM {
				results = append(results, preflight.CheckLLMFromConfig(cmd.Context(), cfg))
			}
			statuses := preflight.CheckSystemDeps(cfg)

			lines := renderSectionHeader("Dependencies", colorize)
			failed := 0
			listed := make(map[string]bool, len(statuses))
			for _, dep := range statuses {
				listed[dep.Name] = true
				switch {
				case dep.Available:
					lines = append(lines, renderStatusLine(dep.Name, statusOK, dep.Command, colorize))
				case dep.Optional:
					lines = append(lines, renderStatusLine(dep.Name, statusWarn, "optional: "+dep.Detail, colorize))
				default:
					failed++
					lines = append(lines, renderStatusLine(dep.Name, statusError, fmt.Sprintf("%s (%s)", dep.Detail, dep.Description), colorize))
				}
			}
			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Checks", colorize)...)
			for _, result := range results {
				// Model files already appear under dependencies.
				if listed[result.Name] {
					continue
				}
				lines = append(lines, checkLine(result.Name, result.Passed, result.Detail, colorize))
				if !result.Passed {
					failed++
				}
			}
			fmt.Fprintln(out, strings.Join(lines, "\n"))

			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			fmt.Fprintln(out, "\nAll checks passed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipLLM, "skip-llm", false, "Skip the note generator connectivity check")
	return cmd
}
