package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vidnotes/internal/api"
)

func newNoteCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var output string
	cmd := &cobra.Command{
		Use:   "note <job-id>",
		Short: "Print the markdown note of a finished job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *api.Client) error {
				if jsonOut {
					note, err := client.Note(cmd.Context(), id)
					if err != nil {
						return noteError(id, err)
					}
					return writeJSON(cmd, note)
				}
				markdown, err := client.NoteMarkdown(cmd.Context(), id)
				if err != nil {
					return noteError(id, err)
				}
				return writeMarkdown(cmd, markdown, output)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the note and frame metadata as JSON")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write markdown to a file instead of stdout")
	return cmd
}

func noteError(id string, err error) error {
	switch {
	case api.IsStatus(err, 404):
		return fmt.Errorf("no note for job %s", id)
	case api.IsStatus(err, 409):
		return fmt.Errorf("job %s has not completed yet", id)
	default:
		return err
	}
}

func newNotesCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "List stored notes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				list, err := client.Notes(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, list)
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No notes")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, note := range list {
					rows = append(rows, []string{
						note.JobID,
						note.TranscriptSource,
						strconv.Itoa(note.FrameCount),
						truncate(note.Source, sourceColumnWidth),
						formatTimestamp(note.CreatedAt),
					})
				}
				fmt.Fprintln(out, renderTable(noteTableColumns, rows))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
