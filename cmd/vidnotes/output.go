package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"vidnotes/internal/fileutil"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeMarkdown prints markdown to stdout, or writes it to path when set.
func writeMarkdown(cmd *cobra.Command, markdown, path string) error {
	if path == "" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), markdown)
		return err
	}
	if err := fileutil.WriteFileAtomic(path, []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("write note: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote note to %s\n", path)
	return nil
}
