package main

import (
	"github.com/spf13/cobra"

	"vidnotes/internal/api"
	"vidnotes/internal/mcpserver"
)

func newMCPCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the daemon as MCP tools over stdio",
		Long: "Expose submit_video, job_status, and get_note as Model Context Protocol\n" +
			"tools on stdin/stdout, forwarding each call to the running daemon.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := api.NewClient(ctx.apiAddress(), ctx.apiToken())
			if err != nil {
				return wrapAPIError(err, ctx.apiAddress())
			}
			return mcpserver.ServeStdio(mcpserver.New(client, version))
		},
	}
}
