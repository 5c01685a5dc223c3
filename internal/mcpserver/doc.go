// Package mcpserver exposes the daemon to MCP clients over stdio.
//
// Tools call the daemon HTTP API, so the MCP process holds no pipeline state
// and can be started by an editor or agent alongside a running daemon.
package mcpserver
