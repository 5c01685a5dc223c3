// Package api defines the wire-format types shared by the daemon HTTP server,
// the CLI, and the MCP server, plus the HTTP client those consumers use.
//
// # Key Types
//
// JobStatus: transport view of a job snapshot with stage, progress, and the
// recorded error list.
//
// NoteResponse: persisted markdown plus the frames it embeds.
//
// DaemonStatus: daemon runtime information including queue depth,
// dependency availability, and collaborator health.
//
// # Converters
//
// FromJob: jobs.Job -> JobStatus.
//
// FromNote / FromNoteSummary: notestore records -> NoteResponse / NoteSummary.
//
// # Design Notes
//
// DTOs use snake_case JSON tags. Stage and status enums are exposed as their
// lowercase names. Timestamps use RFC3339 with milliseconds.
package api
