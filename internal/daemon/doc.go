// Package daemon coordinates the long-running vidnotes process.
//
// It wires configuration, the pipeline executor, and the note store into a
// single lifecycle with flock-based locking to prevent multiple instances.
// The daemon serves the HTTP API (submissions, polling, notes, frames, and
// status), and runs a janitor that forgets finished jobs and stale uploads
// once they age past the retention window.
//
// Keep orchestration logic here: pipeline stages live in workflow and its
// collaborators while the daemon focuses on startup, shutdown, and the
// transport surface.
package daemon
