// Package logs reads per-job log files for the daemon's log endpoint.
//
// Reads are offset based: a negative offset returns the last N lines, a
// non-negative one returns whatever was appended since. A positive Wait turns
// an empty read into a bounded long poll, which is how `vidnotes logs -f`
// follows a running job without holding a connection open indefinitely.
package logs
