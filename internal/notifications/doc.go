// Package notifications pushes job outcomes to ntfy.
//
// NewService returns a noop implementation when no topic is configured, so
// callers never need to branch on whether notifications are enabled. Watcher
// adapts a Service into a jobs.Observer that fires once per finished job
// without blocking the registry writer.
package notifications
