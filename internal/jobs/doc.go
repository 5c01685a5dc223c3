// Package jobs tracks the lifecycle of note generation jobs.
//
// The Registry is the single authority for a job's status, stage, progress,
// and recorded errors. Progress and stage only move forward, terminal jobs are
// immutable, and readers always receive copies. The registry is held in
// memory; it does not survive a daemon restart.
package jobs
