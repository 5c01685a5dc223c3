package jobs

import (
	"slices"
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage names the pipeline phase a job is in. Stages only move forward.
type Stage string

const (
	StageStarting     Stage = "starting"
	StageUploading    Stage = "uploading"
	StageExtracting   Stage = "extracting"
	StageTranscribing Stage = "transcribing"
	StageAligning     Stage = "aligning"
	StageGenerating   Stage = "generating"
	StageCompleted    Stage = "completed"
	// StageError marks a job that failed before any pipeline stage started.
	StageError Stage = "error"
)

var stageOrder = []Stage{
	StageStarting,
	StageUploading,
	StageExtracting,
	StageTranscribing,
	StageAligning,
	StageGenerating,
	StageCompleted,
	StageError,
}

// Rank returns the position of the stage in the fixed ordering, or -1 when
// the stage is unknown.
func (s Stage) Rank() int {
	return slices.Index(stageOrder, s)
}

// ParseStage converts a stage name into a Stage.
func ParseStage(value string) (Stage, bool) {
	stage := Stage(strings.ToLower(strings.TrimSpace(value)))
	if stage.Rank() < 0 {
		return "", false
	}
	return stage, true
}

// Error is one recorded failure description.
type Error struct {
	Kind    string    `json:"kind"`
	Stage   Stage     `json:"stage"`
	Message string    `json:"message"`
	Fatal   bool      `json:"fatal"`
	At      time.Time `json:"at"`
}

// Job is an immutable snapshot of one submission's tracked state.
type Job struct {
	ID        string
	Source    string
	Status    Status
	Stage     Stage
	Progress  int
	Message   string
	Errors    []Error
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (j Job) clone() Job {
	j.Errors = slices.Clone(j.Errors)
	return j
}

// FatalError returns the error that terminated the job, if any.
func (j Job) FatalError() (Error, bool) {
	for i := len(j.Errors) - 1; i >= 0; i-- {
		if j.Errors[i].Fatal {
			return j.Errors[i], true
		}
	}
	return Error{}, false
}
