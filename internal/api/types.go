package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SubmitRequest is the JSON body of POST /api/jobs. Exactly one of URL and
// FilePath must be set.
type SubmitRequest struct {
	URL                   string   `json:"url,omitempty"`
	FilePath              string   `json:"file_path,omitempty"`
	SampleIntervalSeconds float64  `json:"sample_interval_seconds,omitempty"`
	SmartMode             *bool    `json:"smart_mode,omitempty"`
	Languages             []string `json:"languages,omitempty"`
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	JobID string `json:"job_id"`
}

// JobError describes one failure recorded on a job.
type JobError struct {
	Kind    string `json:"kind"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
	At      string `json:"at,omitempty"`
}

// JobStatus is the polled view of a job.
type JobStatus struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	Status    string     `json:"status"`
	Stage     string     `json:"stage"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message"`
	Errors    []JobError `json:"errors"`
	CreatedAt string     `json:"created_at,omitempty"`
	UpdatedAt string     `json:"updated_at,omitempty"`
}

// JobListResponse wraps a collection of job statuses.
type JobListResponse struct {
	Jobs []JobStatus `json:"jobs"`
}

// NoteFrame is one frame embedded in a note.
type NoteFrame struct {
	FrameIndex       int     `json:"frame_index"`
	TimestampSeconds float64 `json:"timestamp_seconds"`
	MatchedConcept   string  `json:"matched_concept"`
	Confidence       float64 `json:"confidence"`
	FileRef          string  `json:"file_ref"`
	URL              string  `json:"url"`
}

// NoteResponse is the finished note for one job.
type NoteResponse struct {
	JobID            string      `json:"job_id"`
	Source           string      `json:"source"`
	TranscriptSource string      `json:"transcript_source"`
	Language         string      `json:"language,omitempty"`
	Markdown         string      `json:"markdown"`
	Frames           []NoteFrame `json:"frames"`
	CreatedAt        string      `json:"created_at,omitempty"`
}

// NoteSummary is one row of the persisted note listing.
type NoteSummary struct {
	JobID            string `json:"job_id"`
	Source           string `json:"source"`
	TranscriptSource string `json:"transcript_source"`
	FrameCount       int    `json:"frame_count"`
	CreatedAt        string `json:"created_at,omitempty"`
}

// NoteListResponse wraps the persisted note listing.
type NoteListResponse struct {
	Notes []NoteSummary `json:"notes"`
}

// CancelResponse reports whether a cancellation was delivered.
type CancelResponse struct {
	JobID     string `json:"job_id"`
	Requested bool   `json:"requested"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool               `json:"running"`
	PID           int                `json:"pid"`
	Workers       int                `json:"workers"`
	QueueDepth    int                `json:"queue_depth"`
	QueueCapacity int                `json:"queue_capacity"`
	ActiveJobs    int                `json:"active_jobs"`
	JobCounts     map[string]int     `json:"job_counts"`
	NotesDBPath   string             `json:"notes_db_path"`
	LockFilePath  string             `json:"lock_file_path"`
	Dependencies  []DependencyStatus `json:"dependencies"`
	Checks        []CheckResult      `json:"checks"`
}

// JobLogResponse is one read of a job's log. Pass Offset back to continue.
type JobLogResponse struct {
	JobID  string   `json:"job_id"`
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
