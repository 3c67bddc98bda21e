package entities

import "time"

// JobKind identifies the long operation a job executes.
type JobKind string

const (
	JobKindNormalize   JobKind = "normalize"
	JobKindRollback    JobKind = "rollback"
	JobKindBootstrap   JobKind = "bootstrap"
	JobKindDeduplicate JobKind = "deduplicate"
	JobKindMergeType   JobKind = "merge-type"
	JobKindOntology    JobKind = "ontology"
)

// JobStatus is the lifecycle state of a job. Transitions are monotonic:
// queued -> running -> finished | failed.
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusFinished JobStatus = "finished"
	JobStatusFailed   JobStatus = "failed"
)

// Terminal reports whether the status admits no further transition.
func (s JobStatus) Terminal() bool {
	return s == JobStatusFinished || s == JobStatusFailed
}

// Job is an asynchronous unit of work with pollable status.
type Job struct {
	ID        string     `json:"id"`
	Kind      JobKind    `json:"kind"`
	TypeName  string     `json:"type_name,omitempty"`
	Status    JobStatus  `json:"status"`
	Processed int        `json:"processed"`
	Total     int        `json:"total"`
	Result    []byte     `json:"result,omitempty"` // JSON payload once finished
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}
