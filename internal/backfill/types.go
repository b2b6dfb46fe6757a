package backfill

import (
	"database/sql"
	"time"

	"github.com/fortuna/linemate/internal/analysis"
)

// JobStatus represents the lifecycle state for a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job models the database representation of an ingest job.
type Job struct {
	JobID           string         `json:"job_id"`
	Season          string         `json:"season"`
	Teams           []string       `json:"teams"`
	Recompute       bool           `json:"recompute"`
	ScoringPlays    bool           `json:"scoring_plays"`
	DryRun          bool           `json:"dry_run"`
	Status          JobStatus      `json:"status"`
	StatusMessage   sql.NullString `json:"status_message"`
	ProgressCurrent int            `json:"progress_current"`
	ProgressTotal   int            `json:"progress_total"`
	RecordsIngested int            `json:"records_ingested"`
	Failures        int            `json:"failures"`
	LastError       sql.NullString `json:"last_error"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	StartedAt       sql.NullTime   `json:"started_at"`
	CompletedAt     sql.NullTime   `json:"completed_at"`
}

// Copy returns a shallow copy to prevent external mutation.
func (j *Job) Copy() *Job {
	if j == nil {
		return nil
	}
	cpy := *j
	cpy.Teams = append([]string(nil), j.Teams...)
	return &cpy
}

// JobSpec describes the work to be performed by the runner.
type JobSpec struct {
	Season       string
	Teams        []string
	Recompute    bool
	ScoringPlays bool
	DryRun       bool
}

// Outcome is what a finished run produced.
type Outcome struct {
	Records      int
	Players      int
	ScoringPlays int
	Failures     []analysis.EntityFailure
	PipelineRun  string
}

// Reporter receives lifecycle callbacks from the runner.
type Reporter interface {
	OnJobStart(spec JobSpec, total int)
	OnTeamDone(team string, records int)
	OnFailure(f analysis.EntityFailure)
	OnProgress(message string)
	OnJobComplete(outcome *Outcome)
	OnJobError(err error)
}

// StatusSummary is returned to API callers.
type StatusSummary struct {
	ActiveJob *Job   `json:"active_job,omitempty"`
	History   []*Job `json:"recent_jobs,omitempty"`
}
