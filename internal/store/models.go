package store

import (
	"database/sql"
	"time"
)

// PipelineRun records one execution of the correlation pipeline for a season.
type PipelineRun struct {
	RunID        string         `json:"run_id" db:"run_id"`
	Season       string         `json:"season" db:"season"`
	PriorSeason  string         `json:"prior_season" db:"prior_season"`
	Trigger      string         `json:"trigger" db:"trigger_source"`
	Status       string         `json:"status" db:"status"`
	Records      int            `json:"records" db:"records"`
	Skipped      int            `json:"skipped" db:"skipped"`
	Duplicates   int            `json:"duplicates" db:"duplicates"`
	Teams        int            `json:"teams" db:"teams"`
	Pairs        int            `json:"pairs" db:"pairs"`
	MatchedPrior int            `json:"matched_prior" db:"matched_prior"`
	Collisions   int            `json:"collisions" db:"collisions"`
	ErrorMessage sql.NullString `json:"error_message,omitempty" db:"error_message"`
	StartedAt    time.Time      `json:"started_at" db:"started_at"`
	FinishedAt   sql.NullTime   `json:"finished_at,omitempty" db:"finished_at"`
	DurationMS   int64          `json:"duration_ms" db:"duration_ms"`
}

// Pipeline run states.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// SeasonSummary describes what is stored for a season.
type SeasonSummary struct {
	Season       string `json:"season"`
	GameLogs     int    `json:"game_logs"`
	Players      int    `json:"players"`
	Teams        int    `json:"teams"`
	ScoringPlays int    `json:"scoring_plays"`
	Pairs        int    `json:"pairs"`
}

// Complete fills in the final status, finish time and duration.
func (r *PipelineRun) Complete(status string, runErr error, now time.Time) {
	r.Status = status
	r.FinishedAt = sql.NullTime{Time: now, Valid: true}
	r.DurationMS = now.Sub(r.StartedAt).Milliseconds()
	if runErr != nil {
		r.ErrorMessage = sql.NullString{String: runErr.Error(), Valid: true}
	}
}
