package backfill

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fortuna/linemate/internal/store"
)

// Repository handles persistence for ingest jobs.
type Repository struct {
	db  *store.Database
	now func() time.Time
}

// NewRepository constructs a Repository.
func NewRepository(db *store.Database) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const jobColumns = `job_id, season, teams, recompute, scoring_plays, dry_run, status, status_message,
	progress_current, progress_total, records_ingested, failures, last_error,
	created_at, updated_at, started_at, completed_at`

// CreateJob inserts a new job row and returns the stored record.
func (r *Repository) CreateJob(ctx context.Context, job *Job) (*Job, error) {
	now := r.now()
	stored := job.Copy()
	stored.JobID = uuid.NewString()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	query := `
		INSERT INTO backfill_jobs (
			job_id, season, teams, recompute, scoring_plays, dry_run, status, status_message,
			progress_current, progress_total, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`

	_, err := r.db.ExecContext(ctx, query,
		stored.JobID, stored.Season, strings.Join(stored.Teams, ","), boolInt(stored.Recompute),
		boolInt(stored.ScoringPlays), boolInt(stored.DryRun), string(stored.Status), stored.StatusMessage,
		stored.ProgressCurrent, stored.ProgressTotal, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return stored, nil
}

// GetJob loads one job, or store.ErrNotFound.
func (r *Repository) GetJob(ctx context.Context, jobID string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM backfill_jobs WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// UpdateStatus updates status, message and optional error.
func (r *Repository) UpdateStatus(ctx context.Context, jobID string, status JobStatus, message string, lastErr error) error {
	now := r.now()
	var completed sql.NullTime
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		completed = sql.NullTime{Time: now, Valid: true}
	}

	var errText sql.NullString
	if lastErr != nil {
		errText = sql.NullString{String: lastErr.Error(), Valid: true}
	}

	query := `
		UPDATE backfill_jobs
		SET status = $2,
			status_message = $3,
			last_error = COALESCE($4, last_error),
			updated_at = $5,
			completed_at = COALESCE($6, completed_at)
		WHERE job_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, jobID, string(status), message, errText, now, completed); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// UpdateProgress updates the progress counters and message.
func (r *Repository) UpdateProgress(ctx context.Context, jobID string, current, total int, message string) error {
	query := `
		UPDATE backfill_jobs
		SET progress_current = $2,
			progress_total = $3,
			status_message = $4,
			updated_at = $5
		WHERE job_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, jobID, current, total, message, r.now()); err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// UpdateCounts stores how many rows were ingested and how many entities failed.
func (r *Repository) UpdateCounts(ctx context.Context, jobID string, records, failures int) error {
	query := `
		UPDATE backfill_jobs
		SET records_ingested = $2,
			failures = $3,
			updated_at = $4
		WHERE job_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, jobID, records, failures, r.now()); err != nil {
		return fmt.Errorf("update job counts: %w", err)
	}
	return nil
}

// ResetStuckJobs moves running jobs back to queued (used during service restarts).
func (r *Repository) ResetStuckJobs(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE backfill_jobs
		SET status = 'queued',
			status_message = 'Reset after service restart',
			updated_at = $1
		WHERE status = 'running'
	`, r.now())
	if err != nil {
		return fmt.Errorf("reset stuck jobs: %w", err)
	}
	return nil
}

// MarkNextJobRunning claims the oldest queued job. The conditional update makes the claim safe
// when more than one worker polls the table; a lost race returns nil.
func (r *Repository) MarkNextJobRunning(ctx context.Context) (*Job, error) {
	var jobID string
	err := r.db.QueryRowContext(ctx, `
		SELECT job_id
		FROM backfill_jobs
		WHERE status = 'queued'
		ORDER BY created_at
		LIMIT 1
	`).Scan(&jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select next job: %w", err)
	}

	now := r.now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE backfill_jobs
		SET status = 'running',
			status_message = 'Starting job...',
			started_at = COALESCE(started_at, $2),
			updated_at = $2
		WHERE job_id = $1 AND status = 'queued'
	`, jobID, now)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, nil
	}

	return r.GetJob(ctx, jobID)
}

// GetActiveJob returns the currently running job, if any.
func (r *Repository) GetActiveJob(ctx context.Context) (*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM backfill_jobs
		WHERE status = 'running'
		ORDER BY started_at DESC
		LIMIT 1
	`

	job, err := scanJob(r.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active job: %w", err)
	}
	return job, nil
}

// ListRecentJobs returns the most recent jobs, newest first.
func (r *Repository) ListRecentJobs(ctx context.Context, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM backfill_jobs
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func scanJob(scanner interface {
	Scan(dest ...interface{}) error
}) (*Job, error) {
	job := &Job{}
	var teams string
	var recompute, plays, dryRun int
	var status string
	err := scanner.Scan(
		&job.JobID,
		&job.Season,
		&teams,
		&recompute,
		&plays,
		&dryRun,
		&status,
		&job.StatusMessage,
		&job.ProgressCurrent,
		&job.ProgressTotal,
		&job.RecordsIngested,
		&job.Failures,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = JobStatus(status)
	job.Recompute = recompute != 0
	job.ScoringPlays = plays != 0
	job.DryRun = dryRun != 0
	if teams != "" {
		job.Teams = strings.Split(teams, ",")
	}
	return job, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
