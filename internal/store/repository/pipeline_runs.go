package repository

import (
	"context"
	"fmt"

	"github.com/fortuna/linemate/internal/store"
)

// PipelineRunRepository records pipeline executions
type PipelineRunRepository struct {
	db *store.Database
}

// NewPipelineRunRepository creates a new pipeline run repository
func NewPipelineRunRepository(db *store.Database) *PipelineRunRepository {
	return &PipelineRunRepository{db: db}
}

// Start inserts a running row
func (r *PipelineRunRepository) Start(ctx context.Context, run *store.PipelineRun) error {
	query := `
		INSERT INTO pipeline_runs (run_id, season, prior_season, trigger_source, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query, run.RunID, run.Season, run.PriorSeason, run.Trigger, run.Status, run.StartedAt); err != nil {
		return fmt.Errorf("inserting pipeline run: %w", err)
	}
	return nil
}

// Finish stores the final counters and status of a run
func (r *PipelineRunRepository) Finish(ctx context.Context, run *store.PipelineRun) error {
	query := `
		UPDATE pipeline_runs
		SET status = $2,
			records = $3,
			skipped = $4,
			duplicates = $5,
			teams = $6,
			pairs = $7,
			matched_prior = $8,
			collisions = $9,
			error_message = $10,
			finished_at = $11,
			duration_ms = $12
		WHERE run_id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		run.RunID, run.Status, run.Records, run.Skipped, run.Duplicates, run.Teams, run.Pairs,
		run.MatchedPrior, run.Collisions, run.ErrorMessage, run.FinishedAt, run.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("updating pipeline run: %w", err)
	}
	return nil
}

// ListRecent returns the latest runs for a season, newest first
func (r *PipelineRunRepository) ListRecent(ctx context.Context, season string, limit int) ([]*store.PipelineRun, error) {
	query := `
		SELECT run_id, season, prior_season, trigger_source, status, records, skipped, duplicates,
			teams, pairs, matched_prior, collisions, error_message, started_at, finished_at, duration_ms
		FROM pipeline_runs
		WHERE season = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, season, limit)
	if err != nil {
		return nil, fmt.Errorf("querying pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []*store.PipelineRun
	for rows.Next() {
		run := &store.PipelineRun{}
		err := rows.Scan(
			&run.RunID, &run.Season, &run.PriorSeason, &run.Trigger, &run.Status, &run.Records,
			&run.Skipped, &run.Duplicates, &run.Teams, &run.Pairs, &run.MatchedPrior, &run.Collisions,
			&run.ErrorMessage, &run.StartedAt, &run.FinishedAt, &run.DurationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning pipeline run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
