package repository

import (
	"context"
	"fmt"

	"github.com/fortuna/linemate/internal/store"
)

// PlayerRepository answers name and roster lookups from the stored game logs
type PlayerRepository struct {
	db *store.Database
}

// NewPlayerRepository creates a new player repository
func NewPlayerRepository(db *store.Database) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// ListNames returns the distinct full names recorded in a season
func (r *PlayerRepository) ListNames(ctx context.Context, season string) ([]string, error) {
	query := `
		SELECT DISTINCT full_name
		FROM game_logs
		WHERE season = $1
		ORDER BY full_name
	`
	return r.strings(ctx, query, season)
}

// ListTeams returns the team abbreviations recorded in a season
func (r *PlayerRepository) ListTeams(ctx context.Context, season string) ([]string, error) {
	query := `
		SELECT DISTINCT team_abbrev
		FROM game_logs
		WHERE season = $1
		ORDER BY team_abbrev
	`
	return r.strings(ctx, query, season)
}

// ListRoster returns the full names that appeared for a team in a season
func (r *PlayerRepository) ListRoster(ctx context.Context, season, team string) ([]string, error) {
	query := `
		SELECT DISTINCT full_name
		FROM game_logs
		WHERE season = $1 AND team_abbrev = $2
		ORDER BY full_name
	`
	return r.strings(ctx, query, season, team)
}

// Summary counts what is stored for a season
func (r *PlayerRepository) Summary(ctx context.Context, season string) (*store.SeasonSummary, error) {
	s := &store.SeasonSummary{Season: season}

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT full_name), COUNT(DISTINCT team_abbrev)
		FROM game_logs
		WHERE season = $1
	`, season).Scan(&s.GameLogs, &s.Players, &s.Teams)
	if err != nil {
		return nil, fmt.Errorf("counting game logs: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scoring_plays WHERE season = $1`, season).Scan(&s.ScoringPlays); err != nil {
		return nil, fmt.Errorf("counting scoring plays: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM correlations WHERE season = $1`, season).Scan(&s.Pairs); err != nil {
		return nil, fmt.Errorf("counting correlations: %w", err)
	}

	return s, nil
}

func (r *PlayerRepository) strings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying players: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scanning player row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
