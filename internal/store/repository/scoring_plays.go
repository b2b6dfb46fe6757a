package repository

import (
	"context"
	"fmt"

	"github.com/fortuna/linemate/internal/analysis"
	"github.com/fortuna/linemate/internal/store"
)

// ScoringPlayRepository handles goal events used for teammate involvement
type ScoringPlayRepository struct {
	db *store.Database
}

// NewScoringPlayRepository creates a new scoring play repository
func NewScoringPlayRepository(db *store.Database) *ScoringPlayRepository {
	return &ScoringPlayRepository{db: db}
}

// ReplaceGame stores the scoring plays of one game, replacing whatever was stored before.
// Plays keep their input order.
func (r *ScoringPlayRepository) ReplaceGame(ctx context.Context, season string, gameID int64, plays []analysis.ScoringPlay) error {
	return r.db.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM scoring_plays WHERE season = $1 AND game_id = $2`, season, gameID); err != nil {
			return fmt.Errorf("clearing scoring plays for game %d: %w", gameID, err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO scoring_plays (season, game_id, event_idx, game_date, team_abbrev, scorer, assist1, assist2)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`)
		if err != nil {
			return fmt.Errorf("preparing scoring play insert: %w", err)
		}
		defer stmt.Close()

		for idx, p := range plays {
			if _, err := stmt.ExecContext(ctx, season, gameID, idx, p.GameDate, p.Team, p.Scorer, p.Assist1, p.Assist2); err != nil {
				return fmt.Errorf("inserting scoring play %d of game %d: %w", idx, gameID, err)
			}
		}
		return nil
	})
}

// ListBySeason returns a season's scoring plays in game and event order
func (r *ScoringPlayRepository) ListBySeason(ctx context.Context, season string) ([]analysis.ScoringPlay, error) {
	query := `
		SELECT game_id, game_date, team_abbrev, scorer, assist1, assist2
		FROM scoring_plays
		WHERE season = $1
		ORDER BY game_date, game_id, event_idx
	`
	return r.query(ctx, query, season)
}

// ListByPlayer returns the plays a player is credited on, as scorer or either assist
func (r *ScoringPlayRepository) ListByPlayer(ctx context.Context, season, fullName string) ([]analysis.ScoringPlay, error) {
	query := `
		SELECT game_id, game_date, team_abbrev, scorer, assist1, assist2
		FROM scoring_plays
		WHERE season = $1 AND (scorer = $2 OR assist1 = $2 OR assist2 = $2)
		ORDER BY game_date, game_id, event_idx
	`
	return r.query(ctx, query, season, fullName)
}

// GameIDs returns the set of games that already have scoring plays stored
func (r *ScoringPlayRepository) GameIDs(ctx context.Context, season string) (map[int64]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT game_id FROM scoring_plays WHERE season = $1`, season)
	if err != nil {
		return nil, fmt.Errorf("querying scoring play games: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning game id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (r *ScoringPlayRepository) query(ctx context.Context, query string, args ...interface{}) ([]analysis.ScoringPlay, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying scoring plays: %w", err)
	}
	defer rows.Close()

	var plays []analysis.ScoringPlay
	for rows.Next() {
		var p analysis.ScoringPlay
		if err := rows.Scan(&p.GameID, &p.GameDate, &p.Team, &p.Scorer, &p.Assist1, &p.Assist2); err != nil {
			return nil, fmt.Errorf("scanning scoring play: %w", err)
		}
		plays = append(plays, p)
	}

	return plays, rows.Err()
}
