package repository

import (
	"context"
	"fmt"

	"github.com/fortuna/linemate/internal/analysis"
	"github.com/fortuna/linemate/internal/store"
)

// GameLogRepository handles per-game skater stat lines
type GameLogRepository struct {
	db *store.Database
}

// NewGameLogRepository creates a new game log repository
func NewGameLogRepository(db *store.Database) *GameLogRepository {
	return &GameLogRepository{db: db}
}

const gameLogColumns = `player_id, game_id, first_name, last_name, full_name, team_abbrev, opponent_abbrev,
	game_date, home_road_flag, goals, assists, points, plus_minus, power_play_goals, power_play_points,
	game_winning_goals, shots, shifts, pim, toi, toi_seconds`

// UpsertBatch writes records for a season in one transaction. Existing (season, player, game)
// rows are overwritten with the new values.
func (r *GameLogRepository) UpsertBatch(ctx context.Context, season string, records []analysis.GameRecord) (int, error) {
	query := `
		INSERT INTO game_logs (season, ` + gameLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (season, player_id, game_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			full_name = EXCLUDED.full_name,
			team_abbrev = EXCLUDED.team_abbrev,
			opponent_abbrev = EXCLUDED.opponent_abbrev,
			game_date = EXCLUDED.game_date,
			home_road_flag = EXCLUDED.home_road_flag,
			goals = EXCLUDED.goals,
			assists = EXCLUDED.assists,
			points = EXCLUDED.points,
			plus_minus = EXCLUDED.plus_minus,
			power_play_goals = EXCLUDED.power_play_goals,
			power_play_points = EXCLUDED.power_play_points,
			game_winning_goals = EXCLUDED.game_winning_goals,
			shots = EXCLUDED.shots,
			shifts = EXCLUDED.shifts,
			pim = EXCLUDED.pim,
			toi = EXCLUDED.toi,
			toi_seconds = EXCLUDED.toi_seconds
	`

	written := 0
	err := r.db.WithTx(ctx, func(tx *store.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("preparing game log upsert: %w", err)
		}
		defer stmt.Close()

		for _, g := range records {
			fullName := g.FullName
			if fullName == "" {
				fullName = analysis.FullNameOf(g.FirstName, g.LastName)
			}
			_, err := stmt.ExecContext(ctx,
				season, g.PlayerID, g.GameID, g.FirstName, g.LastName, fullName, g.TeamAbbrev, g.OpponentAbbrev,
				g.GameDate, g.HomeRoadFlag, g.Goals, g.Assists, g.Points, g.PlusMinus, g.PowerPlayGoals,
				g.PowerPlayPoints, g.GameWinningGoals, g.Shots, g.Shifts, g.PIM, g.TOI, g.TOISeconds,
			)
			if err != nil {
				return fmt.Errorf("upserting game log player %d game %d: %w", g.PlayerID, g.GameID, err)
			}
			written++
		}
		if written == 0 {
			return nil
		}
		// A computed table no longer matches the season's logs
		if _, err := tx.ExecContext(ctx, `DELETE FROM correlations WHERE season = $1`, season); err != nil {
			return fmt.Errorf("clearing stale correlations: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return written, nil
}

// ListBySeason returns every stored record for a season ordered by date, game and player
func (r *GameLogRepository) ListBySeason(ctx context.Context, season string) ([]analysis.GameRecord, error) {
	query := `
		SELECT ` + gameLogColumns + `
		FROM game_logs
		WHERE season = $1
		ORDER BY game_date, game_id, player_id
	`
	return r.query(ctx, query, season)
}

// ListByTeam returns a season's records for one team
func (r *GameLogRepository) ListByTeam(ctx context.Context, season, team string) ([]analysis.GameRecord, error) {
	query := `
		SELECT ` + gameLogColumns + `
		FROM game_logs
		WHERE season = $1 AND team_abbrev = $2
		ORDER BY game_date, game_id, player_id
	`
	return r.query(ctx, query, season, team)
}

// ListGameIDs returns the distinct games stored for a season
func (r *GameLogRepository) ListGameIDs(ctx context.Context, season string) ([]analysis.GameRef, error) {
	query := `
		SELECT DISTINCT game_id, game_date
		FROM game_logs
		WHERE season = $1
		ORDER BY game_date, game_id
	`

	rows, err := r.db.QueryContext(ctx, query, season)
	if err != nil {
		return nil, fmt.Errorf("querying game ids: %w", err)
	}
	defer rows.Close()

	var refs []analysis.GameRef
	for rows.Next() {
		var ref analysis.GameRef
		if err := rows.Scan(&ref.GameID, &ref.GameDate); err != nil {
			return nil, fmt.Errorf("scanning game id: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// DeleteSeason removes a season's records and returns how many rows were deleted
func (r *GameLogRepository) DeleteSeason(ctx context.Context, season string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM game_logs WHERE season = $1`, season)
	if err != nil {
		return 0, fmt.Errorf("deleting game logs: %w", err)
	}
	return res.RowsAffected()
}

func (r *GameLogRepository) query(ctx context.Context, query string, args ...interface{}) ([]analysis.GameRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying game logs: %w", err)
	}
	defer rows.Close()

	var records []analysis.GameRecord
	for rows.Next() {
		var g analysis.GameRecord
		err := rows.Scan(
			&g.PlayerID, &g.GameID, &g.FirstName, &g.LastName, &g.FullName, &g.TeamAbbrev, &g.OpponentAbbrev,
			&g.GameDate, &g.HomeRoadFlag, &g.Goals, &g.Assists, &g.Points, &g.PlusMinus, &g.PowerPlayGoals,
			&g.PowerPlayPoints, &g.GameWinningGoals, &g.Shots, &g.Shifts, &g.PIM, &g.TOI, &g.TOISeconds,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning game log: %w", err)
		}
		records = append(records, g)
	}

	return records, rows.Err()
}
