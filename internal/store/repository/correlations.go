package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fortuna/linemate/internal/analysis"
	"github.com/fortuna/linemate/internal/store"
)

// CorrelationRepository persists season correlation tables and their season-over-season joins.
// Rows keep the order they were computed in via an ordinal column.
type CorrelationRepository struct {
	db *store.Database
}

// NewCorrelationRepository creates a new correlation repository
func NewCorrelationRepository(db *store.Database) *CorrelationRepository {
	return &CorrelationRepository{db: db}
}

// ReplaceSeason swaps the stored table for a season with recs
func (r *CorrelationRepository) ReplaceSeason(ctx context.Context, season string, stat analysis.Stat, recs []analysis.CorrelationRecord) error {
	return r.db.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM correlations WHERE season = $1`, season); err != nil {
			return fmt.Errorf("clearing correlations: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO correlations (season, pair_id, ordinal, team_abbrev, player_a, player_b,
				correlation, total_points_a, total_points_b, games, stat)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`)
		if err != nil {
			return fmt.Errorf("preparing correlation insert: %w", err)
		}
		defer stmt.Close()

		for i, c := range recs {
			_, err := stmt.ExecContext(ctx, season, c.PairID, i, c.Team, c.PlayerA, c.PlayerB,
				nullCoefficient(c.Correlation), c.TotalPointsA, c.TotalPointsB, c.Games, string(stat))
			if err != nil {
				return fmt.Errorf("inserting correlation %s: %w", c.PairID, err)
			}
		}
		return nil
	})
}

// ListSeason returns a season's table for stat in stored order. A season that was never
// computed for stat returns store.ErrNotFound.
func (r *CorrelationRepository) ListSeason(ctx context.Context, season string, stat analysis.Stat) ([]analysis.CorrelationRecord, error) {
	query := `
		SELECT team_abbrev, player_a, player_b, correlation, total_points_a, total_points_b, games, pair_id
		FROM correlations
		WHERE season = $1 AND stat = $2
		ORDER BY ordinal
	`

	rows, err := r.db.QueryContext(ctx, query, season, string(stat))
	if err != nil {
		return nil, fmt.Errorf("querying correlations: %w", err)
	}
	defer rows.Close()

	var recs []analysis.CorrelationRecord
	for rows.Next() {
		var c analysis.CorrelationRecord
		var corr sql.NullFloat64
		if err := rows.Scan(&c.Team, &c.PlayerA, &c.PlayerB, &corr, &c.TotalPointsA, &c.TotalPointsB, &c.Games, &c.PairID); err != nil {
			return nil, fmt.Errorf("scanning correlation: %w", err)
		}
		c.Correlation = coefficientFrom(corr)
		recs = append(recs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(recs) == 0 {
		return nil, fmt.Errorf("%s correlations for season %s: %w", stat, season, store.ErrNotFound)
	}
	return recs, nil
}

// ReplaceJoined swaps the stored join of season onto prior
func (r *CorrelationRepository) ReplaceJoined(ctx context.Context, season, prior string, recs []analysis.JoinedCorrelationRecord) error {
	return r.db.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM joined_correlations WHERE season = $1 AND prior_season = $2`, season, prior); err != nil {
			return fmt.Errorf("clearing joined correlations: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO joined_correlations (season, prior_season, pair_id, ordinal, team_abbrev, player_a, player_b,
				correlation, total_points_a, total_points_b, games,
				prior_correlation, prior_total_points_a, prior_total_points_b, has_prior)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`)
		if err != nil {
			return fmt.Errorf("preparing joined insert: %w", err)
		}
		defer stmt.Close()

		for i, j := range recs {
			var priorCorr, priorA, priorB interface{}
			hasPrior := 0
			if j.HasPrior() {
				priorCorr = nullCoefficient(*j.PriorCorrelation)
				priorA = *j.PriorTotalPointsA
				priorB = *j.PriorTotalPointsB
				hasPrior = 1
			}

			_, err := stmt.ExecContext(ctx, season, prior, j.PairID, i, j.Team, j.PlayerA, j.PlayerB,
				nullCoefficient(j.Correlation), j.TotalPointsA, j.TotalPointsB, j.Games,
				priorCorr, priorA, priorB, hasPrior)
			if err != nil {
				return fmt.Errorf("inserting joined correlation %s: %w", j.PairID, err)
			}
		}
		return nil
	})
}

// ListJoined returns the stored join in order, or store.ErrNotFound when it was never built
func (r *CorrelationRepository) ListJoined(ctx context.Context, season, prior string) ([]analysis.JoinedCorrelationRecord, error) {
	query := `
		SELECT team_abbrev, player_a, player_b, correlation, total_points_a, total_points_b, games, pair_id,
			prior_correlation, prior_total_points_a, prior_total_points_b, has_prior
		FROM joined_correlations
		WHERE season = $1 AND prior_season = $2
		ORDER BY ordinal
	`

	rows, err := r.db.QueryContext(ctx, query, season, prior)
	if err != nil {
		return nil, fmt.Errorf("querying joined correlations: %w", err)
	}
	defer rows.Close()

	var recs []analysis.JoinedCorrelationRecord
	for rows.Next() {
		var j analysis.JoinedCorrelationRecord
		var corr, priorCorr sql.NullFloat64
		var priorA, priorB sql.NullInt64
		var hasPrior int
		err := rows.Scan(&j.Team, &j.PlayerA, &j.PlayerB, &corr, &j.TotalPointsA, &j.TotalPointsB, &j.Games, &j.PairID,
			&priorCorr, &priorA, &priorB, &hasPrior)
		if err != nil {
			return nil, fmt.Errorf("scanning joined correlation: %w", err)
		}

		j.Correlation = coefficientFrom(corr)
		if hasPrior == 1 {
			pc := coefficientFrom(priorCorr)
			a, b := int(priorA.Int64), int(priorB.Int64)
			j.PriorCorrelation = &pc
			j.PriorTotalPointsA = &a
			j.PriorTotalPointsB = &b
		}
		recs = append(recs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(recs) == 0 {
		return nil, fmt.Errorf("joined correlations for %s/%s: %w", season, prior, store.ErrNotFound)
	}
	return recs, nil
}

func nullCoefficient(c analysis.Coefficient) sql.NullFloat64 {
	if !c.Defined() {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c.Float64(), Valid: true}
}

func coefficientFrom(v sql.NullFloat64) analysis.Coefficient {
	if !v.Valid {
		return analysis.Undefined()
	}
	return analysis.Coefficient(v.Float64)
}
