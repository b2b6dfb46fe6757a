package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/fortuna/linemate/internal/store"
	"github.com/fortuna/linemate/internal/store/repository"
)

const defaultSuggestLimit = 10

// PlayerService handles player name lookups
type PlayerService struct {
	playerRepo *repository.PlayerRepository
}

// NewPlayerService creates a new player service
func NewPlayerService(db *store.Database) *PlayerService {
	return &PlayerService{
		playerRepo: repository.NewPlayerRepository(db),
	}
}

// Suggestion is a fuzzy name match.
type Suggestion struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Suggest returns the season's player names closest to q, best first. An empty query returns
// nothing.
func (s *PlayerService) Suggest(ctx context.Context, season, q string, limit int) ([]Suggestion, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []Suggestion{}, nil
	}
	if limit <= 0 {
		limit = defaultSuggestLimit
	}

	names, err := s.playerRepo.ListNames(ctx, season)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}

	matches := fuzzy.Find(strings.ToLower(q), lowerAll(names))
	out := make([]Suggestion, 0, min(limit, len(matches)))
	for _, m := range matches {
		if len(out) == limit {
			break
		}
		out = append(out, Suggestion{Name: names[m.Index], Score: m.Score})
	}
	return out, nil
}

// Teams lists the teams with game logs in a season.
func (s *PlayerService) Teams(ctx context.Context, season string) ([]string, error) {
	return s.playerRepo.ListTeams(ctx, season)
}

// Roster lists the players who appeared for a team in a season.
func (s *PlayerService) Roster(ctx context.Context, season, team string) ([]string, error) {
	return s.playerRepo.ListRoster(ctx, season, strings.ToUpper(team))
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
