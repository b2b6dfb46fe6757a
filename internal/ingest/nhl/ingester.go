package nhl

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fortuna/linemate/internal/analysis"
)

// Fetcher is the subset of Client the ingester uses.
type Fetcher interface {
	FetchRoster(ctx context.Context, team, season string) (map[string]interface{}, error)
	FetchGameLog(ctx context.Context, playerID int64, season string, gameType int) (map[string]interface{}, error)
	FetchGameLanding(ctx context.Context, gameID int64) (map[string]interface{}, error)
}

// Ingester pulls rosters, game logs and scoring summaries from the NHL API. Fetch failures are
// recorded per entity and never abort the run; only context cancellation does.
type Ingester struct {
	client      Fetcher
	gameType    int
	concurrency int
	logger      *zap.Logger
}

// NewIngester creates an ingester. concurrency bounds how many teams are fetched at once.
func NewIngester(client Fetcher, gameType, concurrency int, logger *zap.Logger) *Ingester {
	if gameType == 0 {
		gameType = GameTypeRegular
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{
		client:      client,
		gameType:    gameType,
		concurrency: concurrency,
		logger:      logger,
	}
}

// IngestSeason fetches every skater's game log for the given teams (DefaultTeams when empty).
func (i *Ingester) IngestSeason(ctx context.Context, season string, teams []string, progress Progress) (*SeasonResult, error) {
	if len(teams) == 0 {
		teams = DefaultTeams
	}

	result := &SeasonResult{Season: season}
	var mu sync.Mutex
	fail := func(f analysis.EntityFailure) {
		mu.Lock()
		result.Failures = append(result.Failures, f)
		mu.Unlock()
		i.logger.Warn("fetch failed", zap.String("kind", f.Kind), zap.String("id", f.ID), zap.String("error", f.Err))
		if progress != nil {
			progress.OnFailure(f)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	for _, team := range teams {
		team := team
		g.Go(func() error {
			records, players, err := i.ingestTeam(gctx, season, team, fail)
			if err != nil {
				return err
			}

			mu.Lock()
			result.Records = append(result.Records, records...)
			result.Players += players
			mu.Unlock()

			i.logger.Info("team ingested",
				zap.String("team", team),
				zap.String("season", season),
				zap.Int("players", players),
				zap.Int("records", len(records)),
			)
			if progress != nil {
				progress.OnTeamDone(team, players, len(records))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

// ingestTeam only returns an error when the context is done.
func (i *Ingester) ingestTeam(ctx context.Context, season, team string, fail func(analysis.EntityFailure)) ([]analysis.GameRecord, int, error) {
	roster, err := i.client.FetchRoster(ctx, team, season)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		fail(analysis.EntityFailure{Kind: "roster", ID: team, Err: err.Error()})
		return nil, 0, nil
	}

	players := ParseRoster(roster, team)
	var records []analysis.GameRecord
	for _, p := range players {
		data, err := i.client.FetchGameLog(ctx, p.ID, season, i.gameType)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			fail(analysis.EntityFailure{Kind: "player", ID: strconv.FormatInt(p.ID, 10), Err: err.Error()})
			continue
		}

		logs, err := ParseGameLog(data, p)
		if err != nil {
			fail(analysis.EntityFailure{Kind: "player", ID: strconv.FormatInt(p.ID, 10), Err: err.Error()})
			continue
		}
		records = append(records, logs...)
	}

	return records, len(players), nil
}

// IngestScoringPlays fetches the scoring summary for each game.
func (i *Ingester) IngestScoringPlays(ctx context.Context, gameIDs []int64) (*PlaysResult, error) {
	result := &PlaysResult{Plays: make(map[int64][]analysis.ScoringPlay, len(gameIDs))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	for _, id := range gameIDs {
		id := id
		g.Go(func() error {
			data, err := i.client.FetchGameLanding(gctx, id)
			if err == nil {
				var plays []analysis.ScoringPlay
				plays, err = ParseScoringPlays(data, id)
				if err == nil {
					mu.Lock()
					result.Plays[id] = plays
					mu.Unlock()
					return nil
				}
			}
			if gctx.Err() != nil {
				return gctx.Err()
			}

			f := analysis.EntityFailure{Kind: "game", ID: strconv.FormatInt(id, 10), Err: err.Error()}
			i.logger.Warn("fetch failed", zap.String("kind", f.Kind), zap.String("id", f.ID), zap.Error(err))
			mu.Lock()
			result.Failures = append(result.Failures, f)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, fmt.Errorf("ingest scoring plays: %w", err)
	}
	return result, nil
}
