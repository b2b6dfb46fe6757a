package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fortuna/linemate/internal/analysis"
	"github.com/fortuna/linemate/internal/cache"
	"github.com/fortuna/linemate/internal/store"
	"github.com/fortuna/linemate/internal/store/repository"
)

// QueryService answers the read-side questions: filtered correlation tables, game searches,
// trio counts and teammate involvement. Season stores are kept in process; computed results
// are cached in Redis when configured.
type QueryService struct {
	gameLogs     *repository.GameLogRepository
	correlations *repository.CorrelationRepository
	plays        *repository.ScoringPlayRepository
	players      *repository.PlayerRepository

	stores  *cache.StoreCache
	results cache.Results
	trio    analysis.TrioOptions
	logger  *zap.Logger
}

// NewQueryService creates a new query service. trio supplies the defaults for trio requests.
func NewQueryService(db *store.Database, stores *cache.StoreCache, results cache.Results, trio analysis.TrioOptions, logger *zap.Logger) *QueryService {
	if stores == nil {
		stores = cache.NewStoreCache(4)
	}
	if results == nil {
		results = cache.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{
		gameLogs:     repository.NewGameLogRepository(db),
		correlations: repository.NewCorrelationRepository(db),
		plays:        repository.NewScoringPlayRepository(db),
		players:      repository.NewPlayerRepository(db),
		stores:       stores,
		results:      results,
		trio:         trio,
		logger:       logger,
	}
}

// Store returns the season's game record store, loading it on first use.
func (s *QueryService) Store(ctx context.Context, season string) (*analysis.Store, error) {
	return s.stores.GetOrLoad(season, func() (*analysis.Store, error) {
		logs, err := s.gameLogs.ListBySeason(ctx, season)
		if err != nil {
			return nil, err
		}
		if len(logs) == 0 {
			return nil, fmt.Errorf("game logs for %s: %w", season, store.ErrNotFound)
		}
		st, report := analysis.NewStore(season, logs)
		s.logger.Info("season store loaded",
			zap.String("season", season),
			zap.Int("records", report.Accepted),
			zap.Int("skipped", report.Skipped),
		)
		return st, nil
	})
}

// Correlations returns the season's table joined against prior, filtered.
func (s *QueryService) Correlations(ctx context.Context, season, prior string, filter analysis.CorrelationFilter) ([]analysis.JoinedCorrelationRecord, error) {
	key := cache.SeasonKey(season, "joined", prior)

	var joined []analysis.JoinedCorrelationRecord
	if s.cached(ctx, key, &joined) {
		restoreUndefinedPrior(joined)
	} else {
		var err error
		joined, err = s.correlations.ListJoined(ctx, season, prior)
		if err != nil {
			return nil, err
		}
		s.remember(ctx, key, joined)
	}

	return analysis.FilterCorrelations(joined, filter), nil
}

// restoreUndefinedPrior turns a JSON null prior coefficient on a matched row back into the
// undefined value instead of a missing one.
func restoreUndefinedPrior(recs []analysis.JoinedCorrelationRecord) {
	for i := range recs {
		if recs[i].HasPrior() && recs[i].PriorCorrelation == nil {
			u := analysis.Undefined()
			recs[i].PriorCorrelation = &u
		}
	}
}

// Games returns the games matching the conditions.
func (s *QueryService) Games(ctx context.Context, season string, conditions []analysis.GameCondition, requireAll bool) ([]analysis.GameRef, error) {
	st, err := s.Store(ctx, season)
	if err != nil {
		return nil, err
	}
	return analysis.FilterGames(st, conditions, requireAll)
}

// Trios ranks a team's trios. Zero fields in opts take the service defaults.
func (s *QueryService) Trios(ctx context.Context, season, team string, opts analysis.TrioOptions) ([]analysis.TrioRecord, error) {
	opts = s.trioOptions(opts)
	team = strings.ToUpper(strings.TrimSpace(team))
	key := cache.SeasonKey(season, "trios", team, string(opts.Stat),
		strconv.Itoa(opts.Threshold), strconv.Itoa(opts.Limit))

	var trios []analysis.TrioRecord
	if s.cached(ctx, key, &trios) {
		return trios, nil
	}

	st, err := s.Store(ctx, season)
	if err != nil {
		return nil, err
	}
	trios, err = analysis.TopTrios(st, team, opts)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, key, trios)
	return trios, nil
}

// TrioCount counts the qualifying games for one named trio.
func (s *QueryService) TrioCount(ctx context.Context, season, team string, players [3]string, opts analysis.TrioOptions) (int, error) {
	st, err := s.Store(ctx, season)
	if err != nil {
		return 0, err
	}
	return analysis.TrioCount(st, team, players, s.trioOptions(opts))
}

func (s *QueryService) trioOptions(opts analysis.TrioOptions) analysis.TrioOptions {
	if opts.Stat == "" {
		opts.Stat = s.trio.Stat
	}
	if opts.Threshold == 0 {
		opts.Threshold = s.trio.Threshold
	}
	if opts.Limit == 0 {
		opts.Limit = s.trio.Limit
	}
	if opts.MaxRoster == 0 {
		opts.MaxRoster = s.trio.MaxRoster
	}
	return opts
}

// Involvement summarises who shares the scoresheet with a player.
func (s *QueryService) Involvement(ctx context.Context, season, player string) (analysis.InvolvementSummary, error) {
	key := cache.SeasonKey(season, "involvement", player)

	var summary analysis.InvolvementSummary
	if s.cached(ctx, key, &summary) {
		return summary, nil
	}

	plays, err := s.plays.ListByPlayer(ctx, season, player)
	if err != nil {
		return analysis.InvolvementSummary{}, err
	}
	summary = analysis.TeammateInvolvement(plays, player)
	s.remember(ctx, key, summary)
	return summary, nil
}

// Summary counts what is stored for a season.
func (s *QueryService) Summary(ctx context.Context, season string) (*store.SeasonSummary, error) {
	return s.players.Summary(ctx, season)
}

// cached reports a cache hit. Cache errors are logged and treated as misses.
func (s *QueryService) cached(ctx context.Context, key string, dest interface{}) bool {
	hit, err := s.results.GetJSON(ctx, key, dest)
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return hit
}

func (s *QueryService) remember(ctx context.Context, key string, value interface{}) {
	if err := s.results.SetJSON(ctx, key, value); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
