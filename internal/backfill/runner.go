package backfill

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fortuna/linemate/internal/analysis"
	"github.com/fortuna/linemate/internal/cache"
	"github.com/fortuna/linemate/internal/ingest/nhl"
	"github.com/fortuna/linemate/internal/store"
	"github.com/fortuna/linemate/internal/store/repository"
)

// recomputeTrigger is recorded on pipeline runs started by a job.
const recomputeTrigger = "backfill"

// Ingester fetches season data from the source API.
type Ingester interface {
	IngestSeason(ctx context.Context, season string, teams []string, progress nhl.Progress) (*nhl.SeasonResult, error)
	IngestScoringPlays(ctx context.Context, gameIDs []int64) (*nhl.PlaysResult, error)
}

// Recomputer rebuilds a season's correlation tables after new data lands.
type Recomputer interface {
	Run(ctx context.Context, season, prior, trigger string) (*store.PipelineRun, error)
}

// Runner executes ingest specs: fetch, store game logs and scoring plays, optionally recompute.
type Runner struct {
	ingester   Ingester
	gameLogs   *repository.GameLogRepository
	plays      *repository.ScoringPlayRepository
	recomputer Recomputer
	prior      func(season string) string
	logger     *zap.Logger

	// dropped for a season whenever new rows land
	stores  *cache.StoreCache
	results cache.Results
}

// NewRunner constructs a runner. prior maps a season to the one it is joined against when
// recomputing; recomputer may be nil to disable recomputes.
func NewRunner(db *store.Database, ingester Ingester, recomputer Recomputer, prior func(string) string, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prior == nil {
		prior = PreviousSeason
	}
	return &Runner{
		ingester:   ingester,
		gameLogs:   repository.NewGameLogRepository(db),
		plays:      repository.NewScoringPlayRepository(db),
		recomputer: recomputer,
		prior:      prior,
		logger:     logger,
	}
}

// SetCaches registers the caches that serve queries over ingested seasons. They are invalidated
// as soon as new game logs or scoring plays are committed.
func (r *Runner) SetCaches(stores *cache.StoreCache, results cache.Results) {
	r.stores = stores
	r.results = results
}

func (r *Runner) invalidate(ctx context.Context, season string) {
	if r.stores != nil {
		r.stores.Invalidate(season)
	}
	if r.results != nil {
		if err := r.results.InvalidateSeason(ctx, season); err != nil {
			r.logger.Warn("failed to invalidate cached results", zap.String("season", season), zap.Error(err))
		}
	}
}

// Run executes the job spec, reporting progress via the Reporter if provided.
func (r *Runner) Run(ctx context.Context, spec JobSpec, reporter Reporter) (*Outcome, error) {
	if reporter == nil {
		reporter = nopReporter{}
	}
	teams := spec.Teams
	if len(teams) == 0 {
		teams = nhl.DefaultTeams
	}
	reporter.OnJobStart(spec, len(teams))

	if spec.DryRun {
		reporter.OnProgress(fmt.Sprintf("Dry-run mode: would ingest %d teams for %s", len(teams), spec.Season))
		outcome := &Outcome{}
		reporter.OnJobComplete(outcome)
		return outcome, nil
	}

	result, err := r.ingester.IngestSeason(ctx, spec.Season, teams, &progressAdapter{reporter: reporter})
	if err != nil {
		reporter.OnJobError(err)
		return nil, fmt.Errorf("ingesting %s: %w", spec.Season, err)
	}

	outcome := &Outcome{Players: result.Players, Failures: result.Failures}
	n, err := r.gameLogs.UpsertBatch(ctx, spec.Season, result.Records)
	if err != nil {
		reporter.OnJobError(err)
		return nil, err
	}
	outcome.Records = n
	r.invalidate(ctx, spec.Season)
	reporter.OnProgress(fmt.Sprintf("Stored %d game log rows", n))

	if spec.ScoringPlays {
		stored, failures, err := r.ingestScoringPlays(ctx, spec.Season, result.Records)
		if stored > 0 {
			r.invalidate(ctx, spec.Season)
		}
		if err != nil {
			reporter.OnJobError(err)
			return nil, err
		}
		outcome.ScoringPlays = stored
		outcome.Failures = append(outcome.Failures, failures...)
		for _, f := range failures {
			reporter.OnFailure(f)
		}
		reporter.OnProgress(fmt.Sprintf("Stored scoring plays for %d games", stored))
	}

	if spec.Recompute && r.recomputer != nil {
		run, err := r.recomputer.Run(ctx, spec.Season, r.prior(spec.Season), recomputeTrigger)
		if err != nil {
			reporter.OnJobError(err)
			return nil, fmt.Errorf("recomputing %s: %w", spec.Season, err)
		}
		outcome.PipelineRun = run.RunID
	}

	reporter.OnJobComplete(outcome)
	return outcome, nil
}

// ingestScoringPlays fetches plays for the games in records that have none stored yet.
func (r *Runner) ingestScoringPlays(ctx context.Context, season string, records []analysis.GameRecord) (int, []analysis.EntityFailure, error) {
	have, err := r.plays.GameIDs(ctx, season)
	if err != nil {
		return 0, nil, err
	}

	seen := make(map[int64]struct{})
	var missing []int64
	for _, rec := range records {
		if _, ok := have[rec.GameID]; ok {
			continue
		}
		if _, ok := seen[rec.GameID]; ok {
			continue
		}
		seen[rec.GameID] = struct{}{}
		missing = append(missing, rec.GameID)
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	if len(missing) == 0 {
		return 0, nil, nil
	}

	result, err := r.ingester.IngestScoringPlays(ctx, missing)
	if err != nil {
		return 0, nil, err
	}

	stored := 0
	for _, id := range missing {
		plays, ok := result.Plays[id]
		if !ok {
			continue
		}
		if err := r.plays.ReplaceGame(ctx, season, id, plays); err != nil {
			return stored, result.Failures, err
		}
		stored++
	}
	return stored, result.Failures, nil
}

// PreviousSeason returns the season before s ("20232024" → "20222023"), or "" when s is not a
// season id.
func PreviousSeason(s string) string {
	if !nhl.ValidSeason(s) {
		return ""
	}
	start, _ := strconv.Atoi(s[:4])
	return strconv.Itoa(start-1) + strconv.Itoa(start)
}

// progressAdapter turns ingester callbacks into reporter calls.
type progressAdapter struct {
	reporter Reporter
	mu       sync.Mutex
}

func (p *progressAdapter) OnTeamDone(team string, players, records int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reporter.OnTeamDone(strings.ToUpper(team), records)
}

func (p *progressAdapter) OnFailure(f analysis.EntityFailure) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reporter.OnFailure(f)
}

type nopReporter struct{}

func (nopReporter) OnJobStart(JobSpec, int)          {}
func (nopReporter) OnTeamDone(string, int)           {}
func (nopReporter) OnFailure(analysis.EntityFailure) {}
func (nopReporter) OnProgress(string)                {}
func (nopReporter) OnJobComplete(*Outcome)           {}
func (nopReporter) OnJobError(error)                 {}
