package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fortuna/linemate/internal/analysis"
	"github.com/fortuna/linemate/internal/cache"
	"github.com/fortuna/linemate/internal/export"
	"github.com/fortuna/linemate/internal/publisher"
	"github.com/fortuna/linemate/internal/store"
	"github.com/fortuna/linemate/internal/store/repository"
)

// ErrNoGameLogs is returned when a season has nothing to compute from.
var ErrNoGameLogs = errors.New("no game logs for season")

// Pipeline triggers recorded on each run.
const (
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
	TriggerBackfill = "backfill"
	TriggerCommand  = "cli"
)

// PipelineService turns stored game logs into the persisted correlation tables: load, compute,
// persist, join with the prior season, then notify caches and subscribers.
type PipelineService struct {
	gameLogs     *repository.GameLogRepository
	correlations *repository.CorrelationRepository
	runs         *repository.PipelineRunRepository

	stores    *cache.StoreCache
	results   cache.Results
	publisher publisher.Publisher
	exporter  *export.Exporter

	stat   analysis.Stat
	logger *zap.Logger
	now    func() time.Time

	// one run at a time per process
	mu sync.Mutex
}

// PipelineDeps are the optional collaborators of a PipelineService. Nil fields are disabled.
type PipelineDeps struct {
	Stores    *cache.StoreCache
	Results   cache.Results
	Publisher publisher.Publisher
	Exporter  *export.Exporter
	Logger    *zap.Logger
}

// NewPipelineService creates a new pipeline service
func NewPipelineService(db *store.Database, stat analysis.Stat, deps PipelineDeps) *PipelineService {
	if stat == "" {
		stat = analysis.StatPoints
	}
	if deps.Stores == nil {
		deps.Stores = cache.NewStoreCache(4)
	}
	if deps.Results == nil {
		deps.Results = cache.Nop{}
	}
	if deps.Publisher == nil {
		deps.Publisher = publisher.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &PipelineService{
		gameLogs:     repository.NewGameLogRepository(db),
		correlations: repository.NewCorrelationRepository(db),
		runs:         repository.NewPipelineRunRepository(db),
		stores:       deps.Stores,
		results:      deps.Results,
		publisher:    deps.Publisher,
		exporter:     deps.Exporter,
		stat:         stat,
		logger:       deps.Logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Run recomputes a season's correlations and its join against prior. An empty prior skips the
// join lookup but still stores a joined table with no prior matches. The returned run is also
// persisted in pipeline_runs, including on failure.
func (s *PipelineService) Run(ctx context.Context, season, prior, trigger string) (*store.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &store.PipelineRun{
		RunID:       uuid.NewString(),
		Season:      season,
		PriorSeason: prior,
		Trigger:     trigger,
		Status:      store.RunStatusRunning,
		StartedAt:   s.now(),
	}
	if err := s.runs.Start(ctx, run); err != nil {
		return nil, err
	}

	log := s.logger.With(zap.String("run_id", run.RunID), zap.String("season", season), zap.String("prior", prior))
	log.Info("pipeline started", zap.String("trigger", trigger))
	s.publish(ctx, publisher.Event{Type: publisher.EventPipelineStarted, Season: season, RunID: run.RunID})

	runErr := s.execute(ctx, run, log)

	status := store.RunStatusCompleted
	if runErr != nil {
		status = store.RunStatusFailed
	}
	run.Complete(status, runErr, s.now())

	// record the outcome even when ctx was cancelled mid-run
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.runs.Finish(finishCtx, run); err != nil {
		log.Error("failed to record pipeline run", zap.Error(err))
	}

	if runErr != nil {
		log.Error("pipeline failed", zap.Error(runErr))
		s.publish(finishCtx, publisher.Event{Type: publisher.EventPipelineFailed, Season: season, RunID: run.RunID, Message: runErr.Error()})
		return run, runErr
	}

	log.Info("pipeline completed",
		zap.Int("records", run.Records),
		zap.Int("pairs", run.Pairs),
		zap.Int("matched_prior", run.MatchedPrior),
		zap.Int64("duration_ms", run.DurationMS),
	)
	s.publish(finishCtx, publisher.Event{
		Type:   publisher.EventPipelineCompleted,
		Season: season,
		RunID:  run.RunID,
		Data: map[string]interface{}{
			"pairs":         run.Pairs,
			"teams":         run.Teams,
			"matched_prior": run.MatchedPrior,
			"collisions":    run.Collisions,
		},
	})
	return run, nil
}

func (s *PipelineService) execute(ctx context.Context, run *store.PipelineRun, log *zap.Logger) error {
	st, report, err := s.loadStore(ctx, run.Season)
	if err != nil {
		return err
	}
	run.Records = report.Accepted
	run.Skipped = report.Skipped
	run.Duplicates = report.Duplicates
	if report.Skipped > 0 || report.Duplicates > 0 {
		log.Warn("game log rows rejected",
			zap.Int("skipped", report.Skipped),
			zap.Int("duplicates", report.Duplicates),
			zap.Strings("problems", report.Problems),
		)
	}

	result, err := analysis.ComputeCorrelations(st, analysis.CorrelationOptions{Stat: s.stat})
	if err != nil {
		return fmt.Errorf("computing correlations: %w", err)
	}
	run.Teams = result.Teams
	run.Pairs = len(result.Records)
	run.Collisions = result.Collisions
	if result.Collisions > 0 {
		log.Warn("pivot rows shared by more than one game were averaged", zap.Int("collisions", result.Collisions))
	}

	if err := s.correlations.ReplaceSeason(ctx, run.Season, s.stat, result.Records); err != nil {
		return err
	}

	var prior []analysis.CorrelationRecord
	if run.PriorSeason != "" {
		prior, err = s.priorTable(ctx, run.PriorSeason, log)
		if err != nil {
			return err
		}
	}

	joined := analysis.JoinSeasons(result.Records, prior)
	for _, j := range joined {
		if j.HasPrior() {
			run.MatchedPrior++
		}
	}
	if err := s.correlations.ReplaceJoined(ctx, run.Season, run.PriorSeason, joined); err != nil {
		return err
	}

	s.stores.Add(run.Season, st)
	if err := s.results.InvalidateSeason(ctx, run.Season); err != nil {
		log.Warn("failed to invalidate cached results", zap.Error(err))
	}

	if s.exporter.Enabled() {
		if _, err := s.exporter.ExportCorrelations(ctx, run.Season, result.Records); err != nil {
			log.Warn("correlation export failed", zap.Error(err))
		}
		if _, err := s.exporter.ExportJoined(ctx, run.Season, run.PriorSeason, joined); err != nil {
			log.Warn("joined export failed", zap.Error(err))
		}
	}
	return nil
}

// priorTable returns the stored prior table for the pipeline stat, computing and storing it from
// game logs when none is stored. Ingesting game logs clears a season's stored table, so a reused
// table always matches the logs. A prior season with no data joins as empty.
func (s *PipelineService) priorTable(ctx context.Context, prior string, log *zap.Logger) ([]analysis.CorrelationRecord, error) {
	recs, err := s.correlations.ListSeason(ctx, prior, s.stat)
	if err == nil {
		return recs, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	st, _, err := s.loadStore(ctx, prior)
	if errors.Is(err, ErrNoGameLogs) {
		log.Warn("prior season has no data, join will be empty")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	result, err := analysis.ComputeCorrelations(st, analysis.CorrelationOptions{Stat: s.stat})
	if err != nil {
		return nil, fmt.Errorf("computing prior correlations: %w", err)
	}
	if err := s.correlations.ReplaceSeason(ctx, prior, s.stat, result.Records); err != nil {
		return nil, err
	}
	log.Info("computed prior season table", zap.Int("pairs", len(result.Records)))
	return result.Records, nil
}

func (s *PipelineService) loadStore(ctx context.Context, season string) (*analysis.Store, analysis.IngestReport, error) {
	logs, err := s.gameLogs.ListBySeason(ctx, season)
	if err != nil {
		return nil, analysis.IngestReport{}, err
	}
	if len(logs) == 0 {
		return nil, analysis.IngestReport{}, fmt.Errorf("%w %s", ErrNoGameLogs, season)
	}
	st, report := analysis.NewStore(season, logs)
	return st, report, nil
}

func (s *PipelineService) publish(ctx context.Context, e publisher.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish pipeline event", zap.String("type", string(e.Type)), zap.Error(err))
	}
}

// RecentRuns lists the latest runs for a season.
func (s *PipelineService) RecentRuns(ctx context.Context, season string, limit int) ([]*store.PipelineRun, error) {
	return s.runs.ListRecent(ctx, season, limit)
}
