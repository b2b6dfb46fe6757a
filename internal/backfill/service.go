package backfill

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fortuna/linemate/internal/analysis"
	"github.com/fortuna/linemate/internal/ingest/nhl"
	"github.com/fortuna/linemate/internal/publisher"
	"github.com/fortuna/linemate/internal/store"
)

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("invalid backfill request")

// Request represents a backfill invocation request.
type Request struct {
	Season       string   `json:"season"`
	Teams        []string `json:"teams,omitempty"`
	Recompute    bool     `json:"recompute"`
	ScoringPlays *bool    `json:"scoring_plays,omitempty"`
	DryRun       bool     `json:"dry_run"`
}

// normalize validates the request and fills its defaults.
func (r Request) normalize() (Request, error) {
	r.Season = strings.TrimSpace(r.Season)
	if !nhl.ValidSeason(r.Season) {
		return r, fmt.Errorf("%w: season %q is not an eight-digit season id", ErrInvalidRequest, r.Season)
	}

	known := make(map[string]struct{}, len(nhl.DefaultTeams))
	for _, t := range nhl.DefaultTeams {
		known[t] = struct{}{}
	}
	teams := make([]string, 0, len(r.Teams))
	for _, t := range r.Teams {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := known[t]; !ok {
			return r, fmt.Errorf("%w: unknown team %q", ErrInvalidRequest, t)
		}
		teams = append(teams, t)
	}
	r.Teams = teams

	if r.ScoringPlays == nil {
		yes := true
		r.ScoringPlays = &yes
	}
	return r, nil
}

// Service coordinates job persistence, execution, and status reporting.
type Service struct {
	repo      *Repository
	runner    *Runner
	publisher publisher.Publisher

	historyLimit int
	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *zap.Logger
}

// NewService constructs a Service. Call Start to launch the worker.
func NewService(db *store.Database, runner *Runner, pub publisher.Publisher, logger *zap.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	if logger == nil {
		logger = zap.NewNop()
	}
	if pub == nil {
		pub = publisher.Nop{}
	}

	return &Service{
		repo:         NewRepository(db),
		runner:       runner,
		publisher:    pub,
		historyLimit: 10,
		pollInterval: 3 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger.With(zap.String("component", "backfill")),
	}
}

// Start launches the background worker loop.
func (s *Service) Start() {
	if err := s.repo.ResetStuckJobs(s.ctx); err != nil {
		s.logger.Warn("failed to reset jobs", zap.Error(err))
	}

	s.wg.Add(1)
	go s.worker()
}

// Shutdown stops workers and waits for completion.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Enqueue creates a new job from the provided request.
func (s *Service) Enqueue(ctx context.Context, req Request) (*Job, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}

	total := len(req.Teams)
	if total == 0 {
		total = len(nhl.DefaultTeams)
	}

	job := &Job{
		Season:        req.Season,
		Teams:         req.Teams,
		Recompute:     req.Recompute,
		ScoringPlays:  *req.ScoringPlays,
		DryRun:        req.DryRun,
		Status:        JobStatusQueued,
		StatusMessage: sql.NullString{String: "Queued", Valid: true},
		ProgressTotal: total,
	}

	stored, err := s.repo.CreateJob(ctx, job)
	if err != nil {
		return nil, err
	}

	s.logger.Info("job queued",
		zap.String("job_id", stored.JobID),
		zap.String("season", stored.Season),
		zap.Strings("teams", stored.Teams),
	)
	return stored, nil
}

// GetStatus returns the currently running job plus recent history.
func (s *Service) GetStatus(ctx context.Context) (*StatusSummary, error) {
	active, err := s.repo.GetActiveJob(ctx)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.ListRecentJobs(ctx, s.historyLimit)
	if err != nil {
		return nil, err
	}

	return &StatusSummary{
		ActiveJob: active,
		History:   history,
	}, nil
}

// GetJob returns one job by id.
func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.GetJob(ctx, jobID)
}

func (s *Service) worker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		job, err := s.repo.MarkNextJobRunning(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("claim job error", zap.Error(err))
		}
		if job == nil {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				continue
			}
		}

		s.executeJob(job)
	}
}

// RunNext claims and executes one queued job synchronously. It reports whether a job ran.
func (s *Service) RunNext(ctx context.Context) (bool, error) {
	job, err := s.repo.MarkNextJobRunning(ctx)
	if err != nil || job == nil {
		return false, err
	}
	s.executeJob(job)
	return true, nil
}

func (s *Service) executeJob(job *Job) {
	spec := JobSpec{
		Season:       job.Season,
		Teams:        job.Teams,
		Recompute:    job.Recompute,
		ScoringPlays: job.ScoringPlays,
		DryRun:       job.DryRun,
	}

	log := s.logger.With(zap.String("job_id", job.JobID), zap.String("season", job.Season))
	reporter := &jobReporter{
		ctx:       s.ctx,
		repo:      s.repo,
		publisher: s.publisher,
		job:       job,
		logger:    log,
	}

	outcome, err := s.runner.Run(s.ctx, spec, reporter)
	if err != nil {
		status := JobStatusFailed
		msg := "Job failed"
		if errors.Is(err, context.Canceled) {
			status = JobStatusCancelled
			msg = "Job cancelled"
		}
		// the service context may be gone; still record the outcome
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if uerr := s.repo.UpdateStatus(ctx, job.JobID, status, msg, err); uerr != nil {
			log.Error("failed to record job failure", zap.Error(uerr))
		}
		log.Error("job failed", zap.Error(err))
		return
	}

	if err := s.repo.UpdateCounts(s.ctx, job.JobID, outcome.Records, len(outcome.Failures)); err != nil {
		log.Warn("failed to record job counts", zap.Error(err))
	}
	msg := fmt.Sprintf("Job completed: %d rows, %d failures", outcome.Records, len(outcome.Failures))
	if err := s.repo.UpdateStatus(s.ctx, job.JobID, JobStatusCompleted, msg, nil); err != nil {
		log.Warn("failed to record job completion", zap.Error(err))
	}

	log.Info("job completed",
		zap.Int("records", outcome.Records),
		zap.Int("players", outcome.Players),
		zap.Int("scoring_play_games", outcome.ScoringPlays),
		zap.Int("failures", len(outcome.Failures)),
	)
	s.publish(publisher.Event{
		Type:    publisher.EventBackfillCompleted,
		Season:  job.Season,
		RunID:   outcome.PipelineRun,
		Message: msg,
		Data:    map[string]interface{}{"job_id": job.JobID, "records": outcome.Records},
	})
}

func (s *Service) publish(e publisher.Event) {
	if err := s.publisher.Publish(s.ctx, e); err != nil {
		s.logger.Warn("failed to publish backfill event", zap.Error(err))
	}
}

type jobReporter struct {
	ctx       context.Context
	repo      *Repository
	publisher publisher.Publisher
	job       *Job
	logger    *zap.Logger

	done  int
	total int
}

func (r *jobReporter) OnJobStart(spec JobSpec, total int) {
	r.total = total
	_ = r.repo.UpdateProgress(r.ctx, r.job.JobID, 0, total, "Job starting")
}

func (r *jobReporter) OnTeamDone(team string, records int) {
	r.done++
	msg := fmt.Sprintf("%s ingested: %d rows (%d/%d)", team, records, r.done, r.total)
	_ = r.repo.UpdateProgress(r.ctx, r.job.JobID, r.done, r.total, msg)
	_ = r.publisher.Publish(r.ctx, publisher.Event{
		Type:    publisher.EventBackfillProgress,
		Season:  r.job.Season,
		Message: msg,
		Data:    map[string]interface{}{"job_id": r.job.JobID, "team": team, "current": r.done, "total": r.total},
	})
}

func (r *jobReporter) OnFailure(f analysis.EntityFailure) {
	r.logger.Warn("entity fetch failed", zap.String("kind", f.Kind), zap.String("id", f.ID), zap.String("error", f.Err))
}

func (r *jobReporter) OnProgress(message string) {
	_ = r.repo.UpdateProgress(r.ctx, r.job.JobID, r.done, r.total, message)
}

func (r *jobReporter) OnJobComplete(outcome *Outcome) {
	_ = r.repo.UpdateProgress(r.ctx, r.job.JobID, r.total, r.total, "Job complete")
}

func (r *jobReporter) OnJobError(err error) {
	r.logger.Warn("job error", zap.Error(err))
}
