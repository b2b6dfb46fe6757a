package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fortuna/linemate/internal/backfill"
	"github.com/fortuna/linemate/internal/store"
)

// Enqueuer queues ingest jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, req backfill.Request) (*backfill.Job, error)
}

// Recomputer rebuilds a season's tables.
type Recomputer interface {
	Run(ctx context.Context, season, prior, trigger string) (*store.PipelineRun, error)
}

// Config holds scheduler configuration
type Config struct {
	Spec        string        // cron expression, default "0 6 * * *"
	Season      string        // season refreshed on each tick
	PriorSeason string        // season joined against
	Teams       []string      // empty means every team
	Timeout     time.Duration // bound on a direct recompute, default 30m
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Spec:    "0 6 * * *",
		Timeout: 30 * time.Minute,
	}
}

// Orchestrator runs the nightly refresh: queue an ingest job that recomputes when it finishes,
// or recompute directly when no job queue is wired.
type Orchestrator struct {
	cron       *cron.Cron
	config     Config
	enqueuer   Enqueuer
	recomputer Recomputer
	logger     *zap.Logger

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// NewOrchestrator creates a new scheduler orchestrator. Either collaborator may be nil but not both.
func NewOrchestrator(config Config, enqueuer Enqueuer, recomputer Recomputer, logger *zap.Logger) (*Orchestrator, error) {
	if enqueuer == nil && recomputer == nil {
		return nil, fmt.Errorf("scheduler needs a job queue or a recomputer")
	}
	defaults := DefaultConfig()
	if config.Spec == "" {
		config.Spec = defaults.Spec
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		cron:       cron.New(),
		config:     config,
		enqueuer:   enqueuer,
		recomputer: recomputer,
		logger:     logger.With(zap.String("component", "scheduler")),
	}

	if _, err := o.cron.AddFunc(config.Spec, func() { o.Tick(context.Background()) }); err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", config.Spec, err)
	}
	return o, nil
}

// Start begins all scheduled tasks
func (o *Orchestrator) Start() {
	o.logger.Info("scheduler started",
		zap.String("spec", o.config.Spec),
		zap.String("season", o.config.Season),
		zap.String("prior", o.config.PriorSeason),
	)
	o.cron.Start()
}

// Stop stops the cron and waits for a running tick to return or ctx to expire.
func (o *Orchestrator) Stop(ctx context.Context) error {
	done := o.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick performs one refresh.
func (o *Orchestrator) Tick(ctx context.Context) {
	var err error
	if o.enqueuer != nil {
		var job *backfill.Job
		job, err = o.enqueuer.Enqueue(ctx, backfill.Request{
			Season:    o.config.Season,
			Teams:     o.config.Teams,
			Recompute: true,
		})
		if err == nil {
			o.logger.Info("nightly ingest queued", zap.String("job_id", job.JobID))
		}
	} else {
		ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
		defer cancel()
		var run *store.PipelineRun
		run, err = o.recomputer.Run(ctx, o.config.Season, o.config.PriorSeason, "schedule")
		if err == nil {
			o.logger.Info("nightly recompute finished", zap.String("run_id", run.RunID))
		}
	}

	if err != nil {
		o.logger.Error("scheduled refresh failed", zap.Error(err))
	}

	o.mu.Lock()
	o.lastRun = time.Now().UTC()
	o.lastErr = err
	o.mu.Unlock()
}

// LastRun reports when the last tick ran and its error.
func (o *Orchestrator) LastRun() (time.Time, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastRun, o.lastErr
}

// Next returns the next scheduled time, zero before Start.
func (o *Orchestrator) Next() time.Time {
	entries := o.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
