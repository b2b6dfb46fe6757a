package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fortuna/linemate/internal/analysis"
	"github.com/fortuna/linemate/internal/api/rest"
	"github.com/fortuna/linemate/internal/api/websocket"
	"github.com/fortuna/linemate/internal/backfill"
	"github.com/fortuna/linemate/internal/cache"
	"github.com/fortuna/linemate/internal/config"
	"github.com/fortuna/linemate/internal/export"
	"github.com/fortuna/linemate/internal/ingest/nhl"
	"github.com/fortuna/linemate/internal/logging"
	"github.com/fortuna/linemate/internal/publisher"
	"github.com/fortuna/linemate/internal/scheduler"
	"github.com/fortuna/linemate/internal/service"
	"github.com/fortuna/linemate/internal/store"
)

const (
	serviceName    = "linemate"
	serviceVersion = "1.0.0"

	redisAttempts   = 10
	redisRetryDelay = 2 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("linemate exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting",
		zap.String("version", serviceVersion),
		zap.String("season", cfg.Seasons.Current),
		zap.String("prior_season", cfg.Seasons.Prior),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDatabase(cfg.Database.DSN, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database ready", zap.String("dialect", string(db.Dialect())))

	checks := map[string]rest.HealthChecker{"database": db}

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	// Events go to websocket clients and, when Redis is up, the pipeline stream
	events := publisher.Fanout{hub}
	var results cache.Results
	if cfg.RedisEnabled() {
		redisCache, err := connectRedis(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer redisCache.Close()

		results = redisCache
		events = append(events, publisher.NewRedisStreamPublisher(redisCache.Client()))
		checks["redis"] = redisCache
	}

	exporter, err := newExporter(ctx, cfg, logger)
	if err != nil {
		return err
	}

	corrStat, err := analysis.ParseStat(cfg.Analysis.CorrelationStat)
	if err != nil {
		return fmt.Errorf("CORRELATION_STAT: %w", err)
	}
	trioStat, err := analysis.ParseStat(cfg.Analysis.TrioStat)
	if err != nil {
		return fmt.Errorf("TRIO_STAT: %w", err)
	}

	stores := cache.NewStoreCache(cfg.Cache.LocalSize)
	pipeline := service.NewPipelineService(db, corrStat, service.PipelineDeps{
		Stores:    stores,
		Results:   results,
		Publisher: events,
		Exporter:  exporter,
		Logger:    logger.Named("pipeline"),
	})
	queries := service.NewQueryService(db, stores, results, analysis.TrioOptions{
		Stat:      trioStat,
		Threshold: cfg.Analysis.TrioMin,
		Limit:     cfg.Analysis.TrioLimit,
		MaxRoster: cfg.Analysis.TrioMaxRoster,
	}, logger.Named("query"))

	priorFor := priorSeason(cfg)

	client := nhl.New(cfg.NHL.APIBase, cfg.NHL.RequestDelay, logger.Named("nhl"))
	ingester := nhl.NewIngester(client, cfg.NHL.GameType, cfg.NHL.Concurrency, logger.Named("ingest"))
	runner := backfill.NewRunner(db, ingester, pipeline, priorFor, logger.Named("backfill"))
	runner.SetCaches(stores, results)
	backfillSvc := backfill.NewService(db, runner, events, logger.Named("backfill"))
	backfillSvc.Start()
	logger.Info("backfill worker started")

	var sched *scheduler.Orchestrator
	if cfg.Schedule.Enabled {
		scfg := scheduler.DefaultConfig()
		scfg.Spec = cfg.Schedule.RecomputeCron
		scfg.Season = cfg.Seasons.Current
		scfg.PriorSeason = cfg.Seasons.Prior
		scfg.Teams = cfg.NHL.Teams

		sched, err = scheduler.NewOrchestrator(scfg, backfillSvc, pipeline, logger.Named("scheduler"))
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
		sched.Start()
		logger.Info("scheduler started", zap.String("spec", scfg.Spec), zap.Time("next", sched.Next()))
	}

	restServer := rest.NewServer(cfg.Server.RESTPort, rest.Deps{
		Queries:  queries,
		Players:  service.NewPlayerService(db),
		Pipeline: pipeline,
		Backfill: backfillSvc,
		PriorFor: priorFor,
		Checks:   checks,
	}, logger.Named("rest"))
	wsServer := websocket.NewServer(hub, logger.Named("ws"))

	errs := make(chan error, 2)
	go func() {
		logger.Info("REST API listening", zap.String("port", cfg.Server.RESTPort))
		if err := restServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("rest server: %w", err)
		}
	}()
	go func() {
		if err := wsServer.Start(cfg.Server.WSPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("websocket server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errs:
		logger.Error("server failed, shutting down", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Warn("scheduler stop", zap.Error(err))
		}
	}
	if err := restServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("REST shutdown", zap.Error(err))
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("WebSocket shutdown", zap.Error(err))
	}
	if err := backfillSvc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("backfill shutdown", zap.Error(err))
	}

	logger.Info("stopped")
	return runErr
}

// connectRedis retries while Redis comes up alongside the service.
func connectRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*cache.RedisCache, error) {
	var lastErr error
	for attempt := 1; attempt <= redisAttempts; attempt++ {
		rc, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Cache.TTL)
		if err == nil {
			logger.Info("connected to redis")
			return rc, nil
		}
		lastErr = err
		logger.Warn("redis connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", redisAttempts),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(redisRetryDelay):
		}
	}
	return nil, fmt.Errorf("redis unavailable after %d attempts: %w", redisAttempts, lastErr)
}

func newExporter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*export.Exporter, error) {
	if cfg.Export.Dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(cfg.Export.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	var uploader export.Uploader
	if cfg.Export.S3Bucket != "" {
		s3, err := export.NewS3Uploader(ctx, cfg.Export.Region, cfg.Export.S3Bucket, cfg.Export.S3Prefix)
		if err != nil {
			return nil, err
		}
		uploader = s3
		logger.Info("exporting to s3", zap.String("bucket", cfg.Export.S3Bucket))
	}
	return export.NewExporter(cfg.Export.Dir, uploader, logger.Named("export")), nil
}

// priorSeason compares the configured season with the configured prior and every other
// season with the one before it.
func priorSeason(cfg *config.Config) func(string) string {
	return func(season string) string {
		if season == cfg.Seasons.Current && cfg.Seasons.Prior != "" {
			return cfg.Seasons.Prior
		}
		return backfill.PreviousSeason(season)
	}
}
