package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fortuna/linemate/internal/analysis"
	"github.com/fortuna/linemate/internal/backfill"
	"github.com/fortuna/linemate/internal/cache"
	"github.com/fortuna/linemate/internal/config"
	"github.com/fortuna/linemate/internal/export"
	"github.com/fortuna/linemate/internal/ingest/csvlog"
	"github.com/fortuna/linemate/internal/ingest/nhl"
	"github.com/fortuna/linemate/internal/logging"
	"github.com/fortuna/linemate/internal/service"
	"github.com/fortuna/linemate/internal/store"
	"github.com/fortuna/linemate/internal/store/repository"
)

const (
	appName    = "linemate-backfill"
	appVersion = "1.0.0"
)

func main() {
	log.Printf("=== %s v%s ===", appName, appVersion)

	cfg, err := config.Load(os.Getenv("LINEMATE_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var (
		dsn       = flag.String("dsn", cfg.Database.DSN, "database DSN (postgres:// or a sqlite path)")
		season    = flag.String("season", cfg.Seasons.Current, "season to backfill (e.g. 20232024)")
		prior     = flag.String("prior", "", "season to join against (default: the season before -season)")
		teams     = flag.String("teams", strings.Join(cfg.NHL.Teams, ","), "comma separated team abbreviations (default: all)")
		noPlays   = flag.Bool("no-plays", false, "skip scoring play ingestion")
		recompute = flag.Bool("recompute", true, "recompute correlations after ingesting")
		importCSV = flag.String("import", "", "read game logs from a CSV file instead of the NHL API")
		priorCSV  = flag.String("prior-csv", "", "load the prior season's correlation table from a CSV file")
		exportDir = flag.String("export-dir", cfg.Export.Dir, "write correlation CSV snapshots to this directory")
		dryRun    = flag.Bool("dry-run", false, "dry run (do not write to DB)")
	)
	flag.Parse()

	if !nhl.ValidSeason(*season) {
		log.Fatalf("-season must look like 20232024, got %q", *season)
	}
	if *prior == "" {
		*prior = backfill.PreviousSeason(*season)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDatabase(*dsn, logger)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	stat, err := analysis.ParseStat(cfg.Analysis.CorrelationStat)
	if err != nil {
		log.Fatalf("CORRELATION_STAT: %v", err)
	}

	var exporter *export.Exporter
	if *exportDir != "" {
		if err := os.MkdirAll(*exportDir, 0o755); err != nil {
			log.Fatalf("create export dir: %v", err)
		}
		exporter = export.NewExporter(*exportDir, nil, logger.Named("export"))
	}

	// A running service shares the Redis result cache; clear it when this run writes
	var results cache.Results
	if cfg.RedisEnabled() {
		rc, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Cache.TTL)
		if err != nil {
			log.Printf("⚠️  Redis unavailable, cached results will expire on their own: %v", err)
		} else {
			defer rc.Close()
			results = rc
		}
	}

	pipeline := service.NewPipelineService(db, stat, service.PipelineDeps{
		Results:  results,
		Exporter: exporter,
		Logger:   logger.Named("pipeline"),
	})

	if *priorCSV != "" {
		if err := loadPriorTable(ctx, db, *priorCSV, *prior, stat, *dryRun); err != nil {
			log.Fatalf("load prior table: %v", err)
		}
	}

	if *importCSV != "" {
		if err := importGameLogs(ctx, db, *importCSV, *season, *dryRun); err != nil {
			log.Fatalf("import failed: %v", err)
		}
		if results != nil && !*dryRun {
			if err := results.InvalidateSeason(ctx, *season); err != nil {
				log.Printf("⚠️  Failed to clear cached results: %v", err)
			}
		}
		if *recompute && !*dryRun {
			run, err := pipeline.Run(ctx, *season, *prior, service.TriggerCommand)
			if err != nil {
				log.Fatalf("recompute failed: %v", err)
			}
			logRun(run)
		}
		log.Println("✓ Import completed successfully")
		return
	}

	client := nhl.New(cfg.NHL.APIBase, cfg.NHL.RequestDelay, logger.Named("nhl"))
	ingester := nhl.NewIngester(client, cfg.NHL.GameType, cfg.NHL.Concurrency, logger.Named("ingest"))
	runner := backfill.NewRunner(db, ingester, pipeline, func(string) string { return *prior }, logger.Named("backfill"))
	runner.SetCaches(nil, results)

	spec := backfill.JobSpec{
		Season:       *season,
		Teams:        splitTeams(*teams),
		Recompute:    *recompute,
		ScoringPlays: !*noPlays,
		DryRun:       *dryRun,
	}

	outcome, err := runner.Run(ctx, spec, &consoleReporter{})
	if err != nil {
		log.Fatalf("backfill failed: %v", err)
	}
	if outcome.PipelineRun != "" {
		log.Printf("Pipeline run %s recorded", outcome.PipelineRun)
	}

	log.Println("✓ Backfill completed successfully")
}

func importGameLogs(ctx context.Context, db *store.Database, path, season string, dryRun bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := csvlog.ReadGameLogs(f)
	if err != nil {
		return err
	}
	log.Printf("Read %d rows from %s (%d skipped)", len(res.Records), path, res.Skipped)
	for _, p := range res.Problems {
		log.Printf("  skipped: %s", p)
	}

	if dryRun {
		log.Printf("Dry run: would store %d rows for %s", len(res.Records), season)
		return nil
	}
	n, err := repository.NewGameLogRepository(db).UpsertBatch(ctx, season, res.Records)
	if err != nil {
		return err
	}
	log.Printf("Stored %d game log rows for %s", n, season)
	return nil
}

func loadPriorTable(ctx context.Context, db *store.Database, path, prior string, stat analysis.Stat, dryRun bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, err := csvlog.ReadCorrelations(f)
	if err != nil {
		return err
	}
	log.Printf("Read %d prior pairs from %s", len(recs), path)
	if dryRun {
		return nil
	}
	return repository.NewCorrelationRepository(db).ReplaceSeason(ctx, prior, stat, recs)
}

func splitTeams(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func logRun(run *store.PipelineRun) {
	log.Printf("Pipeline run %s: %d records, %d teams, %d pairs, %d matched in prior",
		run.RunID, run.Records, run.Teams, run.Pairs, run.MatchedPrior)
}

type consoleReporter struct{}

func (c *consoleReporter) OnJobStart(spec backfill.JobSpec, total int) {
	log.Printf("Starting %s backfill for %d teams (dry_run=%v)", spec.Season, total, spec.DryRun)
}

func (c *consoleReporter) OnTeamDone(team string, records int) {
	log.Printf("%s: %d game log rows", team, records)
}

func (c *consoleReporter) OnFailure(f analysis.EntityFailure) {
	log.Printf("Failed %s %s: %s", f.Kind, f.ID, f.Err)
}

func (c *consoleReporter) OnProgress(message string) {
	log.Printf("Progress: %s", message)
}

func (c *consoleReporter) OnJobComplete(outcome *backfill.Outcome) {
	log.Printf("Job complete: %d rows, %d players, %d games with plays, %d failures",
		outcome.Records, outcome.Players, outcome.ScoringPlays, len(outcome.Failures))
}

func (c *consoleReporter) OnJobError(err error) {
	log.Printf("Job error: %v", err)
}
