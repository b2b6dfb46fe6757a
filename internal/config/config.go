package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all configuration for linemate.
// Values come from config.yaml when present, with environment variables taking precedence.
// A .env file in the working directory is loaded into the environment first.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	NHL      NHLConfig      `yaml:"nhl"`
	Seasons  SeasonsConfig  `yaml:"seasons"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Cache    CacheConfig    `yaml:"cache"`
	Export   ExportConfig   `yaml:"export"`
}

type ServerConfig struct {
	RESTPort string `yaml:"rest_port" env:"REST_PORT" env-default:"8080"`
	WSPort   string `yaml:"ws_port" env:"WS_PORT" env-default:"8081"`
}

// DatabaseConfig selects the backing store. A postgres:// DSN uses lib/pq; anything else is
// treated as a SQLite path (":memory:" for an ephemeral store).
type DatabaseConfig struct {
	DSN string `yaml:"-" env:"DATABASE_DSN" env-default:"file:linemate.db"`
}

// RedisConfig is optional; an empty URL disables the shared cache and the event stream.
type RedisConfig struct {
	URL string `yaml:"-" env:"REDIS_URL" env-default:""`
}

type NHLConfig struct {
	APIBase      string        `yaml:"api_base" env:"NHL_API_BASE" env-default:"https://api-web.nhle.com"`
	GameType     int           `yaml:"game_type" env:"NHL_GAME_TYPE" env-default:"2"`
	Concurrency  int           `yaml:"concurrency" env:"NHL_CONCURRENCY" env-default:"4"`
	RequestDelay time.Duration `yaml:"request_delay" env:"NHL_REQUEST_DELAY" env-default:"250ms"`
	// Comma separated team abbreviations; empty means every team in the league
	TeamsStr string `yaml:"teams" env:"NHL_TEAMS" env-default:""`

	Teams []string `yaml:"-"`
}

// SeasonsConfig names the season under analysis and the one it is compared with, as the
// eight-digit NHL season ids (20232024).
type SeasonsConfig struct {
	Current string `yaml:"current" env:"CURRENT_SEASON" env-default:"20232024"`
	Prior   string `yaml:"prior" env:"PRIOR_SEASON" env-default:"20222023"`
}

type AnalysisConfig struct {
	CorrelationStat string `yaml:"correlation_stat" env:"CORRELATION_STAT" env-default:"Points"`
	TrioStat        string `yaml:"trio_stat" env:"TRIO_STAT" env-default:"Points"`
	TrioMin         int    `yaml:"trio_min" env:"TRIO_MIN" env-default:"1"`
	TrioMaxRoster   int    `yaml:"trio_max_roster" env:"TRIO_MAX_ROSTER" env-default:"60"`
	TrioLimit       int    `yaml:"trio_limit" env:"TRIO_LIMIT" env-default:"10"`
}

type ScheduleConfig struct {
	Enabled       bool   `yaml:"enabled" env:"ENABLE_SCHEDULER" env-default:"false"`
	RecomputeCron string `yaml:"recompute_cron" env:"RECOMPUTE_CRON" env-default:"0 6 * * *"`
}

type CacheConfig struct {
	TTL       time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"10m"`
	LocalSize int           `yaml:"local_size" env:"LOCAL_CACHE_SIZE" env-default:"8"`
}

// ExportConfig controls table snapshots. An empty directory disables export; an empty bucket
// keeps snapshots local.
type ExportConfig struct {
	Dir      string `yaml:"dir" env:"EXPORT_DIR" env-default:""`
	S3Bucket string `yaml:"s3_bucket" env:"EXPORT_S3_BUCKET" env-default:""`
	S3Prefix string `yaml:"s3_prefix" env:"EXPORT_S3_PREFIX" env-default:"linemate/"`
	Region   string `yaml:"region" env:"AWS_REGION" env-default:"us-east-1"`
}

var seasonPattern = regexp.MustCompile(`^\d{8}$`)

// Load reads configuration. path names an optional YAML file; when it does not exist only the
// environment is used.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	if path != "" && fileExists(path) {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.NHL.Teams = splitList(cfg.NHL.TeamsStr)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values cleanenv cannot express in tags.
func (c *Config) Validate() error {
	if !seasonPattern.MatchString(c.Seasons.Current) {
		return fmt.Errorf("CURRENT_SEASON must look like 20232024, got %q", c.Seasons.Current)
	}
	if c.Seasons.Prior != "" && !seasonPattern.MatchString(c.Seasons.Prior) {
		return fmt.Errorf("PRIOR_SEASON must look like 20222023, got %q", c.Seasons.Prior)
	}
	if c.Seasons.Prior == c.Seasons.Current {
		return fmt.Errorf("PRIOR_SEASON must differ from CURRENT_SEASON")
	}
	if c.NHL.Concurrency < 1 {
		return fmt.Errorf("NHL_CONCURRENCY must be positive, got %d", c.NHL.Concurrency)
	}
	if c.NHL.RequestDelay < 0 {
		return fmt.Errorf("NHL_REQUEST_DELAY must not be negative")
	}
	if c.Analysis.TrioMin < 0 {
		return fmt.Errorf("TRIO_MIN must not be negative, got %d", c.Analysis.TrioMin)
	}
	if c.Analysis.TrioLimit == 0 {
		return fmt.Errorf("TRIO_LIMIT must be positive (or negative for no limit)")
	}
	if c.Cache.LocalSize < 1 {
		return fmt.Errorf("LOCAL_CACHE_SIZE must be positive, got %d", c.Cache.LocalSize)
	}
	return nil
}

// RedisEnabled reports whether a Redis URL is configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.URL != ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
