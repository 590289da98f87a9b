package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"

	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

type Config struct {
	// Server
	Port string `env:"PORT" envDefault:"8080"`
	Env  string `env:"ENV" envDefault:"development"`

	// Storage
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"./data/sessions.db"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	// Redis
	RedisURL string `env:"REDIS_URL,required,notEmpty"`

	// Auth
	JWTSecret   string `env:"JWT_SECRET,required,notEmpty"`
	AdminAPIKey string `env:"ADMIN_API_KEY"`

	// Frontend
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	// Sessions and quota
	ExamDurationSeconds  int `env:"EXAM_DURATION_SECONDS" envDefault:"7200"`
	FreeWeeklyExamLimit  int `env:"FREE_WEEKLY_EXAM_LIMIT" envDefault:"3"`
	MaxPracticeQuestions int `env:"MAX_PRACTICE_QUESTIONS" envDefault:"100"`
	ExpiryGraceSeconds   int `env:"EXPIRY_GRACE_SECONDS" envDefault:"300"`
	RewardUnit           int `env:"REWARD_UNIT" envDefault:"1"`
	TierCacheTTLSeconds  int `env:"TIER_CACHE_TTL_SECONDS" envDefault:"300"`

	// Background work
	ExpirySweepSchedule string `env:"EXPIRY_SWEEP_SCHEDULE" envDefault:"@every 1m"`
	ShareResetSchedule  string `env:"SHARE_RESET_SCHEDULE" envDefault:"0 0 1 * *"`
	CompletionWorkers   int    `env:"COMPLETION_WORKERS" envDefault:"3"`

	// Rate limiting
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"30"`
	RateLimitStore     string `env:"RATE_LIMIT_STORE" envDefault:"memory"`

	// Tracing
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint string `env:"OTEL_ENDPOINT" envDefault:"http://localhost:4318"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	switch c.StorageDriver {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORAGE_DRIVER=postgres"))
		}
	case StorageSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required when STORAGE_DRIVER=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be %s or %s, got %q", StoragePostgres, StorageSQLite, c.StorageDriver))
	}

	switch c.RateLimitStore {
	case RateLimitMemory, RateLimitRedis:
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_STORE must be %s or %s, got %q", RateLimitMemory, RateLimitRedis, c.RateLimitStore))
	}

	positive := map[string]int{
		"EXAM_DURATION_SECONDS":  c.ExamDurationSeconds,
		"MAX_PRACTICE_QUESTIONS": c.MaxPracticeQuestions,
		"REWARD_UNIT":            c.RewardUnit,
		"COMPLETION_WORKERS":     c.CompletionWorkers,
		"RATE_LIMIT_PER_MINUTE":  c.RateLimitPerMinute,
	}
	for key, v := range positive {
		if v < 1 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, v))
		}
	}
	if c.FreeWeeklyExamLimit < 0 {
		errs = append(errs, fmt.Errorf("FREE_WEEKLY_EXAM_LIMIT must not be negative, got %d", c.FreeWeeklyExamLimit))
	}
	if c.ExpiryGraceSeconds < 0 {
		errs = append(errs, fmt.Errorf("EXPIRY_GRACE_SECONDS must not be negative, got %d", c.ExpiryGraceSeconds))
	}
	if c.TierCacheTTLSeconds < 0 {
		errs = append(errs, fmt.Errorf("TIER_CACHE_TTL_SECONDS must not be negative, got %d", c.TierCacheTTLSeconds))
	}

	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool { return c.Env == "development" }

func (c *Config) ExpiryGrace() time.Duration {
	return time.Duration(c.ExpiryGraceSeconds) * time.Second
}

func (c *Config) TierCacheTTL() time.Duration {
	return time.Duration(c.TierCacheTTLSeconds) * time.Second
}
