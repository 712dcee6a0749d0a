// Package config loads and validates the pipeline's environment-driven
// configuration, before any database connection or HTTP listener is
// opened.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/nyctaxi/taxietl/internal/errs"
)

// Config holds every environment input the pipeline reads, plus the
// admin-server and run-lock additions.
type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	// Pipeline
	ChunkSize        int
	BackfillSpec     string
	InitLoadAllData  bool
	DataDir          string
	LogDir           string

	// Admin surface (added)
	AdminAddr string
	RedisURL  string // empty disables the run lock
}

const (
	minChunkSize = 1000
	maxChunkSize = 1_000_000
)

// Load reads environment variables (after optionally loading a local
// .env file), applies defaults, and validates
// bounds. A bad chunk_size or backfill_spec returns a CONFIG
// PipelineError — the caller must treat that as terminal, exit 2,
// before touching the database.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:          getEnv("DATABASE_HOST", "localhost"),
		DBPort:          getEnvInt("DATABASE_PORT", 5432),
		DBName:          getEnv("DATABASE_NAME", "taxi"),
		DBUser:          getEnv("DATABASE_USER", "postgres"),
		DBPassword:      getEnv("DATABASE_PASSWORD", ""),
		ChunkSize:       getEnvInt("CHUNK_SIZE", 100_000),
		BackfillSpec:    getEnv("BACKFILL_SPEC", ""),
		InitLoadAllData: getEnvBool("INIT_LOAD_ALL_DATA", true),
		DataDir:         getEnv("DATA_DIR", "./data"),
		LogDir:          getEnv("LOG_DIR", "./logs"),
		AdminAddr:       getEnv("ADMIN_ADDR", ":9090"),
		RedisURL:        getEnv("REDIS_URL", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ChunkSize < minChunkSize || c.ChunkSize > maxChunkSize {
		return errs.Newf(errs.Config, "chunk_size %d out of range [%d, %d]", c.ChunkSize, minChunkSize, maxChunkSize)
	}
	if err := validateBackfillSpec(c.BackfillSpec); err != nil {
		return errs.New(errs.Config, err)
	}
	return nil
}

// validateBackfillSpec accepts the grammar: "", a
// comma-separated YYYY-MM list, "last_N_months", or "all". Full
// parsing into concrete months is the backfill planner's job;
// this only rejects what it can never make sense of.
func validateBackfillSpec(spec string) error {
	if spec == "" || spec == "all" {
		return nil
	}
	if strings.HasPrefix(spec, "last_") && strings.HasSuffix(spec, "_months") {
		n := strings.TrimSuffix(strings.TrimPrefix(spec, "last_"), "_months")
		if v, err := strconv.Atoi(n); err != nil || v <= 0 {
			return fmt.Errorf("invalid backfill_spec %q: last_N_months requires a positive N", spec)
		}
		return nil
	}
	for _, month := range strings.Split(spec, ",") {
		month = strings.TrimSpace(month)
		if len(month) != 7 || month[4] != '-' {
			return fmt.Errorf("invalid backfill_spec %q: expected YYYY-MM, last_N_months, or all", spec)
		}
		if _, err := strconv.Atoi(month[:4]); err != nil {
			return fmt.Errorf("invalid backfill_spec %q: bad year in %q", spec, month)
		}
		mm, err := strconv.Atoi(month[5:])
		if err != nil || mm < 1 || mm > 12 {
			return fmt.Errorf("invalid backfill_spec %q: bad month in %q", spec, month)
		}
	}
	return nil
}

// DSN formats the libpq connection string the pgx pool dials.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword)
}

// LockEnabled reports whether the Redis run lock should be used.
func (c *Config) LockEnabled() bool {
	return c.RedisURL != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
