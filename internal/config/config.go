package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // PRAXIS_TIMEZONE must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Server     ServerConfig
	Audit      AuditConfig
	SelfHosted bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// JWTConfig holds JWT authentication settings.
type JWTConfig struct {
	Secret    string //nolint:gosec // G117: JWT signing secret config
	AccessTTL time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	RateLimitRPS    float64
	RateLimitBurst  int
}

// AuditConfig holds the audit pipeline settings.
type AuditConfig struct {
	// Collections are the watched entity collections. Document writes and
	// change-feed triggers are limited to this set.
	Collections       []string
	RetentionDays     int
	RetentionSchedule string // cron spec or "off"
	CleanupBatch      int
	Timezone          string
	ConsumerGroup     string
	ConsumerName      string
	StreamMaxLen      int64
}

// Load reads configuration from environment variables.
// A .env file (PRAXIS_ENV_FILE, default ".env") is read first when present;
// variables already set in the environment win.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	if err := loadDotEnv(getEnv("PRAXIS_ENV_FILE", ".env")); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbPort, err := getEnvInt("PRAXIS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("PRAXIS_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("PRAXIS_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	accessTTL, err := getEnvDuration("PRAXIS_JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("PRAXIS_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("PRAXIS_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	shutdownTimeout, err := getEnvDuration("PRAXIS_SERVER_SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateRPS, err := getEnvFloat("PRAXIS_RATE_LIMIT_RPS", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateBurst, err := getEnvInt("PRAXIS_RATE_LIMIT_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	retentionDays, err := getEnvInt("PRAXIS_AUDIT_RETENTION_DAYS", 90)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cleanupBatch, err := getEnvInt("PRAXIS_AUDIT_CLEANUP_BATCH", 500)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	streamMaxLen, err := getEnvInt("PRAXIS_AUDIT_STREAM_MAXLEN", 100000)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	selfHosted, err := getEnvBool("PRAXIS_SELF_HOSTED", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "praxis"
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("PRAXIS_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("PRAXIS_DB_USER", "praxis"),
			Password: getEnv("PRAXIS_DB_PASSWORD", ""),
			DBName:   getEnv("PRAXIS_DB_NAME", "praxis_dev"),
			SSLMode:  getEnv("PRAXIS_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("PRAXIS_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("PRAXIS_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:    getEnv("PRAXIS_JWT_SECRET", ""),
			AccessTTL: accessTTL,
		},
		Server: ServerConfig{
			Addr:            getEnv("PRAXIS_SERVER_ADDR", ":8080"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			CORSOrigins:     getEnvList("PRAXIS_CORS_ORIGINS", []string{"http://localhost:5173"}),
			RateLimitRPS:    rateRPS,
			RateLimitBurst:  rateBurst,
		},
		Audit: AuditConfig{
			Collections: getEnvList("PRAXIS_AUDIT_COLLECTIONS",
				[]string{"utenti", "anagrafica_clienti", "anagrafica_agenti", "documenti"}),
			RetentionDays:     retentionDays,
			RetentionSchedule: getEnv("PRAXIS_AUDIT_RETENTION_SCHEDULE", "0 3 * * *"),
			CleanupBatch:      cleanupBatch,
			Timezone:          getEnv("PRAXIS_TIMEZONE", "Europe/Rome"),
			ConsumerGroup:     getEnv("PRAXIS_AUDIT_CONSUMER_GROUP", "praxis-audit"),
			ConsumerName:      getEnv("PRAXIS_AUDIT_CONSUMER_NAME", hostname),
			StreamMaxLen:      int64(streamMaxLen),
		},
		SelfHosted: selfHosted,
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("PRAXIS_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("PRAXIS_JWT_SECRET must be at least 32 characters")
	}

	if c.Database.SSLMode == "disable" && !c.SelfHosted {
		log.Warn().Msg("PRAXIS_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("PRAXIS_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("PRAXIS_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.JWT.AccessTTL <= 0 {
		return fmt.Errorf("PRAXIS_JWT_ACCESS_TTL must be positive, got %s", c.JWT.AccessTTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("PRAXIS_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("PRAXIS_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("PRAXIS_SERVER_SHUTDOWN_TIMEOUT must be positive, got %s", c.Server.ShutdownTimeout)
	}
	if c.Server.RateLimitRPS <= 0 {
		return fmt.Errorf("PRAXIS_RATE_LIMIT_RPS must be positive, got %g", c.Server.RateLimitRPS)
	}
	if c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("PRAXIS_RATE_LIMIT_BURST must be >= 1, got %d", c.Server.RateLimitBurst)
	}

	if len(c.Audit.Collections) == 0 {
		return errors.New("PRAXIS_AUDIT_COLLECTIONS must name at least one collection")
	}
	if c.Audit.RetentionDays < 1 {
		return fmt.Errorf("PRAXIS_AUDIT_RETENTION_DAYS must be >= 1, got %d", c.Audit.RetentionDays)
	}
	if c.Audit.CleanupBatch < 1 {
		return fmt.Errorf("PRAXIS_AUDIT_CLEANUP_BATCH must be >= 1, got %d", c.Audit.CleanupBatch)
	}
	if c.Audit.StreamMaxLen < 0 {
		return fmt.Errorf("PRAXIS_AUDIT_STREAM_MAXLEN must be >= 0, got %d", c.Audit.StreamMaxLen)
	}
	if c.Audit.ConsumerGroup == "" {
		return errors.New("PRAXIS_AUDIT_CONSUMER_GROUP must not be empty")
	}
	if _, err := time.LoadLocation(c.Audit.Timezone); err != nil {
		return fmt.Errorf("PRAXIS_TIMEZONE %q: %w", c.Audit.Timezone, err)
	}
	if c.Audit.RetentionSchedule != "off" {
		if _, err := cron.ParseStandard(c.Audit.RetentionSchedule); err != nil {
			return fmt.Errorf("PRAXIS_AUDIT_RETENTION_SCHEDULE %q: %w", c.Audit.RetentionSchedule, err)
		}
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Location resolves Timezone. Load has already validated it.
func (c *AuditConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SchedulerEnabled reports whether the in-process retention job should run.
func (c *AuditConfig) SchedulerEnabled() bool {
	return c.RetentionSchedule != "off"
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("reading %s: %w", path, err)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
