// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the shelfwatch worker process.
type Config struct {
	// Database
	DatabaseURL string

	// Worker control HTTP surface
	WorkerPort int

	// Scheduler master switches
	EnableScheduler         bool
	EnableCheckScheduler    bool
	EnableEmailScheduler    bool
	EnableTrackingScheduler bool
	EnableRetentionSweep    bool

	// Cadences
	CheckInterval         time.Duration
	EmailDeliveryInterval time.Duration
	TrackingInterval      time.Duration
	RetentionInterval     time.Duration

	// Check sweep tuning
	MinCheckInterval    time.Duration
	MaxProductsPerRun   int
	CheckLockTimeout    time.Duration
	TrackingConcurrency int

	// Fetcher
	DisableRenderedFetch bool
	ChromePath           string

	// Delivery
	EmailSinkURL      string
	DeliveryBatchSize int

	// Retention
	RetentionMaxAge time.Duration

	// Shutdown
	ShutdownGracePeriod time.Duration
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	// Best effort; a missing .env file is the normal production case.
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/shelfwatch?sslmode=disable"),
		WorkerPort:  getEnvInt("WORKER_PORT", 8090),

		EnableScheduler:         getEnvBool("ENABLE_SCHEDULER", true),
		EnableCheckScheduler:    getEnvBool("ENABLE_CHECK_SCHEDULER", true),
		EnableEmailScheduler:    getEnvBool("ENABLE_EMAIL_SCHEDULER", true),
		EnableTrackingScheduler: getEnvBool("ENABLE_TRACKING_SCHEDULER", true),
		EnableRetentionSweep:    getEnvBool("ENABLE_RETENTION_SWEEP", true),

		CheckInterval:         getEnvMinutes("CHECK_INTERVAL_MINUTES", 30*time.Minute),
		EmailDeliveryInterval: getEnvMinutes("EMAIL_DELIVERY_INTERVAL_MINUTES", 5*time.Minute),
		TrackingInterval:      getEnvMinutes("TRACKING_INTERVAL_MINUTES", 15*time.Minute),
		RetentionInterval:     getEnvMinutes("RETENTION_INTERVAL_MINUTES", 24*time.Hour),

		MinCheckInterval:    getEnvMinutes("MIN_CHECK_INTERVAL_MINUTES", 30*time.Minute),
		MaxProductsPerRun:   getEnvInt("MAX_PRODUCTS_PER_RUN", 50),
		CheckLockTimeout:    getEnvSeconds("CHECK_LOCK_TIMEOUT_SECONDS", 300*time.Second),
		TrackingConcurrency: getEnvInt("TRACKING_CONCURRENCY", 5),

		DisableRenderedFetch: getEnvBool("DISABLE_RENDERED_FETCH", false),
		ChromePath:           getEnv("CHROME_PATH", ""),

		EmailSinkURL:      getEnv("EMAIL_SINK_URL", ""),
		DeliveryBatchSize: getEnvInt("EMAIL_DELIVERY_BATCH_SIZE", 100),

		RetentionMaxAge: time.Duration(getEnvInt("RETENTION_MAX_AGE_DAYS", 90)) * 24 * time.Hour,

		ShutdownGracePeriod: getEnvSeconds("SHUTDOWN_GRACE_SECONDS", 30*time.Second),
	}

	// The master switch overrides the per-loop switches.
	if !cfg.EnableScheduler {
		cfg.EnableCheckScheduler = false
		cfg.EnableEmailScheduler = false
		cfg.EnableTrackingScheduler = false
		cfg.EnableRetentionSweep = false
	}

	if cfg.MaxProductsPerRun < 1 {
		return nil, fmt.Errorf("MAX_PRODUCTS_PER_RUN must be >= 1, got %d", cfg.MaxProductsPerRun)
	}
	if cfg.TrackingConcurrency < 1 {
		return nil, fmt.Errorf("TRACKING_CONCURRENCY must be >= 1, got %d", cfg.TrackingConcurrency)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvMinutes reads an integer number of minutes.
func getEnvMinutes(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return time.Duration(n) * time.Minute
		}
	}
	return fallback
}

// getEnvSeconds reads an integer number of seconds.
func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
