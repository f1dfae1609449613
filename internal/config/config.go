package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// External services
	ClassifierAPIURL string
	CRMAPIURL        string

	// Persistence
	SQLitePath string

	// Contact locks
	LockTTL          time.Duration
	LockMaxWait      time.Duration
	LockPollInterval time.Duration

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// JWT / Auth
	AdminPasswordHash string
	JWTSecret         string
	JWTAccessTTL      time.Duration
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ClassifierAPIURL: getEnv("CLASSIFIER_API_URL", "http://localhost:8091"),
		CRMAPIURL:        getEnv("CRM_API_URL", "http://localhost:8092"),

		SQLitePath: getEnv("SQLITE_PATH", "data/hub.db"),

		LockTTL:          getEnvDuration("LOCK_TTL", 30*time.Second),
		LockMaxWait:      getEnvDuration("LOCK_MAX_WAIT", 5*time.Second),
		LockPollInterval: getEnvDuration("LOCK_POLL_INTERVAL", 100*time.Millisecond),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		JWTSecret:         getEnv("JWT_SECRET", "hub-default-dev-secret-change-me"),
		JWTAccessTTL:      getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
