package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Host string
	Port int

	// Database configuration
	DatabasePath string

	// Polar API configuration
	PolarAPIBaseURL string

	// Internal API configuration
	InternalAPIKey string

	// Logging configuration
	LogLevel string

	// Metrics configuration
	MetricsEnabled bool
	MetricsHost    string
	MetricsPort    int

	// Sync scheduler configuration
	SyncEnabled         bool
	SyncInterval        int // minutes between scheduling cycles
	SyncOnStartup       bool
	SyncMaxUsersPerRun  int
	SyncStaggerMs       int
	SyncEndpointTimeout int // seconds, per upstream fetch

	// Rate limit configuration (per-user budget against the upstream API)
	RateLimitShortWindowMinutes int
	RateLimitShortCeiling       int
	RateLimitLongCeiling        int
}

// Load reads configuration from environment variables
// It fails fast if required variables are missing
func Load() (*Config, error) {
	cfg := &Config{
		// Optional values with defaults
		Host:         getEnv("HOST", "localhost"),
		Port:         getEnvInt("PORT", 4201),
		DatabasePath: getEnv("DATABASE_PATH", "./data.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		PolarAPIBaseURL: getEnv("POLAR_API_BASE_URL", "https://www.polaraccesslink.com/v3"),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		MetricsHost:    getEnv("METRICS_HOST", "localhost"),
		MetricsPort:    getEnvInt("METRICS_PORT", 4202),

		SyncEnabled:         getEnvBool("SYNC_ENABLED", true),
		SyncInterval:        getEnvInt("SYNC_INTERVAL_MINUTES", 15),
		SyncOnStartup:       getEnvBool("SYNC_ON_STARTUP", false),
		SyncMaxUsersPerRun:  getEnvInt("SYNC_MAX_USERS_PER_RUN", 10),
		SyncStaggerMs:       getEnvInt("SYNC_STAGGER_MS", 2000),
		SyncEndpointTimeout: getEnvInt("SYNC_ENDPOINT_TIMEOUT_SECONDS", 30),

		RateLimitShortWindowMinutes: getEnvInt("RATE_LIMIT_SHORT_WINDOW_MINUTES", 15),
		RateLimitShortCeiling:       getEnvInt("RATE_LIMIT_SHORT_CEILING", 500),
		RateLimitLongCeiling:        getEnvInt("RATE_LIMIT_LONG_CEILING", 5000),
	}

	// Required values
	var missingVars []string

	cfg.InternalAPIKey = os.Getenv("INTERNAL_API_KEY")
	if cfg.InternalAPIKey == "" {
		missingVars = append(missingVars, "INTERNAL_API_KEY")
	}

	if len(missingVars) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
