package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	// LogMode selects the logger preset ("dev" or "prod").
	LogMode string

	// DatabaseURL is the Postgres connection string.
	DatabaseURL string
	// NATSURL is the NATS server URL for the notification stream.
	NATSURL string
	// RedisAddr is the Redis host:port used for booking locks and alert dedupe.
	RedisAddr string

	// OpenMeteoURL is the base URL of the primary (forecast) provider.
	OpenMeteoURL string
	// AviationWxURL is the base URL of the secondary (METAR) provider.
	AviationWxURL string
	// ProviderTimeout bounds each outbound provider call.
	ProviderTimeout time.Duration

	// CacheTTL is the weather cache entry lifetime.
	CacheTTL time.Duration
	// CacheMaxEntries bounds the weather cache size.
	CacheMaxEntries int

	// LookaheadHours is how far ahead the conflict scan looks.
	LookaheadHours int
	// ScanInterval is the delay between monitor runs.
	ScanInterval time.Duration
	// ScanConcurrency bounds per-run booking fan-out.
	ScanConcurrency int
	// BookingTimeout bounds processing of a single booking within a run.
	BookingTimeout time.Duration

	// APIAddr is the listen address of the HTTP API.
	APIAddr string
}

// Load loads the configuration from environment variables and an optional
// .env file.
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	cfg := &Config{
		LogMode:         getEnv("LOG_MODE", "dev"),
		DatabaseURL:     dbURL,
		NATSURL:         getEnv("NATS_URL", "nats://localhost:4222"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		OpenMeteoURL:    getEnv("OPENMETEO_URL", "https://api.open-meteo.com/v1"),
		AviationWxURL:   getEnv("AVIATIONWX_URL", "https://aviationweather.gov/api/data"),
		ProviderTimeout: getDuration("PROVIDER_TIMEOUT", 10*time.Second),
		CacheTTL:        getDuration("WEATHER_CACHE_TTL", 300*time.Second),
		CacheMaxEntries: getInt("WEATHER_CACHE_MAX_ENTRIES", 1000),
		LookaheadHours:  getInt("LOOKAHEAD_HOURS", 48),
		ScanInterval:    getDuration("SCAN_INTERVAL", 5*time.Minute),
		ScanConcurrency: getInt("SCAN_CONCURRENCY", 8),
		BookingTimeout:  getDuration("BOOKING_TIMEOUT", 60*time.Second),
		APIAddr:         getEnv("API_ADDR", ":8080"),
	}

	if cfg.LookaheadHours <= 0 {
		return nil, fmt.Errorf("LOOKAHEAD_HOURS must be positive, got %d", cfg.LookaheadHours)
	}
	if cfg.CacheMaxEntries <= 0 {
		return nil, fmt.Errorf("WEATHER_CACHE_MAX_ENTRIES must be positive, got %d", cfg.CacheMaxEntries)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
