package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration. All values are read once
// at process start; there is no hot reload.
type Config struct {
	// Persistence. Empty DatabaseURL selects the in-memory store.
	DatabaseURL string

	// Redis deal-event stream
	RedisAddr         string
	RedisDB           int
	RedisStream       string
	RedisStreamMaxLen int

	// Memcache (API response cache)
	MemcacheAddr string

	// Scheduler
	ScrapeInterval        time.Duration
	MaxConcurrentScrapers int
	RequestDelay          time.Duration
	CollectorTimeout      time.Duration
	RetryMaxAttempts      int
	BreakerFailureCycles  int

	// Query API
	APIAddr     string
	APICacheTTL time.Duration

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults.
func LoadConfig() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	streamMaxLen, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "500"))
	intervalHours, _ := strconv.Atoi(getEnv("SCRAPE_INTERVAL_HOURS", "6"))
	maxScrapers, _ := strconv.Atoi(getEnv("MAX_CONCURRENT_SCRAPERS", "10"))
	requestDelay, _ := strconv.Atoi(getEnv("REQUEST_DELAY_SECONDS", "2"))
	collectorTimeout, _ := strconv.Atoi(getEnv("COLLECTOR_TIMEOUT_SECONDS", "60"))
	retryAttempts, _ := strconv.Atoi(getEnv("RETRY_MAX_ATTEMPTS", "3"))
	breakerCycles, _ := strconv.Atoi(getEnv("BREAKER_FAILURE_CYCLES", "3"))
	cacheTTL, _ := strconv.Atoi(getEnv("API_CACHE_TTL_SECONDS", "900"))

	return Config{
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:               redisDB,
		RedisStream:           getEnv("REDIS_STREAM", "deals"),
		RedisStreamMaxLen:     streamMaxLen,
		MemcacheAddr:          getEnv("MEMCACHE_ADDR", "localhost:11211"),
		ScrapeInterval:        time.Duration(intervalHours) * time.Hour,
		MaxConcurrentScrapers: maxScrapers,
		RequestDelay:          time.Duration(requestDelay) * time.Second,
		CollectorTimeout:      time.Duration(collectorTimeout) * time.Second,
		RetryMaxAttempts:      retryAttempts,
		BreakerFailureCycles:  breakerCycles,
		APIAddr:               getEnv("API_ADDR", ":8080"),
		APICacheTTL:           time.Duration(cacheTTL) * time.Second,
		Environment:           getEnv("ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values the process cannot run with.
func (c *Config) Validate() error {
	if c.ScrapeInterval <= 0 {
		return fmt.Errorf("scrape interval must be positive, got %s", c.ScrapeInterval)
	}
	if c.MaxConcurrentScrapers <= 0 {
		return fmt.Errorf("max concurrent scrapers must be positive, got %d", c.MaxConcurrentScrapers)
	}
	if c.RequestDelay < 0 {
		return fmt.Errorf("request delay must not be negative, got %s", c.RequestDelay)
	}
	if c.CollectorTimeout <= 0 {
		return fmt.Errorf("collector timeout must be positive, got %s", c.CollectorTimeout)
	}
	if c.RetryMaxAttempts <= 0 {
		return fmt.Errorf("retry attempts must be positive, got %d", c.RetryMaxAttempts)
	}
	if c.BreakerFailureCycles <= 0 {
		return fmt.Errorf("breaker failure cycles must be positive, got %d", c.BreakerFailureCycles)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
