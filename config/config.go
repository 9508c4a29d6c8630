package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	scrapeerrors "github.com/Wonsky1/topn-worker/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	// Persistence/task API
	StoreBaseURL       string
	StoreTimeout       time.Duration
	ExistingItemsLimit int

	// Logging
	LogLevel string
	LogFile  string

	// Monitor configuration
	CycleFrequency time.Duration
	URLDelay       time.Duration

	// Scraper configuration
	RecencyWindow  time.Duration
	RequestTimeout time.Duration

	// Memcache configuration
	MemcacheAddr   string
	RateLimitBlock time.Duration

	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamMaxLength int

	// Metrics
	MetricsAddr string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		StoreBaseURL:         getEnv("TOPN_DB_BASE_URL", ""),
		StoreTimeout:         seconds("STORE_TIMEOUT_SECONDS", 15),
		ExistingItemsLimit:   getInt("EXISTING_ITEMS_LIMIT", 10000),
		LogLevel:             getEnv("LOG_LEVEL", "INFO"),
		LogFile:              getEnv("LOG_FILE", ""),
		CycleFrequency:       seconds("CYCLE_FREQUENCY_SECONDS", 10),
		URLDelay:             seconds("URL_DELAY_SECONDS", 3),
		RecencyWindow:        time.Duration(getInt("DEFAULT_LAST_MINUTES_GETTING", 45)) * time.Minute,
		RequestTimeout:       seconds("REQUEST_TIMEOUT_SECONDS", 10),
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", ""),
		RateLimitBlock:       seconds("RATE_LIMIT_BLOCK_SECONDS", 300),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisDB:              getInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", "topn:items"),
		RedisStreamMaxLength: getInt("REDIS_STREAM_MAX_LENGTH", 1000),
		MetricsAddr:          getEnv("METRICS_ADDR", ""),
		Environment:          getEnv("TOPN_ENVIRONMENT", "development"),
	}
}

// Validate checks for missing or out-of-range values
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return scrapeerrors.NewConfiguration(err.Error(), nil)
	}
	return nil
}

func (c *Config) validate() error {
	if c.StoreBaseURL == "" {
		return errors.New("TOPN_DB_BASE_URL must be set")
	}
	u, err := url.Parse(c.StoreBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("TOPN_DB_BASE_URL must be an absolute URL, got %q", c.StoreBaseURL)
	}
	if c.CycleFrequency <= 0 {
		return errors.New("CYCLE_FREQUENCY_SECONDS must be > 0")
	}
	if c.URLDelay < 0 {
		return errors.New("URL_DELAY_SECONDS must be >= 0")
	}
	if c.RecencyWindow <= 0 {
		return errors.New("DEFAULT_LAST_MINUTES_GETTING must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT_SECONDS must be > 0")
	}
	if c.StoreTimeout <= 0 {
		return errors.New("STORE_TIMEOUT_SECONDS must be > 0")
	}
	if c.ExistingItemsLimit <= 0 {
		return errors.New("EXISTING_ITEMS_LIMIT must be > 0")
	}
	if c.RedisAddr != "" && c.RedisStream == "" {
		return errors.New("REDIS_STREAM must be set when REDIS_ADDR is set")
	}
	return nil
}

// IsProduction reports whether the worker runs in the production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

func seconds(key string, defaultValue int) time.Duration {
	return time.Duration(getInt(key, defaultValue)) * time.Second
}
