// Package config reads ransomwatch settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hive-corporation/ransomwatch/internal/adapter/httpclient"
	"github.com/hive-corporation/ransomwatch/internal/adapter/scraper"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	appName = "ransomwatch"
)

var (
	ErrUnknownDriver      = errors.New("unknown database driver")
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required for the postgres driver")
)

// Config holds every setting the binaries need.
type Config struct {
	DBDriver    string
	DBPath      string
	DatabaseURL string
	CacheDir    string

	BaseURL           string
	SearchURL         string
	UserAgent         string
	RequestTimeout    time.Duration
	RequestDelay      time.Duration
	MaxDiscoveryPages int

	HTTP httpclient.ResilientClientConfig

	RESTPort      string
	RESTAuthToken string
	GRPCAddr      string

	SlackBotToken    string
	SlackChannel     string
	SlackMentionTeam string

	LogLevel  string
	LogPretty bool
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	// A missing .env is fine; every key has a default or is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	httpCfg := httpclient.DefaultResilientClientConfig()
	httpCfg.MaxRetries = getEnvInt("HTTP_RETRY_MAX_ATTEMPTS", httpCfg.MaxRetries)
	httpCfg.EnableCircuitBreaker = getEnvBool("HTTP_CIRCUIT_BREAKER_ENABLED", httpCfg.EnableCircuitBreaker)
	httpCfg.MaxFailures = uint32(getEnvInt("HTTP_CIRCUIT_BREAKER_MAX_FAILURES", int(httpCfg.MaxFailures)))

	cfg := &Config{
		DBDriver:    strings.ToLower(getEnv("RANSOMWATCH_DB_DRIVER", DriverSQLite)),
		DBPath:      getEnv("RANSOMWATCH_DB_PATH", filepath.Join(defaultDataDir(), appName+".db")),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		CacheDir:    getEnv("RANSOMWATCH_CACHE_DIR", defaultCacheDir()),

		BaseURL:           getEnv("RANSOMWATCH_BASE_URL", scraper.DefaultBaseURL),
		SearchURL:         getEnv("RANSOMWATCH_SEARCH_URL", scraper.DefaultSearchURL),
		UserAgent:         getEnv("RANSOMWATCH_USER_AGENT", httpclient.DefaultUserAgent),
		RequestTimeout:    time.Duration(getEnvInt("RANSOMWATCH_REQUEST_TIMEOUT_SECONDS", int(httpclient.DefaultTimeout/time.Second))) * time.Second,
		RequestDelay:      time.Duration(getEnvInt("RANSOMWATCH_REQUEST_DELAY_MS", int(httpclient.DefaultDelay/time.Millisecond))) * time.Millisecond,
		MaxDiscoveryPages: getEnvInt("RANSOMWATCH_MAX_DISCOVERY_PAGES", scraper.DefaultMaxPages),

		HTTP: httpCfg,

		RESTPort:      getEnv("REST_API_PORT", "8080"),
		RESTAuthToken: os.Getenv("REST_API_AUTH_TOKEN"),
		// Secure default - localhost only
		GRPCAddr: getEnv("GRPC_LISTEN_ADDR", "localhost:50051"),

		SlackBotToken:    os.Getenv("SLACK_BOT_TOKEN"),
		SlackChannel:     getEnv("SLACK_CHANNEL_SECURITY", "#security-alerts"),
		SlackMentionTeam: getEnv("SLACK_MENTION_TEAM", "@security-team"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvBool("LOG_PRETTY", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the binaries cannot run with.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return errors.New("RANSOMWATCH_DB_PATH cannot be empty")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return ErrMissingDatabaseURL
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.DBDriver)
	}

	if c.RequestTimeout <= 0 {
		return errors.New("RANSOMWATCH_REQUEST_TIMEOUT_SECONDS must be positive")
	}
	if c.RequestDelay < 0 {
		return errors.New("RANSOMWATCH_REQUEST_DELAY_MS cannot be negative")
	}
	if c.MaxDiscoveryPages < 1 {
		return errors.New("RANSOMWATCH_MAX_DISCOVERY_PAGES must be at least 1")
	}
	return nil
}

// SlackEnabled reports whether notifications should be sent.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != ""
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", appName)
	}
	return appName
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(appName, "cache")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt reads an integer from environment variable or returns default
func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool reads a boolean from environment variable or returns default
func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
