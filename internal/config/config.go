package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrGeoIPConfig is returned by GeoIPConfig.Validate when credentials or editions are missing.
// The geo subsystem stays disabled; ingestion continues with unknown locations.
var ErrGeoIPConfig = errors.New("geoip configuration incomplete")

// Config holds all application configuration
type Config struct {
	// Database Configuration
	Database DatabaseConfig

	// GeoIP Configuration
	GeoIP GeoIPConfig

	// Log configuration
	LogLevel string

	// Log Sources Configuration
	LogSources LogSourcesConfig

	// Server Configuration
	Server ServerConfig

	// Performance Configuration
	Performance PerformanceConfig

	// Report Configuration
	Report ReportConfig
}

// DatabaseConfig contains database-related settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLife     time.Duration
	CleanupInterval time.Duration // How often to check for cleanup (default: 1 hour)
	CleanupTime     string        // Time of day to run cleanup (24-hour format, e.g., "02:00")
	VacuumEnabled   bool          // Run VACUUM after cleanup to reclaim space
}

// GeoIPConfig contains location database credentials, editions and cache settings
type GeoIPConfig struct {
	Enabled         bool
	AccountID       string
	LicenseKey      string
	Editions        []string
	PrimaryEdition  string
	DBDir           string
	DownloadURL     string // Template with {edition} and {license_key} placeholders
	RefreshInterval time.Duration
	DownloadRetries int
	DownloadTimeout time.Duration
	CacheTTL        time.Duration
	CacheSize       int
	Locale          string
	WatchDir        bool
}

// LogSourcesConfig contains log source paths
type LogSourcesConfig struct {
	Paths        []string // Files or doublestar glob patterns
	AutoDiscover bool
}

// ServerConfig contains web server settings
type ServerConfig struct {
	Host           string
	Port           int
	Production     bool
	RequestTimeout time.Duration
	TopN           int // Length of ranked lists in API responses (0 = unlimited)
}

// PerformanceConfig contains performance tuning settings
type PerformanceConfig struct {
	WorkerPoolSize    int
	FileConcurrency   int
	CacheSyncInterval time.Duration
}

// ReportConfig controls how aggregates are bucketed
type ReportConfig struct {
	Timezone string
}

// DefaultDownloadURL is the MaxMind permalink for GeoLite2 database archives
const DefaultDownloadURL = "https://download.maxmind.com/app/geoip_download?edition_id={edition}&license_key={license_key}&suffix=tar.gz"

// Load reads configuration from .env file and environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Path:            getEnv("DB_PATH", "website-analysis.db"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 4),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLife:     getEnvAsDuration("DB_CONN_MAX_LIFE", time.Hour),
			CleanupInterval: getEnvAsDuration("DB_CLEANUP_INTERVAL", 1*time.Hour),
			CleanupTime:     getEnv("DB_CLEANUP_TIME", "02:00"),
			VacuumEnabled:   getEnvAsBool("DB_VACUUM_ENABLED", true),
		},
		GeoIP: GeoIPConfig{
			Enabled:         getEnvAsBool("GEOIP_ENABLED", true),
			AccountID:       getEnv("GEOIP_ACCOUNT_ID", ""),
			LicenseKey:      getEnv("GEOIP_LICENSE_KEY", ""),
			Editions:        getEnvAsList("GEOIP_EDITIONS", []string{"GeoLite2-City"}),
			PrimaryEdition:  getEnv("GEOIP_PRIMARY_EDITION", "GeoLite2-City"),
			DBDir:           getEnv("GEOIP_DB_DIR", "geoip"),
			DownloadURL:     getEnv("GEOIP_DOWNLOAD_URL", DefaultDownloadURL),
			RefreshInterval: getEnvAsDuration("GEOIP_REFRESH_INTERVAL", 7*24*time.Hour),
			DownloadRetries: getEnvAsInt("GEOIP_DOWNLOAD_RETRIES", 3),
			DownloadTimeout: getEnvAsDuration("GEOIP_DOWNLOAD_TIMEOUT", 5*time.Minute),
			CacheTTL:        getEnvAsDuration("GEOIP_CACHE_TTL", 24*time.Hour),
			CacheSize:       getEnvAsInt("GEOIP_CACHE_SIZE", 10000),
			Locale:          getEnv("GEOIP_LOCALE", "zh-CN"),
			WatchDir:        getEnvAsBool("GEOIP_WATCH_DIR", true),
		},
		LogSources: LogSourcesConfig{
			Paths:        getEnvAsList("LOG_PATHS", nil),
			AutoDiscover: getEnvAsBool("LOG_AUTO_DISCOVER", true),
		},
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Production:     getEnvAsBool("SERVER_PRODUCTION", false),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			TopN:           getEnvAsInt("SERVER_TOP_N", 0),
		},
		Performance: PerformanceConfig{
			WorkerPoolSize:    getEnvAsInt("WORKER_POOL_SIZE", 4),
			FileConcurrency:   getEnvAsInt("FILE_CONCURRENCY", 2),
			CacheSyncInterval: getEnvAsDuration("CACHE_SYNC_INTERVAL", 5*time.Minute),
		},
		Report: ReportConfig{
			Timezone: getEnv("REPORT_TIMEZONE", "UTC"),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if _, err := time.LoadLocation(cfg.Report.Timezone); err != nil {
		return nil, fmt.Errorf("invalid REPORT_TIMEZONE %q: %w", cfg.Report.Timezone, err)
	}

	return cfg, nil
}

// Validate checks that everything needed to download location databases is present
func (g GeoIPConfig) Validate() error {
	var missing []string
	if g.AccountID == "" {
		missing = append(missing, "GEOIP_ACCOUNT_ID")
	}
	if g.LicenseKey == "" {
		missing = append(missing, "GEOIP_LICENSE_KEY")
	}
	if len(g.Editions) == 0 {
		missing = append(missing, "GEOIP_EDITIONS")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrGeoIPConfig, strings.Join(missing, ", "))
	}
	return nil
}

// Helper functions to read environment variables with defaults

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
