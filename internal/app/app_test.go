package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/domlin520/Website-analysis/internal/config"
	"github.com/domlin520/Website-analysis/internal/ingestion"

	"github.com/pterm/pterm"
)

const accessLine = `192.0.2.10 - - [10/Jan/2024:10:00:00 +0000] "GET /home HTTP/1.1" 200 512 "-" "Mozilla/5.0 (Windows NT)"` + "\n"

func testConfig(t *testing.T, paths ...string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Database: config.DatabaseConfig{
			Path:            filepath.Join(dir, "test.db"),
			MaxOpenConns:    2,
			MaxIdleConns:    1,
			ConnMaxLife:     time.Hour,
			CleanupInterval: time.Hour,
			CleanupTime:     "02:00",
		},
		GeoIP: config.GeoIPConfig{
			Enabled:   true,
			Editions:  []string{"GeoLite2-City"},
			DBDir:     filepath.Join(dir, "geoip"),
			CacheTTL:  24 * time.Hour,
			CacheSize: 100,
		},
		LogSources:  config.LogSourcesConfig{Paths: paths},
		Performance: config.PerformanceConfig{WorkerPoolSize: 2, FileConcurrency: 1, CacheSyncInterval: time.Minute},
		Report:      config.ReportConfig{Timezone: "Asia/Shanghai"},
		LogLevel:    "error",
	}
}

func TestNew_MissingGeoCredentialsDisablesResolver(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "access.log")
	if err := os.WriteFile(logPath, []byte(accessLine+accessLine), 0o644); err != nil {
		t.Fatalf("Failed to write log: %v", err)
	}

	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelError)
	a, err := New(context.Background(), testConfig(t, logPath), logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if a.Resolver != nil || a.Manager != nil {
		t.Error("Expected geo subsystem to stay disabled without credentials")
	}
	if a.Location.String() != "Asia/Shanghai" {
		t.Errorf("Expected report location Asia/Shanghai, got %s", a.Location)
	}

	m, err := a.Service.IngestAndAggregateMetrics(context.Background(), a.Paths)
	if err != nil {
		t.Fatalf("Metrics failed: %v", err)
	}
	if m.TotalRequests != 2 {
		t.Errorf("Expected 2 requests, got %d", m.TotalRequests)
	}
	if len(m.Hourly) != 1 || m.Hourly[0].Hour.Hour() != 18 {
		t.Errorf("Expected one bucket at 18:00 Shanghai time, got %+v", m.Hourly)
	}

	report, err := a.Service.IngestAndAggregateTraffic(context.Background(), a.Paths)
	if err != nil {
		t.Fatalf("Traffic failed: %v", err)
	}
	if report.UnresolvedLocations != 2 {
		t.Errorf("Expected 2 unresolved locations, got %d", report.UnresolvedLocations)
	}
}

func TestNew_NoPathsIsNoData(t *testing.T) {
	cfg := testConfig(t)
	cfg.GeoIP.Enabled = false

	a, err := New(context.Background(), cfg, pterm.DefaultLogger.WithLevel(pterm.LogLevelError))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if len(a.Paths) != 0 {
		t.Fatalf("Expected no paths, got %v", a.Paths)
	}
	if _, err := a.Service.IngestAndAggregateMetrics(context.Background(), a.Paths); !errors.Is(err, ingestion.ErrNoData) {
		t.Errorf("Expected ErrNoData, got %v", err)
	}
}

func TestNew_InvalidTimezone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Report.Timezone = "Mars/Olympus"

	if _, err := New(context.Background(), cfg, pterm.DefaultLogger.WithLevel(pterm.LogLevelError)); err == nil {
		t.Error("Expected error for invalid timezone")
	}
}

func TestApp_StartBackgroundWithoutGeo(t *testing.T) {
	cfg := testConfig(t)
	cfg.GeoIP.Enabled = false

	a, err := New(context.Background(), cfg, pterm.DefaultLogger.WithLevel(pterm.LogLevelError))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	a.StartBackground()
	a.StartBackground()
	a.Close()
}
