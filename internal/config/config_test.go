package config

import (
	"errors"
	"testing"
	"time"

	"github.com/pterm/pterm"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEOIP_EDITIONS", "")
	t.Setenv("LOG_PATHS", "")
	t.Setenv("REPORT_TIMEZONE", "")
	t.Setenv("GEOIP_REFRESH_INTERVAL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(cfg.GeoIP.Editions) != 1 || cfg.GeoIP.Editions[0] != "GeoLite2-City" {
		t.Errorf("Expected default edition GeoLite2-City, got %v", cfg.GeoIP.Editions)
	}
	if cfg.GeoIP.RefreshInterval != 7*24*time.Hour {
		t.Errorf("Expected weekly refresh, got %v", cfg.GeoIP.RefreshInterval)
	}
	if cfg.Report.Timezone != "UTC" {
		t.Errorf("Expected UTC report timezone, got %s", cfg.Report.Timezone)
	}
	if len(cfg.LogSources.Paths) != 0 {
		t.Errorf("Expected no log paths, got %v", cfg.LogSources.Paths)
	}
}

func TestLoad_ListsAndOverrides(t *testing.T) {
	t.Setenv("LOG_PATHS", " /var/log/nginx/access.log, ,/srv/logs/*.log ")
	t.Setenv("GEOIP_EDITIONS", "GeoLite2-City,GeoLite2-ASN")
	t.Setenv("GEOIP_CACHE_TTL", "2h")
	t.Setenv("WORKER_POOL_SIZE", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	expectedPaths := []string{"/var/log/nginx/access.log", "/srv/logs/*.log"}
	if len(cfg.LogSources.Paths) != len(expectedPaths) {
		t.Fatalf("Expected %d paths, got %v", len(expectedPaths), cfg.LogSources.Paths)
	}
	for i, p := range expectedPaths {
		if cfg.LogSources.Paths[i] != p {
			t.Errorf("Expected path %s, got %s", p, cfg.LogSources.Paths[i])
		}
	}
	if len(cfg.GeoIP.Editions) != 2 {
		t.Errorf("Expected 2 editions, got %v", cfg.GeoIP.Editions)
	}
	if cfg.GeoIP.CacheTTL != 2*time.Hour {
		t.Errorf("Expected cache TTL 2h, got %v", cfg.GeoIP.CacheTTL)
	}
	if cfg.Performance.WorkerPoolSize != 4 {
		t.Errorf("Expected fallback worker pool size 4, got %d", cfg.Performance.WorkerPoolSize)
	}
}

func TestLoad_InvalidTimezone(t *testing.T) {
	t.Setenv("REPORT_TIMEZONE", "Mars/Olympus")

	if _, err := Load(); err == nil {
		t.Error("Expected error for invalid REPORT_TIMEZONE")
	}
}

func TestGeoIPConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     GeoIPConfig
		wantErr bool
	}{
		{
			name:    "complete",
			cfg:     GeoIPConfig{AccountID: "123", LicenseKey: "key", Editions: []string{"GeoLite2-City"}},
			wantErr: false,
		},
		{
			name:    "missing account",
			cfg:     GeoIPConfig{LicenseKey: "key", Editions: []string{"GeoLite2-City"}},
			wantErr: true,
		},
		{
			name:    "missing license key",
			cfg:     GeoIPConfig{AccountID: "123", Editions: []string{"GeoLite2-City"}},
			wantErr: true,
		},
		{
			name:    "missing editions",
			cfg:     GeoIPConfig{AccountID: "123", LicenseKey: "key"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrGeoIPConfig) {
					t.Errorf("Expected ErrGeoIPConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestConfig_PtermLevel(t *testing.T) {
	tests := map[string]pterm.LogLevel{
		"trace":   pterm.LogLevelTrace,
		"DEBUG":   pterm.LogLevelDebug,
		"warning": pterm.LogLevelWarn,
		"error":   pterm.LogLevelError,
		"":        pterm.LogLevelInfo,
		"verbose": pterm.LogLevelInfo,
	}
	for level, expected := range tests {
		cfg := &Config{LogLevel: level}
		if got := cfg.PtermLevel(); got != expected {
			t.Errorf("Expected %v for %q, got %v", expected, level, got)
		}
	}
}
