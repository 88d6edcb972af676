package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/domlin520/Website-analysis/internal/parser/accesslog"

	"github.com/pterm/pterm"
)

func TestAccessLogDetector_Detect(t *testing.T) {
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelError)
	dir := t.TempDir()

	valid := filepath.Join(dir, "nginx", "access.log")
	jsonLog := filepath.Join(dir, "traefik", "access.log")
	empty := filepath.Join(dir, "apache2", "access.log")
	missing := filepath.Join(dir, "httpd", "access_log")

	files := map[string]string{
		valid:   "\n10.0.0.1 - - [10/Jan/2024:10:00:00 +0000] \"GET / HTTP/1.1\" 200 512 \"-\" \"curl/8.0\"\n",
		jsonLog: `{"ClientHost":"10.0.0.1","RequestMethod":"GET"}` + "\n",
		empty:   "",
	}
	for path, content := range files {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", path, err)
		}
	}

	detector := NewAccessLogDetector(accesslog.NewParser(logger), []string{valid, jsonLog, empty, missing, dir}, logger)
	sources := detector.Detect()

	if len(sources) != 1 {
		t.Fatalf("Expected 1 detected source, got %d", len(sources))
	}
	if sources[0].Path != valid {
		t.Errorf("Expected %s, got %s", valid, sources[0].Path)
	}
	if sources[0].Name != "nginx-access" {
		t.Errorf("Expected name 'nginx-access', got '%s'", sources[0].Name)
	}
	if sources[0].ParserType != "combined" {
		t.Errorf("Expected parser type 'combined', got '%s'", sources[0].ParserType)
	}
}

func TestGenerateName(t *testing.T) {
	tests := map[string]string{
		"/var/log/nginx/access.log": "nginx-access",
		"/var/log/httpd/access_log": "httpd-access_log",
		"access.log":                "access",
		"/access.log":               "access",
	}
	for path, expected := range tests {
		if got := generateName(path); got != expected {
			t.Errorf("Expected '%s' for %s, got '%s'", expected, path, got)
		}
	}
}
