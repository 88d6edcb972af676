package ingestion

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/domlin520/Website-analysis/internal/database"
	"github.com/domlin520/Website-analysis/internal/database/repositories"
	"github.com/domlin520/Website-analysis/internal/enrichment"
	"github.com/domlin520/Website-analysis/internal/parser/accesslog"

	"github.com/klauspost/compress/gzip"
	"github.com/pterm/pterm"
)

const sampleLog = `10.0.0.1 - - [10/Jan/2024:10:00:00 +0000] "GET /home HTTP/1.1" 200 512 "-" "Mozilla/5.0 (Windows NT)"
10.0.0.2 - - [10/Jan/2024:10:05:00 +0000] "GET /about?x=1 HTTP/1.1" 200 128 "https://www.google.com/search?q=x" "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile"
this line is garbage

10.0.0.1 - - [bogus timestamp] "POST /api HTTP/1.1" 500 0
`

type stubResolver struct {
	mu    sync.Mutex
	calls map[string]int
}

func (s *stubResolver) Resolve(origin string) enrichment.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[origin]++
	return enrichment.Location{Status: enrichment.StatusResolved, Country: "China", Region: "Zhejiang", City: "Hangzhou"}
}

func newTestCoordinator(t *testing.T, resolver LocationResolver, repo repositories.LogSourceRepository) *Coordinator {
	t.Helper()
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelError)
	return NewCoordinator(accesslog.NewParser(logger), resolver, repo, logger, nil,
		CoordinatorConfig{WorkerPoolSize: 4, FileConcurrency: 2})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestCoordinator_IngestEnrichesRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	writeFile(t, path, sampleLog)

	resolver := &stubResolver{}
	c := newTestCoordinator(t, resolver, nil)
	fixedNow := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixedNow }

	records, err := c.Ingest(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}

	byPath := make(map[string]*EnrichedRecord)
	for _, r := range records {
		byPath[r.Path] = r
	}

	home := byPath["/home"]
	if home == nil {
		t.Fatal("Expected a record for /home")
	}
	if home.Method != "GET" || home.Status != 200 || home.Bytes != 512 {
		t.Errorf("Expected GET 200 512, got %s %d %d", home.Method, home.Status, home.Bytes)
	}
	if home.Time.FellBack || home.Time.ISO() != "2024-01-10T10:00:00Z" {
		t.Errorf("Expected normalized time 2024-01-10T10:00:00Z, got %s (fellback=%v)", home.Time.ISO(), home.Time.FellBack)
	}
	if home.Location.City != "Hangzhou" {
		t.Errorf("Expected resolved city, got %s", home.Location.City)
	}
	if home.Source != path {
		t.Errorf("Expected source %s, got %s", path, home.Source)
	}

	api := byPath["/api"]
	if api == nil {
		t.Fatal("Expected a record for /api")
	}
	if !api.Time.FellBack || !api.Time.Time.Equal(fixedNow) {
		t.Errorf("Expected fallback to pass time, got %v (fellback=%v)", api.Time.Time, api.Time.FellBack)
	}

	summary := c.LastPass()
	if summary == nil {
		t.Fatal("Expected a pass summary")
	}
	if summary.Records != 3 || summary.Rejected != 1 || summary.TimestampFallbacks != 1 {
		t.Errorf("Expected 3 records, 1 rejected, 1 fallback, got %+v", summary)
	}
	if summary.ID == "" {
		t.Error("Expected a pass id")
	}
}

func TestCoordinator_MissingFileIsNoData(t *testing.T) {
	c := newTestCoordinator(t, &stubResolver{}, nil)

	records, err := c.Ingest(context.Background(), []string{filepath.Join(t.TempDir(), "does-not-exist.log")})
	if !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData, got %v", err)
	}
	if records != nil {
		t.Errorf("Expected no records, got %d", len(records))
	}
	if summary := c.LastPass(); summary == nil || summary.MissingFiles != 1 {
		t.Errorf("Expected 1 missing file in summary, got %+v", summary)
	}
}

func TestCoordinator_MissingFileSkippedAmongOthers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	writeFile(t, path, sampleLog)

	c := newTestCoordinator(t, nil, nil)
	records, err := c.Ingest(context.Background(), []string{filepath.Join(dir, "missing.log"), path})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(records) != 3 {
		t.Errorf("Expected 3 records, got %d", len(records))
	}
	for _, r := range records {
		if r.Location.Status != enrichment.StatusUnknown {
			t.Errorf("Expected unknown location without resolver, got %s", r.Location.Status)
		}
	}
}

func TestCoordinator_AllLinesUnparseable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	writeFile(t, path, "garbage\nmore garbage\n")

	c := newTestCoordinator(t, nil, nil)
	if _, err := c.Ingest(context.Background(), []string{path}); !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData, got %v", err)
	}
}

func TestCoordinator_ReadErrorFailsPass(t *testing.T) {
	dir := t.TempDir()
	c := newTestCoordinator(t, nil, nil)

	// A directory is not a readable log file
	_, err := c.Ingest(context.Background(), []string{dir})
	if err == nil || errors.Is(err, ErrNoData) {
		t.Errorf("Expected a processing failure, got %v", err)
	}
}

func TestCoordinator_GlobAndGzip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "site-a", "access.log"), sampleLog)
	writeFile(t, filepath.Join(dir, "site-b", "access.log"), sampleLog)
	writeFile(t, filepath.Join(dir, "site-b", "error.txt"), "not matched")

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte(sampleLog))
	gz.Close()
	writeFile(t, filepath.Join(dir, "archive", "access.log.1.gz"), buf.String())

	c := newTestCoordinator(t, nil, nil)
	records, err := c.Ingest(context.Background(), []string{
		filepath.Join(dir, "**", "access.log"),
		filepath.Join(dir, "archive", "*.gz"),
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(records) != 9 {
		t.Errorf("Expected 9 records from three files, got %d", len(records))
	}
}

func TestCoordinator_TracksSources(t *testing.T) {
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelError)
	db, err := database.NewConnection(&database.Config{Path: filepath.Join(t.TempDir(), "sources.db"), MaxOpenConns: 1}, logger)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close(db)
	repo := repositories.NewLogSourceRepository(db)

	path := filepath.Join(t.TempDir(), "access.log")
	writeFile(t, path, sampleLog)

	c := newTestCoordinator(t, nil, repo)
	if _, err := c.Ingest(context.Background(), []string{path}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	source, err := repo.FindByName(path)
	if err != nil {
		t.Fatalf("Expected tracked source, got %v", err)
	}
	if source.LinesRead != 4 || source.LinesParsed != 3 || source.LinesRejected != 1 {
		t.Errorf("Expected 4 read, 3 parsed, 1 rejected, got %d/%d/%d", source.LinesRead, source.LinesParsed, source.LinesRejected)
	}
	if source.ParserType != "combined" {
		t.Errorf("Expected parser type combined, got %s", source.ParserType)
	}
}

func TestCoordinator_ResolverSharedAcrossLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.log")
	writeFile(t, path, sampleLog)

	resolver := &stubResolver{}
	c := newTestCoordinator(t, resolver, nil)
	if _, err := c.Ingest(context.Background(), []string{path}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if resolver.calls["10.0.0.1"] != 2 || resolver.calls["10.0.0.2"] != 1 {
		t.Errorf("Expected one Resolve per parsed line, got %v", resolver.calls)
	}
}

func TestSplitLines(t *testing.T) {
	lines, err := splitLines(bytes.NewBufferString("a\r\n\n  \nb\nc"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	expected := []string{"a", "b", "c"}
	if len(lines) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, lines)
	}
	for i := range expected {
		if lines[i] != expected[i] {
			t.Errorf("Expected %q, got %q", expected[i], lines[i])
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("Expected 'short', got '%s'", got)
	}
	if got := truncate("0123456789abc", 10); got != "0123456789..." {
		t.Errorf("Expected '0123456789...', got '%s'", got)
	}
	// "杭州" is two 3-byte runes; a cut at byte 4 must back off to the rune boundary
	got := truncate("杭州abc", 4)
	if got != "杭..." {
		t.Errorf("Expected '杭...', got '%s'", got)
	}
	if !utf8.ValidString(got) {
		t.Errorf("Expected valid UTF-8, got %q", got)
	}
}
