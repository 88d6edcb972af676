package enrichment

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pterm/pterm"
)

type countingReloader struct {
	calls atomic.Int32
}

func (c *countingReloader) ReloadIfChanged() error {
	c.calls.Add(1)
	return nil
}

func TestDirWatcher_ReloadsOnPrimaryChange(t *testing.T) {
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelError)
	dir := t.TempDir()
	reloader := &countingReloader{}

	w, err := NewDirWatcher(dir, "GeoLite2-City", reloader, logger)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	w.debounce = 150 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Unrelated files are ignored
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)

	// Several writes to the primary file coalesce into one reload
	path := filepath.Join(dir, "GeoLite2-City.mmdb")
	for i := 0; i < 3; i++ {
		os.WriteFile(path, []byte("db"), 0o644)
	}

	deadline := time.Now().Add(3 * time.Second)
	for reloader.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(300 * time.Millisecond)

	if got := reloader.calls.Load(); got != 1 {
		t.Errorf("Expected 1 reload, got %d", got)
	}
}
