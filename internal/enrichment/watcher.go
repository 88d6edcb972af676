package enrichment

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pterm/pterm"
)

// Reloader is implemented by Manager
type Reloader interface {
	ReloadIfChanged() error
}

// DirWatcher reloads the primary edition when an operator drops a new file into the database directory
type DirWatcher struct {
	fsw      *fsnotify.Watcher
	reloader Reloader
	logger   *pterm.Logger
	target   string
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewDirWatcher watches dir for changes to the file named edition+".mmdb"
func NewDirWatcher(dir, edition string, reloader Reloader, logger *pterm.Logger) (*DirWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	if err := fsw.Add(abs); err != nil {
		fsw.Close()
		return nil, err
	}

	return &DirWatcher{
		fsw:      fsw,
		reloader: reloader,
		logger:   logger,
		target:   edition + ".mmdb",
		debounce: 2 * time.Second,
	}, nil
}

// Run handles events until ctx is cancelled
func (w *DirWatcher) Run(ctx context.Context) {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != w.target {
				continue
			}
			switch {
			case ev.Op&fsnotify.Write != 0,
				ev.Op&fsnotify.Create != 0,
				ev.Op&fsnotify.Rename != 0:
				w.schedule()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Database directory watcher error", w.logger.Args("error", err))
		}
	}
}

// schedule coalesces bursts of events from a single copy into one reload
func (w *DirWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.reloader.ReloadIfChanged(); err != nil {
			w.logger.Warn("Failed to reload location database", w.logger.Args("error", err))
		}
	})
}
