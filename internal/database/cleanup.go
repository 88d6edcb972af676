package database

import (
	"context"
	"sync"
	"time"

	"github.com/domlin520/Website-analysis/internal/database/repositories"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

const defaultCleanupClock = "02:00"

// CleanupService prunes persisted geo cache entries that outlived the cache TTL.
// It runs once a day at a configured wall-clock time.
type CleanupService struct {
	db       *gorm.DB
	geoCache repositories.GeoCacheRepository
	logger   *pterm.Logger
	ttl      time.Duration
	interval time.Duration // upper bound between schedule checks
	vacuum   bool

	hour, minute int
	initialDelay time.Duration

	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	last CleanupRun
}

// CleanupRun describes the most recent pruning pass
type CleanupRun struct {
	At       time.Time
	Deleted  int64
	Duration time.Duration
	Vacuumed bool
}

// NewCleanupService creates a cleanup service. An unparseable cleanupTime falls back to 02:00.
func NewCleanupService(db *gorm.DB, geoCache repositories.GeoCacheRepository, logger *pterm.Logger, ttl, interval time.Duration, cleanupTime string, vacuum bool) *CleanupService {
	s := &CleanupService{
		db:           db,
		geoCache:     geoCache,
		logger:       logger,
		ttl:          ttl,
		interval:     interval,
		vacuum:       vacuum,
		initialDelay: time.Minute,
	}
	s.hour, s.minute = parseClock(cleanupTime, logger)
	if s.interval <= 0 {
		s.interval = time.Hour
	}
	return s
}

func parseClock(value string, logger *pterm.Logger) (int, int) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		logger.Warn("Invalid cleanup time, using "+defaultCleanupClock,
			logger.Args("configured", value, "error", err))
		t, _ = time.Parse("15:04", defaultCleanupClock)
	}
	return t.Hour(), t.Minute()
}

// NextRun returns the first scheduled run strictly after now
func (s *CleanupService) NextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start launches the daily loop. A non-positive TTL disables cleanup.
func (s *CleanupService) Start() {
	if s.ttl <= 0 {
		s.logger.Info("Geo cache TTL disabled, cleanup service not started")
		return
	}
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("Starting geo cache cleanup service",
		s.logger.Args("ttl", s.ttl, "next_run", s.NextRun(time.Now()).Format(time.DateTime), "vacuum", s.vacuum))

	go s.loop(ctx)
}

// Stop ends the loop and waits for an in-progress run to finish
func (s *CleanupService) Stop() {
	if s.cancel == nil {
		return
	}
	s.logger.Debug("Stopping geo cache cleanup service")
	s.cancel()
	<-s.done
	s.cancel = nil
}

func (s *CleanupService) loop(ctx context.Context) {
	defer close(s.done)

	// Waits are capped by interval and the due time is rechecked on every wake-up
	next := s.NextRun(time.Now())
	timer := time.NewTimer(s.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-timer.C:
			if !now.Before(next) {
				s.RunCleanup()
				next = s.NextRun(now)
			}
			timer.Reset(min(time.Until(next), s.interval))
		}
	}
}

// RunCleanup deletes expired entries immediately and returns how many were removed
func (s *CleanupService) RunCleanup() int64 {
	start := time.Now()
	cutoff := start.Add(-s.ttl)

	deleted, err := s.geoCache.DeleteOlderThan(cutoff)
	if err != nil {
		s.logger.WithCaller().Error("Failed to delete expired geo cache entries",
			s.logger.Args("error", err, "cutoff", cutoff.Format(time.RFC3339)))
		return 0
	}

	run := CleanupRun{At: start, Deleted: deleted}
	if s.vacuum && deleted > 0 {
		run.Vacuumed = s.runVacuum()
	}
	run.Duration = time.Since(start)

	s.mu.Lock()
	s.last = run
	s.mu.Unlock()

	s.logger.Info("Geo cache cleanup completed",
		s.logger.Args("deleted", deleted, "vacuumed", run.Vacuumed, "duration", run.Duration.Round(time.Millisecond)))
	return deleted
}

func (s *CleanupService) runVacuum() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := s.db.WithContext(ctx).Exec("VACUUM").Error; err != nil {
		s.logger.WithCaller().Error("Failed to run VACUUM", s.logger.Args("error", err))
		return false
	}
	return true
}

// LastRun returns the most recent pruning pass; the zero value means none has run
func (s *CleanupService) LastRun() CleanupRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
