package enrichment

import (
	"sync"
	"time"

	"github.com/domlin520/Website-analysis/internal/database/models"
	"github.com/domlin520/Website-analysis/internal/database/repositories"
	"github.com/domlin520/Website-analysis/internal/metrics"

	"github.com/pterm/pterm"
	"golang.org/x/sync/singleflight"
)

// ResolverConfig controls cache behaviour and name selection
type ResolverConfig struct {
	TTL        time.Duration
	MaxEntries int
	Locale     string
}

type cacheEntry struct {
	location   Location
	resolvedAt time.Time
}

// Resolver maps origins to locations through a TTL cache in front of the active database.
// The handle and the cache are replaced together by Swap; lookups never see one without the other.
type Resolver struct {
	logger  *pterm.Logger
	metrics *metrics.PipelineMetrics
	ttl     time.Duration
	maxSize int
	locale  string
	now     func() time.Time
	group   singleflight.Group

	mu         sync.RWMutex
	db         LocationDB
	cache      map[string]cacheEntry
	dirty      map[string]struct{}
	generation uint64

	// storeMu orders persisted writes: a flush never lands after the clear of a later Swap.
	// Lock order is storeMu, then mu.
	storeMu sync.Mutex
	store   repositories.GeoCacheRepository

	syncMu   sync.Mutex
	stopChan chan struct{}
	syncWG   sync.WaitGroup
}

// NewResolver creates a resolver without a database; every lookup is unavailable until Swap
func NewResolver(cfg ResolverConfig, logger *pterm.Logger, m *metrics.PipelineMetrics) *Resolver {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Locale == "" {
		cfg.Locale = FallbackLocale
	}
	return &Resolver{
		logger:  logger,
		metrics: m,
		ttl:     cfg.TTL,
		maxSize: cfg.MaxEntries,
		locale:  cfg.Locale,
		now:     time.Now,
		cache:   make(map[string]cacheEntry),
		dirty:   make(map[string]struct{}),
	}
}

// Resolve returns the location of origin. It never fails: malformed origins are unknown,
// database errors are unavailable for that origin only and are not cached.
func (r *Resolver) Resolve(origin string) Location {
	ip := parseOrigin(origin)
	if ip == nil {
		r.metrics.ObserveLookup("malformed")
		return UnknownLocation()
	}
	key := ip.String()

	if loc, ok := r.cached(key); ok {
		r.metrics.ObserveLookup("cache_hit")
		return loc
	}

	v, _, _ := r.group.Do(key, func() (interface{}, error) {
		// A concurrent caller may have filled the entry while we waited
		if loc, ok := r.cached(key); ok {
			return loc, nil
		}
		return r.lookup(key), nil
	})
	return v.(Location)
}

func (r *Resolver) cached(key string) (Location, bool) {
	now := r.now()
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.cache[key]
	if !ok || now.Sub(entry.resolvedAt) >= r.ttl {
		return Location{}, false
	}
	return entry.location, true
}

func (r *Resolver) lookup(key string) Location {
	// The read lock is held across the query so Swap cannot close the handle underneath it
	r.mu.RLock()
	db, generation := r.db, r.generation
	if db == nil {
		r.mu.RUnlock()
		r.metrics.ObserveLookup("unavailable")
		return UnavailableLocation()
	}
	place, err := db.Lookup(parseOrigin(key))
	r.mu.RUnlock()

	if err != nil {
		r.logger.Warn("Location lookup failed", r.logger.Args("origin", key, "error", err))
		r.metrics.ObserveLookup("unavailable")
		return UnavailableLocation()
	}

	loc := toLocation(place, r.locale)
	if loc.Known() {
		r.metrics.ObserveLookup("resolved")
	} else {
		r.metrics.ObserveLookup("unknown")
	}

	now := r.now()
	r.mu.Lock()
	// Results computed against a replaced database must not enter the new cache
	if r.generation == generation {
		r.put(key, cacheEntry{location: loc, resolvedAt: now}, now)
	}
	size := len(r.cache)
	r.mu.Unlock()

	r.metrics.SetCacheEntries(size)
	return loc
}

// put stores an entry; callers hold the write lock
func (r *Resolver) put(key string, entry cacheEntry, now time.Time) {
	if _, exists := r.cache[key]; !exists && r.maxSize > 0 && len(r.cache) >= r.maxSize {
		r.evict(now)
	}
	r.cache[key] = entry
	r.dirty[key] = struct{}{}
}

// evict drops expired entries, then an arbitrary one if the cache is still full
func (r *Resolver) evict(now time.Time) {
	for k, e := range r.cache {
		if now.Sub(e.resolvedAt) >= r.ttl {
			delete(r.cache, k)
			delete(r.dirty, k)
		}
	}
	if len(r.cache) < r.maxSize {
		return
	}
	for k := range r.cache {
		delete(r.cache, k)
		delete(r.dirty, k)
		return
	}
}

// Swap publishes a new database handle, clears the cache and its persisted copy and closes
// the previous handle
func (r *Resolver) Swap(db LocationDB) {
	r.storeMu.Lock()
	r.mu.Lock()
	old := r.db
	r.db = db
	r.cache = make(map[string]cacheEntry)
	r.dirty = make(map[string]struct{})
	r.generation++
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Clear(); err != nil {
			r.logger.WithCaller().Warn("Failed to clear persisted geo cache", r.logger.Args("error", err))
		}
	}
	r.storeMu.Unlock()

	r.metrics.ObserveSwap()
	r.metrics.SetCacheEntries(0)

	if old != nil {
		if err := old.Close(); err != nil {
			r.logger.Warn("Failed to close previous location database", r.logger.Args("error", err))
		}
	}

	r.logger.Info("Location database swapped, cache invalidated")
}

// Install publishes the first database handle and keeps the warm cache. Entries resolved
// before builtAt, the database file's modification time, are dropped in memory and in storage.
// It reports false and changes nothing when a handle is already active.
func (r *Resolver) Install(db LocationDB, builtAt time.Time) bool {
	r.storeMu.Lock()
	defer r.storeMu.Unlock()

	r.mu.Lock()
	if r.db != nil {
		r.mu.Unlock()
		return false
	}
	r.db = db
	r.generation++
	dropped := 0
	for key, entry := range r.cache {
		if entry.resolvedAt.Before(builtAt) {
			delete(r.cache, key)
			delete(r.dirty, key)
			dropped++
		}
	}
	size := len(r.cache)
	r.mu.Unlock()

	if r.store != nil {
		if _, err := r.store.DeleteOlderThan(builtAt); err != nil {
			r.logger.WithCaller().Warn("Failed to prune persisted geo cache", r.logger.Args("error", err))
		}
	}

	r.metrics.SetCacheEntries(size)
	r.logger.Info("Location database installed",
		r.logger.Args("warm_entries", size, "dropped_stale", dropped))
	return true
}

// HasDatabase reports whether a database handle is active
func (r *Resolver) HasDatabase() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.db != nil
}

// GetCacheSize returns the number of cached origins
func (r *Resolver) GetCacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// Close stops cache synchronisation and releases the active handle
func (r *Resolver) Close() error {
	r.StopCacheSync()

	r.mu.Lock()
	db := r.db
	r.db = nil
	r.generation++
	r.mu.Unlock()

	if db != nil {
		return db.Close()
	}
	return nil
}

// SetStore attaches persistent storage used by LoadCache and FlushCache
func (r *Resolver) SetStore(store repositories.GeoCacheRepository) {
	r.store = store
}

// LoadCache warms the cache with persisted entries younger than the TTL
func (r *Resolver) LoadCache() (int, error) {
	if r.store == nil {
		return 0, nil
	}

	now := r.now()
	rows, err := r.store.FindFresh(now.Add(-r.ttl))
	if err != nil {
		return 0, err
	}

	loaded := 0
	r.mu.Lock()
	for _, row := range rows {
		if _, exists := r.cache[row.Origin]; exists {
			continue
		}
		if r.maxSize > 0 && len(r.cache) >= r.maxSize {
			break
		}
		r.cache[row.Origin] = cacheEntry{
			location: Location{
				Status:  Status(row.Status),
				Country: row.Country,
				Region:  row.Region,
				City:    row.City,
			},
			resolvedAt: row.ResolvedAt,
		}
		loaded++
	}
	size := len(r.cache)
	r.mu.Unlock()

	r.metrics.SetCacheEntries(size)
	return loaded, nil
}

// FlushCache persists entries added since the last flush
func (r *Resolver) FlushCache() error {
	if r.store == nil {
		return nil
	}

	r.storeMu.Lock()
	defer r.storeMu.Unlock()

	r.mu.Lock()
	batch := make([]*models.GeoCacheEntry, 0, len(r.dirty))
	for key := range r.dirty {
		entry, ok := r.cache[key]
		if !ok {
			continue
		}
		batch = append(batch, &models.GeoCacheEntry{
			Origin:     key,
			Status:     string(entry.location.Status),
			Country:    entry.location.Country,
			Region:     entry.location.Region,
			City:       entry.location.City,
			ResolvedAt: entry.resolvedAt,
		})
	}
	r.dirty = make(map[string]struct{})
	r.mu.Unlock()

	if err := r.store.UpsertBatch(batch); err != nil {
		return err
	}
	r.logger.Trace("Geo cache flushed", r.logger.Args("entries", len(batch)))
	return nil
}

// StartCacheSync flushes the cache to storage every interval until StopCacheSync
func (r *Resolver) StartCacheSync(interval time.Duration) {
	r.syncMu.Lock()
	defer r.syncMu.Unlock()

	if r.store == nil || interval <= 0 || r.stopChan != nil {
		return
	}
	r.stopChan = make(chan struct{})
	r.syncWG.Add(1)

	go func(stop <-chan struct{}) {
		defer r.syncWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				if err := r.FlushCache(); err != nil {
					r.logger.Warn("Final geo cache flush failed", r.logger.Args("error", err))
				}
				return
			case <-ticker.C:
				if err := r.FlushCache(); err != nil {
					r.logger.Warn("Geo cache flush failed", r.logger.Args("error", err))
				}
			}
		}
	}(r.stopChan)
}

// StopCacheSync stops the flush loop after a final flush
func (r *Resolver) StopCacheSync() {
	r.syncMu.Lock()
	defer r.syncMu.Unlock()

	if r.stopChan == nil {
		return
	}
	close(r.stopChan)
	r.syncWG.Wait()
	r.stopChan = nil
}
