package enrichment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/domlin520/Website-analysis/internal/config"
	"github.com/domlin520/Website-analysis/internal/metrics"

	"github.com/pterm/pterm"
)

// EditionState is the lifecycle state of one database edition
type EditionState string

const (
	StateMissing     EditionState = "missing"
	StateDownloading EditionState = "downloading"
	StateValidating  EditionState = "validating"
	StateActive      EditionState = "active"
	StateFailed      EditionState = "failed"
)

// EditionStatus is a snapshot of one edition for status reporting
type EditionStatus struct {
	Edition   string       `json:"edition"`
	State     EditionState `json:"state"`
	Path      string       `json:"path"`
	ModTime   *time.Time   `json:"mod_time,omitempty"`
	LastError string       `json:"last_error,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ManagerConfig describes where editions come from and where they live
type ManagerConfig struct {
	AccountID       string
	LicenseKey      string
	Editions        []string
	PrimaryEdition  string
	Dir             string
	URLTemplate     string
	RefreshInterval time.Duration
	Retries         int
	RetryBackoff    time.Duration
	Timeout         time.Duration
}

// ManagerConfigFromGeoIP maps application configuration onto the manager
func ManagerConfigFromGeoIP(cfg config.GeoIPConfig) ManagerConfig {
	return ManagerConfig{
		AccountID:       cfg.AccountID,
		LicenseKey:      cfg.LicenseKey,
		Editions:        cfg.Editions,
		PrimaryEdition:  cfg.PrimaryEdition,
		Dir:             cfg.DBDir,
		URLTemplate:     cfg.DownloadURL,
		RefreshInterval: cfg.RefreshInterval,
		Retries:         cfg.DownloadRetries,
		RetryBackoff:    5 * time.Second,
		Timeout:         cfg.DownloadTimeout,
	}
}

// Manager keeps the configured editions present, valid and current, and publishes the
// primary edition to the Resolver
type Manager struct {
	cfg      ManagerConfig
	logger   *pterm.Logger
	metrics  *metrics.PipelineMetrics
	resolver *Resolver
	client   *http.Client
	open     Opener

	// Serialises Ensure, Refresh and reloads; downloads run under it but lookups never wait on it
	refreshMu sync.Mutex

	statusMu      sync.RWMutex
	status        map[string]*EditionStatus
	activeModTime time.Time

	runMu    sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

// NewManager validates the configuration. Missing credentials or editions yield config.ErrGeoIPConfig.
func NewManager(cfg ManagerConfig, resolver *Resolver, logger *pterm.Logger, m *metrics.PipelineMetrics) (*Manager, error) {
	geoCfg := config.GeoIPConfig{AccountID: cfg.AccountID, LicenseKey: cfg.LicenseKey, Editions: cfg.Editions}
	if err := geoCfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.PrimaryEdition == "" {
		cfg.PrimaryEdition = cfg.Editions[0]
	}
	if !slices.Contains(cfg.Editions, cfg.PrimaryEdition) {
		cfg.Editions = append(slices.Clone(cfg.Editions), cfg.PrimaryEdition)
	}
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = config.DefaultDownloadURL
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 7 * 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	status := make(map[string]*EditionStatus, len(cfg.Editions))
	for _, edition := range cfg.Editions {
		status[edition] = &EditionStatus{Edition: edition, State: StateMissing}
	}

	return &Manager{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		resolver: resolver,
		client:   &http.Client{Timeout: cfg.Timeout},
		open:     OpenGeoIP,
		status:   status,
	}, nil
}

// Ensure makes every edition present and openable, fetching what is missing or corrupt,
// and loads the primary edition into the resolver. Editions fail independently.
func (m *Manager) Ensure(ctx context.Context) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	if err := os.MkdirAll(m.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}

	fetched, primaryFetched := false, false
	var errs []error
	for _, edition := range m.cfg.Editions {
		if m.checkLocal(edition) {
			m.markActive(edition)
			continue
		}

		m.setState(edition, StateMissing, nil)
		if err := m.fetch(ctx, edition); err != nil {
			errs = append(errs, err)
			continue
		}
		m.markActive(edition)
		fetched = true
		primaryFetched = primaryFetched || edition == m.cfg.PrimaryEdition
	}

	if fetched || !m.resolver.HasDatabase() {
		if err := m.loadPrimary(primaryFetched); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Refresh re-downloads editions whose remote copy is newer than the local file.
// A refresh already in progress makes this call a no-op.
func (m *Manager) Refresh(ctx context.Context) error {
	if !m.refreshMu.TryLock() {
		m.logger.Debug("Location database refresh already running, skipping")
		return nil
	}
	defer m.refreshMu.Unlock()

	m.logger.Info("Checking location databases for updates", m.logger.Args("editions", len(m.cfg.Editions)))

	fetched := false
	var errs []error
	for _, edition := range m.cfg.Editions {
		newer, err := m.remoteIsNewer(ctx, edition)
		if err != nil {
			m.logger.Warn("Freshness check failed", m.logger.Args("edition", edition, "error", err))
			m.setState(edition, m.currentState(edition), err)
			errs = append(errs, err)
			continue
		}
		if !newer {
			m.logger.Debug("Location database is current", m.logger.Args("edition", edition))
			m.metrics.ObserveDownload(edition, "not_modified")
			continue
		}

		if err := m.fetch(ctx, edition); err != nil {
			errs = append(errs, err)
			continue
		}
		m.markActive(edition)
		fetched = true
	}

	if fetched {
		if err := m.loadPrimary(true); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ReloadIfChanged swaps in the primary edition when its file was replaced out of band
func (m *Manager) ReloadIfChanged() error {
	if !m.refreshMu.TryLock() {
		return nil
	}
	defer m.refreshMu.Unlock()

	info, err := os.Stat(m.editionPath(m.cfg.PrimaryEdition))
	if err != nil {
		return nil
	}

	m.statusMu.RLock()
	unchanged := info.ModTime().Equal(m.activeModTime)
	m.statusMu.RUnlock()
	if unchanged {
		return nil
	}

	m.logger.Info("Primary location database changed on disk, reloading",
		m.logger.Args("edition", m.cfg.PrimaryEdition))
	if !m.checkLocal(m.cfg.PrimaryEdition) {
		return fmt.Errorf("replacement for %s is not a valid database", m.cfg.PrimaryEdition)
	}
	m.markActive(m.cfg.PrimaryEdition)
	return m.loadPrimary(true)
}

// Start runs Refresh on the configured interval until Stop
func (m *Manager) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})

	m.logger.Info("Starting location database refresh scheduler",
		m.logger.Args("interval", m.cfg.RefreshInterval))

	m.wg.Add(1)
	go m.refreshLoop(m.stopChan)
}

func (m *Manager) refreshLoop(stop <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				select {
				case <-stop:
					cancel()
				case <-done:
				}
			}()

			if err := m.Refresh(ctx); err != nil {
				m.logger.WithCaller().Error("Scheduled location database refresh failed, keeping current database",
					m.logger.Args("error", err))
			}
			close(done)
			cancel()
		}
	}
}

// Stop ends the refresh scheduler and cancels an in-flight refresh
func (m *Manager) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		return
	}
	m.logger.Info("Stopping location database refresh scheduler")
	close(m.stopChan)
	m.wg.Wait()
	m.running = false
}

// Status returns a snapshot of every edition in configuration order
func (m *Manager) Status() []EditionStatus {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()

	out := make([]EditionStatus, 0, len(m.cfg.Editions))
	for _, edition := range m.cfg.Editions {
		s := *m.status[edition]
		if s.ModTime != nil {
			t := *s.ModTime
			s.ModTime = &t
		}
		out = append(out, s)
	}
	return out
}

// fetch downloads an edition, retrying up to the configured number of attempts
func (m *Manager) fetch(ctx context.Context, edition string) error {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.Retries; attempt++ {
		err := m.download(ctx, edition)
		if err == nil {
			m.metrics.ObserveDownload(edition, "success")
			return nil
		}
		lastErr = err
		m.metrics.ObserveDownload(edition, "failure")
		m.logger.Warn("Location database download failed",
			m.logger.Args("edition", edition, "attempt", attempt, "max_attempts", m.cfg.Retries, "error", err))

		if attempt == m.cfg.Retries {
			break
		}
		select {
		case <-ctx.Done():
			return m.fetchFailed(edition, ctx.Err())
		case <-time.After(m.cfg.RetryBackoff * time.Duration(attempt)):
		}
	}
	return m.fetchFailed(edition, lastErr)
}

// fetchFailed records a failed fetch. An edition whose previous file is still in place stays active.
func (m *Manager) fetchFailed(edition string, cause error) error {
	err := fmt.Errorf("fetch %s: %w", edition, cause)
	state := StateFailed
	if _, statErr := os.Stat(m.editionPath(edition)); statErr == nil {
		state = StateActive
	}
	m.setState(edition, state, err)
	return err
}

// checkLocal reports whether the edition file exists and opens; a file that fails to open is deleted
func (m *Manager) checkLocal(edition string) bool {
	path := m.editionPath(edition)
	if _, err := os.Stat(path); err != nil {
		return false
	}

	db, err := m.open(path)
	if err != nil {
		m.logger.Warn("Location database is corrupt, removing",
			m.logger.Args("edition", edition, "path", path, "error", err))
		if rmErr := os.Remove(path); rmErr != nil {
			m.logger.WithCaller().Error("Failed to remove corrupt database", m.logger.Args("path", path, "error", rmErr))
		}
		return false
	}
	_ = db.Close()
	return true
}

// loadPrimary opens the primary edition and publishes it to the resolver. A file already on
// disk before this call (replaced false) keeps the warm cache when no handle is active yet;
// a replaced file always invalidates it.
func (m *Manager) loadPrimary(replaced bool) error {
	path := m.editionPath(m.cfg.PrimaryEdition)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("primary edition %s unavailable: %w", m.cfg.PrimaryEdition, err)
	}

	db, err := m.open(path)
	if err != nil {
		return fmt.Errorf("open primary edition %s: %w", m.cfg.PrimaryEdition, err)
	}
	if replaced || !m.resolver.Install(db, info.ModTime()) {
		m.resolver.Swap(db)
	}

	m.statusMu.Lock()
	m.activeModTime = info.ModTime()
	m.statusMu.Unlock()
	return nil
}

func (m *Manager) markActive(edition string) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()

	s := m.status[edition]
	s.State = StateActive
	s.Path = m.editionPath(edition)
	s.LastError = ""
	s.UpdatedAt = time.Now()
	if info, err := os.Stat(s.Path); err == nil {
		t := info.ModTime()
		s.ModTime = &t
	}
}

func (m *Manager) setState(edition string, state EditionState, err error) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()

	s := m.status[edition]
	s.State = state
	s.Path = m.editionPath(edition)
	s.UpdatedAt = time.Now()
	if err != nil {
		s.LastError = err.Error()
	}
}

func (m *Manager) currentState(edition string) EditionState {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status[edition].State
}
