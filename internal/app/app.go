package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/domlin520/Website-analysis/internal/analytics"
	"github.com/domlin520/Website-analysis/internal/config"
	"github.com/domlin520/Website-analysis/internal/database"
	"github.com/domlin520/Website-analysis/internal/database/repositories"
	"github.com/domlin520/Website-analysis/internal/discovery"
	"github.com/domlin520/Website-analysis/internal/enrichment"
	"github.com/domlin520/Website-analysis/internal/ingestion"
	"github.com/domlin520/Website-analysis/internal/metrics"
	"github.com/domlin520/Website-analysis/internal/parser/accesslog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// App is the assembled pipeline: storage, location resolution, ingestion and aggregation
type App struct {
	Config      *config.Config
	DB          *gorm.DB
	Registry    *prometheus.Registry
	Metrics     *metrics.PipelineMetrics
	SourceRepo  repositories.LogSourceRepository
	Resolver    *enrichment.Resolver // nil when the geo subsystem is disabled
	Manager     *enrichment.Manager  // nil when the geo subsystem is disabled
	Coordinator *ingestion.Coordinator
	Service     *analytics.Service
	Paths       []string
	Location    *time.Location

	cleanup    *database.CleanupService
	watchStop  context.CancelFunc
	logger     *pterm.Logger
	background bool
}

// New wires every component from cfg. The location database is ensured (downloaded when
// missing) before New returns; a geo failure only disables location resolution.
func New(ctx context.Context, cfg *config.Config, logger *pterm.Logger) (*App, error) {
	loc, err := time.LoadLocation(cfg.Report.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load report timezone: %w", err)
	}

	a := &App{Config: cfg, Location: loc, logger: logger}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	a.DB, err = database.NewConnection(&database.Config{
		Path:         cfg.Database.Path,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		ConnMaxLife:  cfg.Database.ConnMaxLife,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := metrics.RegisterDBStats(a.Registry, sqlDB); err != nil {
			logger.Warn("Failed to register database pool metrics", logger.Args("error", err))
		}
	}

	logger.Debug("Initializing repositories...")
	a.SourceRepo = repositories.NewLogSourceRepository(a.DB)
	geoCacheRepo := repositories.NewGeoCacheRepository(a.DB, logger)

	if cfg.GeoIP.Enabled {
		a.setupGeo(ctx, geoCacheRepo)
	} else {
		logger.Info("GeoIP enrichment disabled by configuration")
	}

	a.cleanup = database.NewCleanupService(
		a.DB,
		geoCacheRepo,
		logger,
		cfg.GeoIP.CacheTTL,
		cfg.Database.CleanupInterval,
		cfg.Database.CleanupTime,
		cfg.Database.VacuumEnabled,
	)

	parser := accesslog.NewParser(logger)
	a.Paths = a.resolvePaths(parser)

	// A nil *Resolver must not become a non-nil interface
	var resolver ingestion.LocationResolver
	if a.Resolver != nil {
		resolver = a.Resolver
	}

	logger.Debug("Initializing ingestion coordinator...")
	a.Coordinator = ingestion.NewCoordinator(
		parser,
		resolver,
		a.SourceRepo,
		logger,
		a.Metrics,
		ingestion.CoordinatorConfig{
			WorkerPoolSize:  cfg.Performance.WorkerPoolSize,
			FileConcurrency: cfg.Performance.FileConcurrency,
		},
	)
	a.Service = analytics.NewService(a.Coordinator, loc, logger)

	return a, nil
}

// setupGeo builds the resolver and the lifecycle manager. Incomplete credentials leave both nil.
func (a *App) setupGeo(ctx context.Context, store repositories.GeoCacheRepository) {
	cfg, logger := a.Config, a.logger

	resolver := enrichment.NewResolver(enrichment.ResolverConfig{
		TTL:        cfg.GeoIP.CacheTTL,
		MaxEntries: cfg.GeoIP.CacheSize,
		Locale:     cfg.GeoIP.Locale,
	}, logger, a.Metrics)

	manager, err := enrichment.NewManager(enrichment.ManagerConfigFromGeoIP(cfg.GeoIP), resolver, logger, a.Metrics)
	if errors.Is(err, config.ErrGeoIPConfig) {
		logger.Warn("GeoIP configuration incomplete, continuing without location resolution",
			logger.Args("error", err))
		return
	}
	if err != nil {
		logger.WithCaller().Warn("GeoIP initialization failed, continuing without location resolution",
			logger.Args("error", err))
		return
	}

	resolver.SetStore(store)
	if n, err := resolver.LoadCache(); err != nil {
		logger.Warn("Failed to load geo cache", logger.Args("error", err))
	} else {
		logger.Debug("Geo cache loaded", logger.Args("entries", n))
	}

	logger.Info("Ensuring location databases...", logger.Args("editions", cfg.GeoIP.Editions))
	if err := manager.Ensure(ctx); err != nil {
		logger.WithCaller().Warn("Some location databases are unavailable",
			logger.Args("error", err))
	}
	if resolver.HasDatabase() {
		logger.Info("GeoIP enrichment enabled successfully")
	}

	a.Resolver = resolver
	a.Manager = manager
}

// resolvePaths returns LOG_PATHS, or the discovered access logs when none are configured
func (a *App) resolvePaths(parser *accesslog.Parser) []string {
	cfg, logger := a.Config, a.logger
	if len(cfg.LogSources.Paths) > 0 {
		return cfg.LogSources.Paths
	}
	if !cfg.LogSources.AutoDiscover {
		logger.Warn("No log paths configured and auto-discovery disabled",
			logger.Args("hint", "Set LOG_PATHS in .env"))
		return nil
	}

	logger.Debug("Running log source discovery...")
	var paths []string
	for _, source := range discovery.NewAccessLogDetector(parser, nil, logger).Detect() {
		paths = append(paths, source.Path)
	}
	return paths
}

// StartBackground starts the refresh scheduler, the database directory watcher, the geo cache
// sync loop and the cleanup service. One-shot commands skip it.
func (a *App) StartBackground() {
	if a.background {
		return
	}
	a.background = true

	a.cleanup.Start()

	if a.Manager == nil {
		return
	}
	a.Manager.Start()
	a.Resolver.StartCacheSync(a.Config.Performance.CacheSyncInterval)

	if !a.Config.GeoIP.WatchDir {
		return
	}
	watcher, err := enrichment.NewDirWatcher(a.Config.GeoIP.DBDir, a.Config.GeoIP.PrimaryEdition, a.Manager, a.logger)
	if err != nil {
		a.logger.Warn("Location database directory watcher unavailable", a.logger.Args("error", err))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.watchStop = cancel
	go watcher.Run(ctx)
}

// Close stops background work, persists the geo cache and releases the database handles
func (a *App) Close() {
	if a.background {
		a.logger.Debug("Stopping background services...")
		a.cleanup.Stop()
		if a.watchStop != nil {
			a.watchStop()
		}
		if a.Manager != nil {
			a.Manager.Stop()
		}
	}

	if a.Resolver != nil {
		if err := a.Resolver.FlushCache(); err != nil {
			a.logger.Warn("Failed to persist geo cache", a.logger.Args("error", err))
		}
		a.Resolver.Close()
	}

	if err := database.Close(a.DB); err != nil {
		a.logger.Warn("Failed to close database", a.logger.Args("error", err))
	}
}
