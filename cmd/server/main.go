package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/domlin520/Website-analysis/internal/api"
	"github.com/domlin520/Website-analysis/internal/api/handlers"
	"github.com/domlin520/Website-analysis/internal/app"
	"github.com/domlin520/Website-analysis/internal/banner"
	"github.com/domlin520/Website-analysis/internal/config"

	"github.com/pterm/pterm"
)

func main() {
	// Initialize logger with INFO level as a sensible default
	// We'll reconfigure the level after loading the configuration (LOG_LEVEL)
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelInfo)

	// Print banner
	banner.Print()

	logger.Info("Initializing Website Analysis...")

	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		logger.WithCaller().Fatal("Failed to load configuration", logger.Args("error", err))
	}

	logger = pterm.DefaultLogger.WithLevel(cfg.PtermLevel())
	logger.Debug("Configuration loaded",
		logger.Args(
			"db_path", cfg.Database.Path,
			"server_port", cfg.Server.Port,
			"geoip_enabled", cfg.GeoIP.Enabled,
			"log_paths", cfg.LogSources.Paths,
			"report_timezone", cfg.Report.Timezone,
		))

	// The initial location database download is bounded by the download timeout per attempt;
	// a signal during startup aborts it.
	startCtx, stopStart := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	application, err := app.New(startCtx, cfg, logger)
	stopStart()
	if err != nil {
		logger.WithCaller().Fatal("Failed to initialize", logger.Args("error", err))
	}
	application.StartBackground()

	if len(application.Paths) == 0 {
		logger.Warn("No log files to analyse, API requests will report no data")
	}

	// Initialize web server with configured settings
	logger.Info("Initializing web server...")
	var editions handlers.EditionReporter
	var resolverInfo handlers.ResolverInfo
	if application.Manager != nil {
		editions = application.Manager
		resolverInfo = application.Resolver
	}
	analyticsHandler := handlers.NewAnalyticsHandler(application.Service, application.Paths, cfg.Server.TopN, logger)
	systemHandler := handlers.NewSystemHandler(editions, resolverInfo, application.SourceRepo, application.Coordinator, logger)
	webServer := api.NewServer(&api.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Production:     cfg.Server.Production,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, analyticsHandler, systemHandler, application.Registry, logger)

	// Start web server in goroutine
	go func() {
		if err := webServer.Run(); err != nil {
			logger.WithCaller().Error("Web server error", logger.Args("error", err))
		}
	}()

	logger.Info("Website Analysis is running",
		logger.Args(
			"url", pterm.Sprintf("http://localhost:%d", cfg.Server.Port),
			"log_files", len(application.Paths),
		))

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Wait for shutdown signal
	<-sigChan

	logger.Info("Shutdown signal received, stopping services...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop web server first so no pass starts while the pipeline shuts down
	logger.Debug("Stopping web server...")
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		logger.WithCaller().Error("Web server shutdown error", logger.Args("error", err))
	} else {
		logger.Info("Web server stopped successfully")
	}

	application.Close()

	logger.Info("Website Analysis stopped gracefully")
}
