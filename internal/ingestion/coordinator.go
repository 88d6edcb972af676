package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/domlin520/Website-analysis/internal/database/repositories"
	"github.com/domlin520/Website-analysis/internal/metrics"
	"github.com/domlin520/Website-analysis/internal/parser/accesslog"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"golang.org/x/sync/errgroup"
)

// ErrNoData is returned when a pass produced zero records: every file was missing, empty
// or unparseable. It is an outcome, not a failure.
var ErrNoData = errors.New("no log records available")

// CoordinatorConfig tunes pass concurrency
type CoordinatorConfig struct {
	WorkerPoolSize  int // Workers per file for parse/normalize/resolve
	FileConcurrency int // Files read at the same time
}

// PassSummary describes the most recent ingestion pass
type PassSummary struct {
	ID                 string        `json:"id"`
	StartedAt          time.Time     `json:"started_at"`
	Duration           time.Duration `json:"duration"`
	Files              int           `json:"files"`
	MissingFiles       int           `json:"missing_files"`
	Records            int64         `json:"records"`
	Rejected           int64         `json:"rejected"`
	TimestampFallbacks int64         `json:"timestamp_fallbacks"`
}

// Coordinator runs ingestion passes: read files, enrich every line, join
type Coordinator struct {
	sourceRepo      repositories.LogSourceRepository
	reader          *FileReader
	processor       *lineProcessor
	logger          *pterm.Logger
	metrics         *metrics.PipelineMetrics
	fileConcurrency int
	now             func() time.Time

	mu       sync.RWMutex
	lastPass *PassSummary
}

// NewCoordinator creates a new ingestion coordinator. A nil resolver yields unknown locations;
// a nil sourceRepo disables per-file bookkeeping.
func NewCoordinator(
	parser *accesslog.Parser,
	resolver LocationResolver,
	sourceRepo repositories.LogSourceRepository,
	logger *pterm.Logger,
	m *metrics.PipelineMetrics,
	cfg CoordinatorConfig,
) *Coordinator {
	if cfg.FileConcurrency < 1 {
		cfg.FileConcurrency = 1
	}
	return &Coordinator{
		sourceRepo: sourceRepo,
		reader:     NewFileReader(logger),
		processor: &lineProcessor{
			parser:   parser,
			resolver: resolver,
			logger:   logger,
			metrics:  m,
			workers:  cfg.WorkerPoolSize,
		},
		logger:          logger,
		metrics:         m,
		fileConcurrency: cfg.FileConcurrency,
		now:             time.Now,
	}
}

type fileResult struct {
	records []*EnrichedRecord
	stats   fileStats
	missing bool
}

// Ingest reads every path (glob patterns allowed) and returns the enriched records of all lines.
// Missing files are skipped; any other read error fails the pass. Zero records yields ErrNoData.
func (c *Coordinator) Ingest(ctx context.Context, paths []string) ([]*EnrichedRecord, error) {
	passID := uuid.NewString()
	startedAt := c.now()
	files := ExpandPaths(paths, c.logger)

	c.logger.Debug("Starting ingestion pass",
		c.logger.Args("pass_id", passID, "files", len(files), "file_concurrency", c.fileConcurrency))

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.fileConcurrency)

	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			content, err := c.reader.Read(path)
			if errors.Is(err, errFileMissing) {
				c.logger.Warn("Log file does not exist, skipping", c.logger.Args("path", path, "pass_id", passID))
				results[i].missing = true
				return nil
			}
			if err != nil {
				return err
			}

			records, stats := c.processor.enrichParallel(path, content.Lines, startedAt)
			results[i] = fileResult{records: records, stats: stats}
			c.trackSource(path, content, stats, passID)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.metrics.ObservePass("error", time.Since(startedAt))
		c.logger.WithCaller().Error("Ingestion pass failed",
			c.logger.Args("pass_id", passID, "error", err))
		return nil, fmt.Errorf("ingestion pass %s: %w", passID, err)
	}

	summary := &PassSummary{ID: passID, StartedAt: startedAt, Files: len(files)}
	total := 0
	for _, r := range results {
		total += len(r.records)
	}
	records := make([]*EnrichedRecord, 0, total)
	for _, r := range results {
		if r.missing {
			summary.MissingFiles++
		}
		records = append(records, r.records...)
		summary.Rejected += r.stats.rejected
		summary.TimestampFallbacks += r.stats.fallbacks
	}
	summary.Records = int64(len(records))
	summary.Duration = time.Since(startedAt)

	c.mu.Lock()
	c.lastPass = summary
	c.mu.Unlock()

	c.logger.Info("Ingestion pass completed",
		c.logger.Args(
			"pass_id", passID,
			"files", summary.Files,
			"missing_files", summary.MissingFiles,
			"records", summary.Records,
			"rejected", summary.Rejected,
			"timestamp_fallbacks", summary.TimestampFallbacks,
			"duration_ms", summary.Duration.Milliseconds(),
		))

	if len(records) == 0 {
		c.metrics.ObservePass("no_data", summary.Duration)
		return nil, ErrNoData
	}

	c.metrics.ObservePass("ok", summary.Duration)
	return records, nil
}

// LastPass returns the summary of the most recent completed pass, or nil
func (c *Coordinator) LastPass() *PassSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastPass == nil {
		return nil
	}
	summary := *c.lastPass
	return &summary
}

// trackSource records per-file counters; failures are logged and never fail the pass
func (c *Coordinator) trackSource(path string, content *FileContent, stats fileStats, passID string) {
	if c.sourceRepo == nil {
		return
	}

	if err := c.sourceRepo.EnsureSource(path, path, c.processor.parser.Name()); err != nil {
		c.logger.Warn("Failed to register log source", c.logger.Args("path", path, "error", err))
		return
	}

	err := c.sourceRepo.UpdateTracking(path, repositories.SourceTracking{
		FileSize:      content.Size,
		LinesRead:     int64(len(content.Lines)),
		LinesParsed:   stats.parsed,
		LinesRejected: stats.rejected,
		PassID:        passID,
	})
	if err != nil {
		c.logger.Warn("Failed to update log source tracking", c.logger.Args("path", path, "error", err))
	}
}
