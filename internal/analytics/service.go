package analytics

import (
	"context"
	"time"

	"github.com/domlin520/Website-analysis/internal/ingestion"

	"github.com/pterm/pterm"
)

// Ingester runs one ingestion pass; *ingestion.Coordinator implements it
type Ingester interface {
	Ingest(ctx context.Context, paths []string) ([]*ingestion.EnrichedRecord, error)
}

// Service re-reads the configured logs on every call and aggregates the fresh records.
// Nothing is cached between calls.
type Service struct {
	ingester Ingester
	location *time.Location
	logger   *pterm.Logger
	now      func() time.Time
}

// NewService creates the aggregation entry point. loc is the zone used for hourly buckets;
// nil means UTC.
func NewService(ingester Ingester, loc *time.Location, logger *pterm.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		ingester: ingester,
		location: loc,
		logger:   logger,
		now:      time.Now,
	}
}

// IngestAndAggregateMetrics reads paths and returns volume and frequency metrics.
// ingestion.ErrNoData is returned unchanged when the pass produced no records.
func (s *Service) IngestAndAggregateMetrics(ctx context.Context, paths []string) (*Metrics, error) {
	records, err := s.ingester.Ingest(ctx, paths)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	m := AggregateMetrics(records, s.now(), s.location)
	s.logger.Debug("Aggregated metrics",
		s.logger.Args("records", m.TotalRequests, "unique_origins", m.UniqueOrigins, "duration", time.Since(start)))
	return m, nil
}

// IngestAndAggregateTraffic reads paths and returns the source, device and geographic report
func (s *Service) IngestAndAggregateTraffic(ctx context.Context, paths []string) (*TrafficReport, error) {
	records, err := s.ingester.Ingest(ctx, paths)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	report := AggregateTraffic(records, s.now())
	s.logger.Debug("Aggregated traffic report",
		s.logger.Args("records", report.TotalRequests, "regions", len(report.Geo), "duration", time.Since(start)))
	return report, nil
}

// Location returns the zone used for hourly buckets
func (s *Service) Location() *time.Location {
	return s.location
}
