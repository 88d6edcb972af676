package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/domlin520/Website-analysis/internal/analytics"
	"github.com/domlin520/Website-analysis/internal/ingestion"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// Analyzer runs an ingestion pass and aggregates it; *analytics.Service implements it
type Analyzer interface {
	IngestAndAggregateMetrics(ctx context.Context, paths []string) (*analytics.Metrics, error)
	IngestAndAggregateTraffic(ctx context.Context, paths []string) (*analytics.TrafficReport, error)
}

// AnalyticsHandler serves the aggregated metrics and traffic report
type AnalyticsHandler struct {
	analyzer Analyzer
	paths    []string
	topN     int
	logger   *pterm.Logger
}

// NewAnalyticsHandler creates a new analytics handler. paths are the log files read on every
// request; topN is the default length of ranked lists (0 = unlimited).
func NewAnalyticsHandler(analyzer Analyzer, paths []string, topN int, logger *pterm.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyzer: analyzer,
		paths:    paths,
		topN:     topN,
		logger:   logger,
	}
}

// GetMetrics returns volume, popular paths, status codes, user agents and hourly buckets
func (h *AnalyticsHandler) GetMetrics(c *gin.Context) {
	m, err := h.analyzer.IngestAndAggregateMetrics(c.Request.Context(), h.paths)
	if err != nil {
		h.respondError(c, "metrics", err)
		return
	}

	limit := h.limit(c)
	out := *m
	out.PopularPaths = analytics.TopN(m.PopularPaths, limit)
	out.StatusCodes = analytics.TopN(m.StatusCodes, limit)
	out.UserAgents = analytics.TopN(m.UserAgents, limit)

	c.JSON(http.StatusOK, out)
}

// GetTraffic returns the traffic source, device and geographic distribution
func (h *AnalyticsHandler) GetTraffic(c *gin.Context) {
	report, err := h.analyzer.IngestAndAggregateTraffic(c.Request.Context(), h.paths)
	if err != nil {
		h.respondError(c, "traffic report", err)
		return
	}

	limit := h.limit(c)
	out := *report
	out.Geo = make([]analytics.RegionStats, 0, len(report.Geo))
	for i, region := range report.Geo {
		if limit > 0 && i >= limit {
			break
		}
		region.Cities = analytics.TopN(region.Cities, limit)
		out.Geo = append(out.Geo, region)
	}

	c.JSON(http.StatusOK, out)
}

// respondError maps the no-data outcome to 404 and everything else to a generic 500
func (h *AnalyticsHandler) respondError(c *gin.Context, what string, err error) {
	if errors.Is(err, ingestion.ErrNoData) {
		h.logger.Debug("No log data for request", h.logger.Args("what", what, "paths", h.paths))
		c.JSON(http.StatusNotFound, gin.H{"error": "No log data available"})
		return
	}

	h.logger.WithCaller().Error("Failed to build "+what, h.logger.Args("error", err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build " + what})
}

// limit reads ?limit=N, falling back to the configured top-N
func (h *AnalyticsHandler) limit(c *gin.Context) int {
	limit := h.topN
	if limitParam := c.Query("limit"); limitParam != "" {
		if l, err := strconv.Atoi(limitParam); err == nil && l >= 0 && l <= 1000 {
			limit = l
		}
	}
	return limit
}
