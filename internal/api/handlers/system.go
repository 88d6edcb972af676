package handlers

import (
	"net/http"

	"github.com/domlin520/Website-analysis/internal/database/repositories"
	"github.com/domlin520/Website-analysis/internal/enrichment"
	"github.com/domlin520/Website-analysis/internal/ingestion"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// EditionReporter reports location database editions; *enrichment.Manager implements it
type EditionReporter interface {
	Status() []enrichment.EditionStatus
}

// ResolverInfo describes the location resolver; *enrichment.Resolver implements it
type ResolverInfo interface {
	HasDatabase() bool
	GetCacheSize() int
}

// PassReporter exposes the last ingestion pass; *ingestion.Coordinator implements it
type PassReporter interface {
	LastPass() *ingestion.PassSummary
}

// SystemHandler serves geo subsystem and log source status
type SystemHandler struct {
	editions   EditionReporter
	resolver   ResolverInfo
	sourceRepo repositories.LogSourceRepository
	passes     PassReporter
	logger     *pterm.Logger
}

// NewSystemHandler creates a new system handler. editions and resolver are nil when the
// geo subsystem is disabled.
func NewSystemHandler(
	editions EditionReporter,
	resolver ResolverInfo,
	sourceRepo repositories.LogSourceRepository,
	passes PassReporter,
	logger *pterm.Logger,
) *SystemHandler {
	return &SystemHandler{
		editions:   editions,
		resolver:   resolver,
		sourceRepo: sourceRepo,
		passes:     passes,
		logger:     logger,
	}
}

// GetGeoStatus returns the state of every configured edition and the resolver cache
func (h *SystemHandler) GetGeoStatus(c *gin.Context) {
	if h.editions == nil || h.resolver == nil {
		c.JSON(http.StatusOK, gin.H{
			"enabled":  false,
			"editions": []enrichment.EditionStatus{},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"enabled":         true,
		"database_loaded": h.resolver.HasDatabase(),
		"cache_entries":   h.resolver.GetCacheSize(),
		"editions":        h.editions.Status(),
	})
}

// GetSources returns per-file bookkeeping and the most recent pass summary
func (h *SystemHandler) GetSources(c *gin.Context) {
	sources, err := h.sourceRepo.FindAll()
	if err != nil {
		h.logger.WithCaller().Error("Failed to get log sources", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get log sources"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sources":   sources,
		"last_pass": h.passes.LastPass(),
	})
}
