package database

import (
	"fmt"

	"github.com/domlin520/Website-analysis/internal/database/models"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// Indexes that AutoMigrate cannot express
var schemaIndexes = []struct {
	name, sql string
}{
	// Warm start loads resolved entries younger than the TTL
	{"idx_geo_cache_status_resolved", `CREATE INDEX IF NOT EXISTS idx_geo_cache_status_resolved ON geo_cache(status, resolved_at DESC)`},
	{"idx_log_sources_last_read", `CREATE INDEX IF NOT EXISTS idx_log_sources_last_read ON log_sources(last_read_at DESC)`},
}

// migrate creates or updates every table the application owns, then its extra indexes
func migrate(db *gorm.DB, logger *pterm.Logger) error {
	if err := db.AutoMigrate(&models.LogSource{}, &models.GeoCacheEntry{}); err != nil {
		return err
	}

	for _, idx := range schemaIndexes {
		if err := db.Exec(idx.sql).Error; err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	logger.Trace("Schema verified", logger.Args("indexes", len(schemaIndexes)))
	return nil
}

// checkJournalMode warns when the store is not in WAL mode; in-memory databases report "memory"
func checkJournalMode(db *gorm.DB, logger *pterm.Logger) {
	var mode string
	if err := db.Raw("PRAGMA journal_mode").Scan(&mode).Error; err != nil {
		logger.Warn("Failed to check journal mode", logger.Args("error", err))
		return
	}
	if mode != "wal" && mode != "memory" {
		logger.Warn("Database not in WAL mode", logger.Args("mode", mode))
	}
}
