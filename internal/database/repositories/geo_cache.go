package repositories

import (
	"time"

	"github.com/domlin520/Website-analysis/internal/database/models"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GeoCacheRepository persists resolved origins between runs
type GeoCacheRepository interface {
	UpsertBatch(entries []*models.GeoCacheEntry) error
	FindFresh(since time.Time) ([]*models.GeoCacheEntry, error)
	DeleteOlderThan(cutoff time.Time) (int64, error)
	Clear() error
	Count() (int64, error)
}

type geoCacheRepo struct {
	db     *gorm.DB
	logger *pterm.Logger
}

// NewGeoCacheRepository creates a new geo cache repository
func NewGeoCacheRepository(db *gorm.DB, logger *pterm.Logger) GeoCacheRepository {
	return &geoCacheRepo{
		db:     db,
		logger: logger,
	}
}

// UpsertBatch writes entries, replacing rows with the same origin.
// Large batches are split to stay below the SQLite variable limit.
func (r *geoCacheRepo) UpsertBatch(entries []*models.GeoCacheEntry) error {
	if len(entries) == 0 {
		r.logger.Trace("Empty geo cache batch, skipping upsert")
		return nil
	}

	// Stored as UTC so range comparisons on the text column stay ordered
	for _, e := range entries {
		e.ResolvedAt = e.ResolvedAt.UTC()
	}

	const MaxSQLiteVariables = 32766
	const ColumnsPerRecord = 7
	const MaxRecordsPerBatch = MaxSQLiteVariables / ColumnsPerRecord

	for i := 0; i < len(entries); i += MaxRecordsPerBatch {
		end := i + MaxRecordsPerBatch
		if end > len(entries) {
			end = len(entries)
		}

		err := r.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "origin"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "country", "region", "city", "resolved_at", "updated_at"}),
		}).Create(entries[i:end]).Error
		if err != nil {
			r.logger.WithCaller().Error("Failed to upsert geo cache batch",
				r.logger.Args("batch_num", (i/MaxRecordsPerBatch)+1, "count", end-i, "error", err))
			return err
		}
	}

	r.logger.Trace("Upserted geo cache entries", r.logger.Args("count", len(entries)))
	return nil
}

// FindFresh returns entries resolved at or after since
func (r *geoCacheRepo) FindFresh(since time.Time) ([]*models.GeoCacheEntry, error) {
	var entries []*models.GeoCacheEntry
	err := r.db.Where("resolved_at >= ?", since.UTC()).Find(&entries).Error
	return entries, err
}

// DeleteOlderThan removes entries resolved before cutoff and reports how many were deleted
func (r *geoCacheRepo) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := r.db.Where("resolved_at < ?", cutoff.UTC()).Delete(&models.GeoCacheEntry{})
	return result.RowsAffected, result.Error
}

// Clear drops every persisted entry; used when the location database is swapped
func (r *geoCacheRepo) Clear() error {
	return r.db.Exec("DELETE FROM geo_cache").Error
}

func (r *geoCacheRepo) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.GeoCacheEntry{}).Count(&count).Error
	return count, err
}
