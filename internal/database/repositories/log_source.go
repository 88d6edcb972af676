package repositories

import (
	"errors"
	"time"

	"github.com/domlin520/Website-analysis/internal/database/models"

	"gorm.io/gorm"
)

// SourceTracking is the per-file outcome of one ingestion pass
type SourceTracking struct {
	FileSize      int64
	LinesRead     int64
	LinesParsed   int64
	LinesRejected int64
	PassID        string
}

type LogSourceRepository interface {
	Create(source *models.LogSource) error
	FindByName(name string) (*models.LogSource, error)
	FindAll() ([]*models.LogSource, error)
	Update(source *models.LogSource) error
	EnsureSource(name, path, parserType string) error
	UpdateTracking(name string, tracking SourceTracking) error
}

type logSourceRepo struct {
	db *gorm.DB
}

func NewLogSourceRepository(db *gorm.DB) LogSourceRepository {
	return &logSourceRepo{db: db}
}

func (r *logSourceRepo) Create(source *models.LogSource) error {
	return r.db.Create(source).Error
}

func (r *logSourceRepo) FindByName(name string) (*models.LogSource, error) {
	var source models.LogSource
	err := r.db.Where("name = ?", name).First(&source).Error
	if err != nil {
		return nil, err
	}
	return &source, nil
}

func (r *logSourceRepo) FindAll() ([]*models.LogSource, error) {
	var sources []*models.LogSource
	err := r.db.Order("name").Find(&sources).Error
	return sources, err
}

func (r *logSourceRepo) Update(source *models.LogSource) error {
	return r.db.Save(source).Error
}

// EnsureSource registers a source the first time it is seen and leaves existing rows untouched
func (r *logSourceRepo) EnsureSource(name, path, parserType string) error {
	_, err := r.FindByName(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return r.Create(&models.LogSource{Name: name, Path: path, ParserType: parserType})
}

func (r *logSourceRepo) UpdateTracking(name string, tracking SourceTracking) error {
	now := time.Now()
	// Use Exec for better performance with direct SQL execution
	return r.db.Exec(
		"UPDATE log_sources SET file_size = ?, lines_read = ?, lines_parsed = ?, lines_rejected = ?, last_pass_id = ?, last_read_at = ?, updated_at = ? WHERE name = ?",
		tracking.FileSize, tracking.LinesRead, tracking.LinesParsed, tracking.LinesRejected, tracking.PassID, now, now, name,
	).Error
}
