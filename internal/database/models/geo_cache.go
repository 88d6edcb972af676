package models

import (
	"time"
)

// GeoCacheEntry persists one resolved origin so the in-memory location cache can be warm-started
type GeoCacheEntry struct {
	Origin     string    `gorm:"primaryKey;size:64"`
	Status     string    `gorm:"not null;size:16"` // resolved, unknown
	Country    string
	Region     string
	City       string
	ResolvedAt time.Time `gorm:"not null;index:idx_geo_cache_resolved_at"`
	UpdatedAt  time.Time
}

func (GeoCacheEntry) TableName() string {
	return "geo_cache"
}
