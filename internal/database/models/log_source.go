package models

import (
	"time"
)

// LogSource tracks one configured log file across ingestion passes
type LogSource struct {
	Name          string     `gorm:"primaryKey" json:"name"`
	Path          string     `gorm:"not null" json:"path"`
	ParserType    string     `gorm:"not null;index" json:"parser_type"`
	FileSize      int64      `gorm:"default:0" json:"file_size"`
	LinesRead     int64      `gorm:"default:0" json:"lines_read"`
	LinesParsed   int64      `gorm:"default:0" json:"lines_parsed"`
	LinesRejected int64      `gorm:"default:0" json:"lines_rejected"`
	LastPassID    string     `json:"last_pass_id"` // Ingestion pass that last read this file
	LastReadAt    *time.Time `json:"last_read_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (LogSource) TableName() string {
	return "log_sources"
}
