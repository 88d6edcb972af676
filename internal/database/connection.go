package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pterm/pterm"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config describes the SQLite store and its connection pool
type Config struct {
	Path         string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
}

var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
	"foreign_keys(ON)",
}

// queryLogger routes gorm output through pterm: slow queries at debug, the rest at trace
type queryLogger struct {
	logger *pterm.Logger
	slow   time.Duration
	level  gormlogger.LogLevel
}

func newQueryLogger(logger *pterm.Logger, slow time.Duration) *queryLogger {
	return &queryLogger{logger: logger, slow: slow, level: gormlogger.Warn}
}

func (l *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *queryLogger) Info(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.logger.Info(msg, l.logger.Args("data", data))
	}
}

func (l *queryLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.logger.Warn(msg, l.logger.Args("data", data))
	}
}

func (l *queryLogger) Error(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.logger.Error(msg, l.logger.Args("data", data))
	}
}

func (l *queryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		query, _ := fc()
		l.logger.Error("Database query failed", l.logger.Args("error", err, "elapsed", elapsed, "sql", query))
	case elapsed >= l.slow:
		query, rows := fc()
		l.logger.Debug("Slow query", l.logger.Args("elapsed", elapsed, "rows", rows, "sql", query))
	case l.level >= gormlogger.Info:
		query, rows := fc()
		l.logger.Trace("Query", l.logger.Args("elapsed", elapsed, "rows", rows, "sql", query))
	}
}

// NewConnection opens the SQLite store used for geo cache persistence and source bookkeeping,
// migrates its schema and applies the pool limits from cfg.
func NewConnection(cfg *Config, logger *pterm.Logger) (*gorm.DB, error) {
	if !strings.Contains(cfg.Path, ":memory:") {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	dsn := cfg.Path + "?_pragma=" + strings.Join(sqlitePragmas, "&_pragma=")

	logger.Debug("Opening database", logger.Args("path", cfg.Path))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt: true,
		Logger:      newQueryLogger(logger, 100*time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database instance: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLife > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLife)
	}

	if err := migrate(db, logger); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	checkJournalMode(db, logger)

	logger.Info("Database ready", logger.Args("path", cfg.Path, "max_open_conns", cfg.MaxOpenConns))
	return db, nil
}

// Close releases the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
