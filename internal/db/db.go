package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options controls how the SQLite run store is opened.
type Options struct {
	Path string
	// Logger receives slow-query and error output from Gorm.
	Logger       *logrus.Logger
	BusyTimeout  time.Duration
	MaxOpenConns int
	SlowQuery    time.Duration
}

// Open establishes a SQLite connection using Gorm, creating the parent directory
// of Path when needed.
func Open(opts Options) (*gorm.DB, error) {
	if opts.Path == "" {
		return nil, eris.New("database path is required")
	}

	if dir := filepath.Dir(opts.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "creating database directory: %s", dir)
		}
	}

	if opts.BusyTimeout == 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.SlowQuery == 0 {
		opts.SlowQuery = 500 * time.Millisecond
	}

	busyTimeoutMillis := int(opts.BusyTimeout / time.Millisecond)
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", opts.Path, busyTimeoutMillis)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLogger(opts)})
	if err != nil {
		return nil, eris.Wrap(err, "opening sqlite database")
	}

	if opts.MaxOpenConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, eris.Wrap(err, "retrieving sql.DB from gorm")
		}
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMillis)).Error; err != nil {
		return nil, eris.Wrap(err, "configuring busy timeout pragma")
	}

	if err := db.Exec("PRAGMA journal_mode = WAL;").Error; err != nil {
		return nil, eris.Wrap(err, "setting journal mode to WAL")
	}

	return db, nil
}

func gormLogger(opts Options) logger.Interface {
	if opts.Logger == nil {
		return logger.Default.LogMode(logger.Warn)
	}

	return logger.New(opts.Logger, logger.Config{
		SlowThreshold:             opts.SlowQuery,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Ping verifies the connection is usable.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := SQLDB(db)
	if err != nil {
		return err
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return eris.Wrap(err, "pinging database")
	}

	return nil
}

// Close releases the underlying database resources.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return eris.Wrap(err, "retrieving sql.DB for close")
	}

	if err := sqlDB.Close(); err != nil {
		return eris.Wrap(err, "closing database connection")
	}

	return nil
}

// SQLDB exposes the underlying *sql.DB.
func SQLDB(db *gorm.DB) (*sql.DB, error) {
	if db == nil {
		return nil, eris.New("gorm.DB is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, eris.Wrap(err, "retrieving sql.DB")
	}

	return sqlDB, nil
}
