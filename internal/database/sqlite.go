package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config describes how to open a persisted store.
type Config struct {
	// Path is the SQLite database path.
	Path string
	// Models are the record types whose tables AutoMigrate maintains.
	Models []any
	Logger *zap.Logger
}

// Open establishes a SQLite connection, migrates the table shape, applies
// the named migrations and verifies the content index, rebuilding it when
// the integrity probe fails.
func Open(cfg Config) (*gorm.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	models := append([]any{}, cfg.Models...)
	models = append(models, &migrationRecord{})
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, cfg.Logger); err != nil {
		return nil, err
	}

	if err := CheckContentIndex(db); err != nil {
		if cfg.Logger != nil {
			cfg.Logger.Warn("content index integrity probe failed, rebuilding", zap.Error(err))
		}
		if err := RebuildContentIndex(db); err != nil {
			return nil, err
		}
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("database initialized", zap.String("path", cfg.Path))
	}

	return db, nil
}

// OpenReplica opens a read handle on an already-migrated sibling replica
// for a scratch merge. No migrations run against it.
func OpenReplica(path string) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("replica path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Close releases the underlying connection for a handle returned by Open
// or OpenReplica.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
