package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrMigrationMissing indicates that the store records an applied
// migration this build does not define. Opening such a store is fatal:
// it was written by a newer schema.
var ErrMigrationMissing = errors.New("database: migration definition missing")

const (
	migrationCreateContentIndex  = "2025-06-20_create_content_index"
	migrationRebuildContentIndex = "2026-01-12_rebuild_content_index"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
	// post runs after the migration is recorded, e.g. an index rebuild
	// when the shape of indexed content changed.
	post func(*gorm.DB) error
}

func migrations() []migrationDefinition {
	return []migrationDefinition{
		{name: migrationCreateContentIndex, apply: createContentIndex, post: RebuildContentIndex},
		{name: migrationRebuildContentIndex, apply: noOpMigration, post: RebuildContentIndex},
	}
}

func noOpMigration(*gorm.DB) error {
	return nil
}

// applyMigrations runs every unapplied migration in order. Re-running a
// fully-applied set is a no-op.
func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	defined := migrations()

	known := make(map[string]struct{}, len(defined))
	for _, migration := range defined {
		known[migration.name] = struct{}{}
	}
	var applied []migrationRecord
	if err := db.Find(&applied).Error; err != nil {
		return err
	}
	for _, record := range applied {
		if _, ok := known[record.Name]; !ok {
			return errors.Join(ErrMigrationMissing, errors.New(record.Name))
		}
	}

	for _, migration := range defined {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if migration.post != nil {
			if err := migration.post(db); err != nil {
				return err
			}
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}
