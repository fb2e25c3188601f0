package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillProfileCounters = "2026-03-02_backfill_profile_counters"

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
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillProfileCounters, apply: backfillProfileCounters},
	}

	for _, migration := range migrations {
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
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillProfileCounters recomputes every profile's dream counters from the
// dreams table. Counters written by older incremental-only builds could drift;
// this resets them to source truth once.
func backfillProfileCounters(db *gorm.DB) error {
	const statement = `
UPDATE profiles SET
  total_dreams = (SELECT COUNT(*) FROM dreams WHERE dreams.user_id = profiles.user_id),
  public_dreams = (SELECT COUNT(*) FROM dreams WHERE dreams.user_id = profiles.user_id AND dreams.public = 1);`
	return db.Exec(statement).Error
}
