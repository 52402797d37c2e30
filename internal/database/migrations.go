package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/ambassador/internal/submissions"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillReviewedFlags = "2026-09-20_backfill_reviewed_flags"

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
		{name: migrationBackfillReviewedFlags, apply: backfillReviewedFlags},
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

// Rows imported with an awarded value but no review flag count as reviewed.
func backfillReviewedFlags(db *gorm.DB) error {
	return db.Model(&submissions.Submission{}).
		Where("awarded_points IS NOT NULL AND reviewed = ?", false).
		Update("reviewed", true).Error
}
