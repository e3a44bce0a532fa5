package db

import (
	"github.com/minjcho/noteum-account/internal/app/model"
	"github.com/minjcho/noteum-account/pkg/logger"
	"gorm.io/gorm"
)

// Migrate runs database migrations
func Migrate() error {
	logger.Info("Running database migrations...")

	models := []interface{}{
		&model.User{},
		&model.RecoveryEntry{},
	}

	if err := DB.AutoMigrate(models...); err != nil {
		logger.Error("Failed to run migrations", err)
		return err
	}

	if err := createRecoveryIndexes(DB); err != nil {
		logger.Error("Failed to create recovery indexes", err)
		return err
	}

	logger.Info("Database migrations completed successfully", map[string]interface{}{
		"models_count": len(models),
	})
	return nil
}

// createRecoveryIndexes adds the partial unique index that enforces the
// at-most-one-active-entry-per-email invariant at the store. Concurrent
// issuance for the same email then surfaces as a unique violation instead
// of a second active row; the issuer retries on conflict.
// The WHERE-clause syntax is valid on both postgres and sqlite.
func createRecoveryIndexes(db *gorm.DB) error {
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_recovery_entries_active_email
		 ON recovery_entries (email) WHERE active`,
	).Error
}
