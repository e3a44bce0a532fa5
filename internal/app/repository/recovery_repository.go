package repository

import (
	"time"

	"github.com/minjcho/noteum-account/internal/app/model"
	"github.com/minjcho/noteum-account/pkg/logger"
	"gorm.io/gorm"
)

type RecoveryRepository interface {
	// Replace deactivates every active entry for the email and inserts the
	// new entry in one transaction. A concurrent Replace for the same email
	// loses the race at the partial unique index and returns the conflict.
	Replace(entry *model.RecoveryEntry) error
	FindActiveByEmailAndOtp(email, otp string) (*model.RecoveryEntry, error)
	FindActiveByEmailAndSuccessCode(email, successCode string) (*model.RecoveryEntry, error)
	// AttachSuccessCode stores the success code, its generation time and the
	// consumption marker in a single write.
	AttachSuccessCode(id uint, successCode string, generatedAt time.Time) error
	Deactivate(id uint) error
	DeactivateAllByEmail(email string) error
	// DeleteDead removes inactive entries whose window closed before the
	// cutoff. Active rows are never touched.
	DeleteDead(before time.Time) (int64, error)
}

type recoveryRepository struct {
	db *gorm.DB
}

func NewRecoveryRepository(db *gorm.DB) RecoveryRepository {
	return &recoveryRepository{db: db}
}

func (r *recoveryRepository) Replace(entry *model.RecoveryEntry) error {
	logger.Debug("Replacing active recovery entry in database", map[string]interface{}{
		"email": entry.Email,
	})

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.RecoveryEntry{}).
			Where("email = ? AND active = ?", entry.Email, true).
			Update("active", false).Error; err != nil {
			return err
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		logger.Error("Failed to replace recovery entry in database", err, map[string]interface{}{
			"email": entry.Email,
		})
		return err
	}

	logger.Debug("Recovery entry replaced in database", map[string]interface{}{
		"id":    entry.ID,
		"email": entry.Email,
	})
	return nil
}

func (r *recoveryRepository) FindActiveByEmailAndOtp(email, otp string) (*model.RecoveryEntry, error) {
	var entry model.RecoveryEntry
	err := r.db.
		Where("email = ? AND otp = ? AND active = ? AND used_at IS NULL", email, otp, true).
		First(&entry).Error
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

func (r *recoveryRepository) FindActiveByEmailAndSuccessCode(email, successCode string) (*model.RecoveryEntry, error) {
	var entry model.RecoveryEntry
	err := r.db.
		Where("email = ? AND success_code = ? AND active = ?", email, successCode, true).
		First(&entry).Error
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

func (r *recoveryRepository) AttachSuccessCode(id uint, successCode string, generatedAt time.Time) error {
	err := r.db.Model(&model.RecoveryEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"success_code":              successCode,
			"success_code_generated_at": generatedAt,
			"used_at":                   generatedAt,
		}).Error
	if err != nil {
		logger.Error("Failed to attach success code in database", err, map[string]interface{}{
			"id": id,
		})
		return err
	}

	return nil
}

func (r *recoveryRepository) Deactivate(id uint) error {
	logger.Debug("Deactivating recovery entry in database", map[string]interface{}{
		"id": id,
	})

	if err := r.db.Model(&model.RecoveryEntry{}).Where("id = ?", id).
		Update("active", false).Error; err != nil {
		logger.Error("Failed to deactivate recovery entry in database", err, map[string]interface{}{
			"id": id,
		})
		return err
	}

	return nil
}

func (r *recoveryRepository) DeactivateAllByEmail(email string) error {
	logger.Debug("Deactivating all recovery entries for email in database", map[string]interface{}{
		"email": email,
	})

	if err := r.db.Model(&model.RecoveryEntry{}).
		Where("email = ? AND active = ?", email, true).
		Update("active", false).Error; err != nil {
		logger.Error("Failed to deactivate recovery entries in database", err, map[string]interface{}{
			"email": email,
		})
		return err
	}

	return nil
}

func (r *recoveryRepository) DeleteDead(before time.Time) (int64, error) {
	result := r.db.
		Where("active = ? AND expires_at < ?", false, before).
		Delete(&model.RecoveryEntry{})
	if result.Error != nil {
		logger.Error("Failed to delete dead recovery entries from database", result.Error, nil)
		return 0, result.Error
	}

	logger.Debug("Dead recovery entries deleted from database", map[string]interface{}{
		"count": result.RowsAffected,
	})
	return result.RowsAffected, nil
}
