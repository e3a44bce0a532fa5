package repository

import (
	"testing"
	"time"

	"github.com/minjcho/noteum-account/internal/app/model"
	"github.com/minjcho/noteum-account/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupRecoveryRepoTest(t *testing.T) (RecoveryRepository, *gorm.DB) {
	testDB, err := db.SetupTestDB(t)
	require.NoError(t, err)

	return NewRecoveryRepository(testDB), testDB
}

func newTestEntry(email, otp string, expiresAt time.Time) *model.RecoveryEntry {
	return &model.RecoveryEntry{
		Email:     email,
		Otp:       otp,
		Active:    true,
		ExpiresAt: expiresAt,
	}
}

func TestRecoveryRepository_Replace(t *testing.T) {
	repo, testDB := setupRecoveryRepoTest(t)
	email := "user@example.com"
	expiry := time.Now().UTC().Add(15 * time.Minute)

	first := newTestEntry(email, "111111", expiry)
	require.NoError(t, repo.Replace(first))
	assert.NotZero(t, first.ID)

	second := newTestEntry(email, "222222", expiry)
	require.NoError(t, repo.Replace(second))

	// The first entry must have been superseded
	var reloaded model.RecoveryEntry
	require.NoError(t, testDB.First(&reloaded, first.ID).Error)
	assert.False(t, reloaded.Active)

	var activeCount int64
	require.NoError(t, testDB.Model(&model.RecoveryEntry{}).
		Where("email = ? AND active = ?", email, true).
		Count(&activeCount).Error)
	assert.Equal(t, int64(1), activeCount)
}

func TestRecoveryRepository_ActiveUniqueIndex(t *testing.T) {
	repo, testDB := setupRecoveryRepoTest(t)
	email := "user@example.com"
	expiry := time.Now().UTC().Add(15 * time.Minute)

	require.NoError(t, repo.Replace(newTestEntry(email, "111111", expiry)))

	// Inserting a second active row directly, without the deactivate step,
	// must be rejected by the partial unique index
	err := testDB.Create(newTestEntry(email, "222222", expiry)).Error
	require.Error(t, err)

	// A different email is unaffected
	require.NoError(t, testDB.Create(newTestEntry("other@example.com", "333333", expiry)).Error)
}

func TestRecoveryRepository_FindActiveByEmailAndOtp(t *testing.T) {
	repo, testDB := setupRecoveryRepoTest(t)
	email := "user@example.com"
	expiry := time.Now().UTC().Add(15 * time.Minute)

	entry := newTestEntry(email, "123456", expiry)
	require.NoError(t, repo.Replace(entry))

	t.Run("Matching active entry", func(t *testing.T) {
		found, err := repo.FindActiveByEmailAndOtp(email, "123456")
		require.NoError(t, err)
		assert.Equal(t, entry.ID, found.ID)
	})

	t.Run("Wrong code", func(t *testing.T) {
		_, err := repo.FindActiveByEmailAndOtp(email, "654321")
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("Wrong email", func(t *testing.T) {
		_, err := repo.FindActiveByEmailAndOtp("other@example.com", "123456")
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("Consumed entry is invisible", func(t *testing.T) {
		now := time.Now().UTC()
		require.NoError(t, testDB.Model(&model.RecoveryEntry{}).
			Where("id = ?", entry.ID).
			Update("used_at", now).Error)

		_, err := repo.FindActiveByEmailAndOtp(email, "123456")
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("Inactive entry is invisible", func(t *testing.T) {
		require.NoError(t, testDB.Model(&model.RecoveryEntry{}).
			Where("id = ?", entry.ID).
			Updates(map[string]interface{}{"used_at": nil, "active": false}).Error)

		_, err := repo.FindActiveByEmailAndOtp(email, "123456")
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}

func TestRecoveryRepository_AttachSuccessCode(t *testing.T) {
	repo, testDB := setupRecoveryRepoTest(t)
	email := "user@example.com"

	entry := newTestEntry(email, "123456", time.Now().UTC().Add(15*time.Minute))
	require.NoError(t, repo.Replace(entry))

	now := time.Now().UTC()
	require.NoError(t, repo.AttachSuccessCode(entry.ID, "opaque-success-code", now))

	var reloaded model.RecoveryEntry
	require.NoError(t, testDB.First(&reloaded, entry.ID).Error)
	assert.Equal(t, "opaque-success-code", reloaded.SuccessCode)
	require.NotNil(t, reloaded.SuccessCodeGeneratedAt)
	require.NotNil(t, reloaded.UsedAt)
	assert.True(t, reloaded.Active)

	// The same code must now be findable for the reset step
	found, err := repo.FindActiveByEmailAndSuccessCode(email, "opaque-success-code")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, found.ID)

	// But the OTP is consumed
	_, err = repo.FindActiveByEmailAndOtp(email, "123456")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRecoveryRepository_Deactivate(t *testing.T) {
	repo, testDB := setupRecoveryRepoTest(t)

	entry := newTestEntry("user@example.com", "123456", time.Now().UTC().Add(15*time.Minute))
	require.NoError(t, repo.Replace(entry))

	require.NoError(t, repo.Deactivate(entry.ID))

	var reloaded model.RecoveryEntry
	require.NoError(t, testDB.First(&reloaded, entry.ID).Error)
	assert.False(t, reloaded.Active)
}

func TestRecoveryRepository_DeleteDead(t *testing.T) {
	repo, testDB := setupRecoveryRepoTest(t)
	now := time.Now().UTC()
	cutoff := now.Add(-30 * 24 * time.Hour)

	// Dead and past the grace period: pruned
	old := &model.RecoveryEntry{
		Email:     "old@example.com",
		Otp:       "111111",
		Active:    false,
		ExpiresAt: cutoff.Add(-time.Hour),
	}
	require.NoError(t, testDB.Create(old).Error)

	// Dead but recent: kept
	recent := &model.RecoveryEntry{
		Email:     "recent@example.com",
		Otp:       "222222",
		Active:    false,
		ExpiresAt: now.Add(-time.Hour),
	}
	require.NoError(t, testDB.Create(recent).Error)

	// Active rows are never touched, even with a stale expiry
	active := &model.RecoveryEntry{
		Email:     "active@example.com",
		Otp:       "333333",
		Active:    true,
		ExpiresAt: cutoff.Add(-time.Hour),
	}
	require.NoError(t, testDB.Create(active).Error)

	count, err := repo.DeleteDead(cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var remaining []model.RecoveryEntry
	require.NoError(t, testDB.Find(&remaining).Error)
	require.Len(t, remaining, 2)
	for _, e := range remaining {
		assert.NotEqual(t, old.ID, e.ID)
	}
}
