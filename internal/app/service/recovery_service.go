package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/minjcho/noteum-account/config"
	"github.com/minjcho/noteum-account/internal/app/model"
	"github.com/minjcho/noteum-account/internal/app/repository"
	"github.com/minjcho/noteum-account/internal/dispatch"
	apperrors "github.com/minjcho/noteum-account/internal/errors"
	"github.com/minjcho/noteum-account/pkg/logger"
	"github.com/minjcho/noteum-account/pkg/util"
	"gorm.io/gorm"
)

var (
	ErrInvalidOtp         = errors.New("invalid or inactive code")
	ErrOtpExpired         = errors.New("code has expired")
	ErrInvalidSuccessCode = errors.New("invalid or expired success code")
	ErrPasswordMismatch   = errors.New("password confirmation does not match")
)

// OtpIssuance is what the caller gets back from a successful OTP request.
// The code itself goes only to the mail queue and the response to this
// caller; it is never written to logs.
type OtpIssuance struct {
	Otp       string
	ExpiresAt time.Time
}

// RecoveryService drives the credential-recovery state machine:
// OTP issued -> OTP verified (success code held) -> password reset (terminal).
// Every transition is a storage write; a failed validation leaves the
// record untouched and the client must retry from its current state.
type RecoveryService interface {
	RequestOtp(email string) (*OtpIssuance, error)
	VerifyOtp(email, otp string) (string, error)
	ResetPassword(email, successCode, newPassword, confirmPassword string) (*model.User, *util.TokenPair, error)
}

type recoveryService struct {
	recoveryRepo repository.RecoveryRepository
	userRepo     repository.UserRepository
	dispatcher   dispatch.EmailDispatcher
	policy       config.RecoveryConfig
	jwt          config.JWTConfig
}

func NewRecoveryService(
	recoveryRepo repository.RecoveryRepository,
	userRepo repository.UserRepository,
	dispatcher dispatch.EmailDispatcher,
	policy config.RecoveryConfig,
	jwtCfg config.JWTConfig,
) RecoveryService {
	return &recoveryService{
		recoveryRepo: recoveryRepo,
		userRepo:     userRepo,
		dispatcher:   dispatcher,
		policy:       policy,
		jwt:          jwtCfg,
	}
}

func (s *recoveryService) RequestOtp(email string) (*OtpIssuance, error) {
	logger.Info("Processing OTP request", map[string]interface{}{
		"email": email,
	})

	if _, err := s.userRepo.FindByEmail(email); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("OTP requested for unknown email", map[string]interface{}{
				"email": email,
			})
			return nil, ErrUserNotFound
		}
		logger.Error("Failed to look up user for OTP request", err, map[string]interface{}{
			"email": email,
		})
		return nil, err
	}

	otp, err := util.GenerateNumericCode(s.policy.OtpLength)
	if err != nil {
		logger.Error("Failed to generate OTP", err, map[string]interface{}{
			"email": email,
		})
		return nil, err
	}

	now := time.Now().UTC()
	entry := &model.RecoveryEntry{
		Email:     email,
		Otp:       otp,
		Active:    true,
		ExpiresAt: now.Add(s.policy.OtpTTL),
	}

	// Replace deactivates prior entries and inserts the new one in one
	// transaction. Two concurrent issuances for the same email can still
	// both pass the deactivate step; the partial unique index on
	// (email) WHERE active rejects the loser, which retries once and
	// supersedes the winner. Either way exactly one entry stays active.
	if err := s.recoveryRepo.Replace(entry); err != nil {
		if !apperrors.IsUniqueViolation(err) {
			return nil, err
		}
		logger.Warn("Concurrent OTP issuance detected, retrying", map[string]interface{}{
			"email": email,
		})
		if err := s.recoveryRepo.Replace(entry); err != nil {
			return nil, err
		}
	}

	// Hand-off only: delivery, templates and retries belong to the mail
	// worker. The inbound request must not wait on delivery, and a
	// cancelled request must not abandon a job half-enqueued.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.dispatcher.Enqueue(ctx, dispatch.OtpMessage{
		Email:      email,
		Otp:        otp,
		ExpiresAt:  entry.ExpiresAt,
		EnqueuedAt: now,
	}); err != nil {
		logger.Error("Failed to enqueue OTP mail job", err, map[string]interface{}{
			"email": email,
		})
		return nil, err
	}

	logger.Info("OTP issued", map[string]interface{}{
		"email":      email,
		"expires_at": entry.ExpiresAt,
	})

	return &OtpIssuance{
		Otp:       otp,
		ExpiresAt: entry.ExpiresAt,
	}, nil
}

func (s *recoveryService) VerifyOtp(email, otp string) (string, error) {
	logger.Info("Processing OTP verification", map[string]interface{}{
		"email": email,
	})

	entry, err := s.recoveryRepo.FindActiveByEmailAndOtp(email, otp)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Wrong code, superseded entry and consumed code all collapse
			// into the same answer so this endpoint is not an oracle.
			logger.Warn("OTP verification failed: no matching active entry", map[string]interface{}{
				"email": email,
			})
			return "", ErrInvalidOtp
		}
		logger.Error("Failed to look up recovery entry", err, map[string]interface{}{
			"email": email,
		})
		return "", err
	}

	now := time.Now().UTC()
	if entry.Expired(now) {
		logger.Warn("OTP verification failed: code expired", map[string]interface{}{
			"email":      email,
			"expires_at": entry.ExpiresAt,
		})
		return "", ErrOtpExpired
	}

	successCode, err := util.GenerateOpaqueCode(s.policy.SuccessCodeBytes)
	if err != nil {
		logger.Error("Failed to generate success code", err, map[string]interface{}{
			"email": email,
		})
		return "", err
	}

	// Success code and consumption marker land in one write: once a code
	// has been minted for this OTP, re-verifying the same OTP cannot mint
	// a second one. The entry stays active so the reset step can find it.
	if err := s.recoveryRepo.AttachSuccessCode(entry.ID, successCode, now); err != nil {
		return "", err
	}

	logger.Info("OTP verified, success code issued", map[string]interface{}{
		"email": email,
	})

	return successCode, nil
}

func (s *recoveryService) ResetPassword(email, successCode, newPassword, confirmPassword string) (*model.User, *util.TokenPair, error) {
	logger.Info("Processing password reset", map[string]interface{}{
		"email": email,
	})

	// Checked before any storage access
	if subtle.ConstantTimeCompare([]byte(newPassword), []byte(confirmPassword)) != 1 {
		logger.Warn("Password reset failed: confirmation mismatch", map[string]interface{}{
			"email": email,
		})
		return nil, nil, ErrPasswordMismatch
	}

	entry, err := s.recoveryRepo.FindActiveByEmailAndSuccessCode(email, successCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Password reset failed: no matching success code", map[string]interface{}{
				"email": email,
			})
			return nil, nil, ErrInvalidSuccessCode
		}
		logger.Error("Failed to look up recovery entry for reset", err, map[string]interface{}{
			"email": email,
		})
		return nil, nil, err
	}

	// The success code carries its own TTL independent of the OTP window
	now := time.Now().UTC()
	if entry.SuccessCodeGeneratedAt == nil ||
		now.After(entry.SuccessCodeGeneratedAt.Add(s.policy.SuccessCodeTTL)) {
		logger.Warn("Password reset failed: success code expired", map[string]interface{}{
			"email": email,
		})
		return nil, nil, ErrInvalidSuccessCode
	}

	user, err := s.userRepo.FindByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Password reset failed: user no longer exists", map[string]interface{}{
				"email": email,
			})
			return nil, nil, ErrUserNotFound
		}
		logger.Error("Failed to look up user for reset", err, map[string]interface{}{
			"email": email,
		})
		return nil, nil, err
	}

	hashedPassword, err := util.HashPassword(newPassword)
	if err != nil {
		logger.Error("Failed to hash new password", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return nil, nil, err
	}

	user.PasswordHash = hashedPassword
	if err := s.userRepo.Update(user); err != nil {
		logger.Error("Failed to update user password", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return nil, nil, err
	}

	// Terminal state. A failure here leaves a stale active entry behind;
	// the password change already committed, so we log and move on rather
	// than failing the request. The entry dies at its own expiry anyway.
	if err := s.recoveryRepo.Deactivate(entry.ID); err != nil {
		logger.Error("Failed to deactivate recovery entry after reset", err, map[string]interface{}{
			"entry_id": entry.ID,
		})
	}

	tokens, err := util.GenerateTokenPair(
		user.ID,
		user.Email,
		user.Name,
		string(user.Role),
		s.jwt.Secret,
		s.jwt.AccessTokenExpiry,
		s.jwt.RefreshTokenExpiry,
	)
	if err != nil {
		logger.Error("Failed to generate tokens after reset", err, map[string]interface{}{
			"user_id": user.ID,
		})
		return nil, nil, err
	}

	logger.Info("Password reset successful", map[string]interface{}{
		"user_id": user.ID,
		"email":   user.Email,
	})

	return user, tokens, nil
}
