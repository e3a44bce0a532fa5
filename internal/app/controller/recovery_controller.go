package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/minjcho/noteum-account/internal/app/service"
	apperrors "github.com/minjcho/noteum-account/internal/errors"
	"github.com/minjcho/noteum-account/internal/middleware"
)

type RecoveryController struct {
	recoveryService service.RecoveryService
}

func NewRecoveryController(recoveryService service.RecoveryService) *RecoveryController {
	return &RecoveryController{
		recoveryService: recoveryService,
	}
}

type SendOtpRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type VerifyOtpRequest struct {
	Email string `json:"email" binding:"required,email"`
	Otp   string `json:"otp" binding:"required,numeric"`
}

type ResetPasswordRequest struct {
	Email           string `json:"email" binding:"required,email"`
	SuccessCode     string `json:"success_code" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// SendOtp issues a recovery OTP and queues it for email delivery
// POST /api/v1/auth/recovery/send-otp
func (ctrl *RecoveryController) SendOtp(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req SendOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid OTP request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidFormat, "A valid email address is required")
		return
	}

	issuance, err := ctrl.recoveryService.RequestOtp(req.Email)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			log.Warn("OTP requested for unknown email", map[string]interface{}{
				"email": req.Email,
			})
			apperrors.NotFound(c, apperrors.ResourceNotFound, "No account exists for this email")
			return
		}
		log.Error("Failed to issue OTP", err, map[string]interface{}{
			"email": req.Email,
		})
		apperrors.InternalError(c, "Failed to send the verification code")
		return
	}

	log.Info("OTP issued and queued for delivery", map[string]interface{}{
		"email":      req.Email,
		"expires_at": issuance.ExpiresAt,
	})

	c.JSON(http.StatusOK, gin.H{
		"message":    "A verification code has been sent to your email",
		"expires_at": issuance.ExpiresAt,
	})
}

// VerifyOtp exchanges a valid OTP for a success code
// POST /api/v1/auth/recovery/verify-otp
func (ctrl *RecoveryController) VerifyOtp(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req VerifyOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid OTP verification request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Email and verification code are required")
		return
	}

	successCode, err := ctrl.recoveryService.VerifyOtp(req.Email, req.Otp)
	if err != nil {
		if errors.Is(err, service.ErrOtpExpired) {
			log.Warn("OTP verification failed: expired", map[string]interface{}{
				"email": req.Email,
			})
			apperrors.BadRequest(c, apperrors.RecoveryOtpExpired, "This verification code has expired. Please request a new one")
			return
		}
		if errors.Is(err, service.ErrInvalidOtp) {
			log.Warn("OTP verification failed: invalid", map[string]interface{}{
				"email": req.Email,
			})
			apperrors.BadRequest(c, apperrors.RecoveryOtpInvalid, "Invalid or inactive verification code")
			return
		}
		log.Error("Failed to verify OTP", err, map[string]interface{}{
			"email": req.Email,
		})
		apperrors.InternalError(c, "Failed to verify the code")
		return
	}

	log.Info("OTP verified successfully", map[string]interface{}{
		"email": req.Email,
	})

	c.JSON(http.StatusOK, gin.H{
		"message":      "Code verified. You can now reset your password",
		"success_code": successCode,
	})
}

// ResetPassword commits the new password using a success code
// POST /api/v1/auth/recovery/reset
func (ctrl *RecoveryController) ResetPassword(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid password reset request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid password reset details")
		return
	}

	user, tokens, err := ctrl.recoveryService.ResetPassword(
		req.Email,
		req.SuccessCode,
		req.NewPassword,
		req.ConfirmPassword,
	)
	if err != nil {
		if errors.Is(err, service.ErrPasswordMismatch) {
			log.Warn("Password reset failed: confirmation mismatch", map[string]interface{}{
				"email": req.Email,
			})
			apperrors.BadRequest(c, apperrors.AuthPasswordMismatch, "Password confirmation does not match")
			return
		}
		if errors.Is(err, service.ErrInvalidSuccessCode) || errors.Is(err, service.ErrUserNotFound) {
			log.Warn("Password reset failed: invalid or expired success code", map[string]interface{}{
				"email": req.Email,
			})
			apperrors.BadRequest(c, apperrors.RecoverySuccessCodeInvalid, "Invalid or expired success code")
			return
		}
		log.Error("Failed to reset password", err, map[string]interface{}{
			"email": req.Email,
		})
		apperrors.InternalError(c, "Failed to reset the password")
		return
	}

	log.Info("Password reset successful", map[string]interface{}{
		"user_id": user.ID,
		"email":   user.Email,
	})

	c.JSON(http.StatusOK, gin.H{
		"message": "Password reset successful",
		"user": gin.H{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		},
		"tokens": tokens,
	})
}
