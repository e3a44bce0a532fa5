package model

import (
	"time"
)

// RecoveryEntry is one credential-recovery attempt for an email address.
//
// At most one entry per email is Active at any instant; a partial unique
// index on (email) WHERE active backs that invariant (see db.Migrate).
// Entries are never resurrected: a superseding request, a successful reset,
// or retention pruning is the only way out of Active.
type RecoveryEntry struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Email string `gorm:"size:255;not null;index" json:"email"`
	// Otp is the numeric one-time code mailed to the user. Not serialized.
	Otp    string `gorm:"size:16;not null" json:"-"`
	Active bool   `gorm:"not null;default:false" json:"active"`
	// SuccessCode is minted on successful verification and authorizes the
	// final password change. Not serialized.
	SuccessCode            string     `gorm:"size:255;index" json:"-"`
	SuccessCodeGeneratedAt *time.Time `json:"success_code_generated_at,omitempty"`
	// UsedAt marks the OTP consumed. Written in the same update that stores
	// the success code, so a verified OTP can never mint a second one.
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
}

func (RecoveryEntry) TableName() string {
	return "recovery_entries"
}

// Expired reports whether the OTP window has closed at the given instant
func (e *RecoveryEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
