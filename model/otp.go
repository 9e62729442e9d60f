package model

import (
	"time"

	"gorm.io/gorm"
)

// OtpVerification is a short-lived email verification code. A code is usable
// only while unexpired and unverified; issuing a new code for the same email
// supersedes all earlier ones.
type OtpVerification struct {
	gorm.Model
	Email     string    `json:"email" gorm:"column:email;index;size:191"`
	Code      string    `json:"-" gorm:"column:code;size:6"`
	ExpiresAt time.Time `json:"expires_at" gorm:"column:expires_at"`
	Verified  bool      `json:"verified" gorm:"column:verified;default:false"`
}

// Expired reports whether the code's validity window has passed.
func (o OtpVerification) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// Usable reports whether the code can still be redeemed.
func (o OtpVerification) Usable(now time.Time) bool {
	return !o.Verified && !o.Expired(now)
}
