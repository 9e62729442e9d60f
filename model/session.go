package model

import (
	"time"

	"gorm.io/gorm"
)

// Session is a login session record. The token is mirrored into Redis for
// fast validation; the database row is authoritative.
type Session struct {
	gorm.Model
	UserID       uint      `json:"user_id" gorm:"column:user_id;index"`
	SessionToken string    `json:"session_token" gorm:"column:session_token;uniqueIndex;size:512"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"column:expires_at"`
	ClientIP     string    `json:"client_ip" gorm:"column:client_ip;size:45"`
	Browser      string    `json:"browser" gorm:"column:browser;size:512"`
}
