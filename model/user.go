package model

import "gorm.io/gorm"

// UserRole is the closed set of account roles.
type UserRole string

const (
	RolePatient UserRole = "patient"
	RoleDoctor  UserRole = "doctor"
	RoleAdmin   UserRole = "admin"
)

// Valid reports whether the role is one of the enumerated values.
func (r UserRole) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// User represents an account. Patients authenticate by email verification,
// doctors and admins by password.
type User struct {
	gorm.Model
	Email           string   `json:"email" gorm:"column:email;uniqueIndex;size:191" example:"alice@example.com"`
	FirstName       string   `json:"first_name" gorm:"column:first_name" example:"Alice"`
	LastName        string   `json:"last_name" gorm:"column:last_name" example:"Nguyen"`
	Role            UserRole `json:"role" gorm:"column:role;type:varchar(16);default:patient" example:"patient"`
	DateOfBirth     string   `json:"date_of_birth" gorm:"column:date_of_birth" example:"1990-04-17"`
	MedicareNumber  string   `json:"medicare_number,omitempty" gorm:"column:medicare_number"`
	PhoneNumber     string   `json:"phone_number,omitempty" gorm:"column:phone_number"`
	IsEmailVerified bool     `json:"is_email_verified" gorm:"column:is_email_verified;default:false"`

	// Credential fields, empty for OTP-only patient accounts.
	Password     string `json:"-" gorm:"column:password"`
	PasswordSalt string `json:"-" gorm:"column:password_salt"`

	FailedAttempts int    `json:"-" gorm:"column:failed_attempts;default:0"`
	LockedUntil    *int64 `json:"-" gorm:"column:locked_until"`
}

// FullName joins the name parts for display and documents.
func (u User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
