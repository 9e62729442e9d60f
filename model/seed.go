package model

import (
	"fmt"

	"gorm.io/gorm"
)

// SeedAdminUser ensures an admin account exists for the given email. The
// caller supplies the already-hashed credential; no plaintext secrets are
// ever stored or hardcoded here.
func SeedAdminUser(db *gorm.DB, email, hashedPassword, salt string) error {
	var existing User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	admin := User{
		Email:           email,
		FirstName:       "System",
		LastName:        "Administrator",
		Role:            RoleAdmin,
		IsEmailVerified: true,
		Password:        hashedPassword,
		PasswordSalt:    salt,
	}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("failed to seed admin user %s: %w", email, err)
	}
	return nil
}

// AllModels lists every persisted entity for migration.
var AllModels = []interface{}{
	&User{},
	&OtpVerification{},
	&Doctor{},
	&Consultation{},
	&MedicalCertificate{},
	&Prescription{},
	&Session{},
	&SecurityLog{},
}
