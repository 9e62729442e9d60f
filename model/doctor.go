package model

import "gorm.io/gorm"

// Doctor is the professional profile attached one-to-one to a doctor-role user.
// WorkloadCount tracks consultations currently assigned or in progress and is
// only ever changed inside the same transaction as the consultation status.
type Doctor struct {
	gorm.Model
	UserID         uint   `json:"user_id" gorm:"column:user_id;uniqueIndex"`
	LicenseNumber  string `json:"license_number" gorm:"column:license_number;uniqueIndex;size:64" example:"MED0012345"`
	Specialty      string `json:"specialty" gorm:"column:specialty" example:"General Practice"`
	Qualifications string `json:"qualifications" gorm:"column:qualifications;type:text"`
	IsActive       bool   `json:"is_active" gorm:"column:is_active;default:true"`
	WorkloadCount  int    `json:"workload_count" gorm:"column:workload_count;default:0"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
