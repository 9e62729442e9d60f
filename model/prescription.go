package model

import (
	"time"

	"gorm.io/gorm"
)

// Prescription is issued at most once per completed prescription consultation.
// Like MedicalCertificate, rows are immutable after creation except for the
// generated document path.
type Prescription struct {
	gorm.Model
	ConsultationID uint      `json:"consultation_id" gorm:"column:consultation_id;uniqueIndex;not null"`
	PatientID      uint      `json:"patient_id" gorm:"column:patient_id;not null;index"`
	DoctorID       uint      `json:"doctor_id" gorm:"column:doctor_id;not null;index"`
	MedicationName string    `json:"medication_name" gorm:"column:medication_name;not null"`
	Dosage         string    `json:"dosage" gorm:"column:dosage;not null"`
	Quantity       string    `json:"quantity" gorm:"column:quantity;not null"`
	Repeats        int       `json:"repeats" gorm:"column:repeats;default:0"`
	Instructions   string    `json:"instructions" gorm:"column:instructions;type:text"`
	DocumentPath   string    `json:"document_path,omitempty" gorm:"column:document_path"`
	IssuedAt       time.Time `json:"issued_at" gorm:"column:issued_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty" gorm:"column:expires_at"`
}
