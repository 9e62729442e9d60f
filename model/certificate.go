package model

import (
	"time"

	"gorm.io/gorm"
)

// CertificateType is the closed set of medical certificate kinds.
type CertificateType string

const (
	CertSickLeave      CertificateType = "sick_leave"
	CertFitnessToWork  CertificateType = "fitness_to_work"
	CertStudyExemption CertificateType = "study_exemption"
	CertGeneralMedical CertificateType = "general_medical"
)

// Valid reports whether the certificate type is one of the enumerated values.
func (c CertificateType) Valid() bool {
	switch c {
	case CertSickLeave, CertFitnessToWork, CertStudyExemption, CertGeneralMedical:
		return true
	}
	return false
}

// MedicalCertificate is issued at most once per completed medical_certificate
// consultation. Patient and doctor ids are denormalized for query convenience;
// the consultation remains the source of truth. Rows are immutable after
// creation except for attaching the generated document path.
type MedicalCertificate struct {
	gorm.Model
	ConsultationID uint            `json:"consultation_id" gorm:"column:consultation_id;uniqueIndex;not null"`
	PatientID      uint            `json:"patient_id" gorm:"column:patient_id;not null;index"`
	DoctorID       uint            `json:"doctor_id" gorm:"column:doctor_id;not null;index"`
	CertificateType CertificateType `json:"certificate_type" gorm:"column:certificate_type;type:varchar(32);not null"`
	DateFrom       time.Time       `json:"date_from" gorm:"column:date_from;not null"`
	DateTo         time.Time       `json:"date_to" gorm:"column:date_to;not null"`
	Condition      string          `json:"condition" gorm:"column:condition;type:text;not null"`
	Restrictions   string          `json:"restrictions" gorm:"column:restrictions;type:text"`
	DocumentPath   string          `json:"document_path,omitempty" gorm:"column:document_path"`
	IssuedAt       time.Time       `json:"issued_at" gorm:"column:issued_at"`
}
