package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ServiceType is the closed set of services a patient can request.
type ServiceType string

const (
	ServicePrescription       ServiceType = "prescription"
	ServiceMedicalCertificate ServiceType = "medical_certificate"
	ServiceMentalHealth       ServiceType = "mental_health"
	ServiceTelehealth         ServiceType = "telehealth"
	ServicePathology          ServiceType = "pathology"
)

// ServiceTypes lists every valid service type, in a stable order.
var ServiceTypes = []ServiceType{
	ServicePrescription,
	ServiceMedicalCertificate,
	ServiceMentalHealth,
	ServiceTelehealth,
	ServicePathology,
}

// Valid reports whether the service type is one of the enumerated values.
func (s ServiceType) Valid() bool {
	for _, t := range ServiceTypes {
		if s == t {
			return true
		}
	}
	return false
}

// ConsultationStatus is the consultation lifecycle state.
type ConsultationStatus string

const (
	StatusPending    ConsultationStatus = "pending"
	StatusAssigned   ConsultationStatus = "assigned"
	StatusInProgress ConsultationStatus = "in_progress"
	StatusCompleted  ConsultationStatus = "completed"
	StatusCancelled  ConsultationStatus = "cancelled"
)

// Valid reports whether the status is one of the enumerated values.
func (s ConsultationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Sentinel errors for lifecycle operations. Handlers map these onto the HTTP
// error taxonomy; storage code returns them unwrapped so errors.Is works.
var (
	ErrInvalidTransition  = errors.New("invalid consultation status transition")
	ErrDoctorUnavailable  = errors.New("doctor is not active")
	ErrAlreadyIssued      = errors.New("document record already issued for this consultation")
	ErrUnknownServiceType = errors.New("unknown service type")
)

// transitions holds the legal status moves. Cancellation is allowed from
// pending and assigned only; an in_progress consultation must run to
// completion.
var transitions = map[ConsultationStatus][]ConsultationStatus{
	StatusPending:    {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to ConsultationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Consultation is a patient's single service request and its lifecycle record.
// DoctorID is nil exactly while the consultation is pending; CompletedAt is
// set exactly when the consultation is completed.
type Consultation struct {
	gorm.Model
	PatientID   uint               `json:"patient_id" gorm:"column:patient_id;not null;index"`
	DoctorID    *uint              `json:"doctor_id" gorm:"column:doctor_id;index"`
	ServiceType ServiceType        `json:"service_type" gorm:"column:service_type;type:varchar(32);not null"`
	Status      ConsultationStatus `json:"status" gorm:"column:status;type:varchar(16);default:pending;index"`
	RequestData datatypes.JSON     `json:"request_data" gorm:"column:request_data;type:json"`
	DoctorNotes string             `json:"doctor_notes" gorm:"column:doctor_notes;type:text"`

	GeneratedDocumentPath string     `json:"generated_document_path,omitempty" gorm:"column:generated_document_path"`
	GeneratedDocumentHTML string     `json:"-" gorm:"column:generated_document_html;type:text"`
	CompletedAt           *time.Time `json:"completed_at" gorm:"column:completed_at"`

	Patient *User   `json:"patient,omitempty" gorm:"foreignKey:PatientID"`
	Doctor  *Doctor `json:"doctor,omitempty" gorm:"foreignKey:DoctorID"`
}
