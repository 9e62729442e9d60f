package model

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// intakeValidator validates the per-service-type request payloads. Field
// names in error messages come from the json tags so they match what the
// client actually sent.
var intakeValidator = newIntakeValidator()

func newIntakeValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// PrescriptionRequest is the intake payload for a prescription consultation.
type PrescriptionRequest struct {
	Medication     string `json:"medication" validate:"required"`
	Dosage         string `json:"dosage" validate:"required"`
	PreviousDoctor string `json:"previous_doctor,omitempty" validate:"-"`
	Reason         string `json:"reason" validate:"required"`
}

// MedicalCertificateRequest is the intake payload for a medical certificate.
type MedicalCertificateRequest struct {
	CertificateType string `json:"certificate_type" validate:"required,oneof=sick_leave fitness_to_work study_exemption general_medical"`
	DateFrom        string `json:"date_from" validate:"required"`
	DateTo          string `json:"date_to" validate:"required"`
	Symptoms        string `json:"symptoms" validate:"required"`
}

// MentalHealthRequest is the intake payload for mental health support.
type MentalHealthRequest struct {
	SupportType       string `json:"support_type" validate:"required,oneof=mental_health_plan counseling_referral medication_review crisis_support"`
	Symptoms          string `json:"symptoms,omitempty" validate:"-"`
	PreviousTreatment string `json:"previous_treatment,omitempty" validate:"-"`
}

// TelehealthRequest is the intake payload for a telehealth consult.
type TelehealthRequest struct {
	ConsultationType   string `json:"consultation_type" validate:"required,oneof=general follow_up chronic_disease preventive"`
	PreferredTime      string `json:"preferred_time" validate:"required,oneof=morning afternoon evening anytime"`
	HealthConcerns     string `json:"health_concerns" validate:"required"`
	CurrentMedications string `json:"current_medications,omitempty" validate:"-"`
}

// PathologyRequest is the intake payload for a pathology referral.
type PathologyRequest struct {
	TestType      string `json:"test_type" validate:"required,oneof=blood_work diabetes_screening cholesterol thyroid vitamin_d other"`
	ReasonForTest string `json:"reason_for_test" validate:"required"`
	PreviousTests string `json:"previous_tests,omitempty" validate:"-"`
	PreferredLab  string `json:"preferred_lab,omitempty" validate:"-"`
}

// FieldError carries a single field-level validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// IntakeValidationError aggregates field errors for an intake payload.
type IntakeValidationError struct {
	Fields []FieldError
}

func (e *IntakeValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func validateStruct(dst interface{}, raw json.RawMessage) (json.RawMessage, error) {
	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, &IntakeValidationError{Fields: []FieldError{{Field: "form_data", Message: "form data is not a valid object"}}}
	}
	if err := intakeValidator.Struct(dst); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil, err
		}
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
		}
		return nil, &IntakeValidationError{Fields: fields}
	}
	// Re-marshal so the stored payload is exactly the validated shape with
	// unknown keys dropped.
	return json.Marshal(dst)
}

// ValidateIntake validates a raw intake payload against the schema for the
// given service type and returns the normalized payload to persist. The
// switch is exhaustive over ServiceTypes; an unrecognized service type is a
// configuration error, never a silent default.
func ValidateIntake(serviceType ServiceType, raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	switch serviceType {
	case ServicePrescription:
		return validateStruct(&PrescriptionRequest{}, raw)
	case ServiceMedicalCertificate:
		return validateStruct(&MedicalCertificateRequest{}, raw)
	case ServiceMentalHealth:
		return validateStruct(&MentalHealthRequest{}, raw)
	case ServiceTelehealth:
		return validateStruct(&TelehealthRequest{}, raw)
	case ServicePathology:
		return validateStruct(&PathologyRequest{}, raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownServiceType, serviceType)
	}
}
