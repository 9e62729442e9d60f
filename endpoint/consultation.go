package endpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/freedocau/freedoc-api/middleware"
	"github.com/freedocau/freedoc-api/model"
	"github.com/freedocau/freedoc-api/service"
	"github.com/freedocau/freedoc-api/util"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SubmitConsultationRequest struct {
	ServiceType string          `json:"service_type" binding:"required"`
	FormData    json.RawMessage `json:"form_data"`
}

type AssignConsultationRequest struct {
	DoctorID uint `json:"doctor_id"`
}

type PrescriptionOutcome struct {
	MedicationName string `json:"medication_name" binding:"required"`
	Dosage         string `json:"dosage" binding:"required"`
	Quantity       string `json:"quantity" binding:"required"`
	Repeats        int    `json:"repeats"`
	Instructions   string `json:"instructions"`
	ExpiryDays     int    `json:"expiry_days"`
}

type CertificateOutcome struct {
	CertificateType string `json:"certificate_type" binding:"required"`
	DateFrom        string `json:"date_from" binding:"required"`
	DateTo          string `json:"date_to" binding:"required"`
	Condition       string `json:"condition" binding:"required"`
	Restrictions    string `json:"restrictions"`
}

type CompleteConsultationRequest struct {
	DoctorNotes  string               `json:"doctor_notes"`
	Prescription *PrescriptionOutcome `json:"prescription,omitempty"`
	Certificate  *CertificateOutcome  `json:"certificate,omitempty"`
}

type UpdateNotesRequest struct {
	DoctorNotes string `json:"doctor_notes" binding:"required"`
}

// createConsultation validates the intake payload and inserts a pending
// consultation for the patient.
func createConsultation(db *gorm.DB, patientID uint, serviceType model.ServiceType, formData json.RawMessage) (model.Consultation, error) {
	normalized, err := model.ValidateIntake(serviceType, formData)
	if err != nil {
		return model.Consultation{}, err
	}

	consultation := model.Consultation{
		PatientID:   patientID,
		ServiceType: serviceType,
		Status:      model.StatusPending,
		RequestData: datatypes.JSON(normalized),
	}
	if err := db.Create(&consultation).Error; err != nil {
		return model.Consultation{}, err
	}
	return consultation, nil
}

// pickLeastLoadedDoctor selects the active doctor with the fewest assigned or
// in-progress consultations. Ties break on the lowest doctor id so assignment
// stays deterministic.
func pickLeastLoadedDoctor(tx *gorm.DB) (model.Doctor, error) {
	var doctor model.Doctor
	err := tx.Where("is_active = ?", true).
		Order("workload_count ASC, id ASC").
		Take(&doctor).Error
	return doctor, err
}

// assignDoctorTx moves a pending consultation to assigned and bumps the
// doctor's workload. The status update is conditional on the row still being
// pending so two concurrent assignments cannot both succeed.
func assignDoctorTx(tx *gorm.DB, consultationID, doctorID uint) error {
	res := tx.Model(&model.Doctor{}).
		Where("id = ? AND is_active = ?", doctorID, true).
		Update("workload_count", gorm.Expr("workload_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrDoctorUnavailable
	}

	res = tx.Model(&model.Consultation{}).
		Where("id = ? AND status = ?", consultationID, model.StatusPending).
		Updates(map[string]interface{}{
			"status":    model.StatusAssigned,
			"doctor_id": doctorID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrInvalidTransition
	}
	return nil
}

// releaseDoctorTx decrements a doctor's workload counter, flooring at zero.
func releaseDoctorTx(tx *gorm.DB, doctorID uint) error {
	return tx.Model(&model.Doctor{}).
		Where("id = ? AND workload_count > 0", doctorID).
		Update("workload_count", gorm.Expr("workload_count - 1")).Error
}

func respondConsultationError(c *gin.Context, err error) {
	var verr *model.IntakeValidationError
	switch {
	case errors.As(err, &verr):
		respondValidationError(c, verr)
	case errors.Is(err, model.ErrUnknownServiceType):
		util.CallUserError(c, util.APIErrorParams{Msg: "Unknown service type", Err: err})
	case errors.Is(err, model.ErrInvalidTransition):
		util.CallConflict(c, util.APIErrorParams{Msg: "Consultation is not in a state that allows this operation", Err: err})
	case errors.Is(err, model.ErrAlreadyIssued):
		util.CallConflict(c, util.APIErrorParams{Msg: "A document record was already issued for this consultation", Err: err})
	case errors.Is(err, model.ErrDoctorUnavailable):
		util.CallUserError(c, util.APIErrorParams{Msg: "Doctor is not available for assignment", Err: err})
	case errors.Is(err, gorm.ErrRecordNotFound):
		util.CallErrorNotFound(c, util.APIErrorParams{Msg: "Consultation not found", Err: err})
	default:
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to process consultation", Err: err})
	}
}

// loadConsultationOrRespond fetches a consultation by path id.
func loadConsultationOrRespond(c *gin.Context, db *gorm.DB) (model.Consultation, bool) {
	id, ok := parseIDParamOrRespond(c, "id")
	if !ok {
		return model.Consultation{}, false
	}
	var consultation model.Consultation
	if err := db.Take(&consultation, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			util.CallErrorNotFound(c, util.APIErrorParams{Msg: "Consultation not found", Err: err})
		} else {
			util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve consultation", Err: err})
		}
		return model.Consultation{}, false
	}
	return consultation, true
}

// doctorProfileOrRespond loads the doctor profile owned by the session user.
func doctorProfileOrRespond(c *gin.Context, db *gorm.DB) (model.Doctor, bool) {
	userID, ok := currentUserIDOrRespond(c)
	if !ok {
		return model.Doctor{}, false
	}
	var doctor model.Doctor
	if err := db.Where("user_id = ?", userID).Take(&doctor).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			util.CallForbidden(c, util.APIErrorParams{Msg: "No doctor profile for this account", Err: err})
		} else {
			util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve doctor profile", Err: err})
		}
		return model.Doctor{}, false
	}
	return doctor, true
}

// SubmitConsultation godoc
// @Summary      Submit a consultation request
// @Description  Validate the intake form and create a pending consultation
// @Tags         Consultation
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body SubmitConsultationRequest true "Service type and intake form"
// @Success      200 {object} util.APIResponse{data=model.Consultation} "Consultation created"
// @Failure      400 {object} util.APIResponse "Validation failed"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /consultations [post]
func SubmitConsultation(c *gin.Context) {
	consultation, ok := submitConsultation(c, false)
	if !ok {
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Consultation created", Data: consultation})
}

// SubmitAndAssign godoc
// @Summary      Submit a consultation and assign a doctor
// @Description  Create a consultation and immediately assign the least-loaded active doctor. Stays pending when no doctor is available.
// @Tags         Consultation
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body SubmitConsultationRequest true "Service type and intake form"
// @Success      200 {object} util.APIResponse{data=model.Consultation} "Consultation created"
// @Failure      400 {object} util.APIResponse "Validation failed"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /consultations/submit [post]
func SubmitAndAssign(c *gin.Context) {
	consultation, ok := submitConsultation(c, true)
	if !ok {
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Consultation created", Data: consultation})
}

func submitConsultation(c *gin.Context, autoAssign bool) (model.Consultation, bool) {
	var req SubmitConsultationRequest
	if !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return model.Consultation{}, false
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return model.Consultation{}, false
	}

	patientID, ok := currentUserIDOrRespond(c)
	if !ok {
		return model.Consultation{}, false
	}

	patient, ok := loadUserOrRespond(c, db, patientID)
	if !ok {
		return model.Consultation{}, false
	}
	if !patient.IsEmailVerified {
		util.CallForbidden(c, util.APIErrorParams{
			Msg: "Email must be verified before requesting a consultation",
			Err: fmt.Errorf("email not verified"),
		})
		return model.Consultation{}, false
	}

	serviceType := model.ServiceType(req.ServiceType)
	if !serviceType.Valid() {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Unknown service type",
			Err: fmt.Errorf("%w: %q", model.ErrUnknownServiceType, req.ServiceType),
		})
		return model.Consultation{}, false
	}

	consultation, err := createConsultation(db, patientID, serviceType, req.FormData)
	if err != nil {
		respondConsultationError(c, err)
		return model.Consultation{}, false
	}

	if autoAssign {
		err := db.Transaction(func(tx *gorm.DB) error {
			doctor, err := pickLeastLoadedDoctor(tx)
			if err == gorm.ErrRecordNotFound {
				// No active doctor right now; the consultation stays pending
				// for a later manual or background assignment.
				return nil
			}
			if err != nil {
				return err
			}
			return assignDoctorTx(tx, consultation.ID, doctor.ID)
		})
		if err != nil {
			respondConsultationError(c, err)
			return model.Consultation{}, false
		}
		if err := db.Take(&consultation, consultation.ID).Error; err != nil {
			util.CallServerError(c, util.APIErrorParams{Msg: "Failed to reload consultation", Err: err})
			return model.Consultation{}, false
		}
	}

	return consultation, true
}

// ListConsultations godoc
// @Summary      List consultations visible to the caller
// @Description  Patients see their own requests, doctors their assigned ones, admins everything
// @Tags         Consultation
// @Produce      json
// @Security     SessionToken
// @Param        status query string false "Filter by status"
// @Param        limit query int false "Page size (default 20)"
// @Param        offset query int false "Offset"
// @Success      200 {object} util.APIResponse{data=[]model.Consultation} "Consultations"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /consultations [get]
func ListConsultations(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	role, _ := middleware.GetRole(c)

	query := db.Model(&model.Consultation{})
	switch role {
	case model.RoleAdmin:
		query = query.Preload("Patient").Preload("Doctor")
	case model.RoleDoctor:
		doctor, ok := doctorProfileOrRespond(c, db)
		if !ok {
			return
		}
		query = query.Where("doctor_id = ?", doctor.ID).Preload("Patient")
	default:
		patientID, ok := currentUserIDOrRespond(c)
		if !ok {
			return
		}
		query = query.Where("patient_id = ?", patientID)
	}

	if status := c.Query("status"); status != "" {
		if !model.ConsultationStatus(status).Valid() {
			util.CallUserError(c, util.APIErrorParams{
				Msg: "Unknown status filter",
				Err: fmt.Errorf("invalid status %q", status),
			})
			return
		}
		query = query.Where("status = ?", status)
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count consultations", Err: err})
		return
	}

	var consultations []model.Consultation
	if err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&consultations).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to list consultations", Err: err})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "Consultations",
		Data: map[string]interface{}{
			"consultations": consultations,
			"total":         total,
			"limit":         limit,
			"offset":        offset,
		},
	})
}

// canViewConsultation enforces row-level visibility.
func canViewConsultation(c *gin.Context, db *gorm.DB, consultation model.Consultation) bool {
	role, _ := middleware.GetRole(c)
	userID, _ := middleware.GetUserID(c)

	switch role {
	case model.RoleAdmin:
		return true
	case model.RoleDoctor:
		if consultation.DoctorID == nil {
			return false
		}
		var doctor model.Doctor
		if err := db.Where("user_id = ?", userID).Take(&doctor).Error; err != nil {
			return false
		}
		return doctor.ID == *consultation.DoctorID
	default:
		return consultation.PatientID == userID
	}
}

// GetConsultation godoc
// @Summary      Fetch a single consultation
// @Tags         Consultation
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Consultation ID"
// @Success      200 {object} util.APIResponse{data=model.Consultation} "Consultation"
// @Failure      403 {object} util.APIResponse "Forbidden"
// @Failure      404 {object} util.APIResponse "Not found"
// @Router       /consultations/{id} [get]
func GetConsultation(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	consultation, ok := loadConsultationOrRespond(c, db)
	if !ok {
		return
	}

	if !canViewConsultation(c, db, consultation) {
		util.CallForbidden(c, util.APIErrorParams{
			Msg: "Not permitted to view this consultation",
			Err: fmt.Errorf("consultation belongs to another patient"),
		})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Consultation", Data: consultation})
}

// AssignConsultation godoc
// @Summary      Assign a pending consultation to a doctor
// @Description  Assigns the given doctor, or the least-loaded active doctor when no doctor_id is supplied
// @Tags         Consultation
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Consultation ID"
// @Param        request body AssignConsultationRequest false "Optional explicit doctor"
// @Success      200 {object} util.APIResponse{data=model.Consultation} "Assigned"
// @Failure      400 {object} util.APIResponse "No doctor available"
// @Failure      404 {object} util.APIResponse "Not found"
// @Failure      409 {object} util.APIResponse "Not pending"
// @Router       /consultations/{id}/assign [post]
func AssignConsultation(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	consultation, ok := loadConsultationOrRespond(c, db)
	if !ok {
		return
	}

	var req AssignConsultationRequest
	if c.Request.ContentLength > 0 && !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		doctorID := req.DoctorID
		if doctorID == 0 {
			doctor, err := pickLeastLoadedDoctor(tx)
			if err == gorm.ErrRecordNotFound {
				return model.ErrDoctorUnavailable
			}
			if err != nil {
				return err
			}
			doctorID = doctor.ID
		}
		return assignDoctorTx(tx, consultation.ID, doctorID)
	})
	if err != nil {
		respondConsultationError(c, err)
		return
	}

	if err := db.Take(&consultation, consultation.ID).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to reload consultation", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Consultation assigned", Data: consultation})
}

// ReassignConsultation godoc
// @Summary      Move an assigned consultation to a different doctor
// @Tags         Consultation
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Consultation ID"
// @Param        request body AssignConsultationRequest true "Target doctor"
// @Success      200 {object} util.APIResponse{data=model.Consultation} "Reassigned"
// @Failure      400 {object} util.APIResponse "Doctor unavailable"
// @Failure      404 {object} util.APIResponse "Not found"
// @Failure      409 {object} util.APIResponse "Not assigned"
// @Router       /consultations/{id}/reassign [post]
func ReassignConsultation(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	consultation, ok := loadConsultationOrRespond(c, db)
	if !ok {
		return
	}

	var req AssignConsultationRequest
	if !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return
	}
	if req.DoctorID == 0 {
		util.CallUserError(c, util.APIErrorParams{Msg: "doctor_id is required", Err: fmt.Errorf("missing doctor_id")})
		return
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if consultation.DoctorID == nil {
			return model.ErrInvalidTransition
		}
		previousDoctorID := *consultation.DoctorID
		if previousDoctorID == req.DoctorID {
			return nil
		}

		res := tx.Model(&model.Doctor{}).
			Where("id = ? AND is_active = ?", req.DoctorID, true).
			Update("workload_count", gorm.Expr("workload_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return model.ErrDoctorUnavailable
		}

		res = tx.Model(&model.Consultation{}).
			Where("id = ? AND status = ? AND doctor_id = ?", consultation.ID, model.StatusAssigned, previousDoctorID).
			Update("doctor_id", req.DoctorID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return model.ErrInvalidTransition
		}

		return releaseDoctorTx(tx, previousDoctorID)
	})
	if err != nil {
		respondConsultationError(c, err)
		return
	}

	if err := db.Take(&consultation, consultation.ID).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to reload consultation", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Consultation reassigned", Data: consultation})
}

// StartConsultation godoc
// @Summary      Start an assigned consultation
// @Tags         Consultation
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Consultation ID"
// @Success      200 {object} util.APIResponse{data=model.Consultation} "Started"
// @Failure      403 {object} util.APIResponse "Not the assigned doctor"
// @Failure      404 {object} util.APIResponse "Not found"
// @Failure      409 {object} util.APIResponse "Not assigned"
// @Router       /consultations/{id}/start [post]
func StartConsultation(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	consultation, ok := loadConsultationOrRespond(c, db)
	if !ok {
		return
	}

	if _, ok := requireAssignedDoctor(c, db, consultation); !ok {
		return
	}

	res := db.Model(&model.Consultation{}).
		Where("id = ? AND status = ?", consultation.ID, model.StatusAssigned).
		Update("status", model.StatusInProgress)
	if res.Error != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to start consultation", Err: res.Error})
		return
	}
	if res.RowsAffected == 0 {
		respondConsultationError(c, model.ErrInvalidTransition)
		return
	}

	if err := db.Take(&consultation, consultation.ID).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to reload consultation", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Consultation started", Data: consultation})
}

// requireAssignedDoctor verifies the session user is the doctor on the row.
// Admins pass through.
func requireAssignedDoctor(c *gin.Context, db *gorm.DB, consultation model.Consultation) (model.Doctor, bool) {
	role, _ := middleware.GetRole(c)
	if role == model.RoleAdmin {
		if consultation.DoctorID == nil {
			util.CallConflict(c, util.APIErrorParams{
				Msg: "Consultation has no assigned doctor",
				Err: model.ErrInvalidTransition,
			})
			return model.Doctor{}, false
		}
		var doctor model.Doctor
		if err := db.Take(&doctor, *consultation.DoctorID).Error; err != nil {
			util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve doctor", Err: err})
			return model.Doctor{}, false
		}
		return doctor, true
	}

	doctor, ok := doctorProfileOrRespond(c, db)
	if !ok {
		return model.Doctor{}, false
	}
	if consultation.DoctorID == nil || *consultation.DoctorID != doctor.ID {
		util.CallForbidden(c, util.APIErrorParams{
			Msg: "Consultation is not assigned to this doctor",
			Err: fmt.Errorf("doctor mismatch"),
		})
		return model.Doctor{}, false
	}
	return doctor, true
}

func parseOutcomeDate(field, value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, &model.IntakeValidationError{Fields: []model.FieldError{
			{Field: field, Message: fmt.Sprintf("%s must be a date in YYYY-MM-DD format", field)},
		}}
	}
	return t, nil
}

// CompleteConsultation godoc
// @Summary      Complete an in-progress consultation
// @Description  Moves the consultation to completed, releases the doctor's workload and, when an outcome payload is supplied, issues the prescription or certificate record atomically. Document generation is attempted afterwards and never blocks completion.
// @Tags         Consultation
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Consultation ID"
// @Param        request body CompleteConsultationRequest false "Outcome"
// @Success      200 {object} util.APIResponse{data=model.Consultation} "Completed"
// @Failure      400 {object} util.APIResponse "Validation failed"
// @Failure      403 {object} util.APIResponse "Not the assigned doctor"
// @Failure      404 {object} util.APIResponse "Not found"
// @Failure      409 {object} util.APIResponse "Not in progress or already issued"
// @Router       /consultations/{id}/complete [post]
func CompleteConsultation(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	consultation, ok := loadConsultationOrRespond(c, db)
	if !ok {
		return
	}

	doctor, ok := requireAssignedDoctor(c, db, consultation)
	if !ok {
		return
	}

	var req CompleteConsultationRequest
	if c.Request.ContentLength > 0 && !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return
	}

	// Outcome payloads only make sense on a consultation of the matching
	// service type.
	if req.Prescription != nil && consultation.ServiceType != model.ServicePrescription {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Prescription outcome is only valid for prescription consultations",
			Err: fmt.Errorf("service type mismatch"),
		})
		return
	}
	if req.Certificate != nil && consultation.ServiceType != model.ServiceMedicalCertificate {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Certificate outcome is only valid for medical certificate consultations",
			Err: fmt.Errorf("service type mismatch"),
		})
		return
	}

	now := time.Now()
	var prescription *model.Prescription
	var certificate *model.MedicalCertificate

	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Consultation{}).
			Where("id = ? AND status = ?", consultation.ID, model.StatusInProgress).
			Updates(map[string]interface{}{
				"status":       model.StatusCompleted,
				"completed_at": now,
				"doctor_notes": req.DoctorNotes,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return model.ErrInvalidTransition
		}

		if err := releaseDoctorTx(tx, doctor.ID); err != nil {
			return err
		}

		if req.Prescription != nil {
			var count int64
			if err := tx.Model(&model.Prescription{}).
				Where("consultation_id = ?", consultation.ID).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return model.ErrAlreadyIssued
			}
			p := model.Prescription{
				ConsultationID: consultation.ID,
				PatientID:      consultation.PatientID,
				DoctorID:       doctor.ID,
				MedicationName: req.Prescription.MedicationName,
				Dosage:         req.Prescription.Dosage,
				Quantity:       req.Prescription.Quantity,
				Repeats:        req.Prescription.Repeats,
				Instructions:   req.Prescription.Instructions,
				IssuedAt:       now,
			}
			if req.Prescription.ExpiryDays > 0 {
				expires := now.AddDate(0, 0, req.Prescription.ExpiryDays)
				p.ExpiresAt = &expires
			}
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
			prescription = &p
		}

		if req.Certificate != nil {
			certType := model.CertificateType(req.Certificate.CertificateType)
			if !certType.Valid() {
				return &model.IntakeValidationError{Fields: []model.FieldError{
					{Field: "certificate_type", Message: "certificate_type must be one of: sick_leave, fitness_to_work, study_exemption, general_medical"},
				}}
			}
			dateFrom, err := parseOutcomeDate("date_from", req.Certificate.DateFrom)
			if err != nil {
				return err
			}
			dateTo, err := parseOutcomeDate("date_to", req.Certificate.DateTo)
			if err != nil {
				return err
			}
			if dateTo.Before(dateFrom) {
				return &model.IntakeValidationError{Fields: []model.FieldError{
					{Field: "date_to", Message: "date_to must not be before date_from"},
				}}
			}

			var count int64
			if err := tx.Model(&model.MedicalCertificate{}).
				Where("consultation_id = ?", consultation.ID).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return model.ErrAlreadyIssued
			}
			cert := model.MedicalCertificate{
				ConsultationID:  consultation.ID,
				PatientID:       consultation.PatientID,
				DoctorID:        doctor.ID,
				CertificateType: certType,
				DateFrom:        dateFrom,
				DateTo:          dateTo,
				Condition:       req.Certificate.Condition,
				Restrictions:    req.Certificate.Restrictions,
				IssuedAt:        now,
			}
			if err := tx.Create(&cert).Error; err != nil {
				return err
			}
			certificate = &cert
		}

		return nil
	})
	if err != nil {
		respondConsultationError(c, err)
		return
	}

	// Document generation runs outside the transaction; a failure leaves the
	// document reference empty and is logged for retry.
	generateConsultationDocuments(db, consultation, doctor, prescription, certificate)

	notifyConsultationCompleted(db, consultation)

	if err := db.Take(&consultation, consultation.ID).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to reload consultation", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Consultation completed", Data: consultation})
}

func generateConsultationDocuments(db *gorm.DB, consultation model.Consultation, doctor model.Doctor, prescription *model.Prescription, certificate *model.MedicalCertificate) {
	if prescription == nil && certificate == nil {
		return
	}

	var patient model.User
	if err := db.Take(&patient, consultation.PatientID).Error; err != nil {
		util.LogSecurityEvent(util.SecurityEvent{
			EventType: util.EventSuspiciousActivity,
			Message:   fmt.Sprintf("Document generation skipped, patient %d missing: %v", consultation.PatientID, err),
		})
		return
	}
	var doctorUser model.User
	_ = db.Take(&doctorUser, doctor.UserID).Error

	var path, html string
	var err error
	switch {
	case prescription != nil:
		path, html, err = docGen.GeneratePrescription(service.PrescriptionDocument{
			PatientName:    patient.FullName(),
			PatientDOB:     patient.DateOfBirth,
			DoctorName:     doctorUser.FullName(),
			DoctorLicense:  doctor.LicenseNumber,
			MedicationName: prescription.MedicationName,
			Dosage:         prescription.Dosage,
			Quantity:       prescription.Quantity,
			Repeats:        prescription.Repeats,
			Instructions:   prescription.Instructions,
			IssuedAt:       prescription.IssuedAt,
			ExpiresAt:      prescription.ExpiresAt,
		})
		if err == nil {
			_ = db.Model(prescription).Update("document_path", path).Error
		}
	case certificate != nil:
		path, html, err = docGen.GenerateCertificate(service.CertificateDocument{
			PatientName:     patient.FullName(),
			PatientDOB:      patient.DateOfBirth,
			DoctorName:      doctorUser.FullName(),
			DoctorLicense:   doctor.LicenseNumber,
			CertificateType: certificate.CertificateType,
			Condition:       certificate.Condition,
			Restrictions:    certificate.Restrictions,
			DateFrom:        certificate.DateFrom,
			DateTo:          certificate.DateTo,
			IssuedAt:        certificate.IssuedAt,
		})
		if err == nil {
			_ = db.Model(certificate).Update("document_path", path).Error
		}
	}

	if err != nil {
		util.LogSecurityEvent(util.SecurityEvent{
			EventType: util.EventSuspiciousActivity,
			Message:   fmt.Sprintf("Document generation failed for consultation %d: %v", consultation.ID, err),
		})
		return
	}

	_ = db.Model(&model.Consultation{}).Where("id = ?", consultation.ID).Updates(map[string]interface{}{
		"generated_document_path": path,
		"generated_document_html": html,
	}).Error
}

func notifyConsultationCompleted(db *gorm.DB, consultation model.Consultation) {
	var patient model.User
	if err := db.Take(&patient, consultation.PatientID).Error; err != nil {
		return
	}
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\nYour %s consultation has been completed. Log in to view the outcome and any issued documents.",
		patient.FirstName, consultation.ServiceType,
	)
	if err := mailer.SendConsultationUpdate(patient.Email, "Your consultation is complete", body); err != nil {
		util.LogSecurityEvent(util.SecurityEvent{
			EventType: util.EventSuspiciousActivity,
			Email:     patient.Email,
			Message:   fmt.Sprintf("Completion notification failed for consultation %d: %v", consultation.ID, err),
		})
	}
}

// CancelConsultation godoc
// @Summary      Cancel a consultation
// @Description  Allowed from pending or assigned only. Cancelling an assigned consultation releases the doctor's workload.
// @Tags         Consultation
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Consultation ID"
// @Success      200 {object} util.APIResponse{data=model.Consultation} "Cancelled"
// @Failure      403 {object} util.APIResponse "Forbidden"
// @Failure      404 {object} util.APIResponse "Not found"
// @Failure      409 {object} util.APIResponse "Not cancellable"
// @Router       /consultations/{id}/cancel [post]
func CancelConsultation(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	consultation, ok := loadConsultationOrRespond(c, db)
	if !ok {
		return
	}

	role, _ := middleware.GetRole(c)
	if role != model.RoleAdmin {
		patientID, ok := currentUserIDOrRespond(c)
		if !ok {
			return
		}
		if consultation.PatientID != patientID {
			util.CallForbidden(c, util.APIErrorParams{
				Msg: "Not permitted to cancel this consultation",
				Err: fmt.Errorf("consultation belongs to another patient"),
			})
			return
		}
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		// The prior status keys the conditional update so a concurrent
		// transition makes this cancel fail rather than double-apply.
		switch consultation.Status {
		case model.StatusPending:
			res := tx.Model(&model.Consultation{}).
				Where("id = ? AND status = ?", consultation.ID, model.StatusPending).
				Update("status", model.StatusCancelled)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return model.ErrInvalidTransition
			}
			return nil
		case model.StatusAssigned:
			res := tx.Model(&model.Consultation{}).
				Where("id = ? AND status = ?", consultation.ID, model.StatusAssigned).
				Update("status", model.StatusCancelled)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return model.ErrInvalidTransition
			}
			if consultation.DoctorID != nil {
				return releaseDoctorTx(tx, *consultation.DoctorID)
			}
			return nil
		default:
			return model.ErrInvalidTransition
		}
	})
	if err != nil {
		respondConsultationError(c, err)
		return
	}

	if err := db.Take(&consultation, consultation.ID).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to reload consultation", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Consultation cancelled", Data: consultation})
}

// UpdateConsultationNotes godoc
// @Summary      Update doctor notes on a consultation
// @Tags         Consultation
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Consultation ID"
// @Param        request body UpdateNotesRequest true "Notes"
// @Success      200 {object} util.APIResponse "Notes updated"
// @Failure      403 {object} util.APIResponse "Not the assigned doctor"
// @Failure      404 {object} util.APIResponse "Not found"
// @Router       /consultations/{id}/notes [patch]
func UpdateConsultationNotes(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	consultation, ok := loadConsultationOrRespond(c, db)
	if !ok {
		return
	}

	if _, ok := requireAssignedDoctor(c, db, consultation); !ok {
		return
	}

	var req UpdateNotesRequest
	if !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return
	}

	if err := db.Model(&model.Consultation{}).
		Where("id = ?", consultation.ID).
		Update("doctor_notes", req.DoctorNotes).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to update notes", Err: err})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Notes updated"})
}
