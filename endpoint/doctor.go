package endpoint

import (
	"fmt"

	"github.com/freedocau/freedoc-api/model"
	"github.com/freedocau/freedoc-api/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type CreateDoctorRequest struct {
	Email          string `json:"email" binding:"required,email"`
	FirstName      string `json:"first_name" binding:"required"`
	LastName       string `json:"last_name" binding:"required"`
	Password       string `json:"password" binding:"required,min=8"`
	LicenseNumber  string `json:"license_number" binding:"required"`
	Specialty      string `json:"specialty"`
	Qualifications string `json:"qualifications"`
}

type UpdateDoctorRequest struct {
	Specialty      *string `json:"specialty"`
	Qualifications *string `json:"qualifications"`
	IsActive       *bool   `json:"is_active"`
}

// CreateDoctor godoc
// @Summary      Create a doctor account
// @Description  Creates a doctor-role user with credentials and the attached professional profile
// @Tags         Doctor
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body CreateDoctorRequest true "Doctor details"
// @Success      200 {object} util.APIResponse{data=model.Doctor} "Doctor created"
// @Failure      400 {object} util.APIResponse "Invalid request or duplicate email/license"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /admin/doctors [post]
func CreateDoctor(c *gin.Context) {
	var req CreateDoctorRequest
	if !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	email := util.NormalizeEmail(req.Email)

	salt, err := util.GenerateSalt()
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to generate password salt", Err: err})
		return
	}
	hashed, err := util.HashPasswordArgon2(req.Password, salt)
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to hash password", Err: err})
		return
	}

	var doctor model.Doctor
	err = db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("email already registered")
		}
		if err := tx.Model(&model.Doctor{}).Where("license_number = ?", req.LicenseNumber).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("license number already registered")
		}

		user := model.User{
			Email:           email,
			FirstName:       util.NormalizeName(req.FirstName),
			LastName:        util.NormalizeName(req.LastName),
			Role:            model.RoleDoctor,
			IsEmailVerified: true,
			Password:        hashed,
			PasswordSalt:    salt,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}

		doctor = model.Doctor{
			UserID:         user.ID,
			LicenseNumber:  req.LicenseNumber,
			Specialty:      req.Specialty,
			Qualifications: req.Qualifications,
			IsActive:       true,
		}
		return tx.Create(&doctor).Error
	})
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Failed to create doctor", Err: err})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Doctor created", Data: doctor})
}

// ListDoctors godoc
// @Summary      List doctors
// @Tags         Doctor
// @Produce      json
// @Security     SessionToken
// @Param        active query bool false "Only active doctors"
// @Success      200 {object} util.APIResponse{data=[]model.Doctor} "Doctors"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /admin/doctors [get]
func ListDoctors(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	query := db.Model(&model.Doctor{}).Preload("User")
	if c.Query("active") == "true" {
		query = query.Where("is_active = ?", true)
	}

	var doctors []model.Doctor
	if err := query.Order("id ASC").Find(&doctors).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to list doctors", Err: err})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Doctors", Data: doctors})
}

// UpdateDoctor godoc
// @Summary      Update a doctor profile
// @Description  Partial update of specialty, qualifications and active flag. Deactivating a doctor does not touch already assigned consultations.
// @Tags         Doctor
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Doctor ID"
// @Param        request body UpdateDoctorRequest true "Fields to update"
// @Success      200 {object} util.APIResponse{data=model.Doctor} "Doctor updated"
// @Failure      404 {object} util.APIResponse "Not found"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /admin/doctors/{id} [patch]
func UpdateDoctor(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	id, ok := parseIDParamOrRespond(c, "id")
	if !ok {
		return
	}

	var doctor model.Doctor
	if err := db.Take(&doctor, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			util.CallErrorNotFound(c, util.APIErrorParams{Msg: "Doctor not found", Err: err})
		} else {
			util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve doctor", Err: err})
		}
		return
	}

	var req UpdateDoctorRequest
	if !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return
	}

	updates := map[string]interface{}{}
	if req.Specialty != nil {
		updates["specialty"] = *req.Specialty
	}
	if req.Qualifications != nil {
		updates["qualifications"] = *req.Qualifications
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		util.CallUserError(c, util.APIErrorParams{Msg: "No fields to update", Err: fmt.Errorf("empty update")})
		return
	}

	if err := db.Model(&doctor).Updates(updates).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to update doctor", Err: err})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Doctor updated", Data: doctor})
}
