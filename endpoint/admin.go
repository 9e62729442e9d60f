package endpoint

import (
	"fmt"
	"strconv"

	"github.com/freedocau/freedoc-api/model"
	"github.com/freedocau/freedoc-api/util"
	"github.com/gin-gonic/gin"
)

// AdminStats godoc
// @Summary      Platform statistics
// @Description  Counts of consultations per status, registered patients and active doctors
// @Tags         Admin
// @Produce      json
// @Security     SessionToken
// @Success      200 {object} util.APIResponse "Statistics"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /admin/stats [get]
func AdminStats(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	byStatus := map[string]int64{}
	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	if err := db.Model(&model.Consultation{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count consultations", Err: err})
		return
	}
	for _, row := range rows {
		byStatus[row.Status] = row.Count
	}

	var totalConsultations, patients, activeDoctors, certificates, prescriptions int64
	if err := db.Model(&model.Consultation{}).Count(&totalConsultations).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count consultations", Err: err})
		return
	}
	if err := db.Model(&model.User{}).Where("role = ?", model.RolePatient).Count(&patients).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count patients", Err: err})
		return
	}
	if err := db.Model(&model.Doctor{}).Where("is_active = ?", true).Count(&activeDoctors).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count doctors", Err: err})
		return
	}
	if err := db.Model(&model.MedicalCertificate{}).Count(&certificates).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count certificates", Err: err})
		return
	}
	if err := db.Model(&model.Prescription{}).Count(&prescriptions).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count prescriptions", Err: err})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "Statistics",
		Data: map[string]interface{}{
			"consultations": map[string]interface{}{
				"total":     totalConsultations,
				"by_status": byStatus,
			},
			"patients":       patients,
			"active_doctors": activeDoctors,
			"certificates":   certificates,
			"prescriptions":  prescriptions,
		},
	})
}

// ListUsers godoc
// @Summary      List user accounts
// @Tags         Admin
// @Produce      json
// @Security     SessionToken
// @Param        role query string false "Filter by role"
// @Param        limit query int false "Page size (default 20)"
// @Param        offset query int false "Offset"
// @Success      200 {object} util.APIResponse{data=[]model.User} "Users"
// @Failure      400 {object} util.APIResponse "Unknown role filter"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /admin/users [get]
func ListUsers(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	query := db.Model(&model.User{})
	if role := c.Query("role"); role != "" {
		if !model.UserRole(role).Valid() {
			util.CallUserError(c, util.APIErrorParams{
				Msg: "Unknown role filter",
				Err: fmt.Errorf("invalid role %q", role),
			})
			return
		}
		query = query.Where("role = ?", role)
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
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count users", Err: err})
		return
	}

	var users []model.User
	if err := query.Order("id ASC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to list users", Err: err})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "Users",
		Data: map[string]interface{}{
			"users":  users,
			"total":  total,
			"limit":  limit,
			"offset": offset,
		},
	})
}

// ListSecurityLogs godoc
// @Summary      List recent security events
// @Tags         Admin
// @Produce      json
// @Security     SessionToken
// @Param        limit query int false "Page size (default 50)"
// @Param        offset query int false "Offset"
// @Success      200 {object} util.APIResponse{data=[]model.SecurityLog} "Events"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /admin/security-logs [get]
func ListSecurityLogs(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	var logs []model.SecurityLog
	if err := db.Order("id DESC").Limit(limit).Offset(offset).Find(&logs).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to list security logs", Err: err})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Security logs", Data: logs})
}
