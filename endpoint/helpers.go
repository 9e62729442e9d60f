package endpoint

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/freedocau/freedoc-api/config"
	"github.com/freedocau/freedoc-api/middleware"
	"github.com/freedocau/freedoc-api/model"
	"github.com/freedocau/freedoc-api/service"
	"github.com/freedocau/freedoc-api/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Package-level collaborators, set once during startup. Tests swap them via
// the setters.
var (
	mailer service.Mailer = service.LogMailer{}
	docGen                = service.NewDocumentGenerator("generated_documents")
)

// SetMailer installs the mail delivery implementation.
func SetMailer(m service.Mailer) {
	if m != nil {
		mailer = m
	}
}

// SetDocumentGenerator installs the consultation document generator.
func SetDocumentGenerator(g *service.DocumentGenerator) {
	if g != nil {
		docGen = g
	}
}

// InitFromConfig wires the mailer and document generator from loaded config.
func InitFromConfig(cfg *config.Config) {
	SetMailer(service.NewMailerFromConfig(cfg))
	if cfg != nil && cfg.DocumentDir != "" {
		SetDocumentGenerator(service.NewDocumentGenerator(cfg.DocumentDir))
	}
}

// clientInfo groups the request metadata used for security logging.
type clientInfo struct {
	IP    string
	Agent string
}

func getClientInfo(c *gin.Context) clientInfo {
	return clientInfo{IP: c.ClientIP(), Agent: c.Request.UserAgent()}
}

func bindJSONOrRespond(c *gin.Context, dst interface{}, msg string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: msg, Err: err})
		return false
	}
	return true
}

func getDBOrRespond(c *gin.Context) (*gorm.DB, bool) {
	db := middleware.GetDB(c)
	if db == nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Database connection not available", Err: fmt.Errorf("db is nil")})
		return nil, false
	}
	return db, true
}

// parseIDParamOrRespond parses the :id path parameter as a positive integer.
func parseIDParamOrRespond(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id64, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id64 == 0 {
		util.CallUserError(c, util.APIErrorParams{
			Msg: fmt.Sprintf("Invalid %s parameter", name),
			Err: fmt.Errorf("expected positive integer, got %q", raw),
		})
		return 0, false
	}
	return uint(id64), true
}

// currentUserIDOrRespond returns the authenticated user ID set by the session
// middleware. Identity always comes from the session, never from the payload.
func currentUserIDOrRespond(c *gin.Context) (uint, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok || userID == 0 {
		util.CallUserNotAuthorized(c, util.APIErrorParams{
			Msg: "User not authenticated",
			Err: fmt.Errorf("user id not found in context"),
		})
		return 0, false
	}
	return userID, true
}

// loadUserOrRespond fetches a user row by ID, mapping missing rows to 404.
func loadUserOrRespond(c *gin.Context, db *gorm.DB, userID uint) (model.User, bool) {
	var user model.User
	if err := db.Take(&user, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			util.CallErrorNotFound(c, util.APIErrorParams{Msg: "User not found", Err: err})
			return model.User{}, false
		}
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve user", Err: err})
		return model.User{}, false
	}
	return user, true
}

// respondValidationError maps intake validation failures onto a 400 response
// carrying per-field messages in the data payload.
func respondValidationError(c *gin.Context, verr *model.IntakeValidationError) {
	c.JSON(http.StatusBadRequest, util.APIResponse{
		Success: false,
		Error:   verr.Error(),
		Msg:     "Validation failed",
		Data:    map[string]interface{}{"fields": verr.Fields},
	})
}
