package endpoint

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/freedocau/freedoc-api/config"
	"github.com/freedocau/freedoc-api/middleware"
	"github.com/freedocau/freedoc-api/model"
	"github.com/freedocau/freedoc-api/service"
	"github.com/freedocau/freedoc-api/util"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupEndpointTestDB initializes a uniquely named in-memory database with the
// full schema migrated. Cleanup is automatic through the connection closing.
func setupEndpointTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()

	t.Setenv("APPENV", "test")
	t.Setenv("JWTSECRET", "test-secret-123")
	util.SetJWTSecret("test-secret-123")
	config.ResetRedisClientForTest()
	t.Cleanup(config.ResetRedisClientForTest)

	dsn := fmt.Sprintf("file:endpointdb_%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect test DB: %v", err)
	}
	if err := db.AutoMigrate(model.AllModels...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

// newAPIRouter builds a router with the same route layout the server uses.
func newAPIRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.DatabaseMiddleware(db))

	auth := r.Group("/auth")
	{
		auth.POST("/register", Register)
		auth.POST("/verify-otp", VerifyOTP)
		auth.POST("/resend-otp", ResendOTP)
		auth.POST("/login", Login)
		auth.DELETE("/logout", Logout)
		auth.GET("/user", middleware.ValidateLoginToken(), CurrentUser)
	}

	consultations := r.Group("/consultations", middleware.ValidateLoginToken())
	{
		consultations.POST("", SubmitConsultation)
		consultations.POST("/submit", SubmitAndAssign)
		consultations.GET("", ListConsultations)
		consultations.GET("/:id", GetConsultation)
		consultations.GET("/:id/document", DownloadConsultationDocument)
		consultations.POST("/:id/cancel", CancelConsultation)

		doctorOnly := middleware.RequireRole(model.RoleDoctor, model.RoleAdmin)
		consultations.POST("/:id/start", doctorOnly, StartConsultation)
		consultations.POST("/:id/complete", doctorOnly, CompleteConsultation)
		consultations.PATCH("/:id/notes", doctorOnly, UpdateConsultationNotes)

		adminOnly := middleware.RequireRole(model.RoleAdmin)
		consultations.POST("/:id/assign", adminOnly, AssignConsultation)
		consultations.POST("/:id/reassign", adminOnly, ReassignConsultation)
	}

	admin := r.Group("/admin", middleware.ValidateLoginToken(), middleware.RequireRole(model.RoleAdmin))
	{
		admin.GET("/stats", AdminStats)
		admin.GET("/users", ListUsers)
		admin.GET("/security-logs", ListSecurityLogs)
		admin.POST("/doctors", CreateDoctor)
		admin.GET("/doctors", ListDoctors)
		admin.PATCH("/doctors/:id", UpdateDoctor)
	}

	return r
}

// setupEndpointTest returns a router and database for a test.
func setupEndpointTest(t *testing.T, name string) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := setupEndpointTestDB(t, name)
	return newAPIRouter(db), db
}

// createTestUser inserts a user with the given role and a session token, and
// returns both.
func createTestUser(t *testing.T, db *gorm.DB, email string, role model.UserRole) (model.User, string) {
	t.Helper()
	user := model.User{
		Email:           email,
		FirstName:       "Test",
		LastName:        "User",
		Role:            role,
		DateOfBirth:     "1990-01-01",
		IsEmailVerified: true,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	token := fmt.Sprintf("tok-%s-%d", role, user.ID)
	session := model.Session{
		UserID:       user.ID,
		SessionToken: token,
		ExpiresAt:    time.Now().Add(time.Hour),
		ClientIP:     "127.0.0.1",
		Browser:      "test",
	}
	if err := db.Create(&session).Error; err != nil {
		t.Fatalf("failed to create test session: %v", err)
	}
	return user, token
}

// createTestDoctor inserts a doctor-role user plus profile.
func createTestDoctor(t *testing.T, db *gorm.DB, email, license string, workload int, active bool) (model.Doctor, string) {
	t.Helper()
	user, token := createTestUser(t, db, email, model.RoleDoctor)
	doctor := model.Doctor{
		UserID:        user.ID,
		LicenseNumber: license,
		Specialty:     "General Practice",
		IsActive:      active,
		WorkloadCount: workload,
	}
	if err := db.Create(&doctor).Error; err != nil {
		t.Fatalf("failed to create doctor profile: %v", err)
	}
	return doctor, token
}

// performRequest runs an HTTP request against the router.
func performRequest(r *gin.Engine, method, path, body, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req = httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("session-token", token)
	}
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body %q: %v", w.Body.String(), err)
	}
	return body
}

// latestOTPCode reads the newest issued code for an email straight from the DB.
func latestOTPCode(t *testing.T, db *gorm.DB, email string) string {
	t.Helper()
	var otp model.OtpVerification
	if err := db.Where("email = ?", email).Order("id DESC").Take(&otp).Error; err != nil {
		t.Fatalf("no OTP row for %s: %v", email, err)
	}
	return otp.Code
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, w.Code, "body: %s", w.Body.String())
}

// failingMailer simulates an unreachable mail relay.
type failingMailer struct{}

func (failingMailer) SendOTP(string, string, time.Duration) error {
	return fmt.Errorf("smtp unreachable")
}

func (failingMailer) SendConsultationUpdate(string, string, string) error {
	return fmt.Errorf("smtp unreachable")
}

// useMailer swaps the package mailer for the duration of a test.
func useMailer(t *testing.T, m service.Mailer) {
	t.Helper()
	previous := mailer
	SetMailer(m)
	t.Cleanup(func() { mailer = previous })
}

// useDocumentDir points the generator at a per-test directory.
func useDocumentDir(t *testing.T) {
	t.Helper()
	previous := docGen
	SetDocumentGenerator(service.NewDocumentGenerator(t.TempDir()))
	t.Cleanup(func() { docGen = previous })
}
