// main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/freedocau/freedoc-api/config"
	"github.com/freedocau/freedoc-api/endpoint"
	"github.com/freedocau/freedoc-api/middleware"
	"github.com/freedocau/freedoc-api/model"
	"github.com/freedocau/freedoc-api/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func main() {
	// Load the configuration
	cfg := config.LoadConfig()

	db, err := config.ConnectDB()
	if err != nil {
		log.Fatalf("Error connecting to database: %v", err)
	}
	if err := db.AutoMigrate(model.AllModels...); err != nil {
		log.Fatalf("Error running migrations: %v", err)
	}

	config.ConnectRedis()

	util.SetJWTSecret(os.Getenv("JWTSECRET"))
	util.SetSecurityLoggerDB(db)
	util.InitUserEmailCacheFromEnv()
	if err := util.InitGeoIP(""); err != nil {
		log.Printf("GeoIP disabled: %v", err)
	}
	defer util.CloseGeoIP()

	endpoint.InitFromConfig(cfg)

	if err := seedAdmin(db); err != nil {
		log.Fatalf("Error seeding admin user: %v", err)
	}

	go cleanupExpiredOTPs(db)

	// Set Gin mode from config
	gin.SetMode(cfg.GinMode)

	router := gin.Default()
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.DatabaseMiddleware(db))
	router.Use(middleware.EndpointCallLogger())

	// Basic HTTP handler for root path
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("Welcome to %s!", cfg.AppName),
		})
	})

	registerRoutes(router)

	// Start server on specified port
	address := fmt.Sprintf(":%d", cfg.AppPort)
	if err := router.Run(address); err != nil {
		log.Fatalf("error starting server: %v", err)
	}
}

func registerRoutes(router *gin.Engine) {
	authLimiter := middleware.RateLimiter(middleware.RateLimitConfig{})

	auth := router.Group("/auth")
	{
		auth.POST("/register", authLimiter, endpoint.Register)
		auth.POST("/verify-otp", authLimiter, endpoint.VerifyOTP)
		auth.POST("/resend-otp", authLimiter, endpoint.ResendOTP)
		auth.POST("/login", authLimiter, endpoint.Login)
		auth.DELETE("/logout", endpoint.Logout)
		auth.GET("/user", middleware.ValidateLoginToken(), endpoint.CurrentUser)
	}

	consultations := router.Group("/consultations", middleware.ValidateLoginToken())
	{
		consultations.POST("", endpoint.SubmitConsultation)
		consultations.POST("/submit", endpoint.SubmitAndAssign)
		consultations.GET("", endpoint.ListConsultations)
		consultations.GET("/:id", endpoint.GetConsultation)
		consultations.GET("/:id/document", endpoint.DownloadConsultationDocument)
		consultations.POST("/:id/cancel", endpoint.CancelConsultation)

		doctorOnly := middleware.RequireRole(model.RoleDoctor, model.RoleAdmin)
		consultations.POST("/:id/start", doctorOnly, endpoint.StartConsultation)
		consultations.POST("/:id/complete", doctorOnly, endpoint.CompleteConsultation)
		consultations.PATCH("/:id/notes", doctorOnly, endpoint.UpdateConsultationNotes)

		adminOnly := middleware.RequireRole(model.RoleAdmin)
		consultations.POST("/:id/assign", adminOnly, endpoint.AssignConsultation)
		consultations.POST("/:id/reassign", adminOnly, endpoint.ReassignConsultation)
	}

	admin := router.Group("/admin", middleware.ValidateLoginToken(), middleware.RequireRole(model.RoleAdmin))
	{
		admin.GET("/stats", endpoint.AdminStats)
		admin.GET("/users", endpoint.ListUsers)
		admin.GET("/security-logs", endpoint.ListSecurityLogs)
		admin.POST("/doctors", endpoint.CreateDoctor)
		admin.GET("/doctors", endpoint.ListDoctors)
		admin.PATCH("/doctors/:id", endpoint.UpdateDoctor)
	}
}

// seedAdmin creates the initial admin account from environment credentials.
// Skipped when the variables are unset.
func seedAdmin(db *gorm.DB) error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Println("ADMIN_EMAIL/ADMIN_PASSWORD not set, skipping admin seed")
		return nil
	}

	salt, err := util.GenerateSalt()
	if err != nil {
		return err
	}
	hashed, err := util.HashPasswordArgon2(password, salt)
	if err != nil {
		return err
	}
	return model.SeedAdminUser(db, util.NormalizeEmail(email), hashed, salt)
}

// cleanupExpiredOTPs prunes expired unverified codes every hour.
func cleanupExpiredOTPs(db *gorm.DB) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		n, err := endpoint.CleanupExpiredOTPs(ctx, db)
		cancel()
		if err != nil {
			log.Printf("expired OTP cleanup failed: %v", err)
			continue
		}
		if n > 0 {
			log.Printf("removed %d expired verification codes", n)
		}
	}
}
