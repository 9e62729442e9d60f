package endpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/freedocau/freedoc-api/config"
	"github.com/freedocau/freedoc-api/model"
	"github.com/freedocau/freedoc-api/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const otpFailureMsg = "Invalid or expired verification code"

type RegisterRequest struct {
	Email          string `json:"email" binding:"required,email" example:"alice@example.com"`
	FirstName      string `json:"first_name" binding:"required" example:"Alice"`
	LastName       string `json:"last_name" binding:"required" example:"Nguyen"`
	DateOfBirth    string `json:"date_of_birth" binding:"required" example:"1990-04-17"`
	MedicareNumber string `json:"medicare_number,omitempty"`
	PhoneNumber    string `json:"phone_number,omitempty"`
}

type VerifyOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

type ResendOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func otpTTL() time.Duration {
	cfg := config.LoadConfig()
	minutes := 10
	if cfg != nil && cfg.OTPTTLMinutes > 0 {
		minutes = cfg.OTPTTLMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// issueOTP generates a fresh code for the email and supersedes every earlier
// unverified code in the same transaction. Only the newest code is redeemable.
func issueOTP(db *gorm.DB, email string) (string, error) {
	code, err := util.GenerateOTPCode()
	if err != nil {
		return "", err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ? AND verified = ?", email, false).
			Delete(&model.OtpVerification{}).Error; err != nil {
			return err
		}
		otp := model.OtpVerification{
			Email:     email,
			Code:      code,
			ExpiresAt: time.Now().Add(otpTTL()),
		}
		return tx.Create(&otp).Error
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// Register godoc
// @Summary      Register a patient account
// @Description  Create an unverified patient account and email a verification code
// @Tags         Registration
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Patient details"
// @Success      200 {object} util.APIResponse "Verification code sent"
// @Failure      400 {object} util.APIResponse "Invalid request or email already registered"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /auth/register [post]
func Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	ci := getClientInfo(c)
	email := util.NormalizeEmail(req.Email)

	var existing model.User
	err := db.Where("email = ?", email).Take(&existing).Error
	if err == nil && existing.IsEmailVerified {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Email already registered",
			Err: fmt.Errorf("email already registered"),
		})
		return
	}
	if err != nil && err != gorm.ErrRecordNotFound {
		util.CallServerError(c, util.APIErrorParams{Msg: "Database error", Err: err})
		return
	}

	user := model.User{
		Email:          email,
		FirstName:      util.NormalizeName(req.FirstName),
		LastName:       util.NormalizeName(req.LastName),
		Role:           model.RolePatient,
		DateOfBirth:    req.DateOfBirth,
		MedicareNumber: req.MedicareNumber,
		PhoneNumber:    req.PhoneNumber,
	}

	if err == gorm.ErrRecordNotFound {
		if err := db.Create(&user).Error; err != nil {
			util.CallServerError(c, util.APIErrorParams{Msg: "Failed to create account", Err: err})
			return
		}
	} else {
		// Unverified account registering again: refresh the details.
		user.ID = existing.ID
		user.CreatedAt = existing.CreatedAt
		if err := db.Model(&existing).Updates(map[string]interface{}{
			"first_name":      user.FirstName,
			"last_name":       user.LastName,
			"date_of_birth":   user.DateOfBirth,
			"medicare_number": user.MedicareNumber,
			"phone_number":    user.PhoneNumber,
		}).Error; err != nil {
			util.CallServerError(c, util.APIErrorParams{Msg: "Failed to update account", Err: err})
			return
		}
	}

	code, err := issueOTP(db, email)
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to issue verification code", Err: err})
		return
	}

	// Delivery failure at registration time is surfaced to the caller; a code
	// nobody receives is not a success.
	if err := mailer.SendOTP(email, code, otpTTL()); err != nil {
		util.CallServerError(c, util.APIErrorParams{
			Msg: "Failed to send verification email",
			Err: fmt.Errorf("verification email delivery failed"),
		})
		return
	}

	util.LogSecurityEvent(util.SecurityEvent{
		EventType: util.EventRegistration,
		Email:     email,
		IP:        ci.IP,
		UserAgent: ci.Agent,
		Message:   "Patient registration started",
	})
	util.LogOTPIssued(email, ci.IP)

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "Verification code sent",
		Data: map[string]interface{}{
			"email":              email,
			"expires_in_minutes": int(otpTTL().Minutes()),
		},
	})
}

// VerifyOTP godoc
// @Summary      Verify an emailed code
// @Description  Redeem the newest verification code, mark the account verified and open a session
// @Tags         Registration
// @Accept       json
// @Produce      json
// @Param        request body VerifyOTPRequest true "Email and code"
// @Success      200 {object} util.APIResponse{data=LoginResponse} "Verified"
// @Failure      400 {object} util.APIResponse "Invalid or expired verification code"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /auth/verify-otp [post]
func VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	ci := getClientInfo(c)
	email := util.NormalizeEmail(req.Email)
	now := time.Now()

	// Only the newest code for the email is ever considered. The failure
	// response is identical for wrong, expired and superseded codes.
	var otp model.OtpVerification
	err := db.Where("email = ?", email).Order("id DESC").Take(&otp).Error
	if err == gorm.ErrRecordNotFound {
		util.LogOTPFailure(email, ci.IP, "no code on record")
		util.CallUserError(c, util.APIErrorParams{Msg: otpFailureMsg, Err: fmt.Errorf("verification failed")})
		return
	}
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Database error", Err: err})
		return
	}

	if !otp.Usable(now) || otp.Code != req.Code {
		reason := "code mismatch"
		if otp.Verified {
			reason = "code already used"
		} else if otp.Expired(now) {
			reason = "code expired"
		}
		util.LogOTPFailure(email, ci.IP, reason)
		util.CallUserError(c, util.APIErrorParams{Msg: otpFailureMsg, Err: fmt.Errorf("verification failed")})
		return
	}

	var user model.User
	if err := db.Where("email = ?", email).Take(&user).Error; err != nil {
		util.LogOTPFailure(email, ci.IP, "no account for email")
		util.CallUserError(c, util.APIErrorParams{Msg: otpFailureMsg, Err: fmt.Errorf("verification failed")})
		return
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&otp).Update("verified", true).Error; err != nil {
			return err
		}
		if !user.IsEmailVerified {
			if err := tx.Model(&user).Update("is_email_verified", true).Error; err != nil {
				return err
			}
			user.IsEmailVerified = true
		}
		return nil
	})
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to verify account", Err: err})
		return
	}

	util.LogSecurityEvent(util.SecurityEvent{
		EventType: util.EventOTPVerified,
		UserID:    fmt.Sprintf("%d", user.ID),
		Email:     email,
		IP:        ci.IP,
		UserAgent: ci.Agent,
		Message:   "Email verified",
	})

	openSessionAndRespond(c, db, &user, ci, "Email verified")
}

// ResendOTP godoc
// @Summary      Resend a verification code
// @Description  Issue a fresh code for the email, superseding earlier ones
// @Tags         Registration
// @Accept       json
// @Produce      json
// @Param        request body ResendOTPRequest true "Email"
// @Success      200 {object} util.APIResponse "Verification code sent"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /auth/resend-otp [post]
func ResendOTP(c *gin.Context) {
	var req ResendOTPRequest
	if !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	ci := getClientInfo(c)
	email := util.NormalizeEmail(req.Email)

	// Respond identically whether or not an account exists so the endpoint
	// cannot be used to probe for registered emails.
	var user model.User
	err := db.Where("email = ?", email).Take(&user).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		util.CallServerError(c, util.APIErrorParams{Msg: "Database error", Err: err})
		return
	}

	if err == nil {
		code, err := issueOTP(db, email)
		if err != nil {
			util.CallServerError(c, util.APIErrorParams{Msg: "Failed to issue verification code", Err: err})
			return
		}
		if err := mailer.SendOTP(email, code, otpTTL()); err != nil {
			util.CallServerError(c, util.APIErrorParams{
				Msg: "Failed to send verification email",
				Err: fmt.Errorf("verification email delivery failed"),
			})
			return
		}
		util.LogOTPIssued(email, ci.IP)
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "Verification code sent",
		Data: map[string]interface{}{
			"email":              email,
			"expires_in_minutes": int(otpTTL().Minutes()),
		},
	})
}

// CleanupExpiredOTPs deletes expired unverified codes. Run periodically from
// a background goroutine.
func CleanupExpiredOTPs(ctx context.Context, db *gorm.DB) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at < ? AND verified = ?", time.Now(), false).
		Delete(&model.OtpVerification{})
	return res.RowsAffected, res.Error
}
