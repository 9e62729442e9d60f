package endpoint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/freedocau/freedoc-api/config"
	"github.com/freedocau/freedoc-api/model"
	"github.com/freedocau/freedoc-api/util"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

const sessionDuration = time.Hour

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email" example:"doctor@example.com"`
	Password string `json:"password" binding:"required" example:"password123"`
}

type LoginResponse struct {
	Token  string         `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	Role   model.UserRole `json:"role" example:"doctor"`
	UserID uint           `json:"user_id" example:"1"`
}

// Login godoc
// @Summary      Password login for doctors and admins
// @Description  Authenticate with email and password and open a session
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} util.APIResponse{data=LoginResponse} "Login successful"
// @Failure      400 {object} util.APIResponse "Invalid email or password"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /auth/login [post]
func Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	ci := getClientInfo(c)
	email := util.NormalizeEmail(req.Email)

	var user model.User
	err := db.Where("email = ?", email).Take(&user).Error
	if err == gorm.ErrRecordNotFound {
		util.LogLoginFailure(email, ci.IP, ci.Agent, "user not found")
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid email or password", Err: fmt.Errorf("invalid credentials")})
		return
	}
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Database error", Err: err})
		return
	}

	// Patient accounts carry no password; they authenticate through the
	// emailed verification code instead.
	if user.Password == "" {
		util.LogLoginFailure(email, ci.IP, ci.Agent, "password login not enabled for account")
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid email or password", Err: fmt.Errorf("invalid credentials")})
		return
	}

	if locked, expiry := isAccountLocked(&user); locked {
		util.LogLoginFailure(email, ci.IP, ci.Agent, "account locked")
		util.CallUserError(c, util.APIErrorParams{
			Msg: fmt.Sprintf("Account is locked until %s due to multiple failed login attempts", expiry.Format(time.RFC3339)),
			Err: fmt.Errorf("account locked"),
		})
		return
	}

	match, err := util.VerifyPassword(req.Password, user.Password, user.PasswordSalt)
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Password verification failed", Err: err})
		return
	}
	if !match {
		incrementFailedAttempts(db, &user, ci)
		util.LogLoginFailure(email, ci.IP, ci.Agent, "invalid password")
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid email or password", Err: fmt.Errorf("invalid credentials")})
		return
	}

	if err := resetFailedAttempts(db, &user); err != nil {
		util.LogSecurityEvent(util.SecurityEvent{
			EventType: util.EventSuspiciousActivity,
			UserID:    fmt.Sprintf("%d", user.ID),
			Email:     user.Email,
			IP:        ci.IP,
			Message:   fmt.Sprintf("Failed to reset failed attempts: %v", err),
		})
	}

	// Upgrade legacy password hashes in place (best-effort).
	_ = upgradeLegacyPasswordIfNeeded(db, &user, req.Password, ci)

	util.LogLoginSuccess(user.ID, user.Email, ci.IP, ci.Agent)
	openSessionAndRespond(c, db, &user, ci, "Login successful")
}

func isAccountLocked(user *model.User) (bool, time.Time) {
	if user.LockedUntil != nil && *user.LockedUntil > time.Now().Unix() {
		return true, time.Unix(*user.LockedUntil, 0)
	}
	return false, time.Time{}
}

func incrementFailedAttempts(db *gorm.DB, user *model.User, ci clientInfo) {
	user.FailedAttempts++
	if user.FailedAttempts >= 5 {
		lockUntil := time.Now().Add(15 * time.Minute).Unix()
		user.LockedUntil = &lockUntil
		util.LogAccountLocked(user.ID, user.Email, ci.IP, "too many failed login attempts")
	}
	if err := db.Save(user).Error; err != nil {
		util.LogLoginFailure(user.Email, ci.IP, ci.Agent, "failed to update failed attempts")
	}
}

func resetFailedAttempts(db *gorm.DB, user *model.User) error {
	if user.FailedAttempts > 0 || user.LockedUntil != nil {
		user.FailedAttempts = 0
		user.LockedUntil = nil
		return db.Save(user).Error
	}
	return nil
}

func upgradeLegacyPasswordIfNeeded(db *gorm.DB, user *model.User, plain string, ci clientInfo) error {
	if strings.HasPrefix(user.Password, "argon2id$") {
		return nil
	}
	salt, err := util.GenerateSalt()
	if err != nil {
		return err
	}
	hashed, herr := util.HashPasswordArgon2(plain, salt)
	if herr != nil {
		return herr
	}
	user.Password = hashed
	user.PasswordSalt = salt
	if err := db.Save(user).Error; err != nil {
		util.LogSecurityEvent(util.SecurityEvent{
			EventType: util.EventSuspiciousActivity,
			UserID:    fmt.Sprintf("%d", user.ID),
			Email:     user.Email,
			IP:        ci.IP,
			Message:   fmt.Sprintf("Failed to upgrade password hash: %v", err),
		})
		return err
	}
	util.LogSecurityEvent(util.SecurityEvent{
		EventType: util.EventPasswordChanged,
		UserID:    fmt.Sprintf("%d", user.ID),
		Email:     user.Email,
		IP:        ci.IP,
		Message:   "Upgraded password hash to Argon2",
	})
	return nil
}

func createSessionToken(user *model.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  string(user.Role),
		"exp":   time.Now().Add(sessionDuration).Unix(),
	})
	return token.SignedString(util.GetJWTSecretByte())
}

// openSessionAndRespond creates the session row, mirrors it into Redis and
// returns the token. Shared by password login and OTP verification.
func openSessionAndRespond(c *gin.Context, db *gorm.DB, user *model.User, ci clientInfo, msg string) {
	tokenString, err := createSessionToken(user)
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Could not generate token", Err: err})
		return
	}

	session := model.Session{
		UserID:       user.ID,
		SessionToken: tokenString,
		ExpiresAt:    time.Now().Add(sessionDuration),
		ClientIP:     ci.IP,
		Browser:      ci.Agent,
	}
	if err := db.Create(&session).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to record session", Err: err})
		return
	}

	if rdb := config.GetRedisClient(); rdb != nil {
		exp := time.Until(session.ExpiresAt)
		val := fmt.Sprintf("%d:%s", user.ID, user.Role)
		_ = rdb.Set(context.Background(), util.SessionKey(tokenString), val, exp).Err()
		_ = util.AddSessionToUserSet(user.ID, tokenString, exp)
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  msg,
		Data: LoginResponse{Token: tokenString, Role: user.Role, UserID: user.ID},
	})
}

// Logout godoc
// @Summary      User logout
// @Description  Invalidate the session token
// @Tags         Authentication
// @Produce      json
// @Security     SessionToken
// @Success      200 {object} util.APIResponse "Logout successful"
// @Failure      400 {object} util.APIResponse "Session not found"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /auth/logout [delete]
func Logout(c *gin.Context) {
	sessionToken := c.GetHeader("session-token")
	if sessionToken == "" {
		util.CallUserNotAuthorized(c, util.APIErrorParams{
			Msg: "Session token not provided",
			Err: fmt.Errorf("session token not provided"),
		})
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	var session model.Session
	if err := db.Where("session_token = ?", sessionToken).Take(&session).Error; err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Session not found", Err: err})
		return
	}

	var user model.User
	if err := db.Take(&user, session.UserID).Error; err == nil {
		util.LogLogout(user.ID, user.Email, c.ClientIP(), c.Request.UserAgent())
	}

	if err := db.Where("session_token = ?", sessionToken).Delete(&session).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to delete session", Err: err})
		return
	}

	if rdb := config.GetRedisClient(); rdb != nil {
		_ = rdb.Del(context.Background(), util.SessionKey(sessionToken)).Err()
		_ = util.RemoveSessionTokenFromUserSet(session.UserID, sessionToken)
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Logout successful"})
}

// CurrentUser godoc
// @Summary      Current account
// @Description  Return the account resolved from the session token
// @Tags         Authentication
// @Produce      json
// @Security     SessionToken
// @Success      200 {object} util.APIResponse{data=model.User} "Current user"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      404 {object} util.APIResponse "User not found"
// @Router       /auth/user [get]
func CurrentUser(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	userID, ok := currentUserIDOrRespond(c)
	if !ok {
		return
	}

	user, ok := loadUserOrRespond(c, db, userID)
	if !ok {
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Current user", Data: user})
}
