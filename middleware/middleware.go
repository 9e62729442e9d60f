package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/freedocau/freedoc-api/config"
	"github.com/freedocau/freedoc-api/model"
	"github.com/freedocau/freedoc-api/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	// Context keys set by ValidateLoginToken.
	UserIDKey = "user_id"
	RoleKey   = "role"

	dbKey = "db"
)

func setCorsHeaders(c *gin.Context) {
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
	c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, DELETE, PATCH")
	c.Writer.Header().Set("Access-Control-Allow-Headers", "X-Requested-With, Content-Type, Authorization, session-token")
	c.Writer.Header().Set("Access-Control-Max-Age", "86400")
	c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
	c.Writer.Header().Set("Content-Type", "application/json")
}

// CORSMiddleware configures CORS headers for incoming requests.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		setCorsHeaders(c)

		// For preflight requests, respond with 204 and abort further processing.
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// DatabaseMiddleware injects the gorm DB handle into the request context.
func DatabaseMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(dbKey, db)
		c.Next()
	}
}

// GetDB returns the DB handle set by DatabaseMiddleware, or nil.
func GetDB(c *gin.Context) *gorm.DB {
	if v, ok := c.Get(dbKey); ok {
		if db, ok := v.(*gorm.DB); ok {
			return db
		}
	}
	return nil
}

// GetUserID returns the authenticated user ID from context.
func GetUserID(c *gin.Context) (uint, bool) {
	if v, ok := c.Get(UserIDKey); ok {
		if id, ok := v.(uint); ok {
			return id, true
		}
	}
	return 0, false
}

// GetRole returns the authenticated user's role from context.
func GetRole(c *gin.Context) (model.UserRole, bool) {
	if v, ok := c.Get(RoleKey); ok {
		if role, ok := v.(model.UserRole); ok {
			return role, true
		}
	}
	return "", false
}

// sessionFromRedis tries the Redis mirror key first. Values are stored as
// "<userID>:<role>". Returns false on any miss or malformed value so the
// caller falls back to the DB row.
func sessionFromRedis(token string) (uint, model.UserRole, bool) {
	rdb := config.GetRedisClient()
	if rdb == nil {
		return 0, "", false
	}
	val, err := rdb.Get(context.Background(), util.SessionKey(token)).Result()
	if err != nil {
		return 0, "", false
	}
	parts := strings.SplitN(val, ":", 2)
	if len(parts) != 2 {
		return 0, "", false
	}
	id64, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil || id64 == 0 {
		return 0, "", false
	}
	role := model.UserRole(parts[1])
	if !role.Valid() {
		return 0, "", false
	}
	return uint(id64), role, true
}

// ValidateLoginToken authenticates the session-token header. It consults the
// Redis mirror first and falls back to the sessions table. On success it sets
// UserIDKey and RoleKey in the context.
func ValidateLoginToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("session-token")
		if token == "" {
			util.CallUserNotAuthorized(c, util.APIErrorParams{
				Msg: "Missing session token",
				Err: fmt.Errorf("session-token header not provided"),
			})
			c.Abort()
			return
		}

		if userID, role, ok := sessionFromRedis(token); ok {
			c.Set(UserIDKey, userID)
			c.Set(RoleKey, role)
			c.Next()
			return
		}

		db := GetDB(c)
		if db == nil {
			util.CallServerError(c, util.APIErrorParams{
				Msg: "Database not available",
				Err: fmt.Errorf("database not found in context"),
			})
			c.Abort()
			return
		}

		var session model.Session
		if err := db.Where("session_token = ?", token).Take(&session).Error; err != nil {
			util.CallUserNotAuthorized(c, util.APIErrorParams{
				Msg: "Invalid session token",
				Err: fmt.Errorf("session not found"),
			})
			c.Abort()
			return
		}
		if time.Now().After(session.ExpiresAt) {
			util.CallUserNotAuthorized(c, util.APIErrorParams{
				Msg: "Session expired",
				Err: fmt.Errorf("session expired at %s", session.ExpiresAt),
			})
			c.Abort()
			return
		}

		var user model.User
		if err := db.Take(&user, session.UserID).Error; err != nil {
			util.CallUserNotAuthorized(c, util.APIErrorParams{
				Msg: "Invalid session token",
				Err: fmt.Errorf("session user not found"),
			})
			c.Abort()
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Set(RoleKey, user.Role)
		c.Next()
	}
}

// RequireRole rejects requests whose authenticated role is not in the allowed
// set. Must run after ValidateLoginToken.
func RequireRole(allowed ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetRole(c)
		if !ok {
			util.CallUserNotAuthorized(c, util.APIErrorParams{
				Msg: "Authentication required",
				Err: fmt.Errorf("no role in context"),
			})
			c.Abort()
			return
		}
		for _, a := range allowed {
			if role == a {
				c.Next()
				return
			}
		}
		util.CallForbidden(c, util.APIErrorParams{
			Msg: "Insufficient permissions",
			Err: fmt.Errorf("role %s not permitted", role),
		})
		c.Abort()
	}
}
