package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/freedocau/freedoc-api/config"
	"github.com/freedocau/freedoc-api/model"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newInMemoryDB creates an in-memory sqlite DB and runs required migrations for tests.
func newInMemoryDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Session{}); err != nil {
		t.Fatalf("failed to auto-migrate: %v", err)
	}
	return db
}

type testSessionParams struct {
	role      model.UserRole
	token     string
	expiresAt time.Time
}

// createTestUserAndSession creates a user and associated session in the provided DB.
func createTestUserAndSession(t *testing.T, db *gorm.DB, params testSessionParams) (model.User, model.Session) {
	if params.role == "" {
		params.role = model.RolePatient
	}
	user := model.User{
		FirstName: "Test",
		LastName:  "User",
		Email:     "test@example.com",
		Role:      params.role,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	if params.expiresAt.IsZero() {
		params.expiresAt = time.Now().Add(time.Hour)
	}
	session := model.Session{
		SessionToken: params.token,
		UserID:       user.ID,
		ExpiresAt:    params.expiresAt,
		ClientIP:     "127.0.0.1",
		Browser:      "test-browser",
	}
	if err := db.Create(&session).Error; err != nil {
		t.Fatalf("failed to create test session: %v", err)
	}
	return user, session
}

func newTestDBWithUserSession(t *testing.T, params testSessionParams) (*gorm.DB, model.User, model.Session) {
	db := newInMemoryDB(t)
	user, session := createTestUserAndSession(t, db, params)
	return db, user, session
}

func runValidateLoginTokenRequest(db *gorm.DB, token string, handler gin.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)
	if db != nil {
		r.Use(DatabaseMiddleware(db))
	}
	r.GET("/test", ValidateLoginToken(), handler)
	req := httptest.NewRequest("GET", "/test", nil)
	if token != "" {
		req.Header.Set("session-token", token)
	}
	r.ServeHTTP(w, req)
	return w
}

func setGinTestMode() {
	gin.SetMode(gin.TestMode)
}

func setupRedisMock(t *testing.T) redismock.ClientMock {
	rdb, mock := redismock.NewClientMock()
	config.SetRedisClientForTest(rdb)
	t.Cleanup(func() {
		config.ResetRedisClientForTest()
	})
	return mock
}

func assertUserContext(t *testing.T, c *gin.Context, user model.User, msg string) {
	t.Helper()
	gotID, ok := GetUserID(c)
	if !ok || gotID != user.ID {
		t.Errorf("expected user_id %d in context, got %v (present=%v)%s", user.ID, gotID, ok, msg)
	}
	gotRole, ok := GetRole(c)
	if !ok || gotRole != user.Role {
		t.Errorf("expected role %s in context, got %v (present=%v)%s", user.Role, gotRole, ok, msg)
	}
}

func TestSetCorsHeadersDefaults(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/", nil)

	setCorsHeaders(c)

	if got := c.Writer.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Fatalf("expected Access-Control-Allow-Origin header to be set")
	}
	if got := c.Writer.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Fatalf("expected Access-Control-Allow-Methods header to be set")
	}
}

func TestCORSMiddlewarePreflight(t *testing.T) {
	setGinTestMode()
	r := gin.New()
	r.Use(CORSMiddleware())
	r.GET("/x", func(c *gin.Context) { c.Status(200) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest("OPTIONS", "/x", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", w.Code)
	}
}

func TestDatabaseMiddlewareAndGetDB(t *testing.T) {
	setGinTestMode()
	r := gin.New()
	db := &gorm.DB{}
	r.Use(DatabaseMiddleware(db))
	r.GET("/testdb", func(c *gin.Context) {
		got := GetDB(c)
		if got == nil || got != db {
			c.AbortWithStatus(500)
			return
		}
		c.Status(200)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/testdb", nil)
	r.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200 from handler with DB set, got %d", w.Code)
	}
}

func TestValidateLoginToken_MissingSessionToken(t *testing.T) {
	setGinTestMode()

	db := &gorm.DB{}
	w := runValidateLoginTokenRequest(db, "", func(c *gin.Context) {
		c.Status(200)
	})

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when session token missing, got %d", w.Code)
	}
}

func TestValidateLoginToken_MissingDatabase(t *testing.T) {
	setGinTestMode()

	w := runValidateLoginTokenRequest(nil, "test-token", func(c *gin.Context) {
		c.Status(200)
	})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when database missing, got %d", w.Code)
	}
}

func TestValidateLoginToken_RedisFastPath(t *testing.T) {
	setGinTestMode()

	mock := setupRedisMock(t)
	mock.ExpectGet("session:valid-token").SetVal("123:doctor")

	db := &gorm.DB{}
	w := runValidateLoginTokenRequest(db, "valid-token", func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok || userID != 123 {
			t.Errorf("expected user_id 123 from redis, got %v (present=%v)", userID, ok)
		}
		role, ok := GetRole(c)
		if !ok || role != model.RoleDoctor {
			t.Errorf("expected role doctor from redis, got %v (present=%v)", role, ok)
		}
		c.Status(200)
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 when Redis parse succeeds, got %d", w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Redis expectations were not met: %v", err)
	}
}

func TestValidateLoginToken_RedisMalformedValue_DBFallback(t *testing.T) {
	setGinTestMode()

	mock := setupRedisMock(t)
	mock.ExpectGet("session:malformed-token").SetVal("abc:doctor")

	db, user, _ := newTestDBWithUserSession(t, testSessionParams{role: model.RoleDoctor, token: "malformed-token"})

	w := runValidateLoginTokenRequest(db, "malformed-token", func(c *gin.Context) {
		assertUserContext(t, c, user, " from DB fallback")
		c.Status(200)
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 when DB fallback succeeds after Redis parse error, got %d", w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Redis expectations were not met: %v", err)
	}
}

func TestValidateLoginToken_RedisInvalidRole_DBFallback(t *testing.T) {
	setGinTestMode()

	mock := setupRedisMock(t)
	mock.ExpectGet("session:bad-role-token").SetVal("123:superuser")

	db, user, _ := newTestDBWithUserSession(t, testSessionParams{role: model.RolePatient, token: "bad-role-token"})

	w := runValidateLoginTokenRequest(db, "bad-role-token", func(c *gin.Context) {
		assertUserContext(t, c, user, " from DB fallback")
		c.Status(200)
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 when DB fallback succeeds after invalid role, got %d", w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Redis expectations were not met: %v", err)
	}
}

func TestValidateLoginToken_RedisNotAvailable_DBFallback(t *testing.T) {
	setGinTestMode()

	config.ResetRedisClientForTest()
	defer config.ResetRedisClientForTest()

	db, user, _ := newTestDBWithUserSession(t, testSessionParams{role: model.RoleAdmin, token: "db-only-token"})

	w := runValidateLoginTokenRequest(db, "db-only-token", func(c *gin.Context) {
		assertUserContext(t, c, user, " from DB")
		c.Status(200)
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 when DB lookup succeeds, got %d", w.Code)
	}
}

func TestValidateLoginToken_DBFallback_ExpiredSession(t *testing.T) {
	setGinTestMode()

	config.ResetRedisClientForTest()
	defer config.ResetRedisClientForTest()

	db, _, _ := newTestDBWithUserSession(t, testSessionParams{token: "expired-token", expiresAt: time.Now().Add(-time.Hour)})

	w := runValidateLoginTokenRequest(db, "expired-token", func(c *gin.Context) {
		c.Status(200)
	})

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when session is expired, got %d", w.Code)
	}
}

func TestValidateLoginToken_RedisKeyNotFound_DBFallback(t *testing.T) {
	setGinTestMode()

	mock := setupRedisMock(t)
	mock.ExpectGet("session:notfound-token").RedisNil()

	db, user, _ := newTestDBWithUserSession(t, testSessionParams{token: "notfound-token"})

	w := runValidateLoginTokenRequest(db, "notfound-token", func(c *gin.Context) {
		assertUserContext(t, c, user, " from DB fallback")
		c.Status(200)
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 when DB fallback succeeds after Redis key not found, got %d", w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Redis expectations were not met: %v", err)
	}
}

func TestRequireRole(t *testing.T) {
	setGinTestMode()

	r := gin.New()
	r.GET("/admin-only",
		func(c *gin.Context) {
			c.Set(UserIDKey, uint(1))
			c.Set(RoleKey, model.RoleDoctor)
		},
		RequireRole(model.RoleAdmin),
		func(c *gin.Context) { c.Status(200) },
	)
	r.GET("/doctor-ok",
		func(c *gin.Context) {
			c.Set(UserIDKey, uint(1))
			c.Set(RoleKey, model.RoleDoctor)
		},
		RequireRole(model.RoleDoctor, model.RoleAdmin),
		func(c *gin.Context) { c.Status(200) },
	)
	r.GET("/no-role", RequireRole(model.RoleAdmin), func(c *gin.Context) { c.Status(200) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/admin-only", nil))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong role, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/doctor-ok", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for allowed role, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/no-role", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when no role in context, got %d", w.Code)
	}
}
