package endpoint

import (
	"net/http"
	"testing"

	"github.com/freedocau/freedoc-api/model"
	"github.com/freedocau/freedoc-api/util"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func createPasswordUser(t *testing.T, db *gorm.DB, email, password string, role model.UserRole) model.User {
	t.Helper()
	salt, err := util.GenerateSalt()
	assert.NoError(t, err)
	hashed, err := util.HashPasswordArgon2(password, salt)
	assert.NoError(t, err)

	user := model.User{
		Email:           email,
		FirstName:       "Pass",
		LastName:        "User",
		Role:            role,
		IsEmailVerified: true,
		Password:        hashed,
		PasswordSalt:    salt,
	}
	assert.NoError(t, db.Create(&user).Error)
	return user
}

func TestLoginSuccess(t *testing.T) {
	r, db := setupEndpointTest(t, "login_ok")
	createPasswordUser(t, db, "doc@example.com", "hunter2hunter2", model.RoleDoctor)

	w := performRequest(r, "POST", "/auth/login",
		`{"email":"doc@example.com","password":"hunter2hunter2"}`, "")
	assertStatus(t, w, http.StatusOK)

	data := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.NotEmpty(t, data["token"])
	assert.Equal(t, "doctor", data["role"])

	var sessions int64
	assert.NoError(t, db.Model(&model.Session{}).Count(&sessions).Error)
	assert.Equal(t, int64(1), sessions)
}

func TestLoginWrongPassword(t *testing.T) {
	r, db := setupEndpointTest(t, "login_bad")
	user := createPasswordUser(t, db, "doc2@example.com", "hunter2hunter2", model.RoleDoctor)

	w := performRequest(r, "POST", "/auth/login",
		`{"email":"doc2@example.com","password":"nope"}`, "")
	assertStatus(t, w, http.StatusBadRequest)
	assert.Equal(t, "Invalid email or password", decodeResponse(t, w)["msg"])

	var updated model.User
	assert.NoError(t, db.Take(&updated, user.ID).Error)
	assert.Equal(t, 1, updated.FailedAttempts)
}

func TestLoginUnknownEmailSameMessage(t *testing.T) {
	r, _ := setupEndpointTest(t, "login_unknown")

	w := performRequest(r, "POST", "/auth/login",
		`{"email":"nobody@example.com","password":"whatever"}`, "")
	assertStatus(t, w, http.StatusBadRequest)
	assert.Equal(t, "Invalid email or password", decodeResponse(t, w)["msg"])
}

func TestLoginLockoutAfterFiveFailures(t *testing.T) {
	r, db := setupEndpointTest(t, "login_lockout")
	user := createPasswordUser(t, db, "doc3@example.com", "hunter2hunter2", model.RoleDoctor)

	for i := 0; i < 5; i++ {
		w := performRequest(r, "POST", "/auth/login",
			`{"email":"doc3@example.com","password":"wrong"}`, "")
		assertStatus(t, w, http.StatusBadRequest)
	}

	var locked model.User
	assert.NoError(t, db.Take(&locked, user.ID).Error)
	assert.NotNil(t, locked.LockedUntil)

	// Even the correct password is rejected while locked.
	w := performRequest(r, "POST", "/auth/login",
		`{"email":"doc3@example.com","password":"hunter2hunter2"}`, "")
	assertStatus(t, w, http.StatusBadRequest)
	assert.Contains(t, decodeResponse(t, w)["msg"], "locked")
}

func TestLoginRejectsPatientWithoutPassword(t *testing.T) {
	r, db := setupEndpointTest(t, "login_otp_only")
	createTestUser(t, db, "patient@example.com", model.RolePatient)

	w := performRequest(r, "POST", "/auth/login",
		`{"email":"patient@example.com","password":"anything"}`, "")
	assertStatus(t, w, http.StatusBadRequest)
	assert.Equal(t, "Invalid email or password", decodeResponse(t, w)["msg"])
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	r, db := setupEndpointTest(t, "login_legacy")

	legacy := util.HashPasswordLegacy("oldsecretpw")
	user := model.User{
		Email:           "legacy@example.com",
		Role:            model.RoleDoctor,
		IsEmailVerified: true,
		Password:        legacy,
	}
	assert.NoError(t, db.Create(&user).Error)

	w := performRequest(r, "POST", "/auth/login",
		`{"email":"legacy@example.com","password":"oldsecretpw"}`, "")
	assertStatus(t, w, http.StatusOK)

	var upgraded model.User
	assert.NoError(t, db.Take(&upgraded, user.ID).Error)
	assert.Contains(t, upgraded.Password, "argon2id$")
	assert.NotEmpty(t, upgraded.PasswordSalt)
}

func TestLogoutDeletesSession(t *testing.T) {
	r, db := setupEndpointTest(t, "logout")
	user, token := createTestUser(t, db, "out@example.com", model.RolePatient)

	w := performRequest(r, "DELETE", "/auth/logout", "", token)
	assertStatus(t, w, http.StatusOK)

	var sessions int64
	assert.NoError(t, db.Model(&model.Session{}).Where("user_id = ?", user.ID).Count(&sessions).Error)
	assert.Equal(t, int64(0), sessions)

	// The dead token no longer authenticates.
	w = performRequest(r, "GET", "/auth/user", "", token)
	assertStatus(t, w, http.StatusUnauthorized)
}

func TestCurrentUserResolvesFromSession(t *testing.T) {
	r, db := setupEndpointTest(t, "current_user")
	user, token := createTestUser(t, db, "me@example.com", model.RoleAdmin)

	w := performRequest(r, "GET", "/auth/user", "", token)
	assertStatus(t, w, http.StatusOK)

	data := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "me@example.com", data["email"])
	assert.Equal(t, "admin", data["role"])
	assert.Equal(t, float64(user.ID), data["ID"])

	// Credential fields never serialize.
	_, hasPassword := data["password"]
	assert.False(t, hasPassword)
}

func TestCurrentUserRequiresToken(t *testing.T) {
	r, _ := setupEndpointTest(t, "current_user_noauth")
	w := performRequest(r, "GET", "/auth/user", "", "")
	assertStatus(t, w, http.StatusUnauthorized)
}

func TestSessionTokenIsJWT(t *testing.T) {
	r, db := setupEndpointTest(t, "login_jwt")
	createPasswordUser(t, db, "jwt@example.com", "hunter2hunter2", model.RoleAdmin)

	w := performRequest(r, "POST", "/auth/login",
		`{"email":"jwt@example.com","password":"hunter2hunter2"}`, "")
	assertStatus(t, w, http.StatusOK)

	token := decodeResponse(t, w)["data"].(map[string]interface{})["token"].(string)
	// Three dot-separated segments
	assert.Equal(t, 2, countDots(token), "expected JWT shape, got %q", token)
}

func countDots(s string) int {
	n := 0
	for _, r := range s {
		if r == '.' {
			n++
		}
	}
	return n
}

func TestLoginBindsEmailFormat(t *testing.T) {
	r, _ := setupEndpointTest(t, "login_badjson")
	w := performRequest(r, "POST", "/auth/login", `{"email":"not-an-email","password":"x"}`, "")
	assertStatus(t, w, http.StatusBadRequest)
	assert.Equal(t, false, decodeResponse(t, w)["success"])
}
