package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashAndVerifyArgon2(t *testing.T) {
	salt, err := GenerateSalt()
	assert.NoError(t, err)
	assert.NotEmpty(t, salt)

	hashed, err := HashPasswordArgon2("correct horse battery staple", salt)
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(hashed, "argon2id$"))

	match, err := VerifyPassword("correct horse battery staple", hashed, salt)
	assert.NoError(t, err)
	assert.True(t, match)

	match, err = VerifyPassword("wrong password", hashed, salt)
	assert.NoError(t, err)
	assert.False(t, match)
}

func TestVerifyPasswordLegacyFallback(t *testing.T) {
	SetJWTSecret("legacy-secret")

	legacy := HashPasswordLegacy("oldpassword")
	assert.NotContains(t, legacy, "argon2id$")

	match, err := VerifyPassword("oldpassword", legacy, "")
	assert.NoError(t, err)
	assert.True(t, match)

	match, err = VerifyPassword("notit", legacy, "")
	assert.NoError(t, err)
	assert.False(t, match)
}

func TestHashPasswordArgon2RejectsBadSalt(t *testing.T) {
	_, err := HashPasswordArgon2("pw", "not base64 !!!")
	assert.Error(t, err)
}

func TestSaltsAreUnique(t *testing.T) {
	a, err := GenerateSalt()
	assert.NoError(t, err)
	b, err := GenerateSalt()
	assert.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestGenerateOTPCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateOTPCode()
		assert.NoError(t, err)
		assert.Len(t, code, OTPLength)
		for _, ch := range code {
			assert.True(t, ch >= '0' && ch <= '9', "code %q contains non-digit", code)
		}
		seen[code] = true
	}
	// 50 draws from a million-value space colliding into one bucket would
	// indicate a broken generator.
	assert.Greater(t, len(seen), 1)
}
