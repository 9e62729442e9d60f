package util

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

var (
	jwtSecretValue = getEnv("JWTSECRET", "")
	jwtSecretByte  = []byte(jwtSecretValue)
	jwtMutex       sync.RWMutex
)

func getEnv(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	return value
}

// SetJWTSecret allows tests or runtime code to update the JWT secret used
// for token signing. This function is thread-safe.
func SetJWTSecret(secret string) {
	jwtMutex.Lock()
	defer jwtMutex.Unlock()
	jwtSecretByte = []byte(secret)
}

// GetJWTSecretByte returns a copy of the current JWT secret bytes in a thread-safe manner.
func GetJWTSecretByte() []byte {
	jwtMutex.RLock()
	defer jwtMutex.RUnlock()
	return append([]byte(nil), jwtSecretByte...)
}

// Argon2id parameters. Tuned for interactive logins.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// GenerateSalt returns a random base64-encoded salt for password hashing.
func GenerateSalt() (string, error) {
	buf := make([]byte, saltLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return base64.RawStdEncoding.EncodeToString(buf), nil
}

// HashPasswordArgon2 hashes a plaintext password with Argon2id using the
// provided salt. The output is prefixed so legacy hashes can be detected and
// upgraded at login.
func HashPasswordArgon2(password, salt string) (string, error) {
	rawSalt, err := base64.RawStdEncoding.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("invalid salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), rawSalt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return "argon2id$" + base64.RawStdEncoding.EncodeToString(key), nil
}

// VerifyPassword compares a plaintext password against a stored hash using a
// constant-time comparison. Legacy HMAC hashes (no argon2id prefix) are also
// accepted so existing accounts keep working until upgraded.
func VerifyPassword(password, storedHash, salt string) (bool, error) {
	if strings.HasPrefix(storedHash, "argon2id$") {
		computed, err := HashPasswordArgon2(password, salt)
		if err != nil {
			return false, err
		}
		return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1, nil
	}
	legacy := HashPasswordLegacy(password)
	return subtle.ConstantTimeCompare([]byte(legacy), []byte(storedHash)) == 1, nil
}

// HashPasswordLegacy is the old HMAC-SHA256 scheme, kept only so logins can
// verify and then upgrade pre-Argon2 hashes.
func HashPasswordLegacy(password string) string {
	h := hmac.New(sha256.New, GetJWTSecretByte())
	h.Write([]byte(password))
	return hex.EncodeToString(h.Sum(nil))
}
