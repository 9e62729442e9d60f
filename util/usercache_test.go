package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserEmailCacheBasics(t *testing.T) {
	InitUserEmailCache(2)

	_, ok := UserEmailCacheGet(1)
	assert.False(t, ok)

	UserEmailCacheSet(1, "a@example.com")
	email, ok := UserEmailCacheGet(1)
	assert.True(t, ok)
	assert.Equal(t, "a@example.com", email)

	// Overwrite keeps one entry per user.
	UserEmailCacheSet(1, "a2@example.com")
	email, _ = UserEmailCacheGet(1)
	assert.Equal(t, "a2@example.com", email)
}

func TestUserEmailCacheEviction(t *testing.T) {
	InitUserEmailCache(2)

	UserEmailCacheSet(1, "a@example.com")
	UserEmailCacheSet(2, "b@example.com")

	// Touch 1 so 2 becomes least recently used.
	_, _ = UserEmailCacheGet(1)

	UserEmailCacheSet(3, "c@example.com")

	_, ok := UserEmailCacheGet(2)
	assert.False(t, ok, "LRU entry should have been evicted")
	_, ok = UserEmailCacheGet(1)
	assert.True(t, ok)
	_, ok = UserEmailCacheGet(3)
	assert.True(t, ok)
}

func TestGetUserEmailNilDB(t *testing.T) {
	InitUserEmailCache(2)
	assert.Equal(t, "", GetUserEmail(nil, 42))
	assert.Equal(t, "", GetUserEmail(nil, 0))
}
