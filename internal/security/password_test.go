package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("secret1")

	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "secret1", hash)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, PasswordCost, cost)
}

func TestHashPassword_SaltedPerCall(t *testing.T) {
	first, err := HashPassword("secret1")
	require.NoError(t, err)
	second, err := HashPassword("secret1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, PasswordMatches(first, "secret1"))
	assert.True(t, PasswordMatches(second, "secret1"))
}

func TestPasswordMatches(t *testing.T) {
	passwords := []string{"secret1", "correct horse battery staple", "ünïcødé-pass"}

	for _, p := range passwords {
		hash, err := HashPassword(p)
		require.NoError(t, err)

		assert.True(t, PasswordMatches(hash, p), "password %q should match its own hash", p)
		assert.False(t, PasswordMatches(hash, p+"x"), "password %q should not match a different candidate", p)
	}
}

func TestPasswordMatches_MalformedHash(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.False(t, PasswordMatches("not-a-bcrypt-hash", "secret1"))
		assert.False(t, PasswordMatches("", "secret1"))
		assert.False(t, PasswordMatches("$2a$10$short", "secret1"))
	})
}

func TestHashPassword_TooLong(t *testing.T) {
	_, err := HashPassword(strings.Repeat("a", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}
