package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is fixed; raising it slows every login.
const PasswordCost = 10

// ErrPasswordTooLong is returned for passwords over bcrypt's 72 byte input
// limit. Validation counts characters, so multi-byte input can still hit it.
var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

// HashPassword hashes a plain text password with bcrypt. Each call draws a
// fresh salt, so hashing the same password twice yields different strings.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), PasswordCost)

	if err != nil {
		return "", fmt.Errorf("security: hash password: %w", err)
	}

	return string(hash), nil
}

// helper that compares a bcrypt hash with a plaintext password.
func CheckPassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}

// PasswordMatches is CheckPassword as a boolean. Malformed hashes report false.
func PasswordMatches(hash, plain string) bool {
	return CheckPassword(hash, plain) == nil
}
