package utils

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashOrRead returns the bcrypt hash of token, passing through values that
// are already bcrypt hashes so operators can configure either form.
func HashOrRead(token string) ([]byte, error) {
	if strings.HasPrefix(token, "$2a$") || strings.HasPrefix(token, "$2b$") || strings.HasPrefix(token, "$2y$") {
		return []byte(token), nil
	}
	return bcrypt.GenerateFromPassword([]byte(token), 10)
}

// CheckToken reports whether token matches the stored bcrypt hash.
func CheckToken(hash []byte, token string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(token)) == nil
}
