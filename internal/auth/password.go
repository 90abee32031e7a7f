package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the work factor for stored password hashes.
const BcryptCost = 12

// MinPasswordLength applies to admin-created accounts.
const MinPasswordLength = 8

// HashPassword hashes a plaintext password using bcrypt with BcryptCost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword returns nil if password matches hash.
func VerifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
