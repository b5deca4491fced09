package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the bcrypt cost for stored login passwords.
const DefaultBcryptCost = 12

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

var (
	errEmptyPassword = errors.New("password hasher: password must not be empty")
	// ErrPasswordTooLong reports a password longer than MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password hasher: password exceeds 72 bytes")
)

// PasswordHasher hashes and verifies passwords with bcrypt.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher; non-positive cost selects DefaultBcryptCost.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost <= 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash generates a bcrypt hash of the password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errEmptyPassword
	}
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether password matches hash.
func (h *PasswordHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
