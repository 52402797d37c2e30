package auth

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidAdminCredentials is returned for unknown emails and wrong passwords alike.
var ErrInvalidAdminCredentials = errors.New("admin authenticator: invalid credentials")

// dummyHash is compared against for unknown emails so both paths cost one bcrypt comparison.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z6ZoS1NlNU0rJ3QXWv1Cz5W.")

// AdminAuthenticator verifies reviewer credentials against bcrypt hashes.
type AdminAuthenticator struct {
	accounts map[string][]byte
}

// NewAdminAuthenticator builds an authenticator from an email → bcrypt hash map.
func NewAdminAuthenticator(accounts map[string]string) *AdminAuthenticator {
	normalized := make(map[string][]byte, len(accounts))
	for email, hash := range accounts {
		key := normalizeEmail(email)
		if key == "" || strings.TrimSpace(hash) == "" {
			continue
		}
		normalized[key] = []byte(strings.TrimSpace(hash))
	}
	return &AdminAuthenticator{accounts: normalized}
}

// Authenticate returns the normalized admin email when the password matches.
func (a *AdminAuthenticator) Authenticate(email, password string) (string, error) {
	key := normalizeEmail(email)
	hash, ok := a.accounts[key]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return "", ErrInvalidAdminCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return "", ErrInvalidAdminCredentials
	}
	return key, nil
}

// HashPassword produces a bcrypt hash suitable for the admin.accounts config map.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("admin authenticator: password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
