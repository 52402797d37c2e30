package auth

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return string(hash)
}

func TestAdminAuthenticatorAcceptsMatchingPassword(t *testing.T) {
	authenticator := NewAdminAuthenticator(map[string]string{
		"Lead@Campus.edu": mustHash(t, "correct horse"),
	})

	email, err := authenticator.Authenticate("  lead@campus.EDU ", "correct horse")
	if err != nil {
		t.Fatalf("unexpected authentication error: %v", err)
	}
	if email != "lead@campus.edu" {
		t.Fatalf("unexpected normalized email %q", email)
	}
}

func TestAdminAuthenticatorRejectsBadCredentials(t *testing.T) {
	authenticator := NewAdminAuthenticator(map[string]string{
		"lead@campus.edu":  mustHash(t, "correct horse"),
		"blank@campus.edu": "",
	})

	testCases := []struct {
		name     string
		email    string
		password string
	}{
		{name: "wrong-password", email: "lead@campus.edu", password: "battery staple"},
		{name: "unknown-email", email: "nobody@campus.edu", password: "correct horse"},
		{name: "blank-hash-skipped", email: "blank@campus.edu", password: ""},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := authenticator.Authenticate(testCase.email, testCase.password)
			if !errors.Is(err, ErrInvalidAdminCredentials) {
				t.Fatalf("expected invalid credentials, got %v", err)
			}
		})
	}
}

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("unexpected hash error: %v", err)
	}
	authenticator := NewAdminAuthenticator(map[string]string{"a@b.c": hash})
	if _, err := authenticator.Authenticate("a@b.c", "s3cret"); err != nil {
		t.Fatalf("expected generated hash to verify: %v", err)
	}
	if _, err := HashPassword(""); err == nil {
		t.Fatalf("expected error for empty password")
	}
}
