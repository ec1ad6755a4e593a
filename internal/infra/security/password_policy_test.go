package security

import (
	"errors"
	"strings"
	"testing"
)

func assertViolation(t *testing.T, err error, expectedCode string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected validation error for %s", expectedCode)
	}
	var vErr *PasswordValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected PasswordValidationError, got %T", err)
	}
	if vErr.Code != expectedCode {
		t.Fatalf("expected %s code, got %s", expectedCode, vErr.Code)
	}
}

func TestPasswordPolicyLengthBounds(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyConfig{})

	assertViolation(t, policy.Validate("abc12"), "min_length")
	assertViolation(t, policy.Validate(strings.Repeat("a", 51)), "max_length")

	if err := policy.Validate("abc123"); err != nil {
		t.Fatalf("six characters should pass, got %v", err)
	}
	if err := policy.Validate(strings.Repeat("a", 50)); err != nil {
		t.Fatalf("fifty characters should pass, got %v", err)
	}
}

func TestPasswordPolicyStrengthUsesUserInputs(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyConfig{MinLength: 6, MaxLength: 50, MinStrength: 3})

	if err := policy.Validate("C0mplex!Passphrase#2025"); err != nil {
		t.Fatalf("expected strong password to pass, got %v", err)
	}

	assertViolation(t, policy.Validate("password1"), "weak_password")
	assertViolation(t, policy.Validate("alicesmith1987@example.com", "alicesmith1987@example.com", "Alice Smith"), "weak_password")
}

func TestPasswordPolicyCustomBounds(t *testing.T) {
	policy := NewPasswordPolicy(PasswordPolicyConfig{MinLength: 8, MaxLength: 12})

	err := policy.Validate("short1")
	assertViolation(t, err, "min_length")
	if err.Error() != "password must be at least 8 characters long" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	assertViolation(t, policy.Validate("thirteen-char"), "max_length")

	// multi-byte characters count once each
	if err := policy.Validate("пароль12"); err != nil {
		t.Fatalf("eight runes should pass, got %v", err)
	}
}
