package security

import (
	"fmt"
	"strings"
	"unicode/utf8"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/novacrm/auth-service/internal/core/port"
)

const (
	DefaultMinPasswordLength = 6
	DefaultMaxPasswordLength = 50

	maxStrengthScore = 4
)

// PasswordValidationError names the rule a password broke. Message is shown to clients as is.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	return e.Message
}

// PasswordPolicyConfig tunes the policy. MinStrength is a zxcvbn score where 0 disables the check.
type PasswordPolicyConfig struct {
	MinLength   int
	MaxLength   int
	MinStrength int
}

// PasswordPolicy checks length bounds and, optionally, a zxcvbn strength score that
// penalises passwords derived from the caller's own email or name.
type PasswordPolicy struct {
	cfg PasswordPolicyConfig
}

func NewPasswordPolicy(cfg PasswordPolicyConfig) *PasswordPolicy {
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinPasswordLength
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultMaxPasswordLength
	}
	if cfg.MinStrength > maxStrengthScore {
		cfg.MinStrength = maxStrengthScore
	}
	return &PasswordPolicy{cfg: cfg}
}

// Validate returns a *PasswordValidationError for the first violated rule, checked in the
// order min length, max length, strength.
func (p *PasswordPolicy) Validate(password string, userInputs ...string) error {
	length := utf8.RuneCountInString(password)

	if length < p.cfg.MinLength {
		return &PasswordValidationError{
			Code:    "min_length",
			Message: fmt.Sprintf("password must be at least %d characters long", p.cfg.MinLength),
		}
	}
	if length > p.cfg.MaxLength {
		return &PasswordValidationError{
			Code:    "max_length",
			Message: fmt.Sprintf("password must be at most %d characters long", p.cfg.MaxLength),
		}
	}

	if p.cfg.MinStrength <= 0 {
		return nil
	}

	inputs := make([]string, 0, len(userInputs))
	for _, input := range userInputs {
		if trimmed := strings.TrimSpace(input); trimmed != "" {
			inputs = append(inputs, trimmed)
		}
	}

	if zxcvbn.PasswordStrength(password, inputs).Score < p.cfg.MinStrength {
		return &PasswordValidationError{
			Code:    "weak_password",
			Message: "password is too weak; choose a more complex value",
		}
	}
	return nil
}

var _ port.PasswordPolicyValidator = (*PasswordPolicy)(nil)
