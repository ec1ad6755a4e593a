package port

import (
	"time"

	"github.com/novacrm/auth-service/internal/core/domain"
)

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// PasswordPolicyValidator enforces password requirements. userInputs lists values
// (email, name) that should not make up the password.
type PasswordPolicyValidator interface {
	Validate(password string, userInputs ...string) error
}

// OTPGenerator produces one-time codes and judges their expiry.
type OTPGenerator interface {
	Generate() (string, error)
	ExpiryFromNow() time.Time
	IsExpired(expiry *time.Time) bool
}

// TokenIssuer mints and verifies access/refresh token pairs.
type TokenIssuer interface {
	Issue(claims domain.TokenClaims) (domain.TokenPair, error)
	VerifyAccess(token string) (*domain.TokenClaims, error)
	VerifyRefresh(token string) (*domain.TokenClaims, error)
}
