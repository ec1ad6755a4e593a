package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/novacrm/auth-service/internal/core/port"
)

const (
	// OTPLength is the number of digits in a one-time code.
	OTPLength = 6
	// OTPTTL is how long a one-time code stays valid after issuance.
	OTPTTL = 10 * time.Minute

	otpMin = 100000
	otpMax = 999999
)

// OTPGenerator produces six digit codes and judges their expiry against its clock.
type OTPGenerator struct {
	now func() time.Time
	ttl time.Duration
}

// NewOTPGenerator returns a generator using the wall clock and the standard TTL.
func NewOTPGenerator() *OTPGenerator {
	return &OTPGenerator{now: time.Now, ttl: OTPTTL}
}

// WithClock overrides the time source.
func (g *OTPGenerator) WithClock(now func() time.Time) *OTPGenerator {
	if now != nil {
		g.now = now
	}
	return g
}

// Generate draws a code uniformly from [100000, 999999].
func (g *OTPGenerator) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+otpMin), nil
}

// ExpiryFromNow returns the expiry instant for a code issued now.
func (g *OTPGenerator) ExpiryFromNow() time.Time {
	return g.now().UTC().Add(g.ttl)
}

// IsExpired reports whether a code with the given expiry is no longer usable.
// A missing expiry counts as expired, and so does an expiry equal to the current instant.
func (g *OTPGenerator) IsExpired(expiry *time.Time) bool {
	if expiry == nil {
		return true
	}
	return !g.now().Before(*expiry)
}

var _ port.OTPGenerator = (*OTPGenerator)(nil)
