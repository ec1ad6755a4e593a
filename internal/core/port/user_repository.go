package port

import (
	"context"
	"time"

	"github.com/novacrm/auth-service/internal/core/domain"
)

// AccountRepository exposes persistence behavior for accounts.
//
// The Consume* methods are single conditional writes: they succeed only when the stored
// code matches and is unexpired at the supplied instant, and clear it in the same statement.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	RefreshPendingRegistration(ctx context.Context, update PendingRegistration) error
	SetOTP(ctx context.Context, id string, code string, expiry time.Time) error
	ConsumeVerificationOTP(ctx context.Context, email, code string, now time.Time) (*domain.Account, error)
	ConsumeResetOTP(ctx context.Context, email, code, passwordHash string, now time.Time) error
	List(ctx context.Context, filter domain.AccountFilter) ([]domain.Account, error)
	Count(ctx context.Context, filter domain.AccountFilter) (int, error)
}

// PendingRegistration carries the values rotated when an unverified address registers again.
// Nil Name or Phone keeps the stored value.
type PendingRegistration struct {
	AccountID    string
	PasswordHash string
	Name         *string
	Phone        *string
	OTPCode      string
	OTPExpiry    time.Time
}
