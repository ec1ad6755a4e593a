package routes_test

import (
	"context"
	"sync"
	"time"

	"github.com/novacrm/auth-service/internal/core/domain"
	"github.com/novacrm/auth-service/internal/core/port"
	"github.com/novacrm/auth-service/internal/repository"
)

// accountStore is a minimal in-memory port.AccountRepository for router-level tests.
type accountStore struct {
	mu      sync.Mutex
	byEmail map[string]domain.Account
}

func newAccountStore() *accountStore {
	return &accountStore{byEmail: map[string]domain.Account{}}
}

func (s *accountStore) put(account domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byEmail[account.Email] = account
}

func (s *accountStore) Create(_ context.Context, account domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[account.Email]; ok {
		return repository.ErrConflict
	}
	s.byEmail[account.Email] = account
	return nil
}

func (s *accountStore) GetByID(_ context.Context, id string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.byEmail {
		if account.ID == id {
			return &account, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *accountStore) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &account, nil
}

func (s *accountStore) RefreshPendingRegistration(_ context.Context, update port.PendingRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for email, account := range s.byEmail {
		if account.ID != update.AccountID {
			continue
		}
		if account.IsVerified {
			return repository.ErrConditionFailed
		}
		account.PasswordHash = &update.PasswordHash
		account.OTPCode = &update.OTPCode
		account.OTPExpiry = &update.OTPExpiry
		s.byEmail[email] = account
		return nil
	}
	return repository.ErrConditionFailed
}

func (s *accountStore) SetOTP(_ context.Context, id, code string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for email, account := range s.byEmail {
		if account.ID == id {
			account.OTPCode, account.OTPExpiry = &code, &expiry
			s.byEmail[email] = account
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *accountStore) ConsumeVerificationOTP(_ context.Context, email, code string, now time.Time) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byEmail[domain.NormalizeEmail(email)]
	if !ok || account.IsVerified || !validCode(account, code, now) {
		return nil, repository.ErrConditionFailed
	}
	account.IsVerified = true
	account.OTPCode, account.OTPExpiry = nil, nil
	s.byEmail[account.Email] = account
	return &account, nil
}

func (s *accountStore) ConsumeResetOTP(_ context.Context, email, code, passwordHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byEmail[domain.NormalizeEmail(email)]
	if !ok || !validCode(account, code, now) {
		return repository.ErrConditionFailed
	}
	account.PasswordHash = &passwordHash
	account.OTPCode, account.OTPExpiry = nil, nil
	s.byEmail[account.Email] = account
	return nil
}

func validCode(account domain.Account, code string, now time.Time) bool {
	return account.OTPCode != nil && *account.OTPCode == code &&
		account.OTPExpiry != nil && now.Before(*account.OTPExpiry)
}

func (s *accountStore) List(_ context.Context, filter domain.AccountFilter) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Account, 0, len(s.byEmail))
	for _, account := range s.byEmail {
		out = append(out, account)
	}
	return out, nil
}

func (s *accountStore) Count(_ context.Context, _ domain.AccountFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byEmail), nil
}

// codeCatcher is a synchronous NotificationDispatcher that remembers the last code per address.
type codeCatcher struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *codeCatcher) DispatchRegistrationOTP(msg port.OTPMessage) { c.remember(msg) }

func (c *codeCatcher) DispatchPasswordResetOTP(msg port.OTPMessage) { c.remember(msg) }

func (c *codeCatcher) remember(msg port.OTPMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codes == nil {
		c.codes = map[string]string{}
	}
	c.codes[msg.Email] = msg.Code
}

func (c *codeCatcher) last(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[email]
}
