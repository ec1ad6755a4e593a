package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/novacrm/auth-service/internal/core/domain"
	"github.com/novacrm/auth-service/internal/core/port"
	"github.com/novacrm/auth-service/internal/repository"
)

// memoryAccounts mimics the conditional updates of the SQL repository under a mutex.
type memoryAccounts struct {
	mu        sync.Mutex
	byID      map[string]*domain.Account
	getErr    error
	createFn  func(domain.Account) error
	listCalls int
}

func newMemoryAccounts(accounts ...domain.Account) *memoryAccounts {
	m := &memoryAccounts{byID: map[string]*domain.Account{}}
	for i := range accounts {
		acc := accounts[i]
		m.byID[acc.ID] = &acc
	}
	return m
}

func (m *memoryAccounts) findByEmail(email string) *domain.Account {
	for _, acc := range m.byID {
		if acc.Email == domain.NormalizeEmail(email) {
			return acc
		}
	}
	return nil
}

func (m *memoryAccounts) snapshot(id string) domain.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.byID[id]
}

func (m *memoryAccounts) Create(_ context.Context, account domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createFn != nil {
		if err := m.createFn(account); err != nil {
			return err
		}
	}
	if m.findByEmail(account.Email) != nil {
		return fmt.Errorf("insert account: %w", repository.ErrConflict)
	}
	account.Email = domain.NormalizeEmail(account.Email)
	m.byID[account.ID] = &account
	return nil
}

func (m *memoryAccounts) GetByID(_ context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	acc, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *acc
	return &copy, nil
}

func (m *memoryAccounts) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	acc := m.findByEmail(email)
	if acc == nil {
		return nil, repository.ErrNotFound
	}
	copy := *acc
	return &copy, nil
}

func (m *memoryAccounts) RefreshPendingRegistration(_ context.Context, update port.PendingRegistration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.byID[update.AccountID]
	if !ok || acc.IsVerified {
		return repository.ErrConditionFailed
	}
	hash, code, expiry := update.PasswordHash, update.OTPCode, update.OTPExpiry
	acc.PasswordHash, acc.OTPCode, acc.OTPExpiry = &hash, &code, &expiry
	if update.Name != nil {
		acc.Name = update.Name
	}
	if update.Phone != nil {
		acc.Phone = update.Phone
	}
	return nil
}

func (m *memoryAccounts) SetOTP(_ context.Context, id, code string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	acc.OTPCode, acc.OTPExpiry = &code, &expiry
	return nil
}

func (m *memoryAccounts) ConsumeVerificationOTP(_ context.Context, email, code string, now time.Time) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc := m.findByEmail(email)
	if acc == nil || acc.IsVerified || !codeMatches(acc, code, now) {
		return nil, repository.ErrConditionFailed
	}
	acc.IsVerified = true
	acc.OTPCode, acc.OTPExpiry = nil, nil
	copy := *acc
	return &copy, nil
}

func (m *memoryAccounts) ConsumeResetOTP(_ context.Context, email, code, passwordHash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc := m.findByEmail(email)
	if acc == nil || acc.Provider != domain.ProviderLocal || !codeMatches(acc, code, now) {
		return repository.ErrConditionFailed
	}
	acc.PasswordHash = &passwordHash
	acc.OTPCode, acc.OTPExpiry = nil, nil
	return nil
}

func codeMatches(acc *domain.Account, code string, now time.Time) bool {
	return acc.OTPCode != nil && *acc.OTPCode == code && acc.OTPExpiry != nil && acc.OTPExpiry.After(now)
}

func (m *memoryAccounts) List(_ context.Context, filter domain.AccountFilter) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	out := make([]domain.Account, 0)
	for _, acc := range m.byID {
		if filter.Role == nil || acc.Role == *filter.Role {
			out = append(out, *acc)
		}
	}
	if filter.Offset >= len(out) {
		return []domain.Account{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memoryAccounts) Count(_ context.Context, filter domain.AccountFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, acc := range m.byID {
		if filter.Role == nil || acc.Role == *filter.Role {
			n++
		}
	}
	return n, nil
}

type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (fakeHasher) Verify(password, encoded string) (bool, error) {
	if !strings.HasPrefix(encoded, "hashed:") {
		return false, errors.New("malformed hash")
	}
	return encoded == "hashed:"+password, nil
}

type fakePolicy struct{}

func (fakePolicy) Validate(password string, _ ...string) error {
	if len(password) < 6 {
		return errors.New("password must be at least 6 characters long")
	}
	return nil
}

// fakeOTP hands out codes in sequence and judges expiry against a shared clock.
type fakeOTP struct {
	mu    sync.Mutex
	codes []string
	next  int
	now   func() time.Time
}

func (f *fakeOTP) Generate() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code := f.codes[f.next%len(f.codes)]
	f.next++
	return code, nil
}

func (f *fakeOTP) ExpiryFromNow() time.Time { return f.now().Add(10 * time.Minute) }

func (f *fakeOTP) IsExpired(expiry *time.Time) bool {
	return expiry == nil || !f.now().Before(*expiry)
}

type fakeTokens struct {
	issued []domain.TokenClaims
}

func (f *fakeTokens) Issue(claims domain.TokenClaims) (domain.TokenPair, error) {
	f.issued = append(f.issued, claims)
	return domain.TokenPair{
		AccessToken:  "access:" + claims.UserID,
		RefreshToken: "refresh:" + claims.UserID,
	}, nil
}

func (f *fakeTokens) VerifyAccess(token string) (*domain.TokenClaims, error) {
	return nil, errors.New("unexpected call: VerifyAccess")
}

func (f *fakeTokens) VerifyRefresh(token string) (*domain.TokenClaims, error) {
	id, ok := strings.CutPrefix(token, "refresh:")
	if !ok {
		return nil, errors.New("invalid token")
	}
	return &domain.TokenClaims{UserID: id}, nil
}

type recordingNotifier struct {
	mu            sync.Mutex
	registrations []port.OTPMessage
	resets        []port.OTPMessage
}

func (r *recordingNotifier) DispatchRegistrationOTP(msg port.OTPMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations = append(r.registrations, msg)
}

func (r *recordingNotifier) DispatchPasswordResetOTP(msg port.OTPMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets = append(r.resets, msg)
}

type recordingEvents struct {
	mu         sync.Mutex
	registered []domain.AccountRegisteredEvent
	verified   []domain.AccountVerifiedEvent
	resetReqs  []domain.PasswordResetRequestedEvent
	resets     []domain.PasswordResetEvent
	federated  []domain.FederatedLoginEvent
	err        error
}

func (r *recordingEvents) PublishAccountRegistered(_ context.Context, e domain.AccountRegisteredEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, e)
	return r.err
}

func (r *recordingEvents) PublishAccountVerified(_ context.Context, e domain.AccountVerifiedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verified = append(r.verified, e)
	return r.err
}

func (r *recordingEvents) PublishPasswordResetRequested(_ context.Context, e domain.PasswordResetRequestedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetReqs = append(r.resetReqs, e)
	return r.err
}

func (r *recordingEvents) PublishPasswordReset(_ context.Context, e domain.PasswordResetEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets = append(r.resets, e)
	return r.err
}

func (r *recordingEvents) PublishFederatedLogin(_ context.Context, e domain.FederatedLoginEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.federated = append(r.federated, e)
	return r.err
}

type authFixture struct {
	svc      *AuthService
	accounts *memoryAccounts
	otp      *fakeOTP
	tokens   *fakeTokens
	notifier *recordingNotifier
	events   *recordingEvents
	now      time.Time
}

func (f *authFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func newAuthFixture(accounts ...domain.Account) *authFixture {
	f := &authFixture{
		accounts: newMemoryAccounts(accounts...),
		tokens:   &fakeTokens{},
		notifier: &recordingNotifier{},
		events:   &recordingEvents{},
		now:      time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.otp = &fakeOTP{codes: []string{"111111", "222222", "333333"}, now: clock}

	f.svc = NewAuthService(AuthDependencies{
		Accounts: f.accounts,
		Hasher:   fakeHasher{},
		Policy:   fakePolicy{},
		OTP:      f.otp,
		Tokens:   f.tokens,
		Notifier: f.notifier,
		Events:   f.events,
	})
	f.svc.now = clock
	return f
}

func strPtr(v string) *string { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func verifiedLocal(id, email, password string) domain.Account {
	return domain.Account{
		ID:           id,
		Email:        email,
		Name:         strPtr("Alice"),
		PasswordHash: strPtr("hashed:" + password),
		Provider:     domain.ProviderLocal,
		Role:         domain.RoleUser,
		IsVerified:   true,
	}
}
