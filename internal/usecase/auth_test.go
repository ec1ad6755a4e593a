package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/novacrm/auth-service/internal/core/domain"
	"github.com/novacrm/auth-service/internal/repository"
)

func assertKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}

func TestRegisterCreatesUnverifiedAccount(t *testing.T) {
	f := newAuthFixture()

	result, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    " Alice@Example.com ",
		Password: "secret1",
		Name:     strPtr(" Alice "),
		Phone:    strPtr("0912345678"),
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if result.Email != "alice@example.com" || result.Name == nil || *result.Name != "Alice" || result.Resent {
		t.Fatalf("unexpected result: %+v", result)
	}

	account, err := f.accounts.GetByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("account not stored: %v", err)
	}
	if account.IsVerified || account.Provider != domain.ProviderLocal || account.Role != domain.RoleUser {
		t.Fatalf("unexpected account state: %+v", account)
	}
	if account.PasswordHash == nil || *account.PasswordHash != "hashed:secret1" {
		t.Fatalf("expected hashed password, got %v", account.PasswordHash)
	}
	if account.OTPCode == nil || *account.OTPCode != "111111" {
		t.Fatalf("expected stored code, got %v", account.OTPCode)
	}
	if !account.OTPExpiry.Equal(f.now.Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry: %v", account.OTPExpiry)
	}

	if len(f.notifier.registrations) != 1 || f.notifier.registrations[0].Code != "111111" {
		t.Fatalf("expected one registration mail, got %+v", f.notifier.registrations)
	}
	if len(f.events.registered) != 1 || f.events.registered[0].Reregistered {
		t.Fatalf("unexpected registered events: %+v", f.events.registered)
	}
}

func TestRegisterVerifiedEmailConflicts(t *testing.T) {
	f := newAuthFixture(verifiedLocal("acc-1", "alice@example.com", "secret1"))

	_, err := f.svc.Register(context.Background(), RegisterInput{Email: "alice@example.com", Password: "another1"})
	if !errors.Is(err, ErrEmailRegistered) {
		t.Fatalf("expected ErrEmailRegistered, got %v", err)
	}
	assertKind(t, err, KindConflict)

	account := f.accounts.snapshot("acc-1")
	if *account.PasswordHash != "hashed:secret1" {
		t.Fatal("verified account must not be mutated")
	}
	if len(f.notifier.registrations) != 0 {
		t.Fatal("no mail expected for a conflict")
	}
}

func TestRegisterUnverifiedRotatesCredentials(t *testing.T) {
	pending := domain.Account{
		ID:           "acc-1",
		Email:        "alice@example.com",
		Name:         strPtr("Old Name"),
		PasswordHash: strPtr("hashed:oldpass"),
		Provider:     domain.ProviderLocal,
		Role:         domain.RoleUser,
		OTPCode:      strPtr("999999"),
		OTPExpiry:    timePtr(time.Date(2025, 3, 1, 9, 5, 0, 0, time.UTC)),
	}
	f := newAuthFixture(pending)

	result, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    "alice@example.com",
		Password: "newpass1",
		Name:     strPtr("New Name"),
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if !result.Resent || result.Message != msgOTPResent {
		t.Fatalf("expected resent result, got %+v", result)
	}

	account := f.accounts.snapshot("acc-1")
	if *account.PasswordHash != "hashed:newpass1" {
		t.Fatalf("expected rotated hash, got %s", *account.PasswordHash)
	}
	if *account.OTPCode != "111111" {
		t.Fatalf("expected rotated code, got %s", *account.OTPCode)
	}
	if *account.Name != "New Name" {
		t.Fatalf("expected updated name, got %s", *account.Name)
	}
	if len(f.events.registered) != 1 || !f.events.registered[0].Reregistered {
		t.Fatalf("expected reregistration event, got %+v", f.events.registered)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	f := newAuthFixture()

	_, err := f.svc.Register(context.Background(), RegisterInput{Email: "a@x.com", Password: "123"})
	assertKind(t, err, KindBadRequest)
}

func TestRegisterInsertRaceFallsBackToRefresh(t *testing.T) {
	f := newAuthFixture()
	f.accounts.createFn = func(account domain.Account) error {
		// another request inserted the same e-mail first
		f.accounts.byID["winner"] = &domain.Account{
			ID:       "winner",
			Email:    account.Email,
			Provider: domain.ProviderLocal,
			Role:     domain.RoleUser,
		}
		f.accounts.createFn = nil
		return nil
	}

	result, err := f.svc.Register(context.Background(), RegisterInput{Email: "race@x.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if !result.Resent {
		t.Fatalf("expected refresh path after conflict, got %+v", result)
	}
	if code := f.accounts.snapshot("winner").OTPCode; code == nil || *code != "111111" {
		t.Fatalf("expected winner row to carry the new code, got %v", code)
	}
}

func newPendingFixture() *authFixture {
	expiry := time.Date(2025, 3, 1, 9, 10, 0, 0, time.UTC)
	return newAuthFixture(domain.Account{
		ID:           "acc-1",
		Email:        "alice@example.com",
		PasswordHash: strPtr("hashed:secret1"),
		Provider:     domain.ProviderLocal,
		Role:         domain.RoleSales,
		OTPCode:      strPtr("123456"),
		OTPExpiry:    &expiry,
	})
}

func TestVerifyOTPSuccess(t *testing.T) {
	f := newPendingFixture()

	result, err := f.svc.VerifyOTP(context.Background(), "Alice@example.com", "123456")
	if err != nil {
		t.Fatalf("VerifyOTP returned error: %v", err)
	}
	if !result.Account.IsVerified {
		t.Fatal("expected verified account in result")
	}
	if result.Tokens.AccessToken != "access:acc-1" {
		t.Fatalf("unexpected tokens: %+v", result.Tokens)
	}
	if claims := f.tokens.issued[0]; claims.Role != domain.RoleSales || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	account := f.accounts.snapshot("acc-1")
	if !account.IsVerified || account.OTPCode != nil || account.OTPExpiry != nil {
		t.Fatalf("expected verified account with cleared code, got %+v", account)
	}
	if len(f.events.verified) != 1 {
		t.Fatalf("expected one verified event, got %d", len(f.events.verified))
	}
}

func TestVerifyOTPFailures(t *testing.T) {
	t.Run("unknown email", func(t *testing.T) {
		f := newPendingFixture()
		_, err := f.svc.VerifyOTP(context.Background(), "ghost@example.com", "123456")
		if !errors.Is(err, ErrAccountNotFound) {
			t.Fatalf("expected ErrAccountNotFound, got %v", err)
		}
	})

	t.Run("wrong code", func(t *testing.T) {
		f := newPendingFixture()
		_, err := f.svc.VerifyOTP(context.Background(), "alice@example.com", "000000")
		if !errors.Is(err, ErrInvalidOTP) {
			t.Fatalf("expected ErrInvalidOTP, got %v", err)
		}
		if f.accounts.snapshot("acc-1").IsVerified {
			t.Fatal("account must stay unverified")
		}
	})

	t.Run("expired at boundary", func(t *testing.T) {
		f := newPendingFixture()
		f.advance(10 * time.Minute)
		_, err := f.svc.VerifyOTP(context.Background(), "alice@example.com", "123456")
		if !errors.Is(err, ErrExpiredOTP) {
			t.Fatalf("expected ErrExpiredOTP, got %v", err)
		}
	})

	t.Run("already verified", func(t *testing.T) {
		f := newAuthFixture(verifiedLocal("acc-1", "alice@example.com", "secret1"))
		_, err := f.svc.VerifyOTP(context.Background(), "alice@example.com", "123456")
		if !errors.Is(err, ErrAlreadyVerified) {
			t.Fatalf("expected ErrAlreadyVerified, got %v", err)
		}
		assertKind(t, err, KindBadRequest)
	})
}

func TestVerifyOTPConcurrentSingleWinner(t *testing.T) {
	f := newPendingFixture()

	const attempts = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.VerifyOTP(context.Background(), "alice@example.com", "123456")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case KindOf(err) != KindBadRequest:
				t.Errorf("unexpected failure kind: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful verification, got %d", successes)
	}
}

func TestResendOTP(t *testing.T) {
	f := newPendingFixture()

	msg, err := f.svc.ResendOTP(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("ResendOTP returned error: %v", err)
	}
	if msg != msgOTPResent {
		t.Fatalf("unexpected message: %s", msg)
	}
	if code := *f.accounts.snapshot("acc-1").OTPCode; code != "111111" {
		t.Fatalf("expected rotated code, got %s", code)
	}
	if len(f.notifier.registrations) != 1 {
		t.Fatal("expected registration mail to be dispatched")
	}

	// the previous code no longer verifies
	if _, err := f.svc.VerifyOTP(context.Background(), "alice@example.com", "123456"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected old code to be rejected, got %v", err)
	}

	verified := newAuthFixture(verifiedLocal("acc-2", "bob@example.com", "secret1"))
	if _, err := verified.svc.ResendOTP(context.Background(), "bob@example.com"); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
}

func TestLoginUniformFailures(t *testing.T) {
	unverified := verifiedLocal("acc-2", "pending@example.com", "secret1")
	unverified.IsVerified = false

	google := domain.Account{
		ID:         "acc-3",
		Email:      "google@example.com",
		Provider:   domain.ProviderGoogle,
		Role:       domain.RoleUser,
		IsVerified: true,
	}

	f := newAuthFixture(verifiedLocal("acc-1", "alice@example.com", "secret1"), unverified, google)

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "ghost@example.com", "secret1"},
		{"wrong password", "alice@example.com", "wrong-pass"},
		{"unverified", "pending@example.com", "secret1"},
		{"federated account", "google@example.com", "secret1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Login(context.Background(), tc.email, tc.password)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
			if err.Error() != "invalid email or password" {
				t.Fatalf("expected uniform message, got %q", err.Error())
			}
		})
	}
}

func TestLoginSuccess(t *testing.T) {
	f := newAuthFixture(verifiedLocal("acc-1", "alice@example.com", "secret1"))

	result, err := f.svc.Login(context.Background(), "ALICE@example.com", "secret1")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if result.Account.ID != "acc-1" || result.Tokens.RefreshToken != "refresh:acc-1" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestLoginMalformedHashIsInternal(t *testing.T) {
	account := verifiedLocal("acc-1", "alice@example.com", "secret1")
	account.PasswordHash = strPtr("bcrypt$garbage")
	f := newAuthFixture(account)

	_, err := f.svc.Login(context.Background(), "alice@example.com", "secret1")
	assertKind(t, err, KindInternal)
}

func TestRefreshToken(t *testing.T) {
	unverified := verifiedLocal("acc-2", "pending@example.com", "secret1")
	unverified.IsVerified = false
	f := newAuthFixture(verifiedLocal("acc-1", "alice@example.com", "secret1"), unverified)

	pair, err := f.svc.RefreshToken(context.Background(), "refresh:acc-1")
	if err != nil {
		t.Fatalf("RefreshToken returned error: %v", err)
	}
	if pair.AccessToken != "access:acc-1" {
		t.Fatalf("unexpected pair: %+v", pair)
	}

	for _, token := range []string{"garbage", "refresh:missing", "refresh:acc-2"} {
		if _, err := f.svc.RefreshToken(context.Background(), token); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("expected ErrInvalidRefreshToken for %q, got %v", token, err)
		}
	}
}

func TestForgotPassword(t *testing.T) {
	google := domain.Account{ID: "acc-2", Email: "google@example.com", Provider: domain.ProviderGoogle, Role: domain.RoleUser, IsVerified: true}
	f := newAuthFixture(verifiedLocal("acc-1", "alice@example.com", "secret1"), google)

	if _, err := f.svc.ForgotPassword(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword returned error: %v", err)
	}
	if len(f.notifier.resets) != 1 || f.notifier.resets[0].Code != "111111" {
		t.Fatalf("expected reset mail, got %+v", f.notifier.resets)
	}
	if len(f.notifier.registrations) != 0 {
		t.Fatal("reset must not use the registration template")
	}
	if len(f.events.resetReqs) != 1 {
		t.Fatal("expected reset requested event")
	}

	if _, err := f.svc.ForgotPassword(context.Background(), "google@example.com"); !errors.Is(err, ErrFederatedAccount) {
		t.Fatalf("expected ErrFederatedAccount, got %v", err)
	}
	if _, err := f.svc.ForgotPassword(context.Background(), "ghost@example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestResetPassword(t *testing.T) {
	f := newAuthFixture(verifiedLocal("acc-1", "alice@example.com", "secret1"))
	ctx := context.Background()

	if _, err := f.svc.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword returned error: %v", err)
	}

	if _, err := f.svc.ResetPassword(ctx, "alice@example.com", "000000", "newpass1"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}
	if *f.accounts.snapshot("acc-1").PasswordHash != "hashed:secret1" {
		t.Fatal("hash must be unchanged after a failed reset")
	}

	if _, err := f.svc.ResetPassword(ctx, "alice@example.com", "111111", "newpass1"); err != nil {
		t.Fatalf("ResetPassword returned error: %v", err)
	}
	account := f.accounts.snapshot("acc-1")
	if *account.PasswordHash != "hashed:newpass1" || account.OTPCode != nil {
		t.Fatalf("unexpected account after reset: %+v", account)
	}
	if len(f.events.resets) != 1 {
		t.Fatal("expected password reset event")
	}

	if _, err := f.svc.ResetPassword(ctx, "alice@example.com", "111111", "another1"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected consumed code to be rejected, got %v", err)
	}

	if _, err := f.svc.Login(ctx, "alice@example.com", "newpass1"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestResetPasswordExpiredCode(t *testing.T) {
	f := newAuthFixture(verifiedLocal("acc-1", "alice@example.com", "secret1"))
	ctx := context.Background()

	if _, err := f.svc.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword returned error: %v", err)
	}
	f.advance(11 * time.Minute)

	if _, err := f.svc.ResetPassword(ctx, "alice@example.com", "111111", "newpass1"); !errors.Is(err, ErrExpiredOTP) {
		t.Fatalf("expected ErrExpiredOTP, got %v", err)
	}
}

func TestEventFailuresAreSwallowed(t *testing.T) {
	f := newAuthFixture()
	f.events.err = errors.New("broker down")

	if _, err := f.svc.Register(context.Background(), RegisterInput{Email: "a@x.com", Password: "secret1"}); err != nil {
		t.Fatalf("Register must not fail on publish errors: %v", err)
	}
}

func TestGetProfile(t *testing.T) {
	f := newAuthFixture(verifiedLocal("acc-1", "alice@example.com", "secret1"))

	account, err := f.svc.GetProfile(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("GetProfile returned error: %v", err)
	}
	if account.Email != "alice@example.com" {
		t.Fatalf("unexpected profile: %+v", account)
	}

	if _, err := f.svc.GetProfile(context.Background(), "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	f.accounts.getErr = errors.New("db down")
	_, err = f.svc.GetProfile(context.Background(), "acc-1")
	assertKind(t, err, KindInternal)
	if errors.Is(err, repository.ErrNotFound) {
		t.Fatal("infrastructure failure must not look like not found")
	}
}
