package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/novacrm/auth-service/internal/core/domain"
	"github.com/novacrm/auth-service/internal/core/port"
	"github.com/novacrm/auth-service/internal/infra/logger"
	"github.com/novacrm/auth-service/internal/repository"
)

const (
	otpPurposeRegistration  = "registration"
	otpPurposeResend        = "resend"
	otpPurposePasswordReset = "password_reset"

	loginMethodPassword = "password"
	loginMethodGoogle   = "google"
)

// AuthDependencies groups the collaborators of AuthService.
type AuthDependencies struct {
	Accounts port.AccountRepository
	Hasher   port.PasswordHasher
	Policy   port.PasswordPolicyValidator
	OTP      port.OTPGenerator
	Tokens   port.TokenIssuer
	Notifier port.NotificationDispatcher
	Events   port.EventPublisher
	Metrics  *Metrics
	Logger   *zap.Logger
}

// AuthService drives registration, e-mail verification, login, token refresh and password reset.
type AuthService struct {
	accounts port.AccountRepository
	hasher   port.PasswordHasher
	policy   port.PasswordPolicyValidator
	otp      port.OTPGenerator
	tokens   port.TokenIssuer
	notifier port.NotificationDispatcher
	events   port.EventPublisher
	metrics  *Metrics
	logger   *zap.Logger
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(deps AuthDependencies) *AuthService {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		accounts: deps.Accounts,
		hasher:   deps.Hasher,
		policy:   deps.Policy,
		otp:      deps.OTP,
		tokens:   deps.Tokens,
		notifier: deps.Notifier,
		events:   deps.Events,
		metrics:  deps.Metrics,
		logger:   log,
		now:      time.Now,
	}
}

// RegisterInput carries a sign-up request. Name and Phone are optional.
type RegisterInput struct {
	Email    string
	Password string
	Name     *string
	Phone    *string
}

// RegisterResult is the public part of a registration. It never carries the hash, code or role.
type RegisterResult struct {
	Email   string
	Name    *string
	Resent  bool
	Message string
}

// AuthResult pairs the account snapshot with the tokens minted from it.
type AuthResult struct {
	Account domain.Account
	Tokens  domain.TokenPair
}

const (
	msgRegistered        = "Registration successful. Please check your email for the OTP code."
	msgOTPResent         = "OTP code has been resent. Please check your email."
	msgResetCodeSent     = "An OTP code has been sent to your email."
	msgPasswordResetDone = "Password has been reset successfully. You can now log in with your new password."
)

// Register creates an unverified local account, or refreshes the pending one, and mails a code.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	email := domain.NormalizeEmail(in.Email)
	if email == "" {
		return nil, badRequest("email is required")
	}
	name := trimOptional(in.Name)
	phone := trimOptional(in.Phone)

	if err := s.policy.Validate(in.Password, email, derefString(name)); err != nil {
		return nil, newError(KindBadRequest, err.Error(), err)
	}

	existing, err := s.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil && existing.IsVerified:
		return nil, ErrEmailRegistered
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, internal("load account", err)
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, internal("hash password", err)
	}

	code, err := s.otp.Generate()
	if err != nil {
		return nil, internal("generate otp", err)
	}
	expiry := s.otp.ExpiryFromNow()

	if existing == nil {
		now := s.now().UTC()
		account := domain.Account{
			ID:           uuid.NewString(),
			Email:        email,
			Name:         name,
			Phone:        phone,
			PasswordHash: &passwordHash,
			Provider:     domain.ProviderLocal,
			Role:         domain.DefaultRole,
			OTPCode:      &code,
			OTPExpiry:    &expiry,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		err = s.accounts.Create(ctx, account)
		if err == nil {
			s.afterRegistration(ctx, account.ID, email, name, code, expiry, false)
			return &RegisterResult{Email: email, Name: name, Message: msgRegistered}, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, internal("create account", err)
		}

		// a concurrent registration won the insert
		existing, err = s.accounts.GetByEmail(ctx, email)
		if err != nil {
			return nil, internal("reload account", err)
		}
		if existing.IsVerified {
			return nil, ErrEmailRegistered
		}
	}

	err = s.accounts.RefreshPendingRegistration(ctx, port.PendingRegistration{
		AccountID:    existing.ID,
		PasswordHash: passwordHash,
		Name:         name,
		Phone:        phone,
		OTPCode:      code,
		OTPExpiry:    expiry,
	})
	if err != nil {
		if errors.Is(err, repository.ErrConditionFailed) {
			return nil, ErrEmailRegistered
		}
		return nil, internal("refresh pending registration", err)
	}

	if name == nil {
		name = existing.Name
	}
	s.afterRegistration(ctx, existing.ID, email, name, code, expiry, true)

	return &RegisterResult{Email: email, Name: name, Resent: true, Message: msgOTPResent}, nil
}

func (s *AuthService) afterRegistration(ctx context.Context, id, email string, name *string, code string, expiry time.Time, reregistered bool) {
	s.notifier.DispatchRegistrationOTP(port.OTPMessage{
		Email:     email,
		Name:      derefString(name),
		Code:      code,
		ExpiresAt: expiry,
	})
	s.metrics.otpIssuedFor(otpPurposeRegistration)

	if err := s.events.PublishAccountRegistered(ctx, domain.AccountRegisteredEvent{
		EventID:      uuid.NewString(),
		UserID:       id,
		Email:        email,
		Name:         name,
		Provider:     domain.ProviderLocal,
		Reregistered: reregistered,
		RegisteredAt: s.now().UTC(),
	}); err != nil {
		s.log(ctx).Warn("publish account registered failed", zap.String("user_id", id), zap.Error(err))
	}

	s.log(ctx).Info("registration code issued",
		zap.String("user_id", id),
		zap.String("email", logger.MaskEmail(email)),
		zap.Bool("reregistered", reregistered),
	)
}

// VerifyOTP marks the account verified when code matches and is unexpired, then signs the user in.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (*AuthResult, error) {
	email = domain.NormalizeEmail(email)
	code = strings.TrimSpace(code)

	account, err := s.loadByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if account.IsVerified {
		return nil, ErrAlreadyVerified
	}
	if err := s.checkCode(account, code); err != nil {
		return nil, err
	}

	verified, err := s.accounts.ConsumeVerificationOTP(ctx, email, code, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrConditionFailed) {
			// lost a race with another verify, a resend or the expiry boundary
			s.log(ctx).Info("verification code no longer valid at consume",
				zap.String("user_id", account.ID),
			)
			return nil, ErrInvalidOTP
		}
		return nil, internal("consume verification code", err)
	}

	tokens, err := s.tokens.Issue(verified.Claims())
	if err != nil {
		return nil, internal("issue tokens", err)
	}

	if err := s.events.PublishAccountVerified(ctx, domain.AccountVerifiedEvent{
		EventID:    uuid.NewString(),
		UserID:     verified.ID,
		Email:      verified.Email,
		VerifiedAt: s.now().UTC(),
	}); err != nil {
		s.log(ctx).Warn("publish account verified failed", zap.String("user_id", verified.ID), zap.Error(err))
	}

	return &AuthResult{Account: *verified, Tokens: tokens}, nil
}

// ResendOTP rotates the verification code of an unverified account.
func (s *AuthService) ResendOTP(ctx context.Context, email string) (string, error) {
	email = domain.NormalizeEmail(email)

	account, err := s.loadByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if account.IsVerified {
		return "", ErrAlreadyVerified
	}

	code, expiry, err := s.rotateCode(ctx, account.ID)
	if err != nil {
		return "", err
	}

	s.notifier.DispatchRegistrationOTP(port.OTPMessage{
		Email:     account.Email,
		Name:      derefString(account.Name),
		Code:      code,
		ExpiresAt: expiry,
	})
	s.metrics.otpIssuedFor(otpPurposeResend)

	return msgOTPResent, nil
}

// Login authenticates a verified local account. Every failure looks the same to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = domain.NormalizeEmail(email)

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, internal("load account", err)
		}
		s.burnHash(password)
		return nil, s.loginFailed(ctx, "unknown_email", "")
	}

	switch {
	case account.Provider != domain.ProviderLocal:
		return nil, s.loginFailed(ctx, "federated_account", account.ID)
	case !account.IsVerified:
		return nil, s.loginFailed(ctx, "unverified", account.ID)
	case !account.HasPassword():
		return nil, s.loginFailed(ctx, "no_password", account.ID)
	}

	ok, err := s.hasher.Verify(password, *account.PasswordHash)
	if err != nil {
		return nil, internal("verify password", err)
	}
	if !ok {
		return nil, s.loginFailed(ctx, "wrong_password", account.ID)
	}

	tokens, err := s.tokens.Issue(account.Claims())
	if err != nil {
		return nil, internal("issue tokens", err)
	}

	s.metrics.login(loginMethodPassword, "success")
	return &AuthResult{Account: *account, Tokens: tokens}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, reason, userID string) error {
	s.metrics.login(loginMethodPassword, reason)
	s.log(ctx).Info("login rejected", zap.String("reason", reason), zap.String("user_id", userID))
	return ErrInvalidCredentials
}

// burnHash spends roughly one hash verification so unknown e-mails answer as slowly as wrong passwords.
func (s *AuthService) burnHash(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(uuid.NewString())
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(password, s.dummyHash)
	}
}

// RefreshToken trades a valid refresh token for a fresh pair built from the current account state.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return domain.TokenPair{}, ErrInvalidRefreshToken
	}

	account, err := s.accounts.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidRefreshToken
		}
		return domain.TokenPair{}, internal("load account", err)
	}
	if !account.IsVerified {
		return domain.TokenPair{}, ErrInvalidRefreshToken
	}

	tokens, err := s.tokens.Issue(account.Claims())
	if err != nil {
		return domain.TokenPair{}, internal("issue tokens", err)
	}
	return tokens, nil
}

// ForgotPassword mails a reset code to a local account.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = domain.NormalizeEmail(email)

	account, err := s.loadByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if account.Provider != domain.ProviderLocal {
		return "", ErrFederatedAccount
	}

	code, expiry, err := s.rotateCode(ctx, account.ID)
	if err != nil {
		return "", err
	}

	s.notifier.DispatchPasswordResetOTP(port.OTPMessage{
		Email:     account.Email,
		Name:      derefString(account.Name),
		Code:      code,
		ExpiresAt: expiry,
	})
	s.metrics.otpIssuedFor(otpPurposePasswordReset)

	if err := s.events.PublishPasswordResetRequested(ctx, domain.PasswordResetRequestedEvent{
		EventID:     uuid.NewString(),
		UserID:      account.ID,
		Email:       account.Email,
		RequestedAt: s.now().UTC(),
		ExpiresAt:   expiry,
	}); err != nil {
		s.log(ctx).Warn("publish password reset requested failed", zap.String("user_id", account.ID), zap.Error(err))
	}

	return msgResetCodeSent, nil
}

// ResetPassword swaps the password hash when the reset code matches and is unexpired.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) (string, error) {
	email = domain.NormalizeEmail(email)
	code = strings.TrimSpace(code)

	account, err := s.loadByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if err := s.checkCode(account, code); err != nil {
		return "", err
	}

	if err := s.policy.Validate(newPassword, email, derefString(account.Name)); err != nil {
		return "", newError(KindBadRequest, err.Error(), err)
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return "", internal("hash password", err)
	}

	if err := s.accounts.ConsumeResetOTP(ctx, email, code, passwordHash, s.now()); err != nil {
		if errors.Is(err, repository.ErrConditionFailed) {
			s.log(ctx).Info("reset code no longer valid at consume", zap.String("user_id", account.ID))
			return "", ErrInvalidOTP
		}
		return "", internal("consume reset code", err)
	}

	if err := s.events.PublishPasswordReset(ctx, domain.PasswordResetEvent{
		EventID: uuid.NewString(),
		UserID:  account.ID,
		ResetAt: s.now().UTC(),
	}); err != nil {
		s.log(ctx).Warn("publish password reset failed", zap.String("user_id", account.ID), zap.Error(err))
	}

	return msgPasswordResetDone, nil
}

// GetProfile returns the account of an authenticated caller.
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, internal("load account", err)
	}
	return account, nil
}

func (s *AuthService) loadByEmail(ctx context.Context, email string) (*domain.Account, error) {
	if email == "" {
		return nil, badRequest("email is required")
	}
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, internal("load account", err)
	}
	return account, nil
}

// checkCode gives callers a precise reason before the conditional update decides for real.
func (s *AuthService) checkCode(account *domain.Account, code string) error {
	if code == "" || account.OTPCode == nil || *account.OTPCode != code {
		return ErrInvalidOTP
	}
	if s.otp.IsExpired(account.OTPExpiry) {
		return ErrExpiredOTP
	}
	return nil
}

func (s *AuthService) rotateCode(ctx context.Context, accountID string) (string, time.Time, error) {
	code, err := s.otp.Generate()
	if err != nil {
		return "", time.Time{}, internal("generate otp", err)
	}
	expiry := s.otp.ExpiryFromNow()

	if err := s.accounts.SetOTP(ctx, accountID, code, expiry); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", time.Time{}, ErrAccountNotFound
		}
		return "", time.Time{}, internal("store otp", err)
	}
	return code, expiry, nil
}

func (s *AuthService) log(ctx context.Context) *zap.Logger {
	if id := logger.RequestIDFromContext(ctx); id != "" {
		return s.logger.With(zap.String("request_id", id))
	}
	return s.logger
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
