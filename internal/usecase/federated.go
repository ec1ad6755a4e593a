package usecase

import (
	"context"
	"errors"
	"strings"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/novacrm/auth-service/internal/core/domain"
	"github.com/novacrm/auth-service/internal/core/port"
	"github.com/novacrm/auth-service/internal/infra/logger"
	"github.com/novacrm/auth-service/internal/repository"
)

// FederatedLogin signs in the owner of a provider-verified identity, creating the account on
// first use. An e-mail already registered under another provider is refused.
func (s *AuthService) FederatedLogin(ctx context.Context, identity domain.FederatedIdentity) (*AuthResult, error) {
	email := domain.NormalizeEmail(identity.Email)
	if email == "" || !identity.Provider.IsFederated() {
		return nil, badRequest("invalid federated identity")
	}

	account, created, err := s.findOrCreateFederated(ctx, email, identity)
	if err != nil {
		return nil, err
	}

	if account.Provider != identity.Provider {
		s.metrics.login(loginMethodGoogle, "provider_collision")
		s.log(ctx).Info("federated login refused, provider mismatch",
			zap.String("user_id", account.ID),
			zap.String("existing_provider", string(account.Provider)),
		)
		return nil, ErrProviderCollision
	}

	tokens, err := s.tokens.Issue(account.Claims())
	if err != nil {
		return nil, internal("issue tokens", err)
	}

	if err := s.events.PublishFederatedLogin(ctx, domain.FederatedLoginEvent{
		EventID:    uuid.NewString(),
		UserID:     account.ID,
		Email:      account.Email,
		Provider:   identity.Provider,
		Created:    created,
		LoggedInAt: s.now().UTC(),
	}); err != nil {
		s.log(ctx).Warn("publish federated login failed", zap.String("user_id", account.ID), zap.Error(err))
	}

	s.metrics.login(loginMethodGoogle, "success")
	s.log(ctx).Info("federated login",
		zap.String("user_id", account.ID),
		zap.String("email", logger.MaskEmail(account.Email)),
		zap.Bool("created", created),
	)

	return &AuthResult{Account: *account, Tokens: tokens}, nil
}

func (s *AuthService) findOrCreateFederated(ctx context.Context, email string, identity domain.FederatedIdentity) (*domain.Account, bool, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, internal("load account", err)
	}

	now := s.now().UTC()
	fresh := domain.Account{
		ID:         uuid.NewString(),
		Email:      email,
		Name:       optionalString(identity.Name),
		Provider:   identity.Provider,
		Role:       domain.DefaultRole,
		IsVerified: true,
		Avatar:     optionalString(identity.AvatarURL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.accounts.Create(ctx, fresh); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, false, internal("create federated account", err)
		}
		// a concurrent first login created the row
		account, err = s.accounts.GetByEmail(ctx, email)
		if err != nil {
			return nil, false, internal("reload account", err)
		}
		return account, false, nil
	}

	return &fresh, true, nil
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// GoogleService wires the Google redirect and ID-token flows into FederatedLogin.
type GoogleService struct {
	auth     *AuthService
	provider port.IdentityProvider
	verifier port.IDTokenVerifier
	states   port.StateStore
	logger   *zap.Logger
}

// NewGoogleService returns a service whose flows answer ErrFederationDisabled when a
// collaborator is nil.
func NewGoogleService(auth *AuthService, provider port.IdentityProvider, verifier port.IDTokenVerifier, states port.StateStore, log *zap.Logger) *GoogleService {
	if log == nil {
		log = zap.NewNop()
	}
	return &GoogleService{auth: auth, provider: provider, verifier: verifier, states: states, logger: log}
}

// BeginAuth issues a single-use state and returns the consent URL carrying it.
func (g *GoogleService) BeginAuth() (string, error) {
	if g.provider == nil || g.states == nil {
		return "", ErrFederationDisabled
	}
	state, err := g.states.Issue()
	if err != nil {
		return "", internal("issue oauth state", err)
	}
	return g.provider.AuthCodeURL(state), nil
}

// CompleteAuth validates the callback state, exchanges the code and signs the user in.
func (g *GoogleService) CompleteAuth(ctx context.Context, code, state string) (*AuthResult, error) {
	if g.provider == nil || g.states == nil {
		return nil, ErrFederationDisabled
	}
	if !g.states.Consume(state) {
		g.logger.Info("google callback rejected, unknown or expired state")
		return nil, ErrFederatedAuthFailed
	}

	identity, err := g.provider.Exchange(ctx, code)
	if err != nil {
		g.logger.Warn("google code exchange failed", zap.Error(err))
		return nil, newError(KindUnauthorized, ErrFederatedAuthFailed.Message, err)
	}

	return g.auth.FederatedLogin(ctx, *identity)
}

// LoginWithIDToken signs in a client that already holds a Google ID token.
func (g *GoogleService) LoginWithIDToken(ctx context.Context, idToken string) (*AuthResult, error) {
	if g.verifier == nil {
		return nil, ErrFederationDisabled
	}
	if strings.TrimSpace(idToken) == "" {
		return nil, badRequest("idToken is required")
	}

	identity, err := g.verifier.Verify(ctx, idToken)
	if err != nil {
		g.logger.Info("google id token rejected", zap.Error(err))
		return nil, newError(KindUnauthorized, ErrFederatedAuthFailed.Message, err)
	}

	return g.auth.FederatedLogin(ctx, *identity)
}
