package port

import (
	"context"

	"github.com/novacrm/auth-service/internal/core/domain"
)

// IdentityProvider runs the OAuth authorization-code flow against an external provider.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*domain.FederatedIdentity, error)
}

// IDTokenVerifier validates provider-issued ID tokens presented directly by clients.
type IDTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*domain.FederatedIdentity, error)
}

// StateStore issues and consumes single-use OAuth state values.
type StateStore interface {
	Issue() (string, error)
	Consume(state string) bool
}
