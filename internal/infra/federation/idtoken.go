package federation

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"

	"github.com/novacrm/auth-service/internal/core/domain"
	"github.com/novacrm/auth-service/internal/core/port"
)

// GoogleIDTokenVerifier validates ID tokens minted for this client, as sent by mobile apps.
type GoogleIDTokenVerifier struct {
	clientID string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

func NewGoogleIDTokenVerifier(clientID string) (*GoogleIDTokenVerifier, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, ErrProviderMisconfigured
	}
	return &GoogleIDTokenVerifier{clientID: clientID, validate: idtoken.Validate}, nil
}

func (v *GoogleIDTokenVerifier) Verify(ctx context.Context, token string) (*domain.FederatedIdentity, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("federation: missing id token")
	}

	payload, err := v.validate(ctx, token, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("validate google id token: %w", err)
	}

	info := googleUserInfo{Sub: payload.Subject}
	info.Email, _ = payload.Claims["email"].(string)
	info.Name, _ = payload.Claims["name"].(string)
	info.Picture, _ = payload.Claims["picture"].(string)
	info.EmailVerified, _ = payload.Claims["email_verified"].(bool)

	return info.identity()
}

var _ port.IDTokenVerifier = (*GoogleIDTokenVerifier)(nil)
