package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	googleOAuth2 "golang.org/x/oauth2/google"

	"github.com/novacrm/auth-service/internal/core/domain"
	"github.com/novacrm/auth-service/internal/core/port"
	"github.com/novacrm/auth-service/internal/infra/config"
)

var GoogleUserInfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"

var (
	ErrProviderMisconfigured = errors.New("federation: provider misconfigured")
	// ErrEmailNotVerified is returned when the provider does not vouch for the e-mail address.
	ErrEmailNotVerified = errors.New("federation: provider e-mail not verified")
	ErrMissingIdentity  = errors.New("federation: provider returned no subject or e-mail")
)

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

func (u googleUserInfo) identity() (*domain.FederatedIdentity, error) {
	if u.Sub == "" || u.Email == "" {
		return nil, ErrMissingIdentity
	}
	if !u.EmailVerified {
		return nil, ErrEmailNotVerified
	}
	return &domain.FederatedIdentity{
		Provider:       domain.ProviderGoogle,
		ProviderUserID: u.Sub,
		Email:          domain.NormalizeEmail(u.Email),
		Name:           strings.TrimSpace(u.Name),
		AvatarURL:      u.Picture,
	}, nil
}

// GoogleProvider runs the authorization-code flow against Google and reads the userinfo endpoint.
type GoogleProvider struct {
	oauth *oauth2.Config
}

func NewGoogleProvider(cfg config.GoogleSettings) (*GoogleProvider, error) {
	if !cfg.Enabled() || cfg.CallbackURL == "" {
		return nil, ErrProviderMisconfigured
	}

	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     googleOAuth2.Endpoint,
		},
	}, nil
}

func (g *GoogleProvider) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades the authorization code for a token and fetches the profile with it.
func (g *GoogleProvider) Exchange(ctx context.Context, code string) (*domain.FederatedIdentity, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("federation: missing authorization code")
	}

	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange google code: %w", err)
	}

	return g.fetchUserInfo(ctx, token)
}

func (g *GoogleProvider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*domain.FederatedIdentity, error) {
	client := g.oauth.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, GoogleUserInfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build google userinfo request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get google userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("google userinfo: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode google userinfo: %w", err)
	}

	return info.identity()
}

var _ port.IdentityProvider = (*GoogleProvider)(nil)
