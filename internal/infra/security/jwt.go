package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/novacrm/auth-service/internal/core/domain"
	"github.com/novacrm/auth-service/internal/core/port"
)

// ErrInvalidToken covers every verification failure: bad signature, expiry, wrong secret, malformed payload.
var ErrInvalidToken = errors.New("jwt: invalid token")

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// IdentityClaims is the signed payload of both token kinds.
type IdentityClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuerConfig holds the HMAC secrets and lifetimes for both token kinds.
type TokenIssuerConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// TokenIssuer signs HS256 token pairs. Access and refresh tokens use different secrets
// so one kind never verifies as the other.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if strings.TrimSpace(cfg.AccessSecret) == "" || strings.TrimSpace(cfg.RefreshSecret) == "" {
		return nil, fmt.Errorf("jwt: access and refresh secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("jwt: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTokenTTL
	}

	return &TokenIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        strings.TrimSpace(cfg.Issuer),
		now:           time.Now,
	}, nil
}

// WithClock overrides the time source used for iat/exp and verification.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	if now != nil {
		t.now = now
	}
	return t
}

// Issue mints an access and a refresh token from the same claims snapshot.
func (t *TokenIssuer) Issue(claims domain.TokenClaims) (domain.TokenPair, error) {
	if strings.TrimSpace(claims.UserID) == "" {
		return domain.TokenPair{}, fmt.Errorf("jwt: user id is required")
	}

	now := t.now().UTC()

	access, err := t.sign(claims, t.accessSecret, now, t.accessTTL)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("jwt: sign access token: %w", err)
	}

	refresh, err := t.sign(claims, t.refreshSecret, now, t.refreshTTL)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("jwt: sign refresh token: %w", err)
	}

	return domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (t *TokenIssuer) sign(claims domain.TokenClaims, secret []byte, now time.Time, ttl time.Duration) (string, error) {
	payload := IdentityClaims{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   string(claims.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(secret)
}

// VerifyAccess validates an access token and returns its claims.
func (t *TokenIssuer) VerifyAccess(token string) (*domain.TokenClaims, error) {
	return t.verify(token, t.accessSecret)
}

// VerifyRefresh validates a refresh token and returns its claims.
func (t *TokenIssuer) VerifyRefresh(token string) (*domain.TokenClaims, error) {
	return t.verify(token, t.refreshSecret)
}

func (t *TokenIssuer) verify(raw string, secret []byte) (*domain.TokenClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	var claims IdentityClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	role := domain.Role(claims.Role)
	if claims.UserID == "" || !role.Valid() {
		return nil, ErrInvalidToken
	}

	return &domain.TokenClaims{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   role,
	}, nil
}

var _ port.TokenIssuer = (*TokenIssuer)(nil)
