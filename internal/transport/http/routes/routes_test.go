package routes_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/novacrm/auth-service/internal/core/domain"
	"github.com/novacrm/auth-service/internal/infra/config"
	"github.com/novacrm/auth-service/internal/infra/kafka"
	"github.com/novacrm/auth-service/internal/infra/security"
	redisrepo "github.com/novacrm/auth-service/internal/repository/redis"
	"github.com/novacrm/auth-service/internal/transport/http/middleware"
	httproutes "github.com/novacrm/auth-service/internal/transport/http/routes"
	"github.com/novacrm/auth-service/internal/usecase"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Code    int             `json:"code"`
}

type testServer struct {
	router   *gin.Engine
	accounts *accountStore
	codes    *codeCatcher
	tokens   *security.TokenIssuer
}

func newTestServer(t *testing.T, authMax int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	require.NoError(t, err)

	tokens, err := security.NewTokenIssuer(security.TokenIssuerConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "auth-service-test",
	})
	require.NoError(t, err)

	accounts := newAccountStore()
	codes := &codeCatcher{}

	auth := usecase.NewAuthService(usecase.AuthDependencies{
		Accounts: accounts,
		Hasher:   hasher,
		Policy:   security.NewPasswordPolicy(security.PasswordPolicyConfig{}),
		OTP:      security.NewOTPGenerator(),
		Tokens:   tokens,
		Notifier: codes,
		Events:   kafka.NewStubPublisher(zap.NewNop()),
	})

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisrepo.NewRateLimitRepository(client, redisrepo.SlidingWindowConfig{KeyPrefix: "test:rl", TTL: time.Hour})

	router := httproutes.Register(httproutes.Dependencies{
		Config: &config.AppConfig{
			App:       config.AppSettings{Env: "test"},
			Frontend:  config.FrontendSettings{URL: "http://localhost:5173"},
			RateLimit: config.RateLimitSettings{WindowDuration: 15 * time.Minute, AuthMaxRequests: authMax},
		},
		Logger:      zap.NewNop(),
		RateLimiter: middleware.NewRateLimiter(store, zap.NewNop()),
		Tokens:      tokens,
		Services: httproutes.ServiceSet{
			Auth:  auth,
			Users: usecase.NewUserService(accounts),
		},
	})

	return &testServer{router: router, accounts: accounts, codes: codes, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path string, body any, bearer string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	var env envelope
	if rr.Body.Len() > 0 && json.Valid(rr.Body.Bytes()) {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	}
	return rr, env
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(httproutes.Dependencies{
		Config: &config.AppConfig{App: config.AppSettings{Env: "test"}},
		Logger: zap.NewNop(),
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterVerifyLoginScenario(t *testing.T) {
	srv := newTestServer(t, 100)

	rr, env := srv.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":    "a@x.com",
		"password": "secret1",
	}, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.True(t, env.Success)
	assert.JSONEq(t, `{"user":{"email":"a@x.com","name":null}}`, string(env.Data))

	code := srv.codes.last("a@x.com")
	require.Len(t, code, 6)

	rr, env = srv.do(t, http.MethodPost, "/api/v1/auth/verify-otp", map[string]string{
		"email":   "a@x.com",
		"otpCode": code,
	}, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var verified struct {
		User   struct{ ID string } `json:"user"`
		Tokens domain.TokenPair    `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &verified))
	require.NotEmpty(t, verified.Tokens.AccessToken)

	rr, _ = srv.do(t, http.MethodPost, "/api/v1/auth/verify-otp", map[string]string{
		"email":   "a@x.com",
		"otpCode": code,
	}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, env = srv.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "a@x.com",
		"password": "secret1",
	}, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var loggedIn struct {
		User   struct{ ID string } `json:"user"`
		Tokens domain.TokenPair    `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &loggedIn))
	assert.Equal(t, verified.User.ID, loggedIn.User.ID)

	rr, env = srv.do(t, http.MethodGet, "/api/v1/auth/profile", nil, loggedIn.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, string(env.Data), `"authProvider":"LOCAL"`)
	assert.NotContains(t, rr.Body.String(), "passwordHash")
	assert.NotContains(t, rr.Body.String(), "otpCode")

	rr, env = srv.do(t, http.MethodPost, "/api/v1/auth/refresh-token", map[string]string{
		"refreshToken": loggedIn.Tokens.RefreshToken,
	}, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, string(env.Data), "accessToken")

	rr, env = srv.do(t, http.MethodPost, "/api/v1/auth/refresh-token", map[string]string{
		"refreshToken": loggedIn.Tokens.AccessToken,
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, http.StatusUnauthorized, env.Code)
}

func TestLoginFailureIsUniform(t *testing.T) {
	srv := newTestServer(t, 100)

	_, _ = srv.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":    "pending@x.com",
		"password": "secret1",
	}, "")

	_, unknown := srv.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "ghost@x.com", "password": "secret1"}, "")
	_, pending := srv.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "pending@x.com", "password": "secret1"}, "")

	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, unknown.Code, pending.Code)
	assert.Equal(t, unknown.Message, pending.Message)
}

func TestRequestValidation(t *testing.T) {
	srv := newTestServer(t, 100)

	cases := []struct {
		name string
		path string
		body map[string]string
		want string
	}{
		{"bad email", "/api/v1/auth/register", map[string]string{"email": "nope", "password": "secret1"}, "invalid email address"},
		{"short password", "/api/v1/auth/register", map[string]string{"email": "a@x.com", "password": "abc"}, "password must be at least 6 characters long"},
		{"bad phone", "/api/v1/auth/register", map[string]string{"email": "a@x.com", "password": "secret1", "phone": "12ab"}, "phone must be 10 or 11 digits"},
		{"short name", "/api/v1/auth/register", map[string]string{"email": "a@x.com", "password": "secret1", "name": "A"}, "name must be at least 2 characters long"},
		{"otp letters", "/api/v1/auth/verify-otp", map[string]string{"email": "a@x.com", "otpCode": "12345a"}, "otpCode must be 6 digits"},
		{"missing refresh token", "/api/v1/auth/refresh-token", map[string]string{}, "refreshToken is required"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, env := srv.do(t, http.MethodPost, tc.path, tc.body, "")
			require.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, http.StatusBadRequest, env.Code)
			assert.Equal(t, tc.want, env.Message)
		})
	}
}

func TestUsersListingRequiresStaffRole(t *testing.T) {
	srv := newTestServer(t, 100)

	hash := "unused"
	srv.accounts.put(domain.Account{ID: "u-1", Email: "user@x.com", Role: domain.RoleUser, Provider: domain.ProviderLocal, IsVerified: true, PasswordHash: &hash})
	srv.accounts.put(domain.Account{ID: "s-1", Email: "sales@x.com", Role: domain.RoleSales, Provider: domain.ProviderLocal, IsVerified: true, PasswordHash: &hash})

	userPair, err := srv.tokens.Issue(domain.TokenClaims{UserID: "u-1", Email: "user@x.com", Role: domain.RoleUser})
	require.NoError(t, err)
	salesPair, err := srv.tokens.Issue(domain.TokenClaims{UserID: "s-1", Email: "sales@x.com", Role: domain.RoleSales})
	require.NoError(t, err)

	rr, _ := srv.do(t, http.MethodGet, "/api/v1/users", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, _ = srv.do(t, http.MethodGet, "/api/v1/users", nil, userPair.AccessToken)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, env := srv.do(t, http.MethodGet, "/api/v1/users?page=1&limit=10", nil, salesPair.AccessToken)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var page struct {
		Users      []map[string]any   `json:"users"`
		Pagination usecase.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page.Users, 2)
	assert.Equal(t, usecase.Pagination{Page: 1, Limit: 10, Total: 2, TotalPages: 1}, page.Pagination)

	rr, _ = srv.do(t, http.MethodGet, "/api/v1/users?limit=ten", nil, salesPair.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = srv.do(t, http.MethodGet, "/api/v1/users?sortOrder=sideways", nil, salesPair.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = srv.do(t, http.MethodGet, "/api/v1/users/profile", nil, userPair.AccessToken)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthEndpointsAreRateLimited(t *testing.T) {
	srv := newTestServer(t, 2)

	body := map[string]string{"email": "ghost@x.com", "password": "secret1"}
	for i := 0; i < 2; i++ {
		rr, _ := srv.do(t, http.MethodPost, "/api/v1/auth/login", body, "")
		require.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.NotEmpty(t, rr.Header().Get("X-RateLimit-Limit"))
	}

	rr, env := srv.do(t, http.MethodPost, "/api/v1/auth/login", body, "")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, http.StatusTooManyRequests, env.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// refresh-token only carries the general API limit
	rr, _ = srv.do(t, http.MethodPost, "/api/v1/auth/refresh-token", map[string]string{"refreshToken": "x"}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGoogleRoutesWhenDisabled(t *testing.T) {
	srv := newTestServer(t, 100)

	rr, env := srv.do(t, http.MethodGet, "/api/v1/auth/google", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "google sign-in is not enabled", env.Message)
}
