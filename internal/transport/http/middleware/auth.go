package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/novacrm/auth-service/internal/core/domain"
)

// ErrorResponse mirrors handlers.ErrorResponse so aborted requests share the error envelope.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:    status,
		Message: message,
		TraceID: GetTraceID(c),
	})
}

// AccessTokenVerifier validates bearer tokens.
type AccessTokenVerifier interface {
	VerifyAccess(token string) (*domain.TokenClaims, error)
}

// RequireAuth accepts only requests carrying a valid bearer access token.
func RequireAuth(verifier AccessTokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, http.StatusUnauthorized, "missing authorization header")
			return
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			abortWithError(c, http.StatusUnauthorized, "invalid authorization format: expected 'Bearer <token>'")
			return
		}

		token = strings.TrimSpace(token)
		if token == "" {
			abortWithError(c, http.StatusUnauthorized, "missing access token")
			return
		}

		claims, err := verifier.VerifyAccess(token)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "invalid or expired access token")
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole lets through authenticated callers whose role is one of roles.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	allowed := make(map[domain.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "authentication required")
			return
		}

		if !allowed[claims.Role] {
			abortWithError(c, http.StatusForbidden, "insufficient permissions")
			return
		}

		c.Next()
	}
}
