package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/novacrm/auth-service/internal/core/domain"
	"github.com/novacrm/auth-service/internal/infra/logger"
)

const (
	TraceIDHeader   = "X-Trace-ID"
	RequestIDHeader = "X-Request-ID"

	traceIDKey   = "trace_id"
	requestIDKey = "request_id"
	claimsKey    = "auth_claims"

	maxCorrelationIDLen = 128
)

// Correlate tags every request with a trace ID and a request ID. Client supplied values are
// kept when they are reasonably sized. Both are echoed back, and the request ID is attached to
// the request context so logger.WithContext can pick it up.
func Correlate() gin.HandlerFunc {
	return func(c *gin.Context) {
		setTraceID(c, correlationID(c.GetHeader(TraceIDHeader)))

		reqID := correlationID(c.GetHeader(RequestIDHeader))
		c.Set(requestIDKey, reqID)
		c.Header(RequestIDHeader, reqID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.RequestIDKey{}, reqID))

		c.Next()
	}
}

func correlationID(supplied string) string {
	if supplied == "" || len(supplied) > maxCorrelationIDLen {
		return uuid.NewString()
	}
	return supplied
}

func setTraceID(c *gin.Context, id string) {
	c.Set(traceIDKey, id)
	c.Header(TraceIDHeader, id)
}

// GetTraceID returns the trace ID assigned to the request, or "" outside Correlate.
func GetTraceID(c *gin.Context) string {
	return c.GetString(traceIDKey)
}

// GetRequestID returns the request ID assigned by Correlate.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// GetClaims returns the claims stored by RequireAuth.
func GetClaims(c *gin.Context) (domain.TokenClaims, bool) {
	raw, _ := c.Get(claimsKey)
	claims, ok := raw.(*domain.TokenClaims)
	if !ok || claims == nil {
		return domain.TokenClaims{}, false
	}
	return *claims, true
}

// GetAuthenticatedUserID returns the subject of the verified access token.
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	claims, ok := GetClaims(c)
	if !ok || claims.UserID == "" {
		return "", false
	}
	return claims.UserID, true
}
