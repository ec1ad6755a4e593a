package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/novacrm/auth-service/internal/core/port"
	appLogger "github.com/novacrm/auth-service/internal/infra/logger"
)

const defaultRateLimitMessage = "Too many requests, please try again later."

// RateLimitRule is one sliding-window budget shared by every route the middleware guards.
type RateLimitRule struct {
	// Name scopes storage keys so rules with the same client do not share a budget.
	Name    string
	Limit   int
	Window  time.Duration
	Message string
}

type RateLimiter struct {
	store  port.RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

// NewRateLimiter builds a limiter over store. A nil store disables limiting.
func NewRateLimiter(store port.RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{store: store, logger: logger, now: time.Now}
}

// WithClock replaces the time source.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// RateLimit budgets requests per client IP. Requests pass untouched when the store errors.
func (rl *RateLimiter) RateLimit(rule RateLimitRule) gin.HandlerFunc {
	if rule.Name == "" {
		rule.Name = "default"
	}
	if rule.Message == "" {
		rule.Message = defaultRateLimitMessage
	}
	disabled := rl.store == nil || rule.Limit <= 0 || rule.Window <= 0

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if disabled || clientIP == "" {
			c.Next()
			return
		}

		now := rl.now()
		decision, err := rl.store.Take(c.Request.Context(), rule.Name+":"+clientIP, rule.Limit, rule.Window, now)
		if err != nil {
			rl.logger.Warn("rate limit check failed, letting request through",
				zap.String("rule", rule.Name),
				zap.String("client_ip", appLogger.MaskIP(clientIP)),
				zap.Error(err),
			)
			c.Next()
			return
		}

		reset := decision.WindowStart.Add(rule.Window)
		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(max(rule.Limit-decision.Hits, 0)))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !decision.Allowed {
			wait := max(reset.Sub(now), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			rl.logger.Info("rate limit exceeded",
				zap.String("rule", rule.Name),
				zap.String("client_ip", appLogger.MaskIP(clientIP)),
			)
			abortWithError(c, http.StatusTooManyRequests, rule.Message)
			return
		}

		c.Next()
	}
}
