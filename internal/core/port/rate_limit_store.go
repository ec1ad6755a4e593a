package port

import (
	"context"
	"time"
)

// RateLimitDecision describes one request checked against a sliding window.
type RateLimitDecision struct {
	Allowed bool
	// Hits counts the requests inside the window, including this one when it was allowed.
	Hits int
	// WindowStart is the timestamp of the oldest request still inside the window.
	WindowStart time.Time
}

// RateLimitStore counts requests per key over a sliding window.
type RateLimitStore interface {
	// Take evicts requests older than window, then records a new one at now unless limit
	// requests are already inside the window.
	Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (RateLimitDecision, error)
}
