package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	uuid "github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/novacrm/auth-service/internal/core/port"
)

// slidingWindow runs eviction, counting and insertion as one step so concurrent requests
// for the same key cannot both take the last slot. Scores are unix milliseconds.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local hits = redis.call('ZCARD', key)
local allowed = 0
if hits < limit then
	redis.call('ZADD', key, ARGV[1], ARGV[4])
	hits = hits + 1
	allowed = 1
end
if ttl > 0 then
	redis.call('PEXPIRE', key, ttl)
end

local first = tonumber(ARGV[1])
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
	first = tonumber(oldest[2])
end
return {allowed, hits, first}
`)

// SlidingWindowConfig controls key naming and expiry of the per-client sorted sets.
type SlidingWindowConfig struct {
	KeyPrefix string
	// TTL is applied to the whole set on every hit. Zero leaves keys without expiry.
	TTL time.Duration
}

// RateLimitRepository keeps one sorted set of request timestamps per rate-limit key.
type RateLimitRepository struct {
	client redis.Scripter
	cfg    SlidingWindowConfig
}

func NewRateLimitRepository(client redis.Scripter, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

func (r *RateLimitRepository) Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (port.RateLimitDecision, error) {
	if window <= 0 || limit <= 0 {
		return port.RateLimitDecision{}, errors.New("rate limit window and limit must be positive")
	}

	nowMs := now.UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + ":" + uuid.NewString()

	res, err := slidingWindow.Run(ctx, r.client, []string{r.key(key)},
		nowMs, now.Add(-window).UnixMilli(), limit, member, r.cfg.TTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return port.RateLimitDecision{}, fmt.Errorf("redis sliding window %s: %w", key, err)
	}
	if len(res) != 3 {
		return port.RateLimitDecision{}, fmt.Errorf("redis sliding window %s: unexpected reply %v", key, res)
	}

	return port.RateLimitDecision{
		Allowed:     res[0] == 1,
		Hits:        int(res[1]),
		WindowStart: time.UnixMilli(res[2]).UTC(),
	}, nil
}

func (r *RateLimitRepository) key(key string) string {
	if r.cfg.KeyPrefix == "" {
		return key
	}
	return r.cfg.KeyPrefix + ":" + key
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
