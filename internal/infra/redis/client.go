package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/novacrm/auth-service/internal/infra/config"
)

const (
	defaultKeyPrefix = "auth"
	connectTimeout   = 5 * time.Second
)

// Client wraps the shared connection pool and the key namespace every repository writes under.
type Client struct {
	rdb    *redis.Client
	log    *zap.Logger
	prefix string
}

// Options translates settings into go-redis pool options.
func Options(cfg config.RedisSettings) *redis.Options {
	opts := &redis.Options{
		Addr:            net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        10,
		MinIdleConns:    2,
		DialTimeout:     connectTimeout,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: cfg.Host}
	}
	return opts
}

// NewClient connects and pings once, so a misconfigured address fails at startup.
func NewClient(ctx context.Context, cfg config.RedisSettings, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts := Options(cfg)
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	log.Info("redis ready", zap.String("addr", opts.Addr), zap.Int("db", cfg.DB), zap.String("key_prefix", prefix))

	return &Client{rdb: rdb, log: log, prefix: prefix}, nil
}

func (c *Client) Client() *redis.Client { return c.rdb }

// Key joins segment onto the configured prefix, e.g. Key("rate-limit") -> "auth:rate-limit".
func (c *Client) Key(segment string) string {
	return c.prefix + ":" + segment
}

// Ping backs the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	c.log.Debug("closing redis pool")
	return c.rdb.Close()
}
