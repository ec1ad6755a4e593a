package logger

import (
	"context"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const productionEnv = "production"

var (
	lg   *zap.Logger
	once sync.Once
)

// New builds the process-wide logger once. Production writes JSON at info level; any other
// environment gets the coloured console encoder at debug level. Every entry carries the
// service name and environment.
func New(service, env string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		if env != productionEnv {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		lg, err = cfg.Build(zap.Fields(
			zap.String("service", service),
			zap.String("env", env),
		))
	})

	return lg, err
}

// WithContext returns the base logger annotated with the request identifier carried by ctx.
func WithContext(ctx context.Context) *zap.Logger {
	if lg == nil {
		return zap.NewNop()
	}

	if id := RequestIDFromContext(ctx); id != "" {
		return lg.With(zap.String("request_id", id))
	}
	return lg
}

// RequestIDKey is used to store a request identifier on the context.
type RequestIDKey struct{}

// RequestIDFromContext extracts the identifier stored under RequestIDKey.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(RequestIDKey{}).(string)
	return id
}

// MaskEmail keeps at most three leading characters of the local part and the whole domain.
// Example: john.doe@example.com -> joh***@example.com
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	local, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return "***"
	}

	if local == "" {
		return "***@" + domain
	}
	runes := []rune(local)
	if len(runes) > 3 {
		runes = runes[:3]
	}
	return string(runes) + "***@" + domain
}

// MaskIP keeps the network part of an address: two IPv4 octets or four IPv6 groups.
// Example: 192.168.1.100 -> 192.168.*.*
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "***"
	}

	if v4 := parsed.To4(); v4 != nil {
		parts := strings.Split(v4.String(), ".")
		return parts[0] + "." + parts[1] + ".*.*"
	}

	groups := strings.Split(expandIPv6(parsed), ":")
	return strings.Join(groups[:4], ":") + ":*:*:*:*"
}

// expandIPv6 renders all eight groups, zero padded, so the prefix kept by MaskIP is stable.
func expandIPv6(ip net.IP) string {
	const hexDigits = "0123456789abcdef"
	b := make([]byte, 0, 39)
	for i := 0; i < net.IPv6len; i += 2 {
		if i > 0 {
			b = append(b, ':')
		}
		for _, octet := range ip[i : i+2] {
			b = append(b, hexDigits[octet>>4], hexDigits[octet&0x0f])
		}
	}
	return string(b)
}
