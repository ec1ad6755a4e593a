package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Mail      MailSettings      `mapstructure:"mail"`
	Google    GoogleSettings    `mapstructure:"google"`
	Frontend  FrontendSettings  `mapstructure:"frontend"`
	CORS      CORSSettings      `mapstructure:"cors"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Password  PasswordSettings  `mapstructure:"password"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// PostgresSettings configures the connection pool. URL, when set, wins over the discrete fields.
type PostgresSettings struct {
	URL               string        `mapstructure:"url"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	AutoMigrate       bool          `mapstructure:"auto_migrate"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// KafkaSettings configures the event producer. No brokers means events are only logged.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// JWTSettings holds the two signing secrets and their lifetimes. Expirations accept
// Go durations plus a "d" suffix for days ("15m", "7d").
type JWTSettings struct {
	AccessSecret      string `mapstructure:"access_secret"`
	RefreshSecret     string `mapstructure:"refresh_secret"`
	AccessExpiration  string `mapstructure:"access_expiration"`
	RefreshExpiration string `mapstructure:"refresh_expiration"`
	Issuer            string `mapstructure:"issuer"`
}

// AccessTTL parses AccessExpiration.
func (s JWTSettings) AccessTTL() (time.Duration, error) {
	return ParseDuration(s.AccessExpiration)
}

// RefreshTTL parses RefreshExpiration.
func (s JWTSettings) RefreshTTL() (time.Duration, error) {
	return ParseDuration(s.RefreshExpiration)
}

// MailSettings configures SMTP delivery and the async dispatch queue.
type MailSettings struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	From      string `mapstructure:"from"`
	FromName  string `mapstructure:"from_name"`
	Workers   int    `mapstructure:"workers"`
	QueueSize int    `mapstructure:"queue_size"`
}

// Enabled reports whether enough SMTP settings are present to send mail.
func (s MailSettings) Enabled() bool {
	return s.Host != "" && s.From != ""
}

type GoogleSettings struct {
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	CallbackURL  string        `mapstructure:"callback_url"`
	StateTTL     time.Duration `mapstructure:"state_ttl"`
}

// Enabled reports whether Google sign-in is configured.
func (s GoogleSettings) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

type FrontendSettings struct {
	URL string `mapstructure:"url"`
}

type CORSSettings struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitSettings configures the per-IP sliding windows for the general API and auth endpoints.
type RateLimitSettings struct {
	WindowDuration  time.Duration `mapstructure:"window_duration"`
	APIMaxRequests  int           `mapstructure:"api_max_requests"`
	AuthMaxRequests int           `mapstructure:"auth_max_requests"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// PasswordSettings tunes the password policy. MinStrength is a zxcvbn score (0 disables the check).
type PasswordSettings struct {
	MinLength   int `mapstructure:"min_length"`
	MaxLength   int `mapstructure:"max_length"`
	MinStrength int `mapstructure:"min_strength"`
}

type TelemetrySettings struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// legacyEnvAliases maps config keys to the flat variable names older deployments use.
var legacyEnvAliases = map[string][]string{
	"postgres.url":           {"DATABASE_URL"},
	"jwt.access_secret":      {"JWT_SECRET"},
	"jwt.refresh_secret":     {"JWT_REFRESH_SECRET"},
	"jwt.access_expiration":  {"JWT_ACCESS_EXPIRATION"},
	"jwt.refresh_expiration": {"JWT_REFRESH_EXPIRATION"},
	"mail.host":              {"EMAIL_HOST"},
	"mail.port":              {"EMAIL_PORT"},
	"mail.user":              {"EMAIL_USER"},
	"mail.password":          {"EMAIL_PASSWORD"},
	"mail.from":              {"EMAIL_FROM"},
	"mail.from_name":         {"EMAIL_FROM_NAME"},
	"frontend.url":           {"FRONTEND_URL"},
	"google.client_id":       {"GOOGLE_CLIENT_ID"},
	"google.client_secret":   {"GOOGLE_CLIENT_SECRET"},
	"google.callback_url":    {"GOOGLE_CALLBACK_URL"},
	"app.env":                {"NODE_ENV"},
	"app.port":               {"PORT"},
}

var configKeys = []string{
	"app.name",
	"app.env",
	"app.host",
	"app.port",
	"postgres.url",
	"postgres.host",
	"postgres.port",
	"postgres.user",
	"postgres.password",
	"postgres.database",
	"postgres.ssl_mode",
	"postgres.max_conns",
	"postgres.min_conns",
	"postgres.max_conn_lifetime",
	"postgres.max_conn_idle_time",
	"postgres.health_check_period",
	"postgres.auto_migrate",
	"redis.host",
	"redis.port",
	"redis.db",
	"redis.password",
	"redis.tls_enabled",
	"redis.key_prefix",
	"kafka.brokers",
	"kafka.topic_prefix",
	"jwt.access_secret",
	"jwt.refresh_secret",
	"jwt.access_expiration",
	"jwt.refresh_expiration",
	"jwt.issuer",
	"mail.host",
	"mail.port",
	"mail.user",
	"mail.password",
	"mail.from",
	"mail.from_name",
	"mail.workers",
	"mail.queue_size",
	"google.client_id",
	"google.client_secret",
	"google.callback_url",
	"google.state_ttl",
	"frontend.url",
	"cors.allowed_origins",
	"rate_limit.window_duration",
	"rate_limit.api_max_requests",
	"rate_limit.auth_max_requests",
	"argon2.memory",
	"argon2.iterations",
	"argon2.parallelism",
	"argon2.salt_length",
	"argon2.key_length",
	"password.min_length",
	"password.max_length",
	"password.min_strength",
	"telemetry.enabled",
	"telemetry.otlp_endpoint",
	"telemetry.service_name",
	"telemetry.sampling_rate",
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("AUTH")

	setDefaults(v)

	if err := bindEnvs(v, configKeys); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error

	if strings.TrimSpace(c.JWT.AccessSecret) == "" {
		errs = append(errs, errors.New("jwt.access_secret is required"))
	}
	if strings.TrimSpace(c.JWT.RefreshSecret) == "" {
		errs = append(errs, errors.New("jwt.refresh_secret is required"))
	}
	if c.JWT.AccessSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, errors.New("jwt access and refresh secrets must differ"))
	}
	if _, err := c.JWT.AccessTTL(); err != nil {
		errs = append(errs, fmt.Errorf("jwt.access_expiration: %w", err))
	}
	if _, err := c.JWT.RefreshTTL(); err != nil {
		errs = append(errs, fmt.Errorf("jwt.refresh_expiration: %w", err))
	}
	if c.Password.MinLength > c.Password.MaxLength {
		errs = append(errs, errors.New("password.min_length exceeds password.max_length"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseDuration extends time.ParseDuration with a whole-day unit, e.g. "7d".
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("duration is empty")
	}

	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid day duration %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", raw)
	}
	return d, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "nova-auth")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "nova")
	v.SetDefault("postgres.password", "nova_password")
	v.SetDefault("postgres.database", "nova_crm")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "nova:auth")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "nova")

	v.SetDefault("jwt.access_expiration", "15m")
	v.SetDefault("jwt.refresh_expiration", "7d")
	v.SetDefault("jwt.issuer", "nova-auth")

	v.SetDefault("mail.host", "smtp.gmail.com")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from_name", "NOVA CRM")
	v.SetDefault("mail.workers", 2)
	v.SetDefault("mail.queue_size", 100)

	v.SetDefault("google.state_ttl", "5m")

	v.SetDefault("frontend.url", "http://localhost:3000")

	// 15 minute windows: 1000 requests for the general API, 20 for auth endpoints.
	v.SetDefault("rate_limit.window_duration", "15m")
	v.SetDefault("rate_limit.api_max_requests", 1000)
	v.SetDefault("rate_limit.auth_max_requests", 20)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("password.min_length", 6)
	v.SetDefault("password.max_length", 50)
	v.SetDefault("password.min_strength", 0)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "nova-auth")
	v.SetDefault("telemetry.sampling_rate", 1.0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		names := append([]string{key, "AUTH_" + envKey, envKey}, legacyEnvAliases[key]...)
		if err := v.BindEnv(names...); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
