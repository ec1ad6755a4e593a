package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/novacrm/auth-service/internal/core/port"
	"github.com/novacrm/auth-service/internal/infra/config"
	"github.com/novacrm/auth-service/internal/infra/database"
	"github.com/novacrm/auth-service/internal/infra/federation"
	kafkainfra "github.com/novacrm/auth-service/internal/infra/kafka"
	"github.com/novacrm/auth-service/internal/infra/logger"
	"github.com/novacrm/auth-service/internal/infra/notification"
	redisinfra "github.com/novacrm/auth-service/internal/infra/redis"
	"github.com/novacrm/auth-service/internal/infra/security"
	"github.com/novacrm/auth-service/internal/infra/telemetry"
	postgresrepo "github.com/novacrm/auth-service/internal/repository/postgres"
	redisrepo "github.com/novacrm/auth-service/internal/repository/redis"
	"github.com/novacrm/auth-service/internal/transport/http/middleware"
	"github.com/novacrm/auth-service/internal/transport/http/routes"
	"github.com/novacrm/auth-service/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	pool       *pgxpool.Pool
	redis      *redisinfra.Client
	telemetry  *telemetry.Provider
	producer   *kafkainfra.Producer
	dispatcher *notification.AsyncDispatcher
	states     *federation.StateStore
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Name, cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	if err := a.init(ctx); err != nil {
		a.release(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *Application) init(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	tel, err := telemetry.Attach(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.telemetry = tel

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool

	if cfg.Postgres.AutoMigrate {
		if err := database.RunMigrations(ctx, pool, log); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	a.redis = redisClient

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return fmt.Errorf("init password hasher: %w", err)
	}

	accessTTL, err := cfg.JWT.AccessTTL()
	if err != nil {
		return fmt.Errorf("jwt access expiration: %w", err)
	}
	refreshTTL, err := cfg.JWT.RefreshTTL()
	if err != nil {
		return fmt.Errorf("jwt refresh expiration: %w", err)
	}
	tokens, err := security.NewTokenIssuer(security.TokenIssuerConfig{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
		Issuer:        cfg.JWT.Issuer,
	})
	if err != nil {
		return fmt.Errorf("init token issuer: %w", err)
	}

	events := a.eventPublisher()

	var sink port.NotificationSink
	if cfg.Mail.Enabled() {
		sink = notification.NewSMTPMailer(cfg.Mail)
		log.Info("smtp delivery enabled", zap.String("host", cfg.Mail.Host), zap.Int("port", cfg.Mail.Port))
	} else {
		sink = notification.NewLoggingSink(log)
		log.Warn("smtp not configured, one-time codes are written to the log")
	}
	a.dispatcher = notification.NewAsyncDispatcher(sink, cfg.Mail.Workers, cfg.Mail.QueueSize, log)
	a.dispatcher.Start()

	metrics, err := usecase.NewMetrics(tel.Registry())
	if err != nil {
		return fmt.Errorf("init usecase metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: tel.Registry()})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	accounts := postgresrepo.NewAccountRepository(pool)

	authService := usecase.NewAuthService(usecase.AuthDependencies{
		Accounts: accounts,
		Hasher:   hasher,
		Policy: security.NewPasswordPolicy(security.PasswordPolicyConfig{
			MinLength:   cfg.Password.MinLength,
			MaxLength:   cfg.Password.MaxLength,
			MinStrength: cfg.Password.MinStrength,
		}),
		OTP:      security.NewOTPGenerator(),
		Tokens:   tokens,
		Notifier: a.dispatcher,
		Events:   events,
		Metrics:  metrics,
		Logger:   log,
	})

	googleService, err := a.googleService(authService)
	if err != nil {
		return err
	}

	window := cfg.RateLimit.WindowDuration
	if window <= 0 {
		window = 15 * time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: redisClient.Key("rate-limit"),
		TTL:       window * 2,
	})

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: middleware.NewRateLimiter(rateLimitStore, log),
		Tokens:      tokens,
		Metrics:     httpMetrics,
		Gatherer:    tel.Registry(),
		Tracing:     tel.TracingEnabled(),
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:   authService,
			Users:  usecase.NewUserService(accounts),
			Google: googleService,
		},
	})

	return nil
}

func (a *Application) eventPublisher() port.EventPublisher {
	cfg, log := a.cfg, a.logger

	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(log)
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log)
	}
	a.producer = producer
	log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, cfg.App, log)
}

func (a *Application) googleService(auth *usecase.AuthService) (*usecase.GoogleService, error) {
	cfg := a.cfg.Google
	if !cfg.Enabled() {
		a.logger.Info("google sign-in disabled")
		return usecase.NewGoogleService(auth, nil, nil, nil, a.logger), nil
	}

	provider, err := federation.NewGoogleProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("init google provider: %w", err)
	}
	verifier, err := federation.NewGoogleIDTokenVerifier(cfg.ClientID)
	if err != nil {
		return nil, fmt.Errorf("init google id token verifier: %w", err)
	}

	a.states = federation.NewStateStore(cfg.StateTTL)
	a.states.Start()

	return usecase.NewGoogleService(auth, provider, verifier, a.states, a.logger), nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-serverErrCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("shutdown server: %w", err))
	}
	a.release(shutdownCtx)

	return runErr
}

// release stops background workers and closes connections in reverse start order.
func (a *Application) release(ctx context.Context) {
	if a.states != nil {
		a.states.Stop()
	}
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil {
			a.logger.Warn("notification queue not drained", zap.Error(err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown telemetry", zap.Error(err))
		}
	}
}
