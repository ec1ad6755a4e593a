package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/novacrm/auth-service/internal/core/domain"
	"github.com/novacrm/auth-service/internal/infra/config"
	"github.com/novacrm/auth-service/internal/transport/http/handlers"
	"github.com/novacrm/auth-service/internal/transport/http/middleware"
	"github.com/novacrm/auth-service/internal/usecase"
)

const (
	defaultRateWindow      = 15 * time.Minute
	defaultAPIMaxRequests  = 1000
	defaultAuthMaxRequests = 20
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth   *usecase.AuthService
	Users  *usecase.UserService
	Google *usecase.GoogleService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Tokens      middleware.AccessTokenVerifier
	Services    ServiceSet
	Metrics     *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Tracing     bool
	Database    DependencyChecker
	Cache       DependencyChecker
}

// DependencyChecker exposes readiness behaviour for a backing service.
type DependencyChecker interface {
	Ping(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.AppConfig{}
	}
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	handlers.ConfigureValidator()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Correlate())
	if deps.Tracing {
		r.Use(middleware.Tracing(middleware.TracingOptions{}))
	}
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.Metrics.Handler())
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	var readiness []handlers.HealthOption
	if deps.Database != nil {
		readiness = append(readiness, handlers.WithReadinessCheck("postgres", deps.Database.Ping))
	}
	if deps.Cache != nil {
		readiness = append(readiness, handlers.WithReadinessCheck("redis", deps.Cache.Ping))
	}
	health := handlers.NewHealthHandler(readiness...)

	r.GET("/healthz", health.Status)
	r.GET("/readyz", health.Readiness)
	r.GET("/metrics", gin.WrapH(metricsHandler(deps.Gatherer)))

	apiLimit, authLimit := rateLimits(deps)
	requireAuth := middleware.RequireAuth(deps.Tokens)

	api := r.Group("/api/v1")
	api.Use(apiLimit)
	{
		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Logger)
		google := deps.Services.Google
		if google == nil {
			google = usecase.NewGoogleService(deps.Services.Auth, nil, nil, nil, deps.Logger)
		}
		googleHandler := handlers.NewGoogleHandler(google, cfg.Frontend.URL, deps.Logger)

		auth := api.Group("/auth")
		auth.POST("/register", authLimit, authHandler.Register)
		auth.POST("/verify-otp", authLimit, authHandler.VerifyOTP)
		auth.POST("/resend-otp", authLimit, authHandler.ResendOTP)
		auth.POST("/login", authLimit, authHandler.Login)
		auth.POST("/refresh-token", authHandler.RefreshToken)
		auth.GET("/profile", requireAuth, authHandler.Profile)
		auth.POST("/forgot-password", authLimit, authHandler.ForgotPassword)
		auth.POST("/reset-password", authLimit, authHandler.ResetPassword)
		auth.GET("/google", googleHandler.Begin)
		auth.GET("/google/callback", googleHandler.Callback)
		auth.POST("/google/token", authLimit, googleHandler.TokenLogin)

		userHandler := handlers.NewUserHandler(deps.Services.Users, deps.Services.Auth, deps.Logger)

		users := api.Group("/users")
		users.Use(requireAuth)
		users.GET("", middleware.RequireRole(domain.RoleAdmin, domain.RoleSales), userHandler.List)
		users.GET("/profile", userHandler.Profile)
	}

	handlers.RegisterSwagger(r)

	return r
}

func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// rateLimits builds the general API limiter and the stricter one for credential endpoints.
func rateLimits(deps Dependencies) (api gin.HandlerFunc, auth gin.HandlerFunc) {
	settings := config.RateLimitSettings{}
	if deps.Config != nil {
		settings = deps.Config.RateLimit
	}

	window := settings.WindowDuration
	if window <= 0 {
		window = defaultRateWindow
	}
	apiMax := settings.APIMaxRequests
	if apiMax <= 0 {
		apiMax = defaultAPIMaxRequests
	}
	authMax := settings.AuthMaxRequests
	if authMax <= 0 {
		authMax = defaultAuthMaxRequests
	}

	limiter := deps.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(nil, deps.Logger)
	}

	api = limiter.RateLimit(middleware.RateLimitRule{
		Name:    "api",
		Limit:   apiMax,
		Window:  window,
		Message: "Too many requests from this IP, please try again later.",
	})
	auth = limiter.RateLimit(middleware.RateLimitRule{
		Name:    "auth",
		Limit:   authMax,
		Window:  window,
		Message: "Too many authentication attempts, please try again later.",
	})
	return api, auth
}
