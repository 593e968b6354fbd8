package routes

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/config"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/transport/http/handlers"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/transport/http/middleware"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth       *usecase.AuthService
	Passwords  *usecase.PasswordResetService
	Tokens     *usecase.TokenService
	Consents   *usecase.ConsentService
	Privacy    *usecase.PrivacyService
	Retention  *usecase.RetentionService
	Audit      *usecase.AuditService
	Monitor    *usecase.SecurityMonitor
	Compliance *usecase.ComplianceService
	Anonymizer *usecase.Anonymizer
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config         *config.AppConfig
	Logger         *zap.Logger
	RateLimiter    *middleware.RateLimiter
	HTTPMetrics    *middleware.HTTPMetrics
	MetricsHandler http.Handler
	Services       ServiceSet
	Keys           handlers.KeySet
	Database       DatabaseChecker
	Cache          CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware. Service groups
// whose service is nil are not mounted.
func Register(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.AppConfig{}
	}
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.HTTPMetrics.Handler())
	r.Use(middleware.CORS(cfg.HTTP.AllowedOrigins))

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)
	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.GET("/metrics", gin.WrapH(metricsHandler))

	if deps.Keys != nil {
		r.GET("/.well-known/jwks.json", handlers.NewJWKSHandler(deps.Keys).Keys)
	}

	services := deps.Services
	var (
		authenticator middleware.Authenticator
		restrictions  middleware.RestrictionChecker
	)
	if services.Tokens != nil {
		authenticator = services.Tokens
	}
	if services.Consents != nil {
		restrictions = services.Consents
	}
	authRequired := middleware.RequireAuthentication(authenticator)
	isDev := cfg.App.Env == "development"

	api := r.Group("/api/v1", middleware.SecurityHeaders())
	{
		if services.Auth != nil {
			authHandler := handlers.NewAuthHandler(services.Auth, handlers.WithDevMode(isDev))
			authHandler.RegisterRoutes(api.Group("/auth"), authRequired, handlers.AuthGuards{
				Login:    guard(deps, middleware.OpLogin),
				Register: guard(deps, middleware.OpRegister),
			})

			if services.Privacy != nil {
				adminHandler := handlers.NewAdminHandler(services.Auth, services.Privacy)
				adminHandler.RegisterRoutes(api.Group("/admin", authRequired))
			}
		}

		if services.Passwords != nil {
			passwordHandler := handlers.NewPasswordHandler(services.Passwords, isDev)
			passwordHandler.RegisterRoutes(api.Group("/password"), authRequired, guard(deps, middleware.OpPasswordReset)...)
		}

		if services.Privacy != nil && services.Consents != nil {
			privacyHandler := handlers.NewPrivacyHandler(services.Privacy, services.Consents)
			privacyHandler.RegisterRoutes(api.Group("/privacy", authRequired), handlers.PrivacyGuards{
				Submit:  guard(deps, middleware.OpPrivacyRequest),
				Consent: guard(deps, middleware.OpConsentChange),
			})
		}

		if services.Audit != nil && services.Monitor != nil {
			auditHandler := handlers.NewAuditHandler(services.Audit, services.Monitor)
			auditHandler.RegisterRoutes(api.Group("/audit", authRequired), middleware.RequireDataProcessing(restrictions))
		}

		if services.Compliance != nil && services.Retention != nil && services.Anonymizer != nil {
			complianceHandler := handlers.NewComplianceHandler(services.Compliance, services.Retention, services.Anonymizer, services.Audit)
			complianceHandler.RegisterRoutes(api.Group("/compliance", authRequired))
		}
	}

	handlers.RegisterSwagger(r)

	return r
}

// guard returns the rate limit for op, or nothing when op is unlimited.
func guard(deps Dependencies, op middleware.Operation) []gin.HandlerFunc {
	if !deps.RateLimiter.Limits(op) {
		return nil
	}
	return []gin.HandlerFunc{deps.RateLimiter.Guard(op)}
}
