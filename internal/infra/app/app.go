package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/core/port"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/config"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/database"
	kafkainfra "github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/kafka"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/logger"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/notification"
	redisinfra "github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/redis"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/scheduler"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/security"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/infra/telemetry"
	postgresrepo "github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository/postgres"
	redisrepo "github.com/Ngulliinsights/Obvious-Company-sub004/internal/repository/redis"
	transportgrpc "github.com/Ngulliinsights/Obvious-Company-sub004/internal/transport/grpc"
	grpcinterceptors "github.com/Ngulliinsights/Obvious-Company-sub004/internal/transport/grpc/interceptors"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/transport/http/middleware"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/transport/http/routes"
	"github.com/Ngulliinsights/Obvious-Company-sub004/internal/usecase"
)

const (
	healthRefreshSpec = "@every 30s"
	taskTimeout       = 30 * time.Minute
)

// Capabilities records which optional integrations were resolved at startup.
type Capabilities struct {
	Kafka   bool
	Tracing bool
	GRPC    bool
}

type Application struct {
	cfg          *config.AppConfig
	engine       *gin.Engine
	logger       *zap.Logger
	pool         *pgxpool.Pool
	redis        *redisinfra.Client
	producer     *kafkainfra.Producer
	tracer       *telemetry.TracerProvider
	scheduler    *scheduler.Scheduler
	privacy      *usecase.PrivacyService
	health       *transportgrpc.HealthServer
	grpcServer   *grpc.Server
	grpcAddr     string
	capabilities Capabilities
}

// New builds every dependency. Configuration errors such as a missing signing key abort startup.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	ok := false
	defer func() {
		if !ok {
			a.closeResources(context.Background())
		}
	}()

	a.tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, cfg.App.Env, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.capabilities.Tracing = cfg.Telemetry.OTLPEndpoint != ""

	metrics, err := telemetry.NewMetrics(telemetry.MetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	a.pool, err = database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	a.redis, err = redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	keyProvider, err := security.NewKeyProvider(cfg.App.Env, cfg.JWT.KeyDirectory)
	if err != nil {
		return nil, fmt.Errorf("init key provider: %w", err)
	}
	issuer, err := security.NewJWTIssuer(keyProvider, cfg.JWT.Issuer, cfg.JWT.Audience)
	if err != nil {
		return nil, fmt.Errorf("init jwt issuer: %w", err)
	}

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	cipher, err := security.NewAESFieldCipher(cfg.Crypto.EncryptionSecret, cfg.Crypto.Context)
	if err != nil {
		return nil, fmt.Errorf("init field cipher: %w", err)
	}

	anonymizer, err := usecase.NewAnonymizer(cfg.Crypto.EncryptionSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("init anonymizer: %w", err)
	}

	publisher := a.eventPublisher()

	notifier := notification.NewLoggingNotifier(log, notification.Options{
		ExposeTokens:    cfg.App.Env == "development",
		AlertsPerMinute: cfg.Audit.AlertNotificationsPerMinute,
		AlertBurst:      cfg.Audit.AlertNotificationBurst,
	})

	repos := postgresrepo.NewRepositories(a.pool)

	rc := a.redis.Client()
	prefix := a.redis.KeyPrefix()
	sessionStore := redisrepo.NewSessionStore(rc, prefix+":session")
	attemptStore := redisrepo.NewLoginAttemptStore(rc, prefix+":login:attempts")
	restrictions := redisrepo.NewRestrictionStore(rc, prefix+":processing:restricted")
	recent := redisrepo.NewRecentEventBuffer(rc, prefix+":audit:recent", cfg.Audit.RecentBufferSize)
	failureWindow := redisrepo.NewSlidingWindowStore(rc, redisrepo.SlidingWindowConfig{
		KeyPrefix: prefix + ":audit:failures",
		TTL:       2 * cfg.Audit.FailedLoginWindow,
	})

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewSlidingWindowStore(rc, redisrepo.SlidingWindowConfig{
		KeyPrefix: prefix + ":rate-limit",
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, []middleware.OperationLimit{
		{Operation: middleware.OpLogin, Scope: middleware.ScopeClientIP, Limit: cfg.RateLimit.LoginMaxAttempts, Window: rateLimitWindow},
		{Operation: middleware.OpRegister, Scope: middleware.ScopeClientIP, Limit: cfg.RateLimit.RegisterMaxAttempts, Window: rateLimitWindow},
		{Operation: middleware.OpPasswordReset, Scope: middleware.ScopeClientIP, Limit: cfg.RateLimit.PasswordResetMaxAttempts, Window: rateLimitWindow},
		{Operation: middleware.OpPrivacyRequest, Scope: middleware.ScopeUser, Limit: cfg.RateLimit.PrivacyRequestMaxAttempts, Window: rateLimitWindow},
		{Operation: middleware.OpConsentChange, Scope: middleware.ScopeUser, Limit: cfg.RateLimit.ConsentChangeMaxAttempts, Window: rateLimitWindow},
	}, log)

	audit := usecase.NewAuditService(usecase.AuditDeps{
		Events:    repos.Audit,
		Alerts:    repos.Alerts,
		Recent:    recent,
		Publisher: publisher,
		Notifier:  notifier,
		Failures:  failureWindow,
		Metrics:   metrics,
		Logger:    log,
	}, cfg.Audit)

	consents := usecase.NewConsentService(repos.Consents, restrictions, audit, cfg.Consent, log)

	sessions := usecase.NewSessionService(sessionStore, repos.Sessions, publisher, cfg.Session.Timeout, log).
		WithMetrics(metrics)
	tokens := usecase.NewTokenService(issuer, sessions, cfg.JWT.AccessTokenTTL)
	attempts := usecase.NewLoginAttemptService(attemptStore, cfg.Lockout)
	policy := security.NewPasswordPolicy(security.PasswordPolicyConfig{
		MinLength:           cfg.Password.MinLength,
		MaxLength:           cfg.Password.MaxLength,
		MinCharacterClasses: cfg.Password.MinCharacterClasses,
		MinStrength:         cfg.Password.MinStrength,
		MinPersonalFragment: cfg.Password.MinPersonalFragment,
	})

	auth := usecase.NewAuthService(usecase.AuthDeps{
		Users:    repos.Users,
		Tokens:   repos.Tokens,
		Tx:       repos.Tx,
		Hasher:   hasher,
		Policy:   policy,
		Cipher:   cipher,
		Sessions: sessions,
		Access:   tokens,
		Attempts: attempts,
		Consents: consents,
		Audit:    audit,
		Notifier: notifier,
		Metrics:  metrics,
		Logger:   log,
	}, cfg.Session)

	passwords := usecase.NewPasswordResetService(usecase.PasswordDeps{
		Users:    repos.Users,
		Tokens:   repos.Tokens,
		Tx:       repos.Tx,
		Hasher:   hasher,
		Policy:   policy,
		Sessions: sessions,
		Events:   publisher,
		Notifier: notifier,
		Audit:    audit,
		Logger:   log,
	}, cfg.Session)

	a.privacy = usecase.NewPrivacyService(usecase.PrivacyDeps{
		Requests:  repos.PrivacyRequests,
		Holds:     repos.LegalHolds,
		Users:     repos.Users,
		Mirror:    repos.Sessions,
		Responses: repos.Responses,
		Tx:        repos.Tx,
		Cipher:    cipher,
		Sessions:  sessions,
		Consents:  consents,
		Events:    publisher,
		Notifier:  notifier,
		Audit:     audit,
		Metrics:   metrics,
		Logger:    log,
	}, cfg.Privacy)

	retention := usecase.NewRetentionService(usecase.RetentionDeps{
		Policies: repos.RetentionPolicy,
		Jobs:     repos.RetentionJobs,
		Records:  repos.RetentionRecords,
		Tx:       repos.Tx,
		Mirror:   repos.Sessions,
		Cache:    sessionStore,
		Events:   publisher,
		Audit:    audit,
		Alerts:   audit,
		Metrics:  metrics,
		Logger:   log,
	}, cfg.Retention)
	if err := retention.SyncPolicies(ctx, cfg.Retention.Policies); err != nil {
		return nil, fmt.Errorf("sync retention policies: %w", err)
	}

	monitor := usecase.NewSecurityMonitor(usecase.MonitorDeps{
		Events:   repos.Audit,
		Alerts:   repos.Alerts,
		Reports:  repos.Reports,
		Requests: repos.PrivacyRequests,
		Raiser:   audit,
		Checks: map[string]usecase.HealthCheck{
			"postgres": a.pool.Ping,
			"redis":    a.redis.HealthCheck,
		},
		Logger: log,
	}, cfg.Audit, cfg.Privacy)

	compliance := usecase.NewComplianceService(usecase.ComplianceDeps{
		Stats:    repos.Stats,
		Events:   repos.Audit,
		Alerts:   repos.Alerts,
		Jobs:     repos.RetentionJobs,
		Policies: repos.RetentionPolicy,
		Records:  repos.RetentionRecords,
		Requests: repos.PrivacyRequests,
		Reports:  repos.Reports,
		Audit:    audit,
		Logger:   log,

		ConsentValidity: cfg.Consent.ConsentValidity(),
	}, cfg.Privacy.MaxPendingAge)

	if cfg.GRPC.Enabled {
		grpcMetrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{Registerer: prometheus.DefaultRegisterer})
		if err != nil {
			return nil, fmt.Errorf("init grpc metrics: %w", err)
		}
		a.health = transportgrpc.NewHealthServer(monitor, log)
		a.grpcServer = transportgrpc.NewServer(transportgrpc.ServerDependencies{
			Authenticator: tokens,
			Health:        a.health,
			Metrics:       grpcMetrics,
			Tracing:       grpcinterceptors.TracingOptions{SkipHealth: true},
			Logger:        log,
		})
		a.grpcAddr = net.JoinHostPort(cfg.GRPC.Host, fmt.Sprint(cfg.GRPC.Port))
		a.capabilities.GRPC = true
	}

	a.scheduler = scheduler.New(log, scheduler.WithMetrics(metrics), scheduler.WithTaskTimeout(taskTimeout))
	if err := a.registerTasks(retention, monitor, compliance); err != nil {
		return nil, err
	}

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		HTTPMetrics: httpMetrics,
		Keys:        issuer,
		Database:    a.pool,
		Cache:       a.redis,
		Services: routes.ServiceSet{
			Auth:       auth,
			Passwords:  passwords,
			Tokens:     tokens,
			Consents:   consents,
			Privacy:    a.privacy,
			Retention:  retention,
			Audit:      audit,
			Monitor:    monitor,
			Compliance: compliance,
			Anonymizer: anonymizer,
		},
	})

	log.Info("application initialised",
		zap.Bool("kafka", a.capabilities.Kafka),
		zap.Bool("tracing", a.capabilities.Tracing),
		zap.Bool("grpc", a.capabilities.GRPC),
		zap.Int("retention_policies", len(cfg.Retention.Policies)),
	)

	ok = true
	return a, nil
}

// Capabilities reports the optional integrations resolved at startup.
func (a *Application) Capabilities() Capabilities {
	return a.capabilities
}

func (a *Application) eventPublisher() port.EventPublisher {
	if len(a.cfg.Kafka.Brokers) == 0 {
		a.logger.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(a.logger)
	}

	producer, err := kafkainfra.NewProducer(a.cfg.Kafka, a.logger)
	if err != nil {
		a.logger.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(a.logger)
	}
	a.producer = producer
	a.capabilities.Kafka = true
	a.logger.Info("kafka event publisher initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, a.cfg.App, a.logger)
}

type scheduledTask struct {
	name string
	spec string
	fn   scheduler.TaskFunc
}

func (a *Application) registerTasks(retention *usecase.RetentionService, monitor *usecase.SecurityMonitor, compliance *usecase.ComplianceService) error {
	cfg := a.cfg
	tasks := []scheduledTask{
		{"retention.policies", cfg.Retention.Schedule, func(ctx context.Context) error {
			_, err := retention.ExecuteRetentionPolicies(ctx)
			return err
		}},
		{"retention.sessions", cfg.Retention.SessionCleanupSchedule, func(ctx context.Context) error {
			_, err := retention.CleanupExpiredSessions(ctx)
			return err
		}},
		{"audit.failed_logins", cfg.Audit.MonitorSchedule, func(ctx context.Context) error {
			_, err := monitor.CheckFailedLogins(ctx)
			return err
		}},
		{"audit.data_access", cfg.Audit.MonitorSchedule, func(ctx context.Context) error {
			_, err := monitor.CheckDataAccessVolume(ctx)
			return err
		}},
		{"audit.pending_requests", cfg.Audit.PendingRequestSchedule, func(ctx context.Context) error {
			_, err := monitor.CheckPendingRequests(ctx)
			return err
		}},
		{"audit.report", cfg.Audit.ReportSchedule, func(ctx context.Context) error {
			_, err := compliance.GenerateScheduledReport(ctx, cfg.Audit.ReportPeriod)
			return err
		}},
	}
	if a.health != nil {
		tasks = append(tasks, scheduledTask{"health.refresh", healthRefreshSpec, a.health.Refresh})
	}

	for _, t := range tasks {
		if err := a.scheduler.Register(t.name, t.spec, t.fn); err != nil {
			return fmt.Errorf("register task %s: %w", t.name, err)
		}
	}
	return nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()

	grpcErrCh := make(chan error, 1)
	if a.grpcServer != nil {
		lis, err := net.Listen("tcp", a.grpcAddr)
		if err != nil {
			a.closeResources(context.Background())
			return fmt.Errorf("listen grpc: %w", err)
		}
		if err := a.health.Refresh(ctx); err != nil {
			a.logger.Warn("initial health evaluation failed", zap.Error(err))
		}
		a.logger.Info("starting gRPC server", zap.String("address", a.grpcAddr))
		go func() {
			if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				a.logger.Error("gRPC server error", zap.Error(err))
				grpcErrCh <- fmt.Errorf("run grpc server: %w", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(a.cfg.HTTP.Host, fmt.Sprint(a.cfg.HTTP.Port)),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting compliance API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	a.scheduler.Start()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrCh:
	case runErr = <-grpcErrCh:
	}

	timeout := a.cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.shutdown(shutdownCtx, srv); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// shutdown stops background timers first so no task runs against closed pools.
func (a *Application) shutdown(ctx context.Context, srv *http.Server) error {
	var errs []error

	if err := a.scheduler.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := a.privacy.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop privacy processing: %w", err))
	}

	if a.health != nil {
		a.health.Shutdown()
	}
	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown server: %w", err))
	}

	a.closeResources(ctx)
	a.logger.Info("compliance API stopped")
	return errors.Join(errs...)
}

func (a *Application) closeResources(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracer", zap.Error(err))
		}
	}
}
