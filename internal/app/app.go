package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veldtlabs/identity/internal/auth"
	"github.com/veldtlabs/identity/internal/config"
	"github.com/veldtlabs/identity/internal/event"
	handler "github.com/veldtlabs/identity/internal/handler/http"
	"github.com/veldtlabs/identity/internal/repository/postgres"
	"github.com/veldtlabs/identity/internal/seed"
	"github.com/veldtlabs/identity/internal/service"
	"github.com/veldtlabs/identity/internal/storage"
	"github.com/veldtlabs/identity/internal/storage/disk"
	"github.com/veldtlabs/identity/internal/storage/memory"
	"github.com/veldtlabs/identity/migrations"
	"github.com/veldtlabs/identity/pkg/database"
	"github.com/veldtlabs/identity/pkg/health"
	"github.com/veldtlabs/identity/pkg/i18n"
	pkgkafka "github.com/veldtlabs/identity/pkg/kafka"
	"github.com/veldtlabs/identity/pkg/middleware"
	"github.com/veldtlabs/identity/pkg/tracing"
)

const sweepInterval = time.Hour

// App wires together all dependencies and runs the identity service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	tokenService   *service.TokenService
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "identity",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TraceSamplePct / 100,
		Enabled:        cfg.OTLPEndpoint != "",
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := database.DefaultPostgresConfig()
	pgCfg.Host = cfg.PostgresHost
	pgCfg.Port = cfg.PostgresPort
	pgCfg.User = cfg.PostgresUser
	pgCfg.Password = cfg.PostgresPass
	pgCfg.DBName = cfg.PostgresDB
	pgCfg.SSLMode = cfg.PostgresSSL

	pool, err := database.NewPostgresPoolWithLogger(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, "identity")

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Initialize Kafka producer.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Blob storage backend.
	store, err := newStorage(cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	// Localized message catalog.
	translator, err := i18n.NewTranslator(cfg.DefaultLanguage)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init translator: %w", err)
	}

	// Build the dependency graph.
	jwtManager := auth.NewJWTManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	userRepo := postgres.NewUserRepository(pool)
	roleRepo := postgres.NewRoleRepository(pool)
	permRepo := postgres.NewPermissionRepository(pool)
	tokenRepo := postgres.NewRefreshTokenRepository(pool)
	fileRepo := postgres.NewFileRepository(pool)
	eventProducer := event.NewProducer(producer, logger)

	tokenService := service.NewTokenService(jwtManager, tokenRepo, logger)
	authService := service.NewAuthService(userRepo, roleRepo, permRepo, tokenService, eventProducer, logger)
	userService := service.NewUserService(userRepo, roleRepo, tokenService, eventProducer, logger)
	rbacService := service.NewRBACService(roleRepo, permRepo, userRepo, logger)
	fileService := service.NewFileService(fileRepo, store, cfg.MaxUploadBytes, logger)
	exportService := service.NewExportService(userRepo, translator, logger)

	// Seed the permission catalog, built-in roles, and bootstrap admin.
	if cfg.AllowDBSeed {
		seeder := seed.New(userRepo, roleRepo, permRepo, logger)
		if err := seeder.Run(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed database: %w", err)
		}
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		AuthService:   authService,
		TokenService:  tokenService,
		UserService:   userService,
		RBACService:   rbacService,
		FileService:   fileService,
		ExportService: exportService,
		Translator:    translator,
		Health:        healthHandler,
		Logger:        logger,
		CORS:          corsConfig(cfg),
		Cookies: handler.CookieConfig{
			Enabled: cfg.AuthCookieEnabled,
			Name:    "refresh_token",
			Domain:  cfg.AuthCookieDomain,
			Secure:  cfg.AuthCookieSecure,
			MaxAge:  cfg.JWTRefreshExpiry,
		},
		RateLimit:      middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		MaxUploadBytes: cfg.MaxUploadBytes,
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		producer:       producer,
		tokenService:   tokenService,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and the token sweeper, blocking until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.tokenService.StartSweeper(ctx, sweepInterval)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func newStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageBackend {
	case "memory":
		return memory.New(), nil
	default:
		store, err := disk.New(cfg.UploadDir)
		if err != nil {
			return nil, fmt.Errorf("init disk storage: %w", err)
		}
		return store, nil
	}
}

func corsConfig(cfg *config.Config) middleware.CORSConfig {
	c := middleware.DefaultCORSConfig()
	if len(cfg.CORSAllowedOrigins) > 0 {
		c.AllowedOrigins = cfg.CORSAllowedOrigins
	}
	return c
}
