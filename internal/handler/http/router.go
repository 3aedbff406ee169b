package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veldtlabs/identity/internal/auth"
	"github.com/veldtlabs/identity/internal/service"
	"github.com/veldtlabs/identity/pkg/health"
	"github.com/veldtlabs/identity/pkg/i18n"
	"github.com/veldtlabs/identity/pkg/middleware"
)

// RouterConfig carries the services and settings the router wires together.
type RouterConfig struct {
	AuthService    *service.AuthService
	TokenService   *service.TokenService
	UserService    *service.UserService
	RBACService    *service.RBACService
	FileService    *service.FileService
	ExportService  *service.ExportService
	Translator     *i18n.Translator
	Health         *health.Handler
	Logger         *slog.Logger
	CORS           middleware.CORSConfig
	Cookies        CookieConfig
	RateLimit      *middleware.RateLimiter
	MaxUploadBytes int64
	PprofCIDRs     []string
}

// NewRouter creates a chi router with all identity service routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.PrometheusMetrics("identity"))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Profiling endpoints, allowlist-gated.
	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, cfg.Logger)
	}

	// Token validator bridging the middleware to the token service.
	validate := func(token string) (*middleware.Claims, error) {
		claims, err := cfg.TokenService.ValidateAccess(token)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				return nil, middleware.ErrTokenExpired
			}
			return nil, err
		}
		return &middleware.Claims{
			UserID:      claims.UserID,
			Email:       claims.Email,
			Roles:       claims.Roles,
			Permissions: claims.Permissions,
		}, nil
	}

	// Every authenticated request re-checks that the subject still exists
	// and is active, so deactivation takes effect before token expiry.
	check := func(ctx context.Context, userID string) error {
		found, active, err := cfg.AuthService.CheckUserActive(ctx, userID)
		if err != nil {
			return err
		}
		if !found {
			return middleware.ErrUserNotFound
		}
		if !active {
			return middleware.ErrUserInactive
		}
		return nil
	}

	cookieName := ""
	if cfg.Cookies.Enabled {
		cookieName = cfg.Cookies.Name
	}
	authenticate := middleware.Authenticate(validate, check, cookieName)

	authHandler := NewAuthHandler(cfg.AuthService, cfg.Cookies, cfg.Logger)

	// Public auth endpoints, rate limited per client IP.
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit.Handler)
		}

		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.RefreshToken)

		// Logout and me require a valid access token.
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})
	})

	// Administrative user management
	userHandler := NewUserHandler(cfg.UserService, cfg.Logger)
	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(authenticate)

		r.With(middleware.RequirePermissions("user.read")).Get("/", userHandler.List)
		r.With(middleware.RequirePermissions("user.create")).Post("/", userHandler.Create)
		r.With(middleware.RequirePermissions("user.read")).Get("/{id}", userHandler.Get)
		r.With(middleware.RequirePermissions("user.update")).Put("/{id}", userHandler.Update)
		r.With(middleware.RequirePermissions("user.delete")).Delete("/{id}", userHandler.Delete)
	})

	// Role management
	roleHandler := NewRoleHandler(cfg.RBACService, cfg.Logger)
	r.Route("/api/v1/roles", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(authenticate)

		r.With(middleware.RequirePermissions("role.read")).Get("/", roleHandler.List)
		r.With(middleware.RequirePermissions("role.create")).Post("/", roleHandler.Create)
		r.With(middleware.RequirePermissions("role.read")).Get("/{id}", roleHandler.Get)
		r.With(middleware.RequirePermissions("role.update")).Put("/{id}", roleHandler.Update)
		r.With(middleware.RequirePermissions("role.delete")).Delete("/{id}", roleHandler.Delete)
	})

	// Permission management
	permHandler := NewPermissionHandler(cfg.RBACService, cfg.Logger)
	r.Route("/api/v1/permissions", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(authenticate)

		r.With(middleware.RequirePermissions("permission.read")).Get("/", permHandler.List)
		r.With(middleware.RequirePermissions("permission.create")).Post("/", permHandler.Create)
		r.With(middleware.RequirePermissions("permission.delete")).Delete("/{id}", permHandler.Delete)
	})

	// File storage
	fileHandler := NewFileHandler(cfg.FileService, cfg.MaxUploadBytes, cfg.Logger)
	r.Route("/api/v1/files", func(r chi.Router) {
		r.Use(authenticate)

		r.With(middleware.RequirePermissions("file.upload")).Post("/upload", fileHandler.Upload)
		r.With(middleware.RequirePermissions("file.read")).Get("/", fileHandler.List)
		r.With(middleware.RequirePermissions("file.read")).Get("/{id}", fileHandler.Get)
		r.With(middleware.RequirePermissions("file.read")).Get("/{id}/download", fileHandler.Download)
		r.With(middleware.RequirePermissions("file.delete")).Delete("/{id}", fileHandler.Delete)
	})

	// CSV export
	exportHandler := NewExportHandler(cfg.ExportService, cfg.Translator, cfg.Logger)
	r.Route("/api/v1/export", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(middleware.RequirePermissions("user.read"))

		r.Get("/users/csv", exportHandler.UsersCSV)
		r.Get("/users/fields", exportHandler.Fields)
		r.Get("/users/stats", exportHandler.Stats)
	})

	return r
}

// ContentTypeJSON sets the response content type for JSON API routes.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
