package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/veldtlabs/identity/internal/domain"
	"github.com/veldtlabs/identity/internal/service"
	"github.com/veldtlabs/identity/pkg/httputil"
	"github.com/veldtlabs/identity/pkg/middleware"
	"github.com/veldtlabs/identity/pkg/validator"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20 // 1MB

// CookieConfig controls refresh token delivery via HttpOnly cookie. When
// Enabled, the refresh token is set as a cookie and omitted from JSON
// responses; refresh and logout fall back to the cookie when the body omits
// the token.
type CookieConfig struct {
	Enabled bool
	Name    string
	Domain  string
	Secure  bool
	MaxAge  time.Duration
}

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service *service.AuthService
	cookies CookieConfig
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.AuthService, cookies CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, cookies: cookies, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for user registration.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required,min=1,max=200"`
}

// LoginRequest is the JSON request body for user login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest is the JSON request body for token refresh. The token
// may instead arrive via cookie in cookie mode.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// --- Response types ---

// AuthResponse wraps user data with tokens.
type AuthResponse struct {
	User   any `json:"user"`
	Tokens any `json:"tokens"`
}

// --- Handlers ---

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	input := service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Meta:     sessionMeta(r),
	}

	user, tokens, err := h.service.Register(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.deliverRefreshToken(w, tokens)
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{
		Data: AuthResponse{User: user, Tokens: tokens},
	})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	input := service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Meta:     sessionMeta(r),
	}

	user, tokens, err := h.service.Login(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.deliverRefreshToken(w, tokens)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: AuthResponse{User: user, Tokens: tokens},
	})
}

// RefreshToken handles POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	token, ok := h.refreshTokenFrom(w, r)
	if !ok {
		return
	}

	tokens, err := h.service.Refresh(r.Context(), token, sessionMeta(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.deliverRefreshToken(w, tokens)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: tokens})
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	token, ok := h.refreshTokenFrom(w, r)
	if !ok {
		return
	}

	if err := h.service.Logout(r.Context(), token); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.clearRefreshCookie(w)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"message": "logged out"},
	})
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: "user not authenticated"},
		})
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: user})
}

// --- Helpers ---

// refreshTokenFrom reads the refresh token from the request body, falling
// back to the cookie in cookie mode. An empty body is tolerated so cookie
// clients can POST without one.
func (h *AuthHandler) refreshTokenFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return "", false
	}

	token := req.RefreshToken
	if token == "" && h.cookies.Enabled {
		if c, err := r.Cookie(h.cookies.Name); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "refresh token is required"},
		})
		return "", false
	}
	return token, true
}

// deliverRefreshToken moves the refresh token into an HttpOnly cookie in
// cookie mode, stripping it from the JSON body.
func (h *AuthHandler) deliverRefreshToken(w http.ResponseWriter, tokens *domain.TokenPair) {
	if !h.cookies.Enabled {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookies.Name,
		Value:    tokens.RefreshToken,
		Path:     "/api/v1/auth",
		Domain:   h.cookies.Domain,
		MaxAge:   int(h.cookies.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	tokens.RefreshToken = ""
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	if !h.cookies.Enabled {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookies.Name,
		Value:    "",
		Path:     "/api/v1/auth",
		Domain:   h.cookies.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// sessionMeta captures client metadata recorded with issued refresh tokens.
func sessionMeta(r *http.Request) domain.SessionMeta {
	return domain.SessionMeta{
		UserAgent: r.UserAgent(),
		IP:        middleware.ClientIP(r),
	}
}
