package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type contextKeyType string

const claimsKey contextKeyType = "auth_claims"

// Sentinel errors the injected TokenValidator and UserChecker can return to
// control the error code written to the client.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrUserNotFound = errors.New("user not found")
	ErrUserInactive = errors.New("user inactive")
)

// Claims represents the identity extracted from a verified access token.
type Claims struct {
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// TokenValidator validates an access token string and returns its claims.
// Implementations should return ErrTokenExpired (possibly wrapped) for tokens
// that are well-formed but past their expiry.
type TokenValidator func(token string) (*Claims, error)

// UserChecker verifies that the token subject still exists and is active.
// Return ErrUserNotFound or ErrUserInactive to reject the request.
type UserChecker func(ctx context.Context, userID string) error

// Authenticate validates the bearer token on each request and injects the
// claims into the request context. When cookieName is non-empty, a cookie of
// that name is accepted as a fallback token source for browser clients.
// The check function may be nil, in which case only the token is verified.
func Authenticate(validate TokenValidator, check UserChecker, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, code := extractToken(r, cookieName)
			if code != "" {
				writeAuthError(w, http.StatusUnauthorized, code, authMessage(code))
				return
			}

			claims, err := validate(token)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					writeAuthError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "access token has expired")
					return
				}
				writeAuthError(w, http.StatusUnauthorized, "TOKEN_INVALID", "invalid access token")
				return
			}

			if check != nil {
				if err := check(r.Context(), claims.UserID); err != nil {
					switch {
					case errors.Is(err, ErrUserNotFound):
						writeAuthError(w, http.StatusUnauthorized, "USER_NOT_FOUND", "user no longer exists")
					case errors.Is(err, ErrUserInactive):
						writeAuthError(w, http.StatusUnauthorized, "USER_INACTIVE", "user account is deactivated")
					default:
						writeAuthError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
					}
					return
				}
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermissions rejects the request with 403 unless the authenticated
// user holds every listed permission. Must run after Authenticate.
func RequirePermissions(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeAuthError(w, http.StatusUnauthorized, "TOKEN_MISSING", "authentication required")
				return
			}

			held := make(map[string]struct{}, len(claims.Permissions))
			for _, p := range claims.Permissions {
				held[p] = struct{}{}
			}

			var missing []string
			for _, p := range perms {
				if _, ok := held[p]; !ok {
					missing = append(missing, p)
				}
			}
			if len(missing) > 0 {
				writeAuthError(w, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS",
					"missing permissions: "+strings.Join(missing, ", "))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext extracts the authenticated claims from the request
// context, or nil if the request is unauthenticated.
func ClaimsFromContext(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(claimsKey).(*Claims); ok {
		return claims
	}
	return nil
}

// UserIDFromContext extracts the authenticated user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.UserID
	}
	return ""
}

func extractToken(r *http.Request, cookieName string) (token, errCode string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			return "", "TOKEN_INVALID"
		}
		return parts[1], ""
	}

	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value, ""
		}
	}
	return "", "TOKEN_MISSING"
}

func authMessage(code string) string {
	switch code {
	case "TOKEN_MISSING":
		return "missing authorization header"
	case "TOKEN_INVALID":
		return "invalid authorization header format"
	default:
		return "authentication failed"
	}
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
