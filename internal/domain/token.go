package domain

import (
	"time"
)

// RefreshToken is the server-side ledger entry for an issued refresh token.
// The raw token is never stored; TokenHash is a SHA-256 digest of it.
type RefreshToken struct {
	ID        string     `json:"id"`
	JTI       string     `json:"jti"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"`
	UserAgent string     `json:"user_agent,omitempty"`
	IP        string     `json:"ip,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// SessionMeta carries optional client metadata recorded alongside a refresh
// token ledger entry.
type SessionMeta struct {
	UserAgent string
	IP        string
}

// Revoked reports whether the token has been revoked.
func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// TokenPair holds an access and refresh token pair. The refresh token is
// omitted from JSON when the handler delivers it via cookie instead.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}
