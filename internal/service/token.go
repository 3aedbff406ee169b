package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veldtlabs/identity/internal/auth"
	"github.com/veldtlabs/identity/internal/domain"
	"github.com/veldtlabs/identity/internal/repository"
	apperrors "github.com/veldtlabs/identity/pkg/errors"
)

// TokenService issues JWT pairs and maintains the server-side refresh token
// ledger. A refresh token is only honored while its ledger entry exists,
// matches the presented token's hash, and has not been revoked.
type TokenService struct {
	jwt    *auth.JWTManager
	tokens repository.RefreshTokenRepository
	logger *slog.Logger
}

// NewTokenService creates a new token service.
func NewTokenService(jwt *auth.JWTManager, tokens repository.RefreshTokenRepository, logger *slog.Logger) *TokenService {
	return &TokenService{
		jwt:    jwt,
		tokens: tokens,
		logger: logger,
	}
}

// IssuePair generates an access/refresh token pair for the user and records
// the refresh token in the ledger along with the client metadata.
func (s *TokenService) IssuePair(ctx context.Context, user *domain.User, permissions []string, meta domain.SessionMeta) (*domain.TokenPair, error) {
	accessToken, err := s.jwt.GenerateAccessToken(user.ID, user.Email, user.Roles, permissions)
	if err != nil {
		return nil, apperrors.Wrap(err, "generate access token")
	}

	refreshToken, jti, err := s.jwt.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, apperrors.Wrap(err, "generate refresh token")
	}

	now := time.Now().UTC()
	entry := &domain.RefreshToken{
		ID:        uuid.New().String(),
		JTI:       jti,
		UserID:    user.ID,
		TokenHash: auth.HashToken(refreshToken),
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
		ExpiresAt: now.Add(s.jwt.RefreshExpiry()),
		CreatedAt: now,
	}
	if err := s.tokens.Create(ctx, entry); err != nil {
		return nil, apperrors.Wrap(err, "save refresh token")
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// VerifyRefresh validates a presented refresh token against both its
// signature and the ledger, returning the subject user ID.
func (s *TokenService) VerifyRefresh(ctx context.Context, rawToken string) (*auth.RefreshClaims, error) {
	claims, err := s.jwt.ValidateRefreshToken(rawToken)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, errTokenExpired()
		}
		return nil, errTokenInvalid()
	}
	if claims.ID == "" {
		// Correctly signed but carries no jti, so it cannot key the ledger.
		return nil, errTokenMalformed()
	}

	entry, err := s.tokens.GetByJTI(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// A signed token missing from the ledger means it was swept or
			// force-revoked; treat the same as revoked.
			return nil, errTokenRevoked()
		}
		return nil, apperrors.Wrap(err, "load refresh token")
	}

	if entry.Revoked() {
		// A rotated token being presented again is a token-theft signal.
		s.logger.WarnContext(ctx, "revoked refresh token presented",
			slog.String("jti", claims.ID),
			slog.String("user_id", entry.UserID),
		)
		return nil, errTokenRevoked()
	}
	if entry.Expired(time.Now().UTC()) {
		return nil, errTokenExpired()
	}
	if !auth.TokenHashEquals(entry.TokenHash, rawToken) {
		s.logger.WarnContext(ctx, "refresh token hash mismatch",
			slog.String("jti", claims.ID),
			slog.String("user_id", entry.UserID),
		)
		return nil, errTokenHashMismatch()
	}

	return claims, nil
}

// ConsumeRefresh atomically revokes the ledger entry for a verified token.
// Of N concurrent refreshes with the same token exactly one consumes it; the
// rest get TOKEN_REVOKED.
func (s *TokenService) ConsumeRefresh(ctx context.Context, jti string) error {
	applied, err := s.tokens.Revoke(ctx, jti)
	if err != nil {
		return apperrors.Wrap(err, "revoke refresh token")
	}
	if !applied {
		// Lost the race or replayed an already-rotated token; either way the
		// entry was consumed before, which is worth an operator's attention.
		s.logger.WarnContext(ctx, "refresh token already consumed",
			slog.String("jti", jti),
		)
		return errTokenRevoked()
	}
	return nil
}

// Logout revokes the ledger entry for the presented refresh token. It is
// deliberately forgiving: malformed or unknown tokens are not errors, since
// the client's goal (that token no longer working) is already met.
func (s *TokenService) Logout(ctx context.Context, rawToken string) error {
	claims, err := s.jwt.DecodeRefreshUnverified(rawToken)
	if err != nil || claims.ID == "" {
		return nil
	}

	if _, err := s.tokens.Revoke(ctx, claims.ID); err != nil {
		return apperrors.Wrap(err, "revoke refresh token")
	}
	return nil
}

// RevokeAllForUser revokes every active refresh token for the user, ending
// all their sessions.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID string) error {
	if err := s.tokens.RevokeByUserID(ctx, userID); err != nil {
		return apperrors.Wrap(err, "revoke user refresh tokens")
	}
	return nil
}

// StartSweeper launches a background goroutine that periodically deletes
// expired ledger entries. It stops when ctx is canceled.
func (s *TokenService) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.tokens.DeleteExpired(ctx)
				if err != nil {
					s.logger.ErrorContext(ctx, "refresh token sweep failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				if n > 0 {
					s.logger.InfoContext(ctx, "swept expired refresh tokens",
						slog.Int64("deleted", n),
					)
				}
			}
		}
	}()
}

// ValidateAccess verifies an access token and returns its claims. Exposed so
// the HTTP middleware can delegate validation here.
func (s *TokenService) ValidateAccess(tokenString string) (*auth.AccessClaims, error) {
	claims, err := s.jwt.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("validate access token: %w", err)
	}
	return claims, nil
}
