package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/veldtlabs/identity/internal/domain"
	apperrors "github.com/veldtlabs/identity/pkg/errors"
)

// RefreshTokenRepository implements the refresh token ledger using PostgreSQL.
type RefreshTokenRepository struct {
	pool DB
}

// NewRefreshTokenRepository creates a new PostgreSQL-backed refresh token repository.
func NewRefreshTokenRepository(pool DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: pool}
}

// Create stores a new ledger entry for an issued refresh token.
func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, jti, user_id, token_hash, user_agent, ip, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		t.ID,
		t.JTI,
		t.UserID,
		t.TokenHash,
		t.UserAgent,
		t.IP,
		t.ExpiresAt,
		t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("refresh_token", "jti", t.JTI)
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// GetByJTI retrieves a ledger entry by the token's JTI claim.
func (r *RefreshTokenRepository) GetByJTI(ctx context.Context, jti string) (*domain.RefreshToken, error) {
	query := `
		SELECT id, jti, user_id, token_hash, user_agent, ip, expires_at, created_at, revoked_at
		FROM refresh_tokens
		WHERE jti = $1`

	var t domain.RefreshToken
	err := r.pool.QueryRow(ctx, query, jti).Scan(
		&t.ID,
		&t.JTI,
		&t.UserID,
		&t.TokenHash,
		&t.UserAgent,
		&t.IP,
		&t.ExpiresAt,
		&t.CreatedAt,
		&t.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	return &t, nil
}

// Revoke marks the entry revoked if it is not already. The conditional update
// makes revocation race-free: of N concurrent callers exactly one sees
// applied=true.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, jti string) (bool, error) {
	query := `UPDATE refresh_tokens SET revoked_at = $1 WHERE jti = $2 AND revoked_at IS NULL`

	ct, err := r.pool.Exec(ctx, query, time.Now().UTC(), jti)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

// RevokeByUserID revokes all active tokens for the given user.
func (r *RefreshTokenRepository) RevokeByUserID(ctx context.Context, userID string) error {
	query := `UPDATE refresh_tokens SET revoked_at = $1 WHERE user_id = $2 AND revoked_at IS NULL`

	_, err := r.pool.Exec(ctx, query, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens by user: %w", err)
	}

	return nil
}

// DeleteExpired removes entries whose expiry has passed.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`

	ct, err := r.pool.Exec(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}

	return ct.RowsAffected(), nil
}
