package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/veldtlabs/identity/internal/auth"
	"github.com/veldtlabs/identity/internal/domain"
	"github.com/veldtlabs/identity/internal/event"
	"github.com/veldtlabs/identity/internal/repository"
	apperrors "github.com/veldtlabs/identity/pkg/errors"
)

// minPasswordLength is the minimum password length required.
const minPasswordLength = 8

// defaultRoleName is assigned to self-registered users.
const defaultRoleName = "user"

// AuthService implements registration, login, and token lifecycle operations.
type AuthService struct {
	users    repository.UserRepository
	roles    repository.RoleRepository
	perms    repository.PermissionRepository
	tokens   *TokenService
	producer *event.Producer
	logger   *slog.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	perms repository.PermissionRepository,
	tokens *TokenService,
	producer *event.Producer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		roles:    roles,
		perms:    perms,
		tokens:   tokens,
		producer: producer,
		logger:   logger,
	}
}

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Meta     domain.SessionMeta
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Email    string
	Password string
	Meta     domain.SessionMeta
}

// Register creates a new user account with the default role and returns the
// user plus an initial token pair.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, *domain.TokenPair, error) {
	if input.Email == "" {
		return nil, nil, apperrors.InvalidInput("email is required")
	}
	if input.Name == "" {
		return nil, nil, apperrors.InvalidInput("name is required")
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, nil, err
	}

	defaultRole, err := s.roles.GetByName(ctx, defaultRoleName)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// The seeder creates this role; a missing one is a deployment
			// problem, not a client error.
			return nil, nil, errConfiguration(fmt.Sprintf("default role %q does not exist", defaultRoleName))
		}
		return nil, nil, fmt.Errorf("load default role: %w", err)
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        input.Email,
		PasswordHash: hash,
		Name:         input.Name,
		IsActive:     true,
		Roles:        []string{defaultRole.Name},
		RoleIDs:      []string{defaultRole.ID},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, nil, errEmailExists(input.Email)
		}
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	tokens, err := s.issueTokens(ctx, user, input.Meta)
	if err != nil {
		return nil, nil, err
	}

	// Publish registration event (non-blocking on failure).
	if err := s.producer.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user, tokens, nil
}

// Login authenticates a user with email and password, returning tokens.
// Unknown email, wrong password, and deactivated accounts all produce the
// same error, so responses do not reveal account state.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.User, *domain.TokenPair, error) {
	if input.Email == "" {
		return nil, nil, apperrors.InvalidInput("email is required")
	}
	if input.Password == "" {
		return nil, nil, apperrors.InvalidInput("password is required")
	}

	user, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, errInvalidCredentials()
		}
		return nil, nil, fmt.Errorf("load user: %w", err)
	}

	if !auth.CheckPassword(user.PasswordHash, input.Password) {
		return nil, nil, errInvalidCredentials()
	}
	if !user.IsActive {
		// Same error as a wrong password; only the log distinguishes it.
		s.logger.WarnContext(ctx, "login attempt on deactivated account",
			slog.String("user_id", user.ID),
		)
		return nil, nil, errInvalidCredentials()
	}

	tokens, err := s.issueTokens(ctx, user, input.Meta)
	if err != nil {
		return nil, nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to stamp last login",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user, tokens, nil
}

// Refresh rotates a refresh token: the presented token is verified against
// the ledger, consumed, and a fresh pair is issued. A consumed or revoked
// token can never be refreshed again.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta domain.SessionMeta) (*domain.TokenPair, error) {
	if refreshToken == "" {
		return nil, apperrors.InvalidInput("refresh token is required")
	}

	claims, err := s.tokens.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	// Consume before issuing; the loser of a concurrent double-refresh stops
	// here with TOKEN_REVOKED.
	if err := s.tokens.ConsumeRefresh(ctx, claims.ID); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.New("USER_NOT_FOUND", "user no longer exists", http.StatusUnauthorized)
		}
		return nil, fmt.Errorf("get user for token refresh: %w", err)
	}
	if !user.IsActive {
		return nil, errUserInactive()
	}

	tokens, err := s.issueTokens(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tokens refreshed",
		slog.String("user_id", user.ID),
	)

	return tokens, nil
}

// Logout revokes the presented refresh token. Always succeeds from the
// client's point of view.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.tokens.Logout(ctx, refreshToken)
}

// GetCurrentUser returns the user for an authenticated request.
func (s *AuthService) GetCurrentUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", userID)
		}
		return nil, fmt.Errorf("get current user: %w", err)
	}
	return user, nil
}

// CheckUserActive verifies the token subject still exists and is active.
// Used by the authentication middleware on every request.
func (s *AuthService) CheckUserActive(ctx context.Context, userID string) (found, active bool, err error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("check user: %w", err)
	}
	return true, user.IsActive, nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *domain.User, meta domain.SessionMeta) (*domain.TokenPair, error) {
	permissions, err := s.perms.ListNamesByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load user permissions: %w", err)
	}

	tokens, err := s.tokens.IssuePair(ctx, user, permissions, meta)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	return tokens, nil
}

// validatePassword enforces the minimum password policy: length plus at
// least one letter and one digit.
func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return apperrors.InvalidInput("password must contain at least one letter and one digit")
	}

	return nil
}
