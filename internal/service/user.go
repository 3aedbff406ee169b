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
	"github.com/veldtlabs/identity/internal/event"
	"github.com/veldtlabs/identity/internal/repository"
	apperrors "github.com/veldtlabs/identity/pkg/errors"
)

// UserService implements administrative user management.
type UserService struct {
	users    repository.UserRepository
	roles    repository.RoleRepository
	tokens   *TokenService
	producer *event.Producer
	logger   *slog.Logger
}

// NewUserService creates a new user management service.
func NewUserService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	tokens *TokenService,
	producer *event.Producer,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:    users,
		roles:    roles,
		tokens:   tokens,
		producer: producer,
		logger:   logger,
	}
}

// CreateUserInput holds the parameters for an admin-created user.
type CreateUserInput struct {
	Email    string
	Password string
	Name     string
	Roles    []string
	IsActive bool
}

// UpdateUserInput holds the parameters for updating a user. Nil fields are
// left unchanged; a non-nil Roles slice replaces all role assignments.
type UpdateUserInput struct {
	Email    *string
	Name     *string
	Password *string
	IsActive *bool
	Roles    *[]string
}

// List returns a page of users matching the filter plus the total count.
func (s *UserService) List(ctx context.Context, filter domain.UserFilter) ([]domain.User, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 || filter.PerPage > 100 {
		filter.PerPage = 20
	}

	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

// Get returns a single user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", id)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// Create creates a user with explicit role assignments.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	if input.Email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if input.Name == "" {
		return nil, apperrors.InvalidInput("name is required")
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	roleNames, roleIDs, err := s.resolveRoles(ctx, input.Roles)
	if err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        input.Email,
		PasswordHash: hash,
		Name:         input.Name,
		IsActive:     input.IsActive,
		Roles:        roleNames,
		RoleIDs:      roleIDs,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, errEmailExists(input.Email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user created",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user, nil
}

// Update modifies a user. Deactivating a user also revokes all their
// refresh tokens, ending their sessions.
func (s *UserService) Update(ctx context.Context, id string, input UpdateUserInput) (*domain.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	deactivated := false
	if input.Email != nil {
		user.Email = *input.Email
	}
	if input.Name != nil {
		user.Name = *input.Name
	}
	if input.Password != nil {
		if err := validatePassword(*input.Password); err != nil {
			return nil, err
		}
		hash, err := auth.HashPassword(*input.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}
	if input.IsActive != nil {
		deactivated = user.IsActive && !*input.IsActive
		user.IsActive = *input.IsActive
	}

	user.RoleIDs = nil
	if input.Roles != nil {
		roleNames, roleIDs, err := s.resolveRoles(ctx, *input.Roles)
		if err != nil {
			return nil, err
		}
		user.Roles = roleNames
		user.RoleIDs = roleIDs
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, errEmailExists(user.Email)
		}
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", id)
		}
		return nil, fmt.Errorf("update user: %w", err)
	}

	if deactivated || input.Password != nil {
		if err := s.tokens.RevokeAllForUser(ctx, user.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to revoke refresh tokens",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	// Publish update event (non-blocking on failure).
	if err := s.producer.PublishUserUpdated(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.updated event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user updated",
		slog.String("user_id", user.ID),
	)

	return user, nil
}

// Delete removes a user and revokes all their refresh tokens.
func (s *UserService) Delete(ctx context.Context, id string) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.tokens.RevokeAllForUser(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke refresh tokens before delete",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
	}

	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFound("user", id)
		}
		return fmt.Errorf("delete user: %w", err)
	}

	if err := s.producer.PublishUserDeleted(ctx, user.ID, user.Email); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.deleted event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user deleted",
		slog.String("user_id", id),
	)

	return nil
}

// resolveRoles maps role names to their IDs, rejecting unknown names.
func (s *UserService) resolveRoles(ctx context.Context, names []string) (roleNames, roleIDs []string, err error) {
	roleNames = make([]string, 0, len(names))
	roleIDs = make([]string, 0, len(names))
	for _, name := range names {
		role, err := s.roles.GetByName(ctx, name)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, nil, apperrors.InvalidInput(fmt.Sprintf("role %q does not exist", name))
			}
			return nil, nil, fmt.Errorf("resolve role %q: %w", name, err)
		}
		roleNames = append(roleNames, role.Name)
		roleIDs = append(roleIDs, role.ID)
	}
	return roleNames, roleIDs, nil
}
