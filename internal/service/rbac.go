package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veldtlabs/identity/internal/domain"
	"github.com/veldtlabs/identity/internal/repository"
	apperrors "github.com/veldtlabs/identity/pkg/errors"
)

// RBACService implements role and permission management. Deletion is
// guarded: a role assigned to users or a permission referenced by roles
// cannot be removed.
type RBACService struct {
	roles  repository.RoleRepository
	perms  repository.PermissionRepository
	users  repository.UserRepository
	logger *slog.Logger
}

// NewRBACService creates a new RBAC service.
func NewRBACService(
	roles repository.RoleRepository,
	perms repository.PermissionRepository,
	users repository.UserRepository,
	logger *slog.Logger,
) *RBACService {
	return &RBACService{
		roles:  roles,
		perms:  perms,
		users:  users,
		logger: logger,
	}
}

// RoleInput holds the parameters for creating or updating a role.
type RoleInput struct {
	Name        string
	Description string
	Permissions []string
}

// PermissionInput holds the parameters for creating a permission.
type PermissionInput struct {
	Name        string
	Description string
}

// --- Roles ---

// ListRoles returns all roles with their permission names.
func (s *RBACService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// GetRole returns a single role by ID.
func (s *RBACService) GetRole(ctx context.Context, id string) (*domain.Role, error) {
	role, err := s.roles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("role", id)
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return role, nil
}

// CreateRole creates a role with the given permission assignments.
func (s *RBACService) CreateRole(ctx context.Context, input RoleInput) (*domain.Role, error) {
	if input.Name == "" {
		return nil, apperrors.InvalidInput("name is required")
	}

	permNames, permIDs, err := s.resolvePermissions(ctx, input.Permissions)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	role := &domain.Role{
		ID:          uuid.New().String(),
		Name:        input.Name,
		Description: input.Description,
		Permissions: permNames,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.roles.Create(ctx, role, permIDs); err != nil {
		return nil, fmt.Errorf("create role: %w", err)
	}

	s.logger.InfoContext(ctx, "role created",
		slog.String("role_id", role.ID),
		slog.String("name", role.Name),
	)

	return role, nil
}

// UpdateRole modifies a role's name, description, and permission set. System
// roles cannot be renamed.
func (s *RBACService) UpdateRole(ctx context.Context, id string, input RoleInput) (*domain.Role, error) {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != "" && input.Name != role.Name {
		if role.IsSystem {
			return nil, apperrors.InvalidInput(fmt.Sprintf("system role %q cannot be renamed", role.Name))
		}
		role.Name = input.Name
	}
	role.Description = input.Description
	role.UpdatedAt = time.Now().UTC()

	var permIDs []string
	if input.Permissions != nil {
		permNames, ids, err := s.resolvePermissions(ctx, input.Permissions)
		if err != nil {
			return nil, err
		}
		role.Permissions = permNames
		permIDs = ids
	}

	if err := s.roles.Update(ctx, role, permIDs); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("role", id)
		}
		return nil, fmt.Errorf("update role: %w", err)
	}

	s.logger.InfoContext(ctx, "role updated",
		slog.String("role_id", role.ID),
	)

	return role, nil
}

// DeleteRole removes a role. Roles still assigned to users, and system
// roles, cannot be deleted.
func (s *RBACService) DeleteRole(ctx context.Context, id string) error {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return apperrors.InvalidInput(fmt.Sprintf("system role %q cannot be deleted", role.Name))
	}

	assigned, err := s.users.CountByRoleID(ctx, id)
	if err != nil {
		return fmt.Errorf("count role assignments: %w", err)
	}
	if assigned > 0 {
		return errRoleInUse(role.Name, assigned)
	}

	if err := s.roles.Delete(ctx, id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFound("role", id)
		}
		return fmt.Errorf("delete role: %w", err)
	}

	s.logger.InfoContext(ctx, "role deleted",
		slog.String("role_id", id),
		slog.String("name", role.Name),
	)

	return nil
}

// --- Permissions ---

// ListPermissions returns all permissions ordered by name.
func (s *RBACService) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	perms, err := s.perms.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return perms, nil
}

// CreatePermission creates a new permission.
func (s *RBACService) CreatePermission(ctx context.Context, input PermissionInput) (*domain.Permission, error) {
	if input.Name == "" {
		return nil, apperrors.InvalidInput("name is required")
	}

	perm := &domain.Permission{
		ID:          uuid.New().String(),
		Name:        input.Name,
		Description: input.Description,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.perms.Create(ctx, perm); err != nil {
		return nil, fmt.Errorf("create permission: %w", err)
	}

	s.logger.InfoContext(ctx, "permission created",
		slog.String("permission_id", perm.ID),
		slog.String("name", perm.Name),
	)

	return perm, nil
}

// DeletePermission removes a permission unless any role still references it.
func (s *RBACService) DeletePermission(ctx context.Context, id string) error {
	perm, err := s.perms.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFound("permission", id)
		}
		return fmt.Errorf("get permission: %w", err)
	}

	refs, err := s.perms.CountRolesByPermissionID(ctx, id)
	if err != nil {
		return fmt.Errorf("count permission references: %w", err)
	}
	if refs > 0 {
		return errPermissionInUse(perm.Name, refs)
	}

	if err := s.perms.Delete(ctx, id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFound("permission", id)
		}
		return fmt.Errorf("delete permission: %w", err)
	}

	s.logger.InfoContext(ctx, "permission deleted",
		slog.String("permission_id", id),
		slog.String("name", perm.Name),
	)

	return nil
}

// resolvePermissions maps permission names to their IDs, rejecting unknown names.
func (s *RBACService) resolvePermissions(ctx context.Context, names []string) (permNames, permIDs []string, err error) {
	permNames = make([]string, 0, len(names))
	permIDs = make([]string, 0, len(names))
	for _, name := range names {
		perm, err := s.perms.GetByName(ctx, name)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, nil, apperrors.InvalidInput(fmt.Sprintf("permission %q does not exist", name))
			}
			return nil, nil, fmt.Errorf("resolve permission %q: %w", name, err)
		}
		permNames = append(permNames, perm.Name)
		permIDs = append(permIDs, perm.ID)
	}
	return permNames, permIDs, nil
}
