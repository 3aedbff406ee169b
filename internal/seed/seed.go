// Package seed populates the database with the permission catalog, the
// built-in roles, and a bootstrap administrator account. Seeding is
// idempotent: existing records are left untouched.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veldtlabs/identity/internal/auth"
	"github.com/veldtlabs/identity/internal/domain"
	"github.com/veldtlabs/identity/internal/repository"
	apperrors "github.com/veldtlabs/identity/pkg/errors"
)

// permissionCatalog is the full set of capabilities the service enforces.
var permissionCatalog = []domain.Permission{
	{Name: "user.read", Description: "Read user information"},
	{Name: "user.create", Description: "Create new users"},
	{Name: "user.update", Description: "Update user information"},
	{Name: "user.delete", Description: "Delete users"},
	{Name: "role.read", Description: "Read role information"},
	{Name: "role.create", Description: "Create new roles"},
	{Name: "role.update", Description: "Update role information"},
	{Name: "role.delete", Description: "Delete roles"},
	{Name: "permission.read", Description: "Read permission information"},
	{Name: "permission.create", Description: "Create new permissions"},
	{Name: "permission.delete", Description: "Delete permissions"},
	{Name: "file.upload", Description: "Upload files"},
	{Name: "file.read", Description: "Read/download files"},
	{Name: "file.delete", Description: "Delete files"},
}

// roleCatalog maps built-in role names to a predicate selecting which
// permissions they carry.
var roleCatalog = []struct {
	name        string
	description string
	includes    func(permission string) bool
}{
	{
		name:        "admin",
		description: "Administrator with full access to all features",
		includes:    func(string) bool { return true },
	},
	{
		name:        "manager",
		description: "Manager with limited administrative access",
		includes: func(p string) bool {
			return !strings.HasPrefix(p, "permission.") && p != "role.delete"
		},
	},
	{
		name:        "user",
		description: "Regular user with basic file and profile access",
		includes: func(p string) bool {
			return strings.HasPrefix(p, "file.") || p == "user.read" || p == "user.update"
		},
	},
}

// Seeder creates the baseline RBAC data and the bootstrap admin.
type Seeder struct {
	users  repository.UserRepository
	roles  repository.RoleRepository
	perms  repository.PermissionRepository
	logger *slog.Logger
}

// New creates a new Seeder.
func New(
	users repository.UserRepository,
	roles repository.RoleRepository,
	perms repository.PermissionRepository,
	logger *slog.Logger,
) *Seeder {
	return &Seeder{users: users, roles: roles, perms: perms, logger: logger}
}

// Run seeds permissions, roles, and the admin user. If adminPassword is
// empty a random one is generated and logged at warn level so the operator
// can rotate it after first login.
func (s *Seeder) Run(ctx context.Context, adminEmail, adminPassword string) error {
	permIDs, err := s.seedPermissions(ctx)
	if err != nil {
		return err
	}

	adminRoleID, err := s.seedRoles(ctx, permIDs)
	if err != nil {
		return err
	}

	return s.seedAdmin(ctx, adminEmail, adminPassword, adminRoleID)
}

// seedPermissions ensures every catalog permission exists and returns a
// name -> id map covering the full catalog.
func (s *Seeder) seedPermissions(ctx context.Context) (map[string]string, error) {
	ids := make(map[string]string, len(permissionCatalog))
	created := 0

	for _, p := range permissionCatalog {
		existing, err := s.perms.GetByName(ctx, p.Name)
		if err == nil {
			ids[p.Name] = existing.ID
			continue
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("look up permission %s: %w", p.Name, err)
		}

		perm := &domain.Permission{
			ID:          uuid.New().String(),
			Name:        p.Name,
			Description: p.Description,
			CreatedAt:   time.Now().UTC(),
		}
		if err := s.perms.Create(ctx, perm); err != nil {
			return nil, fmt.Errorf("create permission %s: %w", p.Name, err)
		}
		ids[p.Name] = perm.ID
		created++
	}

	s.logger.InfoContext(ctx, "permissions seeded",
		slog.Int("total", len(permissionCatalog)),
		slog.Int("created", created),
	)
	return ids, nil
}

// seedRoles ensures the built-in roles exist and returns the admin role id.
func (s *Seeder) seedRoles(ctx context.Context, permIDs map[string]string) (string, error) {
	var adminRoleID string

	for _, def := range roleCatalog {
		existing, err := s.roles.GetByName(ctx, def.name)
		if err == nil {
			if def.name == "admin" {
				adminRoleID = existing.ID
			}
			continue
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return "", fmt.Errorf("look up role %s: %w", def.name, err)
		}

		var rolePermIDs []string
		for _, p := range permissionCatalog {
			if def.includes(p.Name) {
				rolePermIDs = append(rolePermIDs, permIDs[p.Name])
			}
		}

		now := time.Now().UTC()
		role := &domain.Role{
			ID:          uuid.New().String(),
			Name:        def.name,
			Description: def.description,
			IsSystem:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.roles.Create(ctx, role, rolePermIDs); err != nil {
			return "", fmt.Errorf("create role %s: %w", def.name, err)
		}
		if def.name == "admin" {
			adminRoleID = role.ID
		}

		s.logger.InfoContext(ctx, "role seeded",
			slog.String("role", def.name),
			slog.Int("permissions", len(rolePermIDs)),
		)
	}

	return adminRoleID, nil
}

// seedAdmin creates the bootstrap administrator unless one already exists.
func (s *Seeder) seedAdmin(ctx context.Context, email, password, adminRoleID string) error {
	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		s.logger.InfoContext(ctx, "admin user already exists", slog.String("email", email))
		return nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("look up admin user: %w", err)
	}

	generated := false
	if password == "" {
		password = uuid.New().String()
		generated = true
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	now := time.Now().UTC()
	admin := &domain.User{
		ID:            uuid.New().String(),
		Email:         email,
		PasswordHash:  hash,
		Name:          "System Administrator",
		IsActive:      true,
		EmailVerified: true,
		RoleIDs:       []string{adminRoleID},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	s.logger.InfoContext(ctx, "admin user created", slog.String("email", email))
	if generated {
		s.logger.WarnContext(ctx, "generated admin password, change it after first login",
			slog.String("password", password),
		)
	} else {
		s.logger.WarnContext(ctx, "admin seeded with password from environment, change it after first login")
	}

	return nil
}
