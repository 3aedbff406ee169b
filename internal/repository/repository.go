package repository

import (
	"context"

	"github.com/veldtlabs/identity/internal/domain"
)

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user and their role assignments atomically.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by their email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// List returns a page of users matching the filter plus the total count.
	List(ctx context.Context, filter domain.UserFilter) ([]domain.User, int, error)

	// Update modifies an existing user, replacing role assignments when
	// user.RoleIDs is non-nil.
	Update(ctx context.Context, user *domain.User) error

	// UpdateLastLogin stamps the user's last successful login time.
	UpdateLastLogin(ctx context.Context, id string) error

	// Delete removes a user from the store by their identifier.
	Delete(ctx context.Context, id string) error

	// CountByRoleID returns how many users hold the given role.
	CountByRoleID(ctx context.Context, roleID string) (int, error)
}

// RoleRepository defines the interface for role persistence operations.
type RoleRepository interface {
	// Create inserts a new role with its permission assignments.
	Create(ctx context.Context, role *domain.Role, permissionIDs []string) error

	// GetByID retrieves a role by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Role, error)

	// GetByName retrieves a role by its name.
	GetByName(ctx context.Context, name string) (*domain.Role, error)

	// List returns all roles with their permission names.
	List(ctx context.Context) ([]domain.Role, error)

	// Update modifies a role, replacing permission assignments when
	// permissionIDs is non-nil.
	Update(ctx context.Context, role *domain.Role, permissionIDs []string) error

	// Delete removes a role by its identifier.
	Delete(ctx context.Context, id string) error

	// ListByUserID returns the roles assigned to a user.
	ListByUserID(ctx context.Context, userID string) ([]domain.Role, error)
}

// PermissionRepository defines the interface for permission persistence operations.
type PermissionRepository interface {
	// Create inserts a new permission.
	Create(ctx context.Context, permission *domain.Permission) error

	// GetByID retrieves a permission by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Permission, error)

	// GetByName retrieves a permission by its name.
	GetByName(ctx context.Context, name string) (*domain.Permission, error)

	// List returns all permissions ordered by name.
	List(ctx context.Context) ([]domain.Permission, error)

	// Delete removes a permission by its identifier.
	Delete(ctx context.Context, id string) error

	// ListNamesByUserID returns the distinct permission names a user holds
	// through their roles.
	ListNamesByUserID(ctx context.Context, userID string) ([]string, error)

	// CountRolesByPermissionID returns how many roles reference the permission.
	CountRolesByPermissionID(ctx context.Context, permissionID string) (int, error)
}

// RefreshTokenRepository defines the interface for the refresh token ledger.
type RefreshTokenRepository interface {
	// Create stores a new ledger entry for an issued refresh token.
	Create(ctx context.Context, token *domain.RefreshToken) error

	// GetByJTI retrieves a ledger entry by the token's JTI claim.
	GetByJTI(ctx context.Context, jti string) (*domain.RefreshToken, error)

	// Revoke marks the entry revoked if it is not already. It reports whether
	// this call performed the revocation, so concurrent refreshes of the same
	// token resolve to a single winner.
	Revoke(ctx context.Context, jti string) (bool, error)

	// RevokeByUserID revokes all active tokens for the given user.
	RevokeByUserID(ctx context.Context, userID string) error

	// DeleteExpired removes entries whose expiry has passed, returning the
	// number deleted.
	DeleteExpired(ctx context.Context) (int64, error)
}

// FileRepository defines the interface for file metadata persistence.
type FileRepository interface {
	// Create inserts a new file metadata record.
	Create(ctx context.Context, file *domain.FileObject) error

	// GetByID retrieves a file record by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.FileObject, error)

	// ListByOwner returns all files owned by the given user.
	ListByOwner(ctx context.Context, ownerID string) ([]domain.FileObject, error)

	// Delete removes a file record by its identifier.
	Delete(ctx context.Context, id string) error
}
