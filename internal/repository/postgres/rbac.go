package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/veldtlabs/identity/internal/domain"
	apperrors "github.com/veldtlabs/identity/pkg/errors"
)

const roleSelectColumns = `
	r.id, r.name, r.description, r.is_system, r.created_at, r.updated_at,
	COALESCE(array_agg(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}') AS permissions`

const roleJoinPermissions = `
	LEFT JOIN role_permissions rp ON rp.role_id = r.id
	LEFT JOIN permissions p ON p.id = rp.permission_id`

// RoleRepository implements repository.RoleRepository using PostgreSQL.
type RoleRepository struct {
	pool DB
}

// NewRoleRepository creates a new PostgreSQL-backed role repository.
func NewRoleRepository(pool DB) *RoleRepository {
	return &RoleRepository{pool: pool}
}

// Create inserts a role and its permission assignments in one transaction.
func (r *RoleRepository) Create(ctx context.Context, role *domain.Role, permissionIDs []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO roles (id, name, description, is_system, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = tx.Exec(ctx, query,
		role.ID,
		role.Name,
		role.Description,
		role.IsSystem,
		role.CreatedAt,
		role.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("role", "name", role.Name)
		}
		return fmt.Errorf("insert role: %w", err)
	}

	for _, permID := range permissionIDs {
		_, err = tx.Exec(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
			role.ID, permID,
		)
		if err != nil {
			return fmt.Errorf("assign permission %s: %w", permID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a role with its permission names by ID.
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	query := `
		SELECT` + roleSelectColumns + `
		FROM roles r` + roleJoinPermissions + `
		WHERE r.id = $1
		GROUP BY r.id`

	return r.scanRole(ctx, query, id)
}

// GetByName retrieves a role with its permission names by name.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	query := `
		SELECT` + roleSelectColumns + `
		FROM roles r` + roleJoinPermissions + `
		WHERE r.name = $1
		GROUP BY r.id`

	return r.scanRole(ctx, query, name)
}

// List returns all roles with their permission names, ordered by name.
func (r *RoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	query := `
		SELECT` + roleSelectColumns + `
		FROM roles r` + roleJoinPermissions + `
		GROUP BY r.id
		ORDER BY r.name`

	return r.queryRoles(ctx, query)
}

// ListByUserID returns the roles assigned to a user.
func (r *RoleRepository) ListByUserID(ctx context.Context, userID string) ([]domain.Role, error) {
	query := `
		SELECT` + roleSelectColumns + `
		FROM roles r` + roleJoinPermissions + `
		JOIN user_roles ur ON ur.role_id = r.id AND ur.user_id = $1
		GROUP BY r.id
		ORDER BY r.name`

	return r.queryRoles(ctx, query, userID)
}

// Update modifies a role and, when permissionIDs is non-nil, replaces its
// permission assignments in the same transaction.
func (r *RoleRepository) Update(ctx context.Context, role *domain.Role, permissionIDs []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		UPDATE roles
		SET name = $1, description = $2, updated_at = $3
		WHERE id = $4`

	ct, err := tx.Exec(ctx, query, role.Name, role.Description, role.UpdatedAt, role.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("role", "name", role.Name)
		}
		return fmt.Errorf("update role: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("role", role.ID)
	}

	if permissionIDs != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, role.ID); err != nil {
			return fmt.Errorf("clear role permissions: %w", err)
		}
		for _, permID := range permissionIDs {
			_, err = tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
				role.ID, permID,
			)
			if err != nil {
				return fmt.Errorf("assign permission %s: %w", permID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Delete removes a role by its ID.
func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("role", id)
	}
	return nil
}

func (r *RoleRepository) scanRole(ctx context.Context, query string, args ...any) (*domain.Role, error) {
	role, err := scanRoleRow(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}
	return role, nil
}

func (r *RoleRepository) queryRoles(ctx context.Context, query string, args ...any) ([]domain.Role, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	roles := []domain.Role{}
	for rows.Next() {
		role, err := scanRoleRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role row: %w", err)
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role rows: %w", err)
	}

	return roles, nil
}

func scanRoleRow(row pgx.Row) (*domain.Role, error) {
	var role domain.Role
	err := row.Scan(
		&role.ID,
		&role.Name,
		&role.Description,
		&role.IsSystem,
		&role.CreatedAt,
		&role.UpdatedAt,
		&role.Permissions,
	)
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// --- Permission Repository ---

// PermissionRepository implements repository.PermissionRepository using PostgreSQL.
type PermissionRepository struct {
	pool DB
}

// NewPermissionRepository creates a new PostgreSQL-backed permission repository.
func NewPermissionRepository(pool DB) *PermissionRepository {
	return &PermissionRepository{pool: pool}
}

// Create inserts a new permission.
func (r *PermissionRepository) Create(ctx context.Context, p *domain.Permission) error {
	query := `
		INSERT INTO permissions (id, name, description, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := r.pool.Exec(ctx, query, p.ID, p.Name, p.Description, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("permission", "name", p.Name)
		}
		return fmt.Errorf("insert permission: %w", err)
	}

	return nil
}

// GetByID retrieves a permission by its ID.
func (r *PermissionRepository) GetByID(ctx context.Context, id string) (*domain.Permission, error) {
	query := `SELECT id, name, description, created_at FROM permissions WHERE id = $1`
	return r.scanPermission(ctx, query, id)
}

// GetByName retrieves a permission by its name.
func (r *PermissionRepository) GetByName(ctx context.Context, name string) (*domain.Permission, error) {
	query := `SELECT id, name, description, created_at FROM permissions WHERE name = $1`
	return r.scanPermission(ctx, query, name)
}

// List returns all permissions ordered by name.
func (r *PermissionRepository) List(ctx context.Context) ([]domain.Permission, error) {
	query := `SELECT id, name, description, created_at FROM permissions ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	perms := []domain.Permission{}
	for rows.Next() {
		var p domain.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan permission row: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permission rows: %w", err)
	}

	return perms, nil
}

// Delete removes a permission by its ID.
func (r *PermissionRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("permission", id)
	}
	return nil
}

// ListNamesByUserID returns the distinct permission names a user holds
// through their roles.
func (r *PermissionRepository) ListNamesByUserID(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT DISTINCT p.name
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN user_roles ur ON ur.role_id = rp.role_id
		WHERE ur.user_id = $1
		ORDER BY p.name`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list user permissions: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan permission name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permission names: %w", err)
	}

	return names, nil
}

// CountRolesByPermissionID returns how many roles reference the permission.
func (r *PermissionRepository) CountRolesByPermissionID(ctx context.Context, permissionID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM role_permissions WHERE permission_id = $1`, permissionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count roles by permission: %w", err)
	}
	return count, nil
}

func (r *PermissionRepository) scanPermission(ctx context.Context, query string, args ...any) (*domain.Permission, error) {
	var p domain.Permission
	err := r.pool.QueryRow(ctx, query, args...).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan permission: %w", err)
	}
	return &p, nil
}
